// Package fsm provides a generic finite state machine wrapper.
package fsm

// file: internal/fsm/fsm_test.go

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stateIdle    State = "idle"
	stateRunning State = "running"
	stateDone    State = "done"

	eventStart  Event = "start"
	eventFinish Event = "finish"
	eventRetry  Event = "retry"
)

// setupMachine builds a small three-state machine for tests.
func setupMachine(t *testing.T) FSM {
	t.Helper()
	machine := NewFSM(stateIdle, nil)
	machine.AddTransition(Transition{From: []State{stateIdle}, Event: eventStart, To: stateRunning})
	machine.AddTransition(Transition{From: []State{stateRunning}, Event: eventFinish, To: stateDone})
	machine.AddTransition(Transition{From: []State{stateDone}, Event: eventRetry, To: stateRunning})
	require.NoError(t, machine.Build(), "Failed to build test machine.")
	return machine
}

func TestFSM_FollowsDefinedTransitions(t *testing.T) {
	machine := setupMachine(t)
	ctx := context.Background()

	assert.Equal(t, stateIdle, machine.CurrentState())
	require.NoError(t, machine.Transition(ctx, eventStart))
	assert.Equal(t, stateRunning, machine.CurrentState())
	require.NoError(t, machine.Transition(ctx, eventFinish))
	assert.Equal(t, stateDone, machine.CurrentState())
	require.NoError(t, machine.Transition(ctx, eventRetry))
	assert.Equal(t, stateRunning, machine.CurrentState())
}

func TestFSM_RejectsUndefinedTransitions(t *testing.T) {
	machine := setupMachine(t)
	ctx := context.Background()

	err := machine.Transition(ctx, eventFinish)
	require.Error(t, err, "finish is not legal from idle.")
	assert.Equal(t, stateIdle, machine.CurrentState(), "A rejected event must not move the state.")
}

func TestFSM_CanTransition(t *testing.T) {
	machine := setupMachine(t)

	assert.True(t, machine.CanTransition(eventStart))
	assert.False(t, machine.CanTransition(eventFinish))
	assert.False(t, machine.CanTransition(eventRetry))
}

func TestFSM_SetStateAndReset(t *testing.T) {
	machine := setupMachine(t)

	require.NoError(t, machine.SetState(stateDone))
	assert.Equal(t, stateDone, machine.CurrentState())

	require.NoError(t, machine.Reset())
	assert.Equal(t, stateIdle, machine.CurrentState())
}

func TestFSM_MultipleSourceStatesShareOneEvent(t *testing.T) {
	machine := NewFSM(stateIdle, nil)
	machine.AddTransition(Transition{From: []State{stateIdle, stateDone}, Event: eventStart, To: stateRunning})
	require.NoError(t, machine.Build())

	require.NoError(t, machine.SetState(stateDone))
	require.NoError(t, machine.Transition(context.Background(), eventStart))
	assert.Equal(t, stateRunning, machine.CurrentState())
}

func TestFSM_BuildRejectsConflictingDestinations(t *testing.T) {
	machine := NewFSM(stateIdle, nil)
	machine.AddTransition(Transition{From: []State{stateIdle}, Event: eventStart, To: stateRunning})
	machine.AddTransition(Transition{From: []State{stateDone}, Event: eventStart, To: stateDone})
	require.Error(t, machine.Build(), "One event cannot target two destinations.")
}

func TestFSM_BuildRejectsMissingSourceStates(t *testing.T) {
	machine := NewFSM(stateIdle, nil)
	machine.AddTransition(Transition{Event: eventStart, To: stateRunning})
	require.Error(t, machine.Build())
}

func TestFSM_AddTransitionAfterBuildFails(t *testing.T) {
	machine := setupMachine(t)
	machine.AddTransition(Transition{From: []State{stateIdle}, Event: eventRetry, To: stateDone})
	require.Error(t, machine.Build(), "The machine is immutable once built.")
}
