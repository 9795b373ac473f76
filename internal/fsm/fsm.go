// Package fsm provides a generic finite state machine wrapper used for the
// approval lifecycle.
// file: internal/fsm/fsm.go
package fsm

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	lfsm "github.com/looplab/fsm"

	"github.com/toolgate/toolgate/internal/logging"
)

// State represents a state in the FSM.
type State string

// Event represents an event that can trigger a state transition.
type Event string

// Transition defines a transition rule between states.
type Transition struct {
	From  []State // Source states for this transition.
	To    State   // The destination state.
	Event Event   // The event triggering the transition.
}

// FSM defines the interface for the finite state machine wrapper.
type FSM interface {
	// AddTransition stores a transition definition. Call Build() after adding all transitions.
	AddTransition(transition Transition) FSM
	// Build finalizes the FSM configuration and creates the underlying machine.
	Build() error
	// CurrentState returns the current state. Requires Build().
	CurrentState() State
	// CanTransition checks if the event is defined for the current state. Requires Build().
	CanTransition(event Event) bool
	// Transition attempts to trigger a state transition. Requires Build().
	Transition(ctx context.Context, event Event) error
	// SetState allows manually setting the FSM state (use with caution). Requires Build().
	SetState(state State) error
	// Reset sets the state back to the initial state. Requires Build().
	Reset() error
}

// loopFSM implements the FSM interface using looplab/fsm.
type loopFSM struct {
	initialState State
	logger       logging.Logger
	transitions  []Transition
	fsm          *lfsm.FSM // Underlying instance, nil until Build() is called.
	buildErr     error
	mu           sync.RWMutex // Protects access to fsm instance and buildErr.
}

// NewFSM creates a new FSM builder instance with the specified initial state
// and logger. Call AddTransition() to define transitions, then Build().
func NewFSM(initialState State, logger logging.Logger) FSM {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &loopFSM{
		initialState: initialState,
		logger:       logger.WithField("component", "fsm_wrapper"),
		transitions:  make([]Transition, 0),
	}
}

// AddTransition stores a transition definition to be used during Build().
func (l *loopFSM) AddTransition(t Transition) FSM {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fsm != nil {
		if l.buildErr == nil {
			l.buildErr = errors.New("cannot AddTransition after Build")
		}
		return l
	}
	if len(t.From) == 0 {
		if l.buildErr == nil {
			l.buildErr = errors.New("transition definition missing 'From' states")
		}
		return l
	}
	l.transitions = append(l.transitions, t)
	return l
}

// Build finalizes the FSM configuration and creates the underlying
// looplab/fsm instance.
func (l *loopFSM) Build() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fsm != nil {
		return l.buildErr
	}
	if l.buildErr != nil {
		return l.buildErr
	}

	eventDescMap := make(map[string]lfsm.EventDesc)
	for _, t := range l.transitions {
		eventName := string(t.Event)
		toStateStr := string(t.To)

		desc, exists := eventDescMap[eventName]
		if !exists {
			desc = lfsm.EventDesc{Name: eventName, Dst: toStateStr}
		} else if desc.Dst != toStateStr {
			l.buildErr = errors.Newf(
				"conflicting destinations (%q and %q) for the same event %q",
				desc.Dst, toStateStr, eventName)
			return l.buildErr
		}
		for _, s := range t.From {
			desc.Src = append(desc.Src, string(s))
		}
		eventDescMap[eventName] = desc
	}

	finalEvents := make([]lfsm.EventDesc, 0, len(eventDescMap))
	for _, desc := range eventDescMap {
		seen := make(map[string]struct{}, len(desc.Src))
		deduped := make([]string, 0, len(desc.Src))
		for _, s := range desc.Src {
			if _, dup := seen[s]; !dup {
				seen[s] = struct{}{}
				deduped = append(deduped, s)
			}
		}
		desc.Src = deduped
		finalEvents = append(finalEvents, desc)
	}

	l.fsm = lfsm.NewFSM(string(l.initialState), finalEvents, lfsm.Callbacks{})
	l.logger.Debug("FSM instance built.", "initialState", l.initialState, "transition_count", len(l.transitions))
	return nil
}

// CurrentState returns the current state of the FSM. Requires Build().
func (l *loopFSM) CurrentState() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.fsm == nil {
		return ""
	}
	return State(l.fsm.Current())
}

// CanTransition checks if the given event can trigger a transition from the
// current state. Requires Build().
func (l *loopFSM) CanTransition(event Event) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.fsm == nil {
		return false
	}
	return l.fsm.Can(string(event))
}

// Transition triggers a state transition based on the event. Requires Build().
func (l *loopFSM) Transition(ctx context.Context, event Event) error {
	l.mu.RLock()
	if l.fsm == nil {
		l.mu.RUnlock()
		return errors.New("Transition called before Build")
	}
	fsmInstance := l.fsm
	currentState := State(fsmInstance.Current())
	l.mu.RUnlock()

	if err := fsmInstance.Event(ctx, string(event)); err != nil {
		l.logger.Debug("FSM transition failed.", "event", event, "from_state", currentState, "error", err)
		return err
	}
	l.logger.Debug("Transition successful.", "event", event, "old_state", currentState, "new_state", fsmInstance.Current())
	return nil
}

// SetState allows manually setting the FSM state. Use with caution. Requires Build().
func (l *loopFSM) SetState(state State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fsm == nil {
		return errors.New("SetState called before Build")
	}
	l.fsm.SetState(string(state))
	return nil
}

// Reset sets the state back to the initial state. Requires Build().
func (l *loopFSM) Reset() error {
	return l.SetState(l.initialState)
}
