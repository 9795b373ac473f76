// Package gate implements the approval gate: the per-request decision logic
// between a client and an unapproved downstream server.
// This file defines the approval lifecycle states and events.
package gate

// file: internal/gate/states.go

import (
	"github.com/cockroachdb/errors"

	"github.com/toolgate/toolgate/internal/fsm"
	"github.com/toolgate/toolgate/internal/logging"
)

// Approval lifecycle states for one (kind, identifier) session.
const (
	// StateUnreviewed: no trust record exists for this server identity.
	StateUnreviewed fsm.State = "unreviewed"
	// StateCurrent: the trust record structurally equals the live fingerprint.
	StateCurrent fsm.State = "current"
	// StateStale: a trust record exists but differs from the live fingerprint.
	// From the client's perspective this behaves identically to unreviewed.
	StateStale fsm.State = "stale"
)

// Approval lifecycle events.
const (
	// EventTrustConfirmed: the stored record matched the live fingerprint.
	EventTrustConfirmed fsm.Event = "trust_confirmed"
	// EventApproved: the human approved the live fingerprint.
	EventApproved fsm.Event = "approved"
	// EventDriftDetected: the live fingerprint no longer matches the record.
	EventDriftDetected fsm.Event = "drift_detected"
	// EventTrustRevoked: the trust record disappeared (removed out-of-band).
	EventTrustRevoked fsm.Event = "trust_revoked"
)

// newApprovalMachine builds the approval lifecycle state machine.
func newApprovalMachine(logger logging.Logger) (fsm.FSM, error) {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	machine := fsm.NewFSM(StateUnreviewed, logger)

	machine.AddTransition(fsm.Transition{
		From:  []fsm.State{StateUnreviewed, StateStale},
		Event: EventTrustConfirmed,
		To:    StateCurrent,
	})
	machine.AddTransition(fsm.Transition{
		From:  []fsm.State{StateUnreviewed, StateStale, StateCurrent},
		Event: EventApproved,
		To:    StateCurrent,
	})
	machine.AddTransition(fsm.Transition{
		From:  []fsm.State{StateCurrent, StateStale},
		Event: EventDriftDetected,
		To:    StateStale,
	})
	machine.AddTransition(fsm.Transition{
		From:  []fsm.State{StateCurrent, StateStale},
		Event: EventTrustRevoked,
		To:    StateUnreviewed,
	})

	if err := machine.Build(); err != nil {
		return nil, errors.Wrap(err, "failed to build approval state machine")
	}
	return machine, nil
}
