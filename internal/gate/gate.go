// Package gate implements the approval gate: the only component whose
// behavior depends on the fingerprint model, the trust store, the quarantine
// store, the guardrail, and the downstream session together. Every client
// request is decided here: blocked, forwarded, or diverted into quarantine.
package gate

// file: internal/gate/gate.go

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/toolgate/toolgate/internal/downstream"
	"github.com/toolgate/toolgate/internal/fingerprint"
	"github.com/toolgate/toolgate/internal/fsm"
	"github.com/toolgate/toolgate/internal/guardrail"
	"github.com/toolgate/toolgate/internal/logging"
	"github.com/toolgate/toolgate/internal/quarantine"
	"github.com/toolgate/toolgate/internal/sanitize"
	"github.com/toolgate/toolgate/internal/truststore"
)

// Gate composes the fingerprint model, trust store, quarantine store, and
// guardrail into the per-request decision logic for one downstream identity.
// Gate state is keyed by (kind, identifier): concurrent sessions against the
// same identity share one trust record, and an approval from another session
// becomes visible here on the next re-check because the store is re-read
// every time.
type Gate struct {
	kind       string
	identifier string

	session downstream.Session
	trust   *truststore.Store
	store   *quarantine.Store
	guard   guardrail.Provider

	// guardFailOpen selects the classifier-failure policy: true forwards the
	// unscreened output, false quarantines it. Fail-closed is the default.
	guardFailOpen bool

	// sanitizer rewrites escape introducers in text bound for the client.
	sanitizer *sanitize.Sanitizer

	logger logging.Logger
	fsm    fsm.FSM

	// mu guards live and state transitions triggered by refresh/approve.
	mu sync.Mutex
	// live is the cached live fingerprint; nil after invalidation.
	live *fingerprint.ServerConfig
}

// Options configures a Gate.
type Options struct {
	Kind       string
	Identifier string
	Session    downstream.Session
	Trust      *truststore.Store
	Quarantine *quarantine.Store
	// Guard is optional; nil disables output screening.
	Guard guardrail.Provider
	// GuardFailOpen forwards output when the classifier fails. Leave false
	// for the recommended fail-closed policy.
	GuardFailOpen bool
	// Sanitizer is optional; nil means no escape rewriting.
	Sanitizer *sanitize.Sanitizer
	Logger    logging.Logger
}

// New creates a Gate and performs the initial trust check against the live
// downstream fingerprint.
func New(ctx context.Context, opts Options) (*Gate, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	logger = logger.WithField("component", "approval_gate")

	machine, err := newApprovalMachine(logger)
	if err != nil {
		return nil, err
	}

	sanitizer := opts.Sanitizer
	if sanitizer == nil {
		sanitizer = sanitize.New(false)
	}
	g := &Gate{
		kind:          opts.Kind,
		identifier:    opts.Identifier,
		session:       opts.Session,
		trust:         opts.Trust,
		store:         opts.Quarantine,
		guard:         opts.Guard,
		guardFailOpen: opts.GuardFailOpen,
		sanitizer:     sanitizer,
		logger:        logger,
		fsm:           machine,
	}
	if _, err := g.refresh(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// refresh fetches the live fingerprint, compares it to the stored trust
// record, and moves the state machine accordingly. Returns the live
// fingerprint. Callers hold no lock; refresh takes it.
func (g *Gate) refresh(ctx context.Context) (*fingerprint.ServerConfig, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refreshLocked(ctx)
}

// refreshLocked is refresh with g.mu already held.
func (g *Gate) refreshLocked(ctx context.Context) (*fingerprint.ServerConfig, error) {
	live, err := g.fetchLive(ctx)
	if err != nil {
		return nil, err
	}
	g.live = live

	stored, err := g.trust.Get(g.kind, g.identifier)
	if err != nil {
		return nil, err
	}

	current := g.fsm.CurrentState()
	switch {
	case stored == nil:
		if current != StateUnreviewed {
			g.logger.Warn("Trust record disappeared, reverting to unreviewed.", "kind", g.kind, "identifier", g.identifier)
			if err := g.fsm.Transition(ctx, EventTrustRevoked); err != nil {
				return nil, errors.Wrap(err, "failed to revert approval state")
			}
		}
	case fingerprint.Compare(stored, live).HasDifferences():
		if current == StateCurrent || current == StateUnreviewed {
			// A record exists but no longer matches: drift. From unreviewed
			// this is a first sighting of a stale record; model both as stale.
			if current == StateCurrent {
				if err := g.fsm.Transition(ctx, EventDriftDetected); err != nil {
					return nil, errors.Wrap(err, "failed to record drift")
				}
			} else if err := g.fsm.SetState(StateStale); err != nil {
				return nil, err
			}
			g.logger.Warn("Live fingerprint differs from approved record.", "kind", g.kind, "identifier", g.identifier)
		}
	default:
		if current != StateCurrent {
			if err := g.fsm.Transition(ctx, EventTrustConfirmed); err != nil {
				return nil, errors.Wrap(err, "failed to confirm trust")
			}
			g.logger.Info("Stored approval matches live fingerprint.", "kind", g.kind, "identifier", g.identifier)
		}
	}
	return live, nil
}

// fetchLive builds the fingerprint from the downstream's declared surface.
func (g *Gate) fetchLive(ctx context.Context) (*fingerprint.ServerConfig, error) {
	tools, err := g.session.ListTools(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list downstream tools")
	}
	return fingerprint.Build(tools, g.session.Instructions())
}

// liveConfig returns the cached live fingerprint, refreshing if a
// list-changed notification invalidated it.
func (g *Gate) liveConfig(ctx context.Context) (*fingerprint.ServerConfig, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.live != nil {
		return g.live, nil
	}
	return g.refreshLocked(ctx)
}

// InvalidateComparison drops the cached live-fingerprint comparison. The next
// capability listing or tool call recomputes it. Called by the notification
// relay on a tools-list-changed notification.
func (g *Gate) InvalidateComparison() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live = nil
	g.logger.Debug("Live fingerprint comparison invalidated.")
}

// Approved reports whether tool invocations are currently forwarded.
func (g *Gate) Approved(ctx context.Context) (bool, error) {
	if _, err := g.liveConfig(ctx); err != nil {
		return false, err
	}
	return g.fsm.CurrentState() == StateCurrent, nil
}

// ListTools returns the capability surface the client may see: the
// downstream's declared tools once approved, or exactly the two synthetic
// approval tools while blocked.
func (g *Gate) ListTools(ctx context.Context) ([]fingerprint.DeclaredTool, error) {
	if _, err := g.liveConfig(ctx); err != nil {
		return nil, err
	}
	if g.fsm.CurrentState() != StateCurrent {
		return syntheticTools(), nil
	}
	tools, err := g.session.ListTools(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list downstream tools")
	}
	// Descriptions are attacker-controlled text headed for a terminal; rewrite
	// escape introducers on a copy rather than mutating the session's slice.
	cleaned := make([]fingerprint.DeclaredTool, len(tools))
	for i, tool := range tools {
		tool.Description = g.sanitizer.Clean(tool.Description)
		cleaned[i] = tool
	}
	return cleaned, nil
}

// CallTool decides one tool invocation. While not approved, every name (real
// or fabricated) yields the identical blocked result except the two synthetic
// tools. Once approved, the call is forwarded and the response screened.
func (g *Gate) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	live, err := g.liveConfig(ctx)
	if err != nil {
		return nil, err
	}

	if g.fsm.CurrentState() != StateCurrent {
		switch name {
		case ToolConfigInstructions:
			return g.configInstructions(live)
		case ToolApproveConfig:
			return g.approve(ctx, args)
		default:
			return g.blocked(live)
		}
	}
	return g.forward(ctx, name, args)
}

// blocked renders the uniform blocked result carrying the candidate
// fingerprint for review.
func (g *Gate) blocked(live *fingerprint.ServerConfig) (json.RawMessage, error) {
	canonical, err := live.Canonical()
	if err != nil {
		return nil, err
	}
	return marshalResult(BlockedResult{
		Status:       StatusBlocked,
		Reason:       BlockedReason,
		ServerConfig: string(canonical),
	})
}

// configInstructions renders the synthetic review-guidance tool's response:
// plain guidance text embedding the canonical candidate.
func (g *Gate) configInstructions(live *fingerprint.ServerConfig) (json.RawMessage, error) {
	canonical, err := live.Canonical()
	if err != nil {
		return nil, err
	}
	return marshalResult(instructionsText(string(canonical)))
}

// approve handles approve_server_config: the candidate must byte-match the
// re-fetched, re-serialized live fingerprint. No partial acceptance.
func (g *Gate) approve(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var params approveParams
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return marshalResult(ApprovalResult{Status: StatusFailed, Reason: "Invalid approval arguments."})
		}
	}
	if params.Config == "" {
		return marshalResult(ApprovalResult{Status: StatusFailed, Reason: "Missing config argument."})
	}

	candidate, err := fingerprint.Parse([]byte(params.Config))
	if err != nil {
		g.logger.Warn("Approval candidate failed validation.", "error", err)
		return marshalResult(ApprovalResult{Status: StatusFailed, Reason: "Supplied config is not a valid server configuration document."})
	}

	// Always re-fetch: the downstream may have changed between review and
	// approval, and approving a stale snapshot would bless unseen changes.
	g.mu.Lock()
	defer g.mu.Unlock()
	live, err := g.fetchLive(ctx)
	if err != nil {
		return nil, err
	}
	g.live = live

	liveCanonical, err := live.Canonical()
	if err != nil {
		return nil, err
	}
	candidateCanonical, err := candidate.Canonical()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(liveCanonical, candidateCanonical) {
		g.logger.Warn("Approval rejected: candidate does not match live fingerprint.",
			"kind", g.kind, "identifier", g.identifier)
		return marshalResult(ApprovalResult{Status: StatusFailed, Reason: MismatchReason})
	}

	if err := g.trust.Save(g.kind, g.identifier, live); err != nil {
		return nil, err
	}
	if g.fsm.CurrentState() != StateCurrent {
		if err := g.fsm.Transition(ctx, EventApproved); err != nil {
			return nil, errors.Wrap(err, "failed to record approval")
		}
	}
	g.logger.Info("Server configuration approved.", "kind", g.kind, "identifier", g.identifier, "tool_count", len(live.Tools))
	return marshalResult(ApprovalResult{Status: StatusSuccess})
}

// forward relays an approved tool call downstream and screens the response.
func (g *Gate) forward(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	raw, err := g.session.CallTool(ctx, name, args)
	if err != nil {
		// The client already knows the approved surface; downstream errors
		// (unknown tool, validation) surface verbatim.
		return nil, err
	}
	output := string(raw)

	if g.guard != nil {
		verdict, guardErr := g.guard.Check(ctx, name, args, output)
		if guardErr != nil {
			g.logger.Error("Guardrail classifier failed.", "tool", name, "error", guardErr)
			if !g.guardFailOpen {
				return g.divert(name, args, output,
					"guardrail classifier failed; response withheld under fail-closed policy")
			}
			g.logger.Warn("Forwarding unscreened output under fail-open policy.", "tool", name)
		} else if verdict.Flagged {
			return g.divert(name, args, output, verdict.Reason)
		}
	}

	return marshalResult(CompletedResult{Status: StatusCompleted, Response: g.sanitizer.Clean(output)})
}

// divert moves a response into the quarantine store and returns the
// placeholder the client sees instead.
func (g *Gate) divert(name string, args json.RawMessage, output, reason string) (json.RawMessage, error) {
	id, err := g.store.Add(name, args, output, reason)
	if err != nil {
		return nil, err
	}
	return marshalResult(QuarantinedResult{
		Status:       StatusQuarantined,
		QuarantineID: id,
		Reason:       "Response withheld pending human review: " + reason,
	})
}

// marshalResult serializes a gate result payload.
func marshalResult(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal gate result")
	}
	return data, nil
}
