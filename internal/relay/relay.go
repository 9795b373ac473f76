// Package relay filters and forwards downstream-originated protocol
// notifications. Only a fixed whitelist reaches the client: everything else a
// downstream tries to smuggle toward the client is silently dropped.
package relay

// file: internal/relay/relay.go

import (
	"context"

	"github.com/toolgate/toolgate/internal/jsonrpc"
	"github.com/toolgate/toolgate/internal/logging"
)

// Whitelisted notification methods.
const (
	MethodToolsListChanged     = "notifications/tools/list_changed"
	MethodPromptsListChanged   = "notifications/prompts/list_changed"
	MethodResourcesListChanged = "notifications/resources/list_changed"
	MethodProgress             = "notifications/progress"
	MethodLogMessage           = "notifications/message"
	MethodResourceUpdated      = "notifications/resources/updated"
)

// forwardable is the whitelist membership set.
var forwardable = map[string]struct{}{
	MethodToolsListChanged:     {},
	MethodPromptsListChanged:   {},
	MethodResourcesListChanged: {},
	MethodProgress:             {},
	MethodLogMessage:           {},
	MethodResourceUpdated:      {},
}

// Invalidator is the piece of the approval gate the relay needs: dropping the
// cached live-fingerprint comparison when the downstream announces a tool
// list change.
type Invalidator interface {
	InvalidateComparison()
}

// Forwarder delivers a whitelisted notification to the client.
type Forwarder func(ctx context.Context, notif jsonrpc.Notification) error

// Relay filters downstream notifications against the whitelist and keeps the
// gate's comparison cache honest.
type Relay struct {
	gate    Invalidator
	forward Forwarder
	logger  logging.Logger
}

// New creates a relay delivering through the given forwarder.
func New(gate Invalidator, forward Forwarder, logger logging.Logger) *Relay {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &Relay{
		gate:    gate,
		forward: forward,
		logger:  logger.WithField("component", "notification_relay"),
	}
}

// Handle processes one downstream notification: whitelisted kinds are
// forwarded verbatim, anything else is dropped. A tools-list-changed
// notification additionally invalidates the gate's cached comparison before
// forwarding, so the next capability listing recomputes it.
func (r *Relay) Handle(ctx context.Context, notif jsonrpc.Notification) error {
	if _, ok := forwardable[notif.Method]; !ok {
		r.logger.Debug("Dropping non-whitelisted downstream notification.", "method", notif.Method)
		return nil
	}
	if notif.Method == MethodToolsListChanged {
		r.logger.Info("Downstream announced tool list change, invalidating comparison.")
		r.gate.InvalidateComparison()
	}
	return r.forward(ctx, notif)
}
