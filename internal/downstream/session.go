// Package downstream defines the contract the proxy consumes from the server
// being proxied, and the stdio subprocess implementation of it. Everything the
// gate knows about the downstream passes through the Session interface, so the
// proxy core stays transport-agnostic.
package downstream

// file: internal/downstream/session.go

import (
	"context"
	"encoding/json"

	"github.com/toolgate/toolgate/internal/fingerprint"
	"github.com/toolgate/toolgate/internal/jsonrpc"
)

// Session is the downstream collaborator contract. Implementations must be
// safe for concurrent calls: the proxy multiplexes requests and notification
// consumption.
type Session interface {
	// Instructions returns the server instructions captured during the
	// initialize handshake.
	Instructions() string

	// ListTools fetches the downstream's currently declared tool list.
	ListTools(ctx context.Context) ([]fingerprint.DeclaredTool, error)

	// CallTool invokes a downstream tool and returns its raw result document.
	CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)

	// ListPrompts returns the downstream's raw prompts/list result.
	ListPrompts(ctx context.Context) (json.RawMessage, error)

	// ListResources returns the downstream's raw resources/list result.
	ListResources(ctx context.Context) (json.RawMessage, error)

	// ReadResource returns the downstream's raw resources/read result.
	ReadResource(ctx context.Context, uri string) (json.RawMessage, error)

	// Cancel forwards a client-issued cancellation for an in-flight request.
	Cancel(ctx context.Context, requestID json.RawMessage, reason string) error

	// Notifications yields downstream-originated notifications. The channel
	// closes when the session ends.
	Notifications() <-chan jsonrpc.Notification

	// Close terminates the session and, for spawned processes, guarantees the
	// child is reaped: graceful signal, bounded grace period, then force-kill.
	Close() error
}

// toolListResult is the wire shape of a tools/list result.
type toolListResult struct {
	Tools []fingerprint.DeclaredTool `json:"tools"`
}

// initializeResult is the subset of the initialize result the proxy uses.
type initializeResult struct {
	Instructions string `json:"instructions"`
}
