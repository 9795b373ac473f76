// Package relay filters and forwards downstream-originated notifications.
package relay

// file: internal/relay/relay_test.go

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/jsonrpc"
)

// recordingInvalidator counts invalidation calls.
type recordingInvalidator struct {
	calls int
}

func (r *recordingInvalidator) InvalidateComparison() { r.calls++ }

// setupRelay wires a relay capturing forwarded notifications.
func setupRelay(t *testing.T) (*Relay, *recordingInvalidator, *[]jsonrpc.Notification) {
	t.Helper()
	invalidator := &recordingInvalidator{}
	var forwarded []jsonrpc.Notification
	r := New(invalidator, func(_ context.Context, notif jsonrpc.Notification) error {
		forwarded = append(forwarded, notif)
		return nil
	}, nil)
	return r, invalidator, &forwarded
}

func TestRelay_ForwardsWhitelistedMethods(t *testing.T) {
	r, _, forwarded := setupRelay(t)

	whitelisted := []string{
		MethodToolsListChanged,
		MethodPromptsListChanged,
		MethodResourcesListChanged,
		MethodProgress,
		MethodLogMessage,
		MethodResourceUpdated,
	}
	for _, method := range whitelisted {
		err := r.Handle(context.Background(), jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: method})
		require.NoError(t, err, "Whitelisted method %s should forward.", method)
	}
	require.Len(t, *forwarded, len(whitelisted))
}

func TestRelay_DropsEverythingElse(t *testing.T) {
	r, _, forwarded := setupRelay(t)

	smuggled := []string{
		"notifications/roots/list_changed",
		"tools/call",
		"initialize",
		"notifications/progress/extra",
		"",
	}
	for _, method := range smuggled {
		err := r.Handle(context.Background(), jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: method})
		require.NoError(t, err, "Dropping is silent, never an error.")
	}
	assert.Empty(t, *forwarded, "Nothing outside the whitelist may reach the client.")
}

func TestRelay_ToolsListChangedInvalidatesBeforeForwarding(t *testing.T) {
	r, invalidator, forwarded := setupRelay(t)

	err := r.Handle(context.Background(), jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: MethodToolsListChanged})
	require.NoError(t, err)
	assert.Equal(t, 1, invalidator.calls, "A tool list change must invalidate the cached comparison.")
	assert.Len(t, *forwarded, 1)
}

func TestRelay_OtherWhitelistedMethodsDoNotInvalidate(t *testing.T) {
	r, invalidator, _ := setupRelay(t)

	err := r.Handle(context.Background(), jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: MethodProgress})
	require.NoError(t, err)
	assert.Zero(t, invalidator.calls)
}
