// Package downstream defines the downstream session contract and its stdio
// implementation.
package downstream

// file: internal/downstream/session_test.go

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/jsonrpc"
	"github.com/toolgate/toolgate/internal/logging"
	"github.com/toolgate/toolgate/internal/transport"
)

// setupSession wires a session over an in-memory transport pair. The returned
// server transport is the fake downstream's end of the wire.
func setupSession(t *testing.T) (*StdioSession, transport.Transport, *transport.InMemoryTransportPair) {
	t.Helper()
	pair := transport.NewInMemoryTransportPair()
	s := newSession(nil, pair.ClientTransport, time.Second, logging.GetNoopLogger())
	t.Cleanup(func() {
		require.NoError(t, s.Close(), "Session close must not fail.")
	})
	return s, pair.ServerTransport, pair
}

// readRequest reads and parses the next message arriving at the fake
// downstream.
func readRequest(t *testing.T, trans transport.Transport) *jsonrpc.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := trans.ReadMessage(ctx)
	require.NoError(t, err, "Expected a request from the session.")
	msg, err := jsonrpc.Parse(raw)
	require.NoError(t, err)
	return msg
}

// writeResult answers a request from the fake downstream's side.
func writeResult(t *testing.T, trans transport.Transport, id json.RawMessage, result interface{}) {
	t.Helper()
	resp, err := jsonrpc.NewResultResponse(id, result)
	require.NoError(t, err)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, trans.WriteMessage(ctx, data))
}

// calledTool extracts the tool name from a tools/call request.
func calledTool(t *testing.T, msg *jsonrpc.Message) string {
	t.Helper()
	var params struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(msg.Params, &params))
	return params.Name
}

func TestStdioSession_InitializeCapturesInstructions(t *testing.T) {
	s, server, _ := setupSession(t)

	initErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		initErr <- s.initialize(ctx)
	}()

	req := readRequest(t, server)
	require.Equal(t, "initialize", req.Method)
	writeResult(t, server, req.ID, map[string]string{"instructions": "Handle with care."})

	notif := readRequest(t, server)
	assert.True(t, notif.IsNotification())
	assert.Equal(t, "notifications/initialized", notif.Method,
		"The handshake ends with the initialized notification.")

	require.NoError(t, <-initErr)
	assert.Equal(t, "Handle with care.", s.Instructions())
}

func TestStdioSession_MultiplexesConcurrentCalls(t *testing.T) {
	s, server, _ := setupSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type outcome struct {
		tool   string
		result json.RawMessage
		err    error
	}
	outcomes := make(chan outcome, 2)
	for _, name := range []string{"alpha", "beta"} {
		go func(name string) {
			result, err := s.CallTool(ctx, name, nil)
			outcomes <- outcome{tool: name, result: result, err: err}
		}(name)
	}

	first := readRequest(t, server)
	second := readRequest(t, server)

	// Answer in reverse arrival order; each caller must still receive the
	// response matching its own request id.
	writeResult(t, server, second.ID, map[string]string{"served": calledTool(t, second)})
	writeResult(t, server, first.ID, map[string]string{"served": calledTool(t, first)})

	for i := 0; i < 2; i++ {
		out := <-outcomes
		require.NoError(t, out.err)
		var served struct {
			Served string `json:"served"`
		}
		require.NoError(t, json.Unmarshal(out.result, &served))
		assert.Equal(t, out.tool, served.Served,
			"Out-of-order responses must be routed to the caller that issued the request.")
	}
}

func TestStdioSession_TransportLossUnblocksInFlightCalls(t *testing.T) {
	s, server, pair := setupSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.CallTool(ctx, "stuck", nil)
		done <- err
	}()

	// The request is on the wire; then the downstream dies without answering.
	readRequest(t, server)
	pair.CloseChannels()

	select {
	case err := <-done:
		require.Error(t, err, "A caller must not hang when the downstream dies.")
		assert.Contains(t, err.Error(), "closed mid-call")
	case <-time.After(2 * time.Second):
		t.Fatal("In-flight call was not unblocked after transport loss.")
	}
}

func TestStdioSession_CallHonorsContextCancellation(t *testing.T) {
	s, server, _ := setupSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The downstream receives the request but never answers.
	go readRequest(t, server)

	_, err := s.CallTool(ctx, "never", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStdioSession_NotificationFanOut(t *testing.T) {
	s, server, _ := setupSession(t)

	notif, err := jsonrpc.NewNotification("notifications/progress", map[string]int{"progress": 3})
	require.NoError(t, err)
	data, err := json.Marshal(notif)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, server.WriteMessage(ctx, data))

	select {
	case got := <-s.Notifications():
		assert.Equal(t, "notifications/progress", got.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("Downstream notification was not delivered.")
	}
}

func TestStdioSession_CancelForwardsNotification(t *testing.T) {
	s, server, _ := setupSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Cancel(ctx, json.RawMessage("7"), "user interrupt"))

	msg := readRequest(t, server)
	require.True(t, msg.IsNotification())
	assert.Equal(t, "notifications/cancelled", msg.Method)
	var params struct {
		RequestID json.RawMessage `json:"requestId"`
		Reason    string          `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(msg.Params, &params))
	assert.Equal(t, "7", string(params.RequestID))
	assert.Equal(t, "user interrupt", params.Reason)
}

func TestStdioSession_CloseIsIdempotentAndEndsFanOut(t *testing.T) {
	pair := transport.NewInMemoryTransportPair()
	s := newSession(nil, pair.ClientTransport, time.Second, logging.GetNoopLogger())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "A second close must be a no-op.")

	select {
	case _, ok := <-s.Notifications():
		assert.False(t, ok, "The notification channel closes when the session ends.")
	case <-time.After(2 * time.Second):
		t.Fatal("Notification channel did not close after Close.")
	}
}
