// Package transport implements NDJSON framing for JSON-RPC messages.
package transport

// file: internal/transport/transport_test.go

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{"valid request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, false},
		{"valid notification", `{"jsonrpc":"2.0","method":"notifications/progress"}`, false},
		{"missing version", `{"id":1,"method":"ping"}`, true},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, true},
		{"not json", `hello`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMessage([]byte(tc.message))
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNDJSONTransport_ReadMessage(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n"
	trans := NewNDJSONTransport(strings.NewReader(input), io.Discard, nil, nil)

	ctx := context.Background()
	first, err := trans.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(first), `"ping"`)

	second, err := trans.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(second), `"tools/list"`)

	_, err = trans.ReadMessage(ctx)
	require.Error(t, err, "EOF after the last line.")
	assert.True(t, IsClosedError(err))
}

func TestNDJSONTransport_WriteMessageAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	trans := NewNDJSONTransport(strings.NewReader(""), &buf, nil, nil)

	msg := []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)
	require.NoError(t, trans.WriteMessage(context.Background(), msg))
	assert.Equal(t, string(msg)+"\n", buf.String())
}

func TestNDJSONTransport_WriteRejectsInvalidMessage(t *testing.T) {
	var buf bytes.Buffer
	trans := NewNDJSONTransport(strings.NewReader(""), &buf, nil, nil)

	err := trans.WriteMessage(context.Background(), []byte(`{"no":"version"}`))
	require.Error(t, err)
	assert.Zero(t, buf.Len(), "Nothing may reach the wire for an invalid message.")
}

func TestNDJSONTransport_ReadRespectsContextCancellation(t *testing.T) {
	// A pipe that never delivers data keeps the read pending.
	pr, pw := io.Pipe()
	defer pw.Close()
	trans := NewNDJSONTransport(pr, io.Discard, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := trans.ReadMessage(ctx)
	require.Error(t, err, "A cancelled context must unblock the read.")
}

func TestNDJSONTransport_CloseMakesOperationsFail(t *testing.T) {
	trans := NewNDJSONTransport(strings.NewReader(""), io.Discard, nil, nil)
	require.NoError(t, trans.Close())
	require.NoError(t, trans.Close(), "Close is idempotent.")

	_, err := trans.ReadMessage(context.Background())
	assert.True(t, IsClosedError(err))
	err = trans.WriteMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	assert.True(t, IsClosedError(err))
}

func TestInMemoryTransportPair_RoundTrip(t *testing.T) {
	pair := NewInMemoryTransportPair()
	defer pair.CloseChannels()
	ctx := context.Background()

	msg := []byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`)
	require.NoError(t, pair.ClientTransport.WriteMessage(ctx, msg))

	got, err := pair.ServerTransport.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	reply := []byte(`{"jsonrpc":"2.0","id":7,"result":{}}`)
	require.NoError(t, pair.ServerTransport.WriteMessage(ctx, reply))
	got, err = pair.ClientTransport.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, reply, got)
}

func TestInMemoryTransport_ClosedSideFails(t *testing.T) {
	pair := NewInMemoryTransportPair()
	defer pair.CloseChannels()

	require.NoError(t, pair.ClientTransport.Close())
	_, err := pair.ClientTransport.ReadMessage(context.Background())
	assert.True(t, IsClosedError(err))
}
