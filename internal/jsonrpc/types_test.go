// Package jsonrpc implements the JSON-RPC 2.0 message types.
package jsonrpc

// file: internal/jsonrpc/types_test.go

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ClassifiesMessageKinds(t *testing.T) {
	tests := []struct {
		name           string
		data           string
		isRequest      bool
		isResponse     bool
		isNotification bool
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, true, false, false},
		{"string id request", `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, true, false, false},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/progress"}`, false, false, true},
		{"null id is a notification", `{"jsonrpc":"2.0","id":null,"method":"ping"}`, false, false, true},
		{"result response", `{"jsonrpc":"2.0","id":1,"result":{}}`, false, true, false},
		{"error response", `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"nope"}}`, false, true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Parse([]byte(tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.isRequest, msg.IsRequest(), "IsRequest")
			assert.Equal(t, tc.isResponse, msg.IsResponse(), "IsResponse")
			assert.Equal(t, tc.isNotification, msg.IsNotification(), "IsNotification")
		})
	}
}

func TestParse_RejectsBadInput(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	require.Error(t, err)

	_, err = Parse([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`))
	require.Error(t, err, "Only version 2.0 is accepted.")
}

func TestNewRequest_MarshalsParams(t *testing.T) {
	req, err := NewRequest(json.RawMessage("3"), "tools/call", map[string]string{"name": "echo"})
	require.NoError(t, err)
	assert.Equal(t, Version, req.JSONRPC)
	assert.Equal(t, "tools/call", req.Method)
	assert.JSONEq(t, `{"name":"echo"}`, string(req.Params))

	req, err = NewRequest(json.RawMessage("4"), "ping", nil)
	require.NoError(t, err)
	assert.Nil(t, req.Params, "Nil params stay absent on the wire.")
}

func TestNewResultResponse(t *testing.T) {
	resp, err := NewResultResponse(json.RawMessage("9"), map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "9", string(resp.ID))
	assert.JSONEq(t, `{"n":1}`, string(resp.Result))
	assert.Nil(t, resp.Error)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(json.RawMessage("9"), CodeMethodNotFound, "Method not found.", map[string]interface{}{"method": "x"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Method not found.", resp.Error.Message)
	assert.JSONEq(t, `{"method":"x"}`, string(resp.Error.Data))
}

func TestNewNotification(t *testing.T) {
	notif, err := NewNotification("notifications/progress", map[string]int{"progress": 5})
	require.NoError(t, err)
	assert.Equal(t, Version, notif.JSONRPC)
	assert.JSONEq(t, `{"progress":5}`, string(notif.Params))
}
