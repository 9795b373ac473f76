// Package gateerrors defines domain-specific error types for the tool gate.
package gateerrors

// file: internal/gateerrors/errors_test.go

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewPersistenceError("failed to write store", cause, map[string]interface{}{"path": "/tmp/x"})

	assert.Contains(t, err.Error(), "failed to write store")
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, errors.Is(err, cause), "The cause must stay reachable through Unwrap.")

	var persistence *PersistenceError
	require.True(t, errors.As(err, &persistence))
	assert.Equal(t, ErrPersistence, persistence.Code)
	assert.Equal(t, "/tmp/x", persistence.Context["path"])
}

func TestWithContext(t *testing.T) {
	err := &BaseError{Code: ErrValidation, Message: "bad document"}
	err.WithContext("field", "tools").WithContext("index", 3)
	assert.Equal(t, "tools", err.Context["field"])
	assert.Equal(t, 3, err.Context["index"])
}

func TestMapToJSONRPC_TypedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"method not found", NewMethodNotFoundError("no such method", nil), JSONRPCMethodNotFound},
		{"invalid params", NewInvalidParamsError("bad args", nil, nil), JSONRPCInvalidParams},
		{"validation", NewValidationError("bad config", nil, nil), JSONRPCInvalidParams},
		{"downstream unavailable", NewDownstreamError(ErrDownstreamUnavailable, "spawn failed", nil, nil), -32000},
		{"downstream closed", NewDownstreamError(ErrDownstreamClosed, "peer went away", nil, nil), -32000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, message, _ := MapToJSONRPC(tc.err)
			assert.Equal(t, tc.wantCode, code)
			assert.NotEmpty(t, message)
		})
	}
}

func TestMapToJSONRPC_WrappedTypedErrorStillMaps(t *testing.T) {
	wrapped := errors.Wrap(NewMethodNotFoundError("nope", nil), "while dispatching")
	code, _, _ := MapToJSONRPC(wrapped)
	assert.Equal(t, JSONRPCMethodNotFound, code, "Wrapping must not hide the typed error.")
}

func TestMapToJSONRPC_SensitiveClassesStayGeneric(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"persistence", NewPersistenceError("corrupt trust store at /home/user/.config", nil, nil)},
		{"guardrail failure", NewGuardrailError("classifier binary missing", nil, nil)},
		{"not approved", NewNotApprovedError("tool echo blocked", nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, message, data := MapToJSONRPC(tc.err)
			assert.Equal(t, JSONRPCInternalError, code)
			assert.Equal(t, "Internal error.", message)
			assert.Nil(t, data, "No internal detail may cross the boundary for these classes.")
		})
	}
}

func TestMapToJSONRPC_UnknownErrorIsInternal(t *testing.T) {
	code, message, data := MapToJSONRPC(errors.New("something odd"))
	assert.Equal(t, JSONRPCInternalError, code)
	assert.Equal(t, "An internal server error occurred.", message)
	assert.Equal(t, "something odd", data["detail"])
}
