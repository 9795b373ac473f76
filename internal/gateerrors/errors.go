// Package gateerrors defines domain-specific error types and codes for the tool gate.
// These errors provide more context than standard Go errors and help in mapping internal
// issues to appropriate JSON-RPC error responses or handling them specifically within
// the application.
package gateerrors

// file: internal/gateerrors/errors.go

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorCode defines domain-specific error codes for the gate layer.
type ErrorCode int

// Domain-specific error codes for the gate layer.
const (
	// --- Approval / trust errors (1000-1999) ---.
	ErrValidation ErrorCode = 1000 + iota
	ErrNotApproved
	ErrConfigMismatch

	// --- Downstream errors (2000-2999) ---.
	ErrDownstreamUnavailable ErrorCode = 2000 + iota
	ErrDownstreamClosed

	// --- Store errors (3000-3999) ---.
	ErrPersistence ErrorCode = 3000 + iota
	ErrRecordNotFound

	// --- Guardrail errors (4000-4999) ---.
	ErrGuardrailFailure ErrorCode = 4000 + iota

	// Map specific internal errors to JSON-RPC standard codes where applicable.
	ErrParseError     ErrorCode = -32700
	ErrInvalidRequest ErrorCode = -32600
	ErrMethodNotFound ErrorCode = -32601
	ErrInvalidParams  ErrorCode = -32602
	ErrInternalError  ErrorCode = -32603
)

// JSON-RPC 2.0 standard codes used when mapping gate errors to responses.
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// BaseError is the common base for custom gate error types.
// It embeds the standard error interface and adds structured context like codes
// and key-value details.
type BaseError struct {
	// Code is a numeric error code for categorization (using constants defined above).
	Code ErrorCode
	// Message is a human-readable error message intended primarily for logging and debugging.
	Message string
	// Cause is the underlying error that led to this error, allowing error chain traversal.
	Cause error
	// Context contains additional key-value details relevant to the error (e.g., server identity, tool name).
	Context map[string]interface{}
}

// Error implements the standard Go error interface.
// It formats the error message including the code and the underlying cause if present.
func (e *BaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("GateError (Code: %d): %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("GateError (Code: %d): %s", e.Code, e.Message)
}

// Unwrap returns the underlying error (Cause), enabling errors.Is and errors.As.
func (e *BaseError) Unwrap() error {
	return e.Cause
}

// WithContext adds a key-value pair to the error's context map.
// It initializes the map if necessary and returns the modified error pointer for chaining.
func (e *BaseError) WithContext(key string, value interface{}) *BaseError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// --- Specific Error Type Structs ---.

// ValidationError represents a malformed stored or candidate fingerprint document.
type ValidationError struct {
	BaseError
}

// NotApprovedError represents a tool invocation attempted before approval.
// Callers must translate it into the uniform blocked result; it must never
// reveal whether the requested tool exists downstream.
type NotApprovedError struct {
	BaseError
}

// DownstreamError represents a failure starting, reaching, or talking to the
// downstream server. Unavailability at startup is fatal to the session.
type DownstreamError struct {
	BaseError
}

// PersistenceError represents a corrupt or unreadable store file.
// Handlers fail closed: no trust record, empty quarantine.
type PersistenceError struct {
	BaseError
}

// GuardrailError represents a classifier crash or timeout while screening
// tool output.
type GuardrailError struct {
	BaseError
}

// MethodNotFoundError represents an error when a requested method is not found.
type MethodNotFoundError struct {
	BaseError
}

// InvalidParamsError represents an error due to invalid method parameters.
type InvalidParamsError struct {
	BaseError
}

// --- Constructor Functions ---.

// NewValidationError creates a new fingerprint validation error, ensuring the
// cause is wrapped for stack trace.
func NewValidationError(message string, cause error, context map[string]interface{}) error {
	return &ValidationError{
		BaseError: BaseError{
			Code:    ErrValidation,
			Message: message,
			Cause:   errors.WithStack(cause),
			Context: context,
		},
	}
}

// NewNotApprovedError creates the error raised for any tool invocation while
// the session is not approved.
func NewNotApprovedError(message string, context map[string]interface{}) error {
	return &NotApprovedError{
		BaseError: BaseError{
			Code:    ErrNotApproved,
			Message: message,
			Context: context,
		},
	}
}

// NewDownstreamError creates a new downstream communication error.
// Use ErrDownstreamUnavailable for startup/connect failures and
// ErrDownstreamClosed for a peer that went away mid-session.
func NewDownstreamError(code ErrorCode, message string, cause error, context map[string]interface{}) error {
	if code < 2000 || code > 2999 {
		code = ErrDownstreamUnavailable
	}
	return &DownstreamError{
		BaseError: BaseError{
			Code:    code,
			Message: message,
			Cause:   errors.WithStack(cause),
			Context: context,
		},
	}
}

// NewPersistenceError creates a new store persistence error.
func NewPersistenceError(message string, cause error, context map[string]interface{}) error {
	return &PersistenceError{
		BaseError: BaseError{
			Code:    ErrPersistence,
			Message: message,
			Cause:   errors.WithStack(cause),
			Context: context,
		},
	}
}

// NewGuardrailError creates a new guardrail classifier failure error.
func NewGuardrailError(message string, cause error, context map[string]interface{}) error {
	return &GuardrailError{
		BaseError: BaseError{
			Code:    ErrGuardrailFailure,
			Message: message,
			Cause:   errors.WithStack(cause),
			Context: context,
		},
	}
}

// NewMethodNotFoundError creates an error for method not found (maps to -32601).
func NewMethodNotFoundError(message string, context map[string]interface{}) error {
	return &MethodNotFoundError{
		BaseError: BaseError{
			Code:    ErrMethodNotFound,
			Message: message,
			Context: context,
		},
	}
}

// NewInvalidParamsError creates an error for invalid parameters (maps to -32602).
func NewInvalidParamsError(message string, cause error, context map[string]interface{}) error {
	return &InvalidParamsError{
		BaseError: BaseError{
			Code:    ErrInvalidParams,
			Message: message,
			Cause:   errors.WithStack(cause),
			Context: context,
		},
	}
}

// --- JSON-RPC Error Mapping ---.

// coded is implemented by every typed gate error through the embedded
// BaseError, so errors.As can find the base regardless of the concrete type.
type coded interface {
	base() *BaseError
}

func (e *BaseError) base() *BaseError { return e }

// MapToJSONRPC translates a gate error (or any error) into JSON-RPC components.
func MapToJSONRPC(err error) (code int, message string, data map[string]interface{}) {
	data = make(map[string]interface{})

	var typed coded
	if !errors.As(err, &typed) {
		code = JSONRPCInternalError
		message = "An internal server error occurred."
		data["detail"] = err.Error()
		return code, message, data
	}
	baseErr := typed.base()

	switch baseErr.Code {
	case ErrParseError:
		code = JSONRPCParseError
		message = "Parse error."
		data["detail"] = baseErr.Message
	case ErrInvalidRequest:
		code = JSONRPCInvalidRequest
		message = "Invalid Request."
		data["detail"] = baseErr.Message
	case ErrMethodNotFound:
		code = JSONRPCMethodNotFound
		message = "Method not found."
		data["detail"] = baseErr.Message
	case ErrInvalidParams:
		code = JSONRPCInvalidParams
		message = "Invalid params."
		data["detail"] = baseErr.Message
	case ErrValidation, ErrConfigMismatch:
		code = JSONRPCInvalidParams
		message = "Invalid configuration document."
		data["detail"] = baseErr.Message
	case ErrDownstreamUnavailable, ErrDownstreamClosed:
		code = -32000
		message = "Downstream server unavailable."
		data["detail"] = baseErr.Message
	case ErrPersistence:
		code = JSONRPCInternalError
		message = "Internal error."
		// Store paths and parse details stay server-side.
	case ErrGuardrailFailure:
		code = JSONRPCInternalError
		message = "Internal error."
	case ErrNotApproved:
		// NotApproved never surfaces as a JSON-RPC error; the gate converts it
		// to the uniform blocked tool result instead. Mapping it here is a
		// fallback only.
		code = JSONRPCInternalError
		message = "Internal error."
	default:
		code = JSONRPCInternalError
		message = "An unspecified internal error occurred."
		data["detail"] = baseErr.Message
		data["internalCode"] = baseErr.Code
	}

	if len(data) == 0 {
		data = nil
	}
	return code, message, data
}
