// Package transport defines interfaces and implementations for sending and
// receiving newline-delimited JSON-RPC messages on either edge of the proxy.
// This file defines the structured error types used within the transport layer.
package transport

// file: internal/transport/transport_errors.go

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrorCode defines specific numeric codes for transport-layer errors.
type ErrorCode int

// Defined error codes for the transport layer.
const (
	// ErrGeneric represents a general or unspecified transport error.
	ErrGeneric ErrorCode = iota + 1000
	// ErrInvalidMessage indicates a message violated framing or basic structural rules.
	ErrInvalidMessage
	// ErrMessageTooLarge signifies a message exceeded the defined MaxMessageSize.
	ErrMessageTooLarge
	// ErrTransportClosed indicates an operation was attempted on a closed transport.
	ErrTransportClosed
	// ErrReadTimeout signifies a timeout or cancellation during a read operation.
	ErrReadTimeout
	// ErrWriteTimeout signifies a timeout or cancellation during a write operation.
	ErrWriteTimeout
	// ErrJSONParseFailed indicates a failure during the initial JSON syntax parsing.
	ErrJSONParseFailed
)

// Error represents a transport-level error, providing structured details beyond
// the basic error message.
type Error struct {
	// Code provides a specific numeric identifier for the error condition.
	Code ErrorCode
	// Message is a human-readable description of the error.
	Message string
	// Cause holds the underlying error that triggered this transport error, if any.
	Cause error
	// Context stores additional key-value pairs relevant to the error.
	Context map[string]interface{}
}

// Error implements the standard Go error interface.
func (e *Error) Error() string {
	base := fmt.Sprintf("TransportError [%d] %s", e.Code, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

// Unwrap returns the underlying cause of the error, allowing for error
// inspection with errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds or updates a key-value pair in the error's context map.
// Returns the modified error pointer for chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is implements error comparison logic for use with errors.Is.
// It checks if the target error is a transport.Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a transport error with the given code.
// The cause error is wrapped using errors.WithStack to preserve stack trace
// information.
func NewError(code ErrorCode, message string, cause error) *Error {
	var wrappedCause error
	if cause != nil {
		wrappedCause = errors.WithStack(cause)
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   wrappedCause,
	}
}

// NewMessageSizeError creates a transport error for messages exceeding MaxMessageSize.
func NewMessageSizeError(size, maxSize int) *Error {
	err := NewError(
		ErrMessageTooLarge,
		fmt.Sprintf("message size %d exceeds maximum allowed size %d", size, maxSize),
		nil,
	)
	err = err.WithContext("size", size).WithContext("maxSize", maxSize)
	return err
}

// NewParseError creates a transport error for failures during initial JSON
// syntax parsing, including a preview of the invalid message.
func NewParseError(message []byte, cause error) *Error {
	err := NewError(ErrJSONParseFailed, "failed to parse JSON message syntax", cause)
	err = err.WithContext("messagePreview", preview(message))
	err = err.WithContext("messageLength", len(message))
	return err
}

// NewTimeoutError creates a transport error for read or write cancellation.
func NewTimeoutError(operation string, cause error) *Error {
	code := ErrReadTimeout
	if operation == "write" {
		code = ErrWriteTimeout
	}
	err := NewError(code, fmt.Sprintf("%s operation timed out", operation), cause)
	err = err.WithContext("operation", operation)
	return err
}

// NewClosedError creates a transport error for operations attempted on a
// closed transport.
func NewClosedError(operation string) *Error {
	err := NewError(ErrTransportClosed, fmt.Sprintf("cannot perform %s on closed transport", operation), nil)
	err = err.WithContext("operation", operation)
	return err
}

// IsClosedError checks if an error (or its cause chain) signifies a closed
// transport condition.
func IsClosedError(err error) bool {
	var transportErr *Error
	if errors.As(err, &transportErr) {
		return transportErr.Code == ErrTransportClosed
	}
	return errors.Is(err, io.EOF)
}
