// Package jsonrpc implements the JSON-RPC 2.0 message types used on both edges
// of the proxy. Only the framing-level concerns live here; method semantics
// belong to the gate and proxy packages.
package jsonrpc

// file: internal/jsonrpc/types.go

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
)

// Version is the JSON-RPC version string.
const Version = "2.0"

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error returns the error message, implementing the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Message represents a JSON-RPC message.
// It can be either a Request, Response, or Notification.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Request represents a JSON-RPC request message.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC response message.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification represents a JSON-RPC notification message.
// Notifications do not expect a response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsRequest returns true if the message is a request.
func (m *Message) IsRequest() bool {
	return m.Method != "" && hasID(m.ID) && m.Result == nil && m.Error == nil
}

// IsResponse returns true if the message is a response.
func (m *Message) IsResponse() bool {
	return m.Method == "" && hasID(m.ID) && (m.Result != nil || m.Error != nil)
}

// IsNotification returns true if the message is a notification.
func (m *Message) IsNotification() bool {
	return m.Method != "" && !hasID(m.ID) && m.Result == nil && m.Error == nil
}

// hasID reports whether the raw id field carries a value other than JSON null.
func hasID(id json.RawMessage) bool {
	return len(id) > 0 && !bytes.Equal(id, []byte("null"))
}

// Parse decodes raw bytes into a Message, verifying the protocol version.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "failed to parse JSON-RPC message")
	}
	if msg.JSONRPC != Version {
		return nil, errors.Newf("unsupported JSON-RPC version: %q", msg.JSONRPC)
	}
	return &msg, nil
}

// NewRequest builds a request with a marshaled params payload.
func NewRequest(id json.RawMessage, method string, params interface{}) (*Request, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal params for method %q", method)
		}
		raw = data
	}
	return &Request{JSONRPC: Version, ID: id, Method: method, Params: raw}, nil
}

// NewResultResponse builds a success response with a marshaled result payload.
func NewResultResponse(id json.RawMessage, result interface{}) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal response result")
	}
	return &Response{JSONRPC: Version, ID: id, Result: data}, nil
}

// NewErrorResponse builds an error response from JSON-RPC error components.
func NewErrorResponse(id json.RawMessage, code int, message string, data map[string]interface{}) *Response {
	var raw json.RawMessage
	if data != nil {
		if encoded, err := json.Marshal(data); err == nil {
			raw = encoded
		}
	}
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: raw},
	}
}

// NewNotification builds a notification with a marshaled params payload.
func NewNotification(method string, params interface{}) (*Notification, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal params for notification %q", method)
		}
		raw = data
	}
	return &Notification{JSONRPC: Version, Method: method, Params: raw}, nil
}
