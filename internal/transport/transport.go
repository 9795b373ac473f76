// Package transport defines interfaces and implementations for sending and
// receiving newline-delimited JSON-RPC messages on either edge of the proxy.
package transport

// file: internal/transport/transport.go

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/toolgate/toolgate/internal/logging"
)

// MaxMessageSize defines the maximum allowed size for a single JSON-RPC message in bytes.
// This helps prevent memory exhaustion attacks from an untrusted peer.
const MaxMessageSize = 4 * 1024 * 1024 // 4MB.

// Transport defines the interface for sending and receiving JSON-RPC messages.
// Implementations must be concurrency-safe.
type Transport interface {
	// ReadMessage reads a single JSON-RPC message from the transport.
	// It returns the raw message bytes, or an error if reading fails.
	// The context allows for cancellation of long-running reads.
	ReadMessage(ctx context.Context) ([]byte, error)

	// WriteMessage sends a single JSON-RPC message over the transport.
	// It takes raw message bytes and returns an error if writing fails.
	// The context allows for cancellation of long-running writes.
	WriteMessage(ctx context.Context, message []byte) error

	// Close shuts down the transport, closing any underlying connections.
	// Any blocked Read or Write operations will be unblocked and return errors.
	Close() error
}

// ValidateMessage performs basic structural validation on a JSON-RPC message.
// It ensures the payload is a JSON object with the required version marker.
// Method-level validity is the caller's concern.
func ValidateMessage(message []byte) error {
	var msg struct {
		JSONRPC string `json:"jsonrpc"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return NewParseError(message, err)
	}
	if msg.JSONRPC != "2.0" {
		return NewError(ErrInvalidMessage, "missing or unsupported 'jsonrpc' version field", nil).
			WithContext("messagePreview", preview(message))
	}
	return nil
}

// preview returns a short prefix of a message for log and error context.
func preview(message []byte) string {
	const max = 100
	if len(message) > max {
		return string(message[:max])
	}
	return string(message)
}

// NDJSONTransport implements the Transport interface for newline-delimited JSON.
// It works over any reader/writer pair: the proxy's own stdio, or a spawned
// downstream process's pipes.
type NDJSONTransport struct {
	reader    *bufio.Reader
	writer    io.Writer
	closer    io.Closer
	logger    logging.Logger
	writeLock sync.Mutex // Ensures atomic writes.
	closed    bool
	closeLock sync.RWMutex
}

// NewNDJSONTransport creates a transport that reads and writes NDJSON messages
// from the provided reader and writer. The closer may be nil.
func NewNDJSONTransport(reader io.Reader, writer io.Writer, closer io.Closer, logger logging.Logger) *NDJSONTransport {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &NDJSONTransport{
		reader: bufio.NewReader(reader),
		writer: writer,
		closer: closer,
		logger: logger.WithField("component", "ndjson_transport"),
	}
}

// ReadMessage implements Transport.ReadMessage for NDJSON.
// It reads a single line of JSON data delimited by a newline character.
func (t *NDJSONTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	t.closeLock.RLock()
	if t.closed {
		t.closeLock.RUnlock()
		return nil, NewClosedError("read")
	}
	t.closeLock.RUnlock()

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	// Read in a separate goroutine to allow for context cancellation.
	go func() {
		var buffer bytes.Buffer
		for {
			line, prefix, err := t.reader.ReadLine()
			if err != nil {
				if err == io.EOF {
					resultCh <- readResult{nil, NewError(ErrTransportClosed, "connection closed by peer", io.EOF)}
				} else {
					resultCh <- readResult{nil, NewError(ErrGeneric, "failed to read message line", err)}
				}
				return
			}
			buffer.Write(line)
			if buffer.Len() > MaxMessageSize {
				resultCh <- readResult{nil, NewMessageSizeError(buffer.Len(), MaxMessageSize)}
				return
			}
			if !prefix {
				break
			}
		}

		message := buffer.Bytes()
		if len(bytes.TrimSpace(message)) == 0 {
			// Tolerate blank lines between messages.
			resultCh <- readResult{nil, NewError(ErrInvalidMessage, "empty message line", nil)}
			return
		}
		if err := ValidateMessage(message); err != nil {
			t.logger.Warn("Invalid message received.", "validationError", err)
			resultCh <- readResult{nil, err}
			return
		}
		resultCh <- readResult{message, nil}
	}()

	select {
	case <-ctx.Done():
		return nil, NewTimeoutError("read", ctx.Err())
	case result := <-resultCh:
		return result.data, result.err
	}
}

// WriteMessage implements Transport.WriteMessage for NDJSON.
// It writes a single line of JSON data with a trailing newline character.
func (t *NDJSONTransport) WriteMessage(ctx context.Context, message []byte) error {
	t.closeLock.RLock()
	if t.closed {
		t.closeLock.RUnlock()
		return NewClosedError("write")
	}
	t.closeLock.RUnlock()

	if err := ValidateMessage(message); err != nil {
		return err
	}
	if len(message) > MaxMessageSize {
		return NewMessageSizeError(len(message), MaxMessageSize)
	}

	t.writeLock.Lock()
	defer t.writeLock.Unlock()

	resultCh := make(chan error, 1)
	go func() {
		buf := make([]byte, len(message)+1)
		copy(buf, message)
		buf[len(message)] = '\n'

		n, err := t.writer.Write(buf)
		if err == nil && n < len(buf) {
			err = io.ErrShortWrite
		}
		resultCh <- err
	}()

	select {
	case <-ctx.Done():
		return NewTimeoutError("write", ctx.Err())
	case err := <-resultCh:
		if err != nil {
			t.logger.Error("Failed to write message.", "error", err)
			return NewError(ErrGeneric, "failed to write message", err)
		}
		return nil
	}
}

// Close implements Transport.Close.
func (t *NDJSONTransport) Close() error {
	t.closeLock.Lock()
	defer t.closeLock.Unlock()

	if t.closed {
		return nil
	}
	t.logger.Debug("Closing NDJSON transport.")
	t.closed = true

	if t.closer != nil {
		if err := t.closer.Close(); err != nil {
			return NewError(ErrTransportClosed, "failed to close underlying transport stream", err)
		}
	}
	return nil
}
