// Package downstream defines the downstream session contract and its stdio
// implementation. This file owns the child process lifecycle: however the
// proxy terminates, the spawned process must terminate too.
package downstream

// file: internal/downstream/stdio.go

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/toolgate/toolgate/internal/fingerprint"
	"github.com/toolgate/toolgate/internal/gateerrors"
	"github.com/toolgate/toolgate/internal/jsonrpc"
	"github.com/toolgate/toolgate/internal/logging"
	"github.com/toolgate/toolgate/internal/transport"
)

// notificationBuffer bounds how many undelivered downstream notifications are
// held before older ones are dropped.
const notificationBuffer = 64

// StdioSession runs the downstream server as a child process and speaks NDJSON
// JSON-RPC over its stdin/stdout. Requests are multiplexed: responses are
// matched to callers by id while notifications flow independently.
type StdioSession struct {
	cmd           *exec.Cmd
	trans         transport.Transport
	logger        logging.Logger
	shutdownGrace time.Duration

	instructions string

	nextID  int64
	pending map[string]chan *jsonrpc.Message
	idLock  sync.Mutex

	notifications chan jsonrpc.Notification

	readerCtx    context.Context
	readerCancel context.CancelFunc
	readerDone   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// StdioOptions configures a stdio session.
type StdioOptions struct {
	// Command is the argv of the downstream server process.
	Command []string
	// ShutdownGrace bounds how long the child gets after SIGTERM before
	// SIGKILL. Zero means 5 seconds.
	ShutdownGrace time.Duration
	// InitTimeout bounds the initialize handshake. Zero means 10 seconds.
	InitTimeout time.Duration
	Logger      logging.Logger
}

// NewStdioSession spawns the downstream process and performs the initialize
// handshake. On any startup failure the child is reaped before the error is
// returned; a failed start never leaves an orphan.
func NewStdioSession(ctx context.Context, opts StdioOptions) (*StdioSession, error) {
	if len(opts.Command) == 0 {
		return nil, gateerrors.NewDownstreamError(
			gateerrors.ErrDownstreamUnavailable, "downstream command is empty", nil, nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	logger = logger.WithField("component", "stdio_session")

	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	initTimeout := opts.InitTimeout
	if initTimeout <= 0 {
		initTimeout = 10 * time.Second
	}

	// #nosec G204 -- The command line is the server identity the human approves.
	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, gateerrors.NewDownstreamError(
			gateerrors.ErrDownstreamUnavailable, "failed to open downstream stdin pipe", err, nil)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, gateerrors.NewDownstreamError(
			gateerrors.ErrDownstreamUnavailable, "failed to open downstream stdout pipe", err, nil)
	}

	if err := cmd.Start(); err != nil {
		return nil, gateerrors.NewDownstreamError(
			gateerrors.ErrDownstreamUnavailable, "failed to start downstream process", err,
			map[string]interface{}{"command": opts.Command[0]})
	}
	logger.Info("Started downstream process.", "command", opts.Command[0], "pid", cmd.Process.Pid)

	s := newSession(cmd, transport.NewNDJSONTransport(stdout, stdin, stdin, logger), grace, logger)

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	if err := s.initialize(initCtx); err != nil {
		// Never leave a half-started child behind.
		closeErr := s.Close()
		if closeErr != nil {
			logger.Warn("Error closing session after failed handshake.", "error", closeErr)
		}
		return nil, gateerrors.NewDownstreamError(
			gateerrors.ErrDownstreamUnavailable, "downstream initialize handshake failed", err,
			map[string]interface{}{"command": opts.Command[0]})
	}
	return s, nil
}

// newSession wires the protocol machinery over an established transport and
// starts the read loop. cmd may be nil when there is no child process to
// manage, as in tests driving the session over an in-memory transport.
func newSession(cmd *exec.Cmd, trans transport.Transport, grace time.Duration, logger logging.Logger) *StdioSession {
	readerCtx, readerCancel := context.WithCancel(context.Background())
	s := &StdioSession{
		cmd:           cmd,
		trans:         trans,
		logger:        logger,
		shutdownGrace: grace,
		pending:       make(map[string]chan *jsonrpc.Message),
		notifications: make(chan jsonrpc.Notification, notificationBuffer),
		readerCtx:     readerCtx,
		readerCancel:  readerCancel,
		readerDone:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// initialize performs the protocol handshake and captures the server's
// instructions.
func (s *StdioSession) initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": "2025-03-26",
		"clientInfo":      map[string]string{"name": "toolgate", "version": "dev"},
		"capabilities":    map[string]interface{}{},
	}
	result, err := s.call(ctx, "initialize", params)
	if err != nil {
		return err
	}
	var init initializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		return errors.Wrap(err, "failed to decode initialize result")
	}
	s.instructions = init.Instructions

	notif, err := jsonrpc.NewNotification("notifications/initialized", nil)
	if err != nil {
		return err
	}
	return s.sendNotification(ctx, notif)
}

// readLoop consumes downstream messages, routing responses to pending callers
// and notifications to the subscription channel. Runs until the transport
// closes.
func (s *StdioSession) readLoop() {
	defer close(s.readerDone)
	defer close(s.notifications)
	for {
		data, err := s.trans.ReadMessage(s.readerCtx)
		if err != nil {
			if !transport.IsClosedError(err) && s.readerCtx.Err() == nil {
				s.logger.Warn("Downstream read failed.", "error", err)
			}
			s.failPending()
			return
		}
		msg, err := jsonrpc.Parse(data)
		if err != nil {
			s.logger.Warn("Discarding unparseable downstream message.", "error", err)
			continue
		}
		switch {
		case msg.IsResponse():
			s.deliver(msg)
		case msg.IsNotification():
			select {
			case s.notifications <- jsonrpc.Notification{JSONRPC: msg.JSONRPC, Method: msg.Method, Params: msg.Params}:
			default:
				s.logger.Warn("Notification buffer full, dropping downstream notification.", "method", msg.Method)
			}
		default:
			// Downstream-initiated requests (sampling, roots) are not part of
			// the proxied surface.
			s.logger.Debug("Ignoring downstream-initiated request.", "method", msg.Method)
		}
	}
}

// deliver hands a response to the caller waiting on its id.
func (s *StdioSession) deliver(msg *jsonrpc.Message) {
	key := string(msg.ID)
	s.idLock.Lock()
	ch, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.idLock.Unlock()
	if !ok {
		s.logger.Debug("Response for unknown request id.", "id", key)
		return
	}
	ch <- msg
}

// failPending unblocks every in-flight caller after the transport dies.
func (s *StdioSession) failPending() {
	s.idLock.Lock()
	defer s.idLock.Unlock()
	for key, ch := range s.pending {
		close(ch)
		delete(s.pending, key)
	}
}

// call sends a request and waits for its response or context expiry.
func (s *StdioSession) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	s.idLock.Lock()
	s.nextID++
	id := json.RawMessage(strconv.FormatInt(s.nextID, 10))
	ch := make(chan *jsonrpc.Message, 1)
	s.pending[string(id)] = ch
	s.idLock.Unlock()

	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		s.abandon(string(id))
		return nil, err
	}
	data, err := json.Marshal(req)
	if err != nil {
		s.abandon(string(id))
		return nil, errors.Wrapf(err, "failed to marshal %q request", method)
	}
	if err := s.trans.WriteMessage(ctx, data); err != nil {
		s.abandon(string(id))
		return nil, gateerrors.NewDownstreamError(
			gateerrors.ErrDownstreamClosed, fmt.Sprintf("failed to send %q to downstream", method), err, nil)
	}

	select {
	case <-ctx.Done():
		s.abandon(string(id))
		return nil, errors.Wrapf(ctx.Err(), "%q call cancelled", method)
	case msg, ok := <-ch:
		if !ok {
			return nil, gateerrors.NewDownstreamError(
				gateerrors.ErrDownstreamClosed, "downstream connection closed mid-call", nil,
				map[string]interface{}{"method": method})
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	}
}

// abandon drops a pending entry after a send or wait failure.
func (s *StdioSession) abandon(key string) {
	s.idLock.Lock()
	delete(s.pending, key)
	s.idLock.Unlock()
}

// sendNotification writes a notification to the downstream.
func (s *StdioSession) sendNotification(ctx context.Context, notif *jsonrpc.Notification) error {
	data, err := json.Marshal(notif)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification")
	}
	return s.trans.WriteMessage(ctx, data)
}

// Instructions implements Session.
func (s *StdioSession) Instructions() string {
	return s.instructions
}

// ListTools implements Session.
func (s *StdioSession) ListTools(ctx context.Context) ([]fingerprint.DeclaredTool, error) {
	result, err := s.call(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	var list toolListResult
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, errors.Wrap(err, "failed to decode tools/list result")
	}
	return list.Tools, nil
}

// CallTool implements Session.
func (s *StdioSession) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	params := map[string]interface{}{"name": name}
	if len(args) > 0 {
		params["arguments"] = args
	}
	return s.call(ctx, "tools/call", params)
}

// ListPrompts implements Session.
func (s *StdioSession) ListPrompts(ctx context.Context) (json.RawMessage, error) {
	return s.call(ctx, "prompts/list", map[string]interface{}{})
}

// ListResources implements Session.
func (s *StdioSession) ListResources(ctx context.Context) (json.RawMessage, error) {
	return s.call(ctx, "resources/list", map[string]interface{}{})
}

// ReadResource implements Session.
func (s *StdioSession) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	return s.call(ctx, "resources/read", map[string]interface{}{"uri": uri})
}

// Cancel implements Session. The cancellation is best-effort: the proxy does
// no bookkeeping beyond forwarding it.
func (s *StdioSession) Cancel(ctx context.Context, requestID json.RawMessage, reason string) error {
	params := map[string]interface{}{"requestId": requestID}
	if reason != "" {
		params["reason"] = reason
	}
	notif, err := jsonrpc.NewNotification("notifications/cancelled", params)
	if err != nil {
		return err
	}
	return s.sendNotification(ctx, notif)
}

// Notifications implements Session.
func (s *StdioSession) Notifications() <-chan jsonrpc.Notification {
	return s.notifications
}

// Close implements Session. The shutdown sequence is: close the child's
// stdin, send SIGTERM, wait the grace period, SIGKILL if still alive. Close
// is idempotent and safe to call from any exit path.
func (s *StdioSession) Close() error {
	s.closeOnce.Do(func() {
		s.readerCancel()
		if err := s.trans.Close(); err != nil {
			s.logger.Debug("Error closing downstream transport.", "error", err)
		}

		if s.cmd == nil || s.cmd.Process == nil {
			return
		}
		proc := s.cmd.Process
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			s.logger.Debug("SIGTERM to downstream failed (may have already exited).", "error", err)
		}

		waitDone := make(chan error, 1)
		go func() { waitDone <- s.cmd.Wait() }()

		select {
		case err := <-waitDone:
			if err != nil {
				s.logger.Debug("Downstream process exited with error.", "error", err)
			} else {
				s.logger.Info("Downstream process exited gracefully.")
			}
		case <-time.After(s.shutdownGrace):
			s.logger.Warn("Downstream process did not exit within grace period, killing.", "grace", s.shutdownGrace)
			if err := proc.Kill(); err != nil {
				s.closeErr = errors.Wrap(err, "failed to kill downstream process")
				return
			}
			<-waitDone
		}
	})
	return s.closeErr
}

// Compile-time check that StdioSession implements Session.
var _ Session = (*StdioSession)(nil)
