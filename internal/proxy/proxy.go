// Package proxy runs the client-facing session loop. A read loop dispatches
// each client request into its own goroutine and a separate goroutine consumes
// downstream notifications through the relay, so an in-flight downstream call
// never delays the next client request or notification delivery.
package proxy

// file: internal/proxy/proxy.go

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/toolgate/toolgate/internal/downstream"
	"github.com/toolgate/toolgate/internal/gate"
	"github.com/toolgate/toolgate/internal/gateerrors"
	"github.com/toolgate/toolgate/internal/jsonrpc"
	"github.com/toolgate/toolgate/internal/logging"
	"github.com/toolgate/toolgate/internal/relay"
	"github.com/toolgate/toolgate/internal/sanitize"
	"github.com/toolgate/toolgate/internal/transport"
)

// protocolVersion is the MCP protocol revision announced to the client.
const protocolVersion = "2025-03-26"

// Options configures a Proxy.
type Options struct {
	// Client is the transport facing the agent host.
	Client transport.Transport
	// Session is the downstream being gated.
	Session downstream.Session
	Gate    *gate.Gate
	// Sanitizer rewrites escape introducers in outbound text. Nil disables.
	Sanitizer *sanitize.Sanitizer
	Logger    logging.Logger
	// RequestTimeout bounds the handling of a single client request.
	// Zero means no per-request deadline.
	RequestTimeout time.Duration
	ServerName     string
	ServerVersion  string
}

// Proxy multiplexes one client connection over one downstream session, with
// every tool-facing decision delegated to the gate. Each request is handled in
// its own goroutine, so a slow downstream call never delays the next client
// request.
type Proxy struct {
	client    transport.Transport
	session   downstream.Session
	gate      *gate.Gate
	relay     *relay.Relay
	sanitizer *sanitize.Sanitizer
	logger    logging.Logger

	requestTimeout time.Duration
	serverName     string
	serverVersion  string
}

// New creates a Proxy wiring the relay between downstream notifications and
// the client transport.
func New(opts Options) *Proxy {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	logger = logger.WithField("component", "proxy")

	sanitizer := opts.Sanitizer
	if sanitizer == nil {
		sanitizer = sanitize.New(false)
	}

	p := &Proxy{
		client:         opts.Client,
		session:        opts.Session,
		gate:           opts.Gate,
		sanitizer:      sanitizer,
		logger:         logger,
		requestTimeout: opts.RequestTimeout,
		serverName:     opts.ServerName,
		serverVersion:  opts.ServerVersion,
	}
	p.relay = relay.New(opts.Gate, p.forwardNotification, logger)
	return p
}

// Run drives the session until the client disconnects, the downstream session
// ends, or the context is canceled. It always returns a non-nil reason; a
// clean client EOF surfaces as io.EOF.
func (p *Proxy) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.consumeNotifications(ctx)
	}()
	// Cancel before waiting so the consumer and in-flight handlers unblock.
	defer func() {
		cancel()
		wg.Wait()
	}()

	p.logger.Info("Proxy session loop started.")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := p.processNextMessage(ctx, &wg); err != nil {
			if isTerminalError(err) {
				p.logger.Info("Client connection ended.", "reason", err)
				return err
			}
			p.logger.Error("Non-terminal error processing client message.", "error", fmt.Sprintf("%+v", err))
		}
	}
}

// consumeNotifications drains downstream notifications through the relay
// until the session's channel closes or the context ends.
func (p *Proxy) consumeNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-p.session.Notifications():
			if !ok {
				p.logger.Debug("Downstream notification channel closed.")
				return
			}
			if err := p.relay.Handle(ctx, notif); err != nil {
				p.logger.Warn("Failed to relay downstream notification.", "method", notif.Method, "error", err)
			}
		}
	}
}

// forwardNotification delivers a whitelisted downstream notification to the
// client. It is the relay's Forwarder.
func (p *Proxy) forwardNotification(ctx context.Context, notif jsonrpc.Notification) error {
	data, err := json.Marshal(notif)
	if err != nil {
		return errors.Wrap(err, "failed to marshal relayed notification")
	}
	return p.client.WriteMessage(ctx, data)
}

// processNextMessage reads one client message and dispatches it. Requests are
// handed to their own goroutine so the read loop stays free while a downstream
// call is in flight; the transport's write lock serializes the concurrent
// response writes. Only read failures propagate.
func (p *Proxy) processNextMessage(ctx context.Context, wg *sync.WaitGroup) error {
	msgBytes, err := p.client.ReadMessage(ctx)
	if err != nil {
		return err
	}

	msg, err := jsonrpc.Parse(msgBytes)
	if err != nil {
		p.logger.Warn("Unparseable client message.", "error", err)
		resp := jsonrpc.NewErrorResponse(json.RawMessage("0"), jsonrpc.CodeParseError, "Parse error.", nil)
		return p.writeResponse(ctx, resp)
	}

	if msg.IsNotification() {
		p.handleClientNotification(ctx, msg)
		return nil
	}
	if !msg.IsRequest() {
		// Clients do not send us responses; drop quietly.
		p.logger.Debug("Ignoring non-request client message.", "method", msg.Method)
		return nil
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.dispatchRequest(ctx, msg)
	}()
	return nil
}

// dispatchRequest handles one client request and writes its response. Handler
// errors become JSON-RPC error responses; write failures are logged, the read
// loop observes the dead transport on its own.
func (p *Proxy) dispatchRequest(ctx context.Context, msg *jsonrpc.Message) {
	handleCtx := ctx
	if p.requestTimeout > 0 {
		var cancel context.CancelFunc
		handleCtx, cancel = context.WithTimeout(ctx, p.requestTimeout)
		defer cancel()
	}

	result, handleErr := p.handleRequest(handleCtx, msg)
	var resp *jsonrpc.Response
	if handleErr != nil {
		p.logger.Warn("Request handling failed.", "method", msg.Method, "error", fmt.Sprintf("%+v", handleErr))
		code, message, data := gateerrors.MapToJSONRPC(handleErr)
		resp = jsonrpc.NewErrorResponse(responseID(msg.ID), code, message, data)
	} else {
		resp = &jsonrpc.Response{
			JSONRPC: jsonrpc.Version,
			ID:      msg.ID,
			Result:  result,
		}
	}
	if err := p.writeResponse(ctx, resp); err != nil {
		p.logger.Warn("Failed to write response.", "method", msg.Method, "error", err)
	}
}

// handleRequest routes one client request. Tool methods go through the gate;
// prompt and resource methods pass through ungated.
func (p *Proxy) handleRequest(ctx context.Context, msg *jsonrpc.Message) (json.RawMessage, error) {
	switch msg.Method {
	case "initialize":
		return p.handleInitialize(ctx)
	case "ping":
		return json.RawMessage("{}"), nil
	case "tools/list":
		return p.handleToolsList(ctx)
	case "tools/call":
		return p.handleToolsCall(ctx, msg.Params)
	case "prompts/list":
		return p.session.ListPrompts(ctx)
	case "resources/list":
		return p.session.ListResources(ctx)
	case "resources/read":
		return p.handleResourcesRead(ctx, msg.Params)
	default:
		return nil, gateerrors.NewMethodNotFoundError(
			fmt.Sprintf("Method not found: %s.", msg.Method),
			map[string]interface{}{"method": msg.Method})
	}
}

// initializeResult is the wire shape of the proxy's initialize response.
type initializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	ServerInfo      serverInfo             `json:"serverInfo"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	Instructions    string                 `json:"instructions,omitempty"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// handleInitialize answers with the proxy's own identity. Downstream
// instructions are withheld until the configuration has been approved: before
// that point they are untrusted text and part of the surface under review.
func (p *Proxy) handleInitialize(ctx context.Context) (json.RawMessage, error) {
	result := initializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      serverInfo{Name: p.serverName, Version: p.serverVersion},
		Capabilities: map[string]interface{}{
			"tools":     map[string]interface{}{"listChanged": true},
			"prompts":   map[string]interface{}{},
			"resources": map[string]interface{}{},
		},
	}
	approved, err := p.gate.Approved(ctx)
	if err != nil {
		return nil, err
	}
	if approved {
		result.Instructions = p.sanitizer.Clean(p.session.Instructions())
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal initialize result")
	}
	return data, nil
}

// handleToolsList returns the gate-decided capability surface.
func (p *Proxy) handleToolsList(ctx context.Context) (json.RawMessage, error) {
	tools, err := p.gate.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(map[string]interface{}{"tools": tools})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal tools list")
	}
	return data, nil
}

// toolsCallParams is the wire shape of tools/call parameters.
type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall decodes the call parameters and hands the invocation to the
// gate. The gate's result document is the JSON-RPC result verbatim.
func (p *Proxy) handleToolsCall(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var call toolsCallParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, gateerrors.NewInvalidParamsError("Invalid tools/call parameters.", err, nil)
	}
	if call.Name == "" {
		return nil, gateerrors.NewInvalidParamsError("Missing tool name.", nil, nil)
	}
	return p.gate.CallTool(ctx, call.Name, call.Arguments)
}

// resourcesReadParams is the wire shape of resources/read parameters.
type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (p *Proxy) handleResourcesRead(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var read resourcesReadParams
	if err := json.Unmarshal(params, &read); err != nil {
		return nil, gateerrors.NewInvalidParamsError("Invalid resources/read parameters.", err, nil)
	}
	if read.URI == "" {
		return nil, gateerrors.NewInvalidParamsError("Missing resource URI.", nil, nil)
	}
	return p.session.ReadResource(ctx, read.URI)
}

// cancelledParams is the wire shape of notifications/cancelled parameters.
type cancelledParams struct {
	RequestID json.RawMessage `json:"requestId"`
	Reason    string          `json:"reason,omitempty"`
}

// handleClientNotification processes a client-originated notification.
// Cancellation is forwarded downstream; everything else is absorbed here, the
// downstream was already initialized when the session was established.
func (p *Proxy) handleClientNotification(ctx context.Context, msg *jsonrpc.Message) {
	switch msg.Method {
	case "notifications/initialized":
		p.logger.Debug("Client completed initialization.")
	case "notifications/cancelled":
		var params cancelledParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			p.logger.Warn("Malformed cancellation notification.", "error", err)
			return
		}
		if err := p.session.Cancel(ctx, params.RequestID, params.Reason); err != nil {
			p.logger.Warn("Failed to forward cancellation.", "error", err)
		}
	default:
		p.logger.Debug("Dropping unrecognized client notification.", "method", msg.Method)
	}
}

// writeResponse marshals and sends a response to the client.
func (p *Proxy) writeResponse(ctx context.Context, resp *jsonrpc.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "failed to marshal response")
	}
	if err := p.client.WriteMessage(ctx, data); err != nil {
		return errors.Wrap(err, "failed to write response")
	}
	return nil
}

// responseID returns a response id safe for the wire: null and missing ids
// become 0.
func responseID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 || string(id) == "null" {
		return json.RawMessage("0")
	}
	return id
}

// isTerminalError reports whether an error ends the session loop.
func isTerminalError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	return transport.IsClosedError(err)
}
