// Package adapter implements the Protocol Adapter Factory: given a
// template's transport, it produces an adapter (connected on Connect) speaking one of
// {stdio, http, streamable-http} behind a uniform connect/send/
// sendAndReceive/disconnect contract plus an event stream.
//
// Concrete adapters wrap github.com/mark3labs/mcp-go's typed client
// (client.MCPClient), composed the same way a base MCP client wraps it
// for each transport. mcp-go's client/transport layer already
// maintains the JSON-RPC id correlation map for interleaved stdio
// responses, so SendAndReceive delegates to it rather than
// reimplementing correlation by hand.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/model"
)

// EventKind is the closed sum type of adapter event stream events.
type EventKind string

const (
	EventStderr  EventKind = "stderr"
	EventSent    EventKind = "sent"
	EventMessage EventKind = "message"
	EventExit    EventKind = "exit"
)

// Event is a single adapter event-stream item.
type Event struct {
	Kind EventKind
	Line string // EventStderr
	Msg  *Response
	Req  *Request // EventSent
	Code int      // EventExit
}

// AsLogEntry maps an adapter event onto a Log Bus entry tagged with
// serviceID, so callers can drain Events() straight into model.LogEntry
// without each duplicating the same switch.
func (ev Event) AsLogEntry(serviceID string) model.LogEntry {
	entry := model.LogEntry{
		Timestamp: time.Now(),
		Service:   serviceID,
		Level:     model.LogDebug,
	}
	switch ev.Kind {
	case EventStderr:
		entry.Level = model.LogWarn
		entry.Message = "stderr: " + ev.Line
	case EventSent:
		entry.Message = "sent " + ev.Req.Method
		entry.Data = ev.Req
	case EventMessage:
		entry.Message = "received response"
		if ev.Msg != nil && ev.Msg.Error != nil {
			entry.Level = model.LogError
			entry.Message = "received error response: " + ev.Msg.Error.Message
		}
		entry.Data = ev.Msg
	case EventExit:
		entry.Message = "adapter exited"
		if ev.Code != 0 {
			entry.Level = model.LogError
			entry.Message = "adapter exited with non-zero status"
		}
		entry.Data = map[string]int{"code": ev.Code}
	}
	return entry
}

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Adapter is the uniform contract every transport implements.
type Adapter interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, req *Request) error
	SendAndReceive(ctx context.Context, req *Request) (*Response, error)
	Disconnect(ctx context.Context) error
	Events() <-chan Event
}

const protocolVersion = "2024-11-05"

// New creates an adapter for the given effective template configuration.
// It does not connect; callers must call Connect.
func New(cfg model.Template) (Adapter, error) {
	switch cfg.Transport {
	case model.TransportStdio:
		if cfg.Command == "" {
			return nil, apierr.NewUnprocessable("stdio transport requires a command")
		}
		return &stdioAdapter{cfg: cfg, base: base{events: make(chan Event, 32)}}, nil
	case model.TransportHTTP:
		if cfg.Endpoint == "" {
			return nil, apierr.NewUnprocessable("http transport requires an endpoint")
		}
		return &httpAdapter{cfg: cfg, streamable: false, base: base{events: make(chan Event, 32)}}, nil
	case model.TransportStreamableHTTP:
		if cfg.Endpoint == "" {
			return nil, apierr.NewUnprocessable("streamable-http transport requires an endpoint")
		}
		return &httpAdapter{cfg: cfg, streamable: true, base: base{events: make(chan Event, 32)}}, nil
	default:
		return nil, apierr.NewUnprocessable(fmt.Sprintf("unsupported transport %q", cfg.Transport))
	}
}

// base provides the shared dispatch/event-emission logic common to
// every transport, the role a base MCP client composition plays:
// concrete adapters only need to supply a connected
// mcpclient.MCPClient.
type base struct {
	mu        sync.RWMutex
	client    mcpclient.MCPClient
	connected bool
	events    chan Event
}

func (b *base) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
	}
}

func (b *base) Events() <-chan Event { return b.events }

func (b *base) checkConnected() error {
	if !b.connected || b.client == nil {
		return apierr.NewInternal("ADAPTER_NOT_CONNECTED", fmt.Errorf("adapter not connected"))
	}
	return nil
}

func (b *base) disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected || b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.connected = false
	b.client = nil
	b.emit(Event{Kind: EventExit, Code: 0})
	close(b.events)
	return err
}

// sendAndReceive dispatches req by method to the matching typed mcp-go
// client call, then marshals the typed result back into a raw JSON-RPC
// envelope whose id matches req.ID. Methods outside the six the gateway
// itself speaks (§6) yield a JSON-RPC method-not-found error rather than
// failing the call.
func (b *base) sendAndReceive(ctx context.Context, req *Request) (*Response, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	b.emit(Event{Kind: EventSent, Req: req})

	result, rpcErr := b.dispatch(ctx, req)
	resp := &Response{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, apierr.NewInternal("ADAPTER_PROTOCOL_ERROR", err)
		}
		resp.Result = raw
	}
	b.emit(Event{Kind: EventMessage, Msg: resp})
	return resp, nil
}

func (b *base) dispatch(ctx context.Context, req *Request) (any, *RPCError) {
	params, _ := json.Marshal(req.Params)

	switch req.Method {
	case "initialize":
		res, err := b.client.Initialize(ctx, mcp.InitializeRequest{
			Params: mcp.InitializeParams{
				ProtocolVersion: protocolVersion,
				ClientInfo:      mcp.Implementation{Name: "mcp-gateway", Version: "1.0.0"},
				Capabilities:    mcp.ClientCapabilities{},
			},
		})
		if err != nil {
			return nil, &RPCError{Code: -32000, Message: err.Error()}
		}
		return res, nil

	case "tools/list":
		res, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, &RPCError{Code: -32000, Message: err.Error()}
		}
		return res, nil

	case "tools/call":
		var p struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		_ = json.Unmarshal(params, &p)
		res, err := b.client.CallTool(ctx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{Name: p.Name, Arguments: p.Arguments},
		})
		if err != nil {
			return nil, &RPCError{Code: -32000, Message: err.Error()}
		}
		return res, nil

	case "resources/list":
		res, err := b.client.ListResources(ctx, mcp.ListResourcesRequest{})
		if err != nil {
			return nil, &RPCError{Code: -32000, Message: err.Error()}
		}
		return res, nil

	case "resources/read":
		var p struct {
			URI string `json:"uri"`
		}
		_ = json.Unmarshal(params, &p)
		res, err := b.client.ReadResource(ctx, mcp.ReadResourceRequest{
			Params: struct {
				URI       string         `json:"uri"`
				Arguments map[string]any `json:"arguments,omitempty"`
			}{URI: p.URI},
		})
		if err != nil {
			return nil, &RPCError{Code: -32000, Message: err.Error()}
		}
		return res, nil

	case "prompts/list":
		res, err := b.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
		if err != nil {
			return nil, &RPCError{Code: -32000, Message: err.Error()}
		}
		return res, nil

	default:
		return nil, &RPCError{Code: -32601, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
}

func (b *base) send(ctx context.Context, req *Request) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return err
	}
	b.emit(Event{Kind: EventSent, Req: req})
	return nil
}

// withTimeout derives a deadline from the template's configured timeout,
// defaulting to 30s per §5.
func withTimeout(ctx context.Context, cfg model.Template) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, cfg.EffectiveTimeout())
}

// sendAndReceiveTimed wraps base.sendAndReceive with the adapter
// timeout, translating context.DeadlineExceeded into AdapterTimeout per
// §4.1.
func sendAndReceiveTimed(ctx context.Context, cfg model.Template, b *base, req *Request) (*Response, error) {
	tctx, cancel := withTimeout(ctx, cfg)
	defer cancel()

	resp, err := b.sendAndReceive(tctx, req)
	// dispatch reports client failures, deadline included, as an RPC
	// error response rather than an error, so check both.
	if (err != nil || resp.Error != nil) && tctx.Err() == context.DeadlineExceeded {
		return nil, apierr.NewInternal("ADAPTER_TIMEOUT", fmt.Errorf("deadline exceeded waiting for response to %s", req.Method))
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

var _ io.Closer = (*stdioAdapter)(nil)

func (s *stdioAdapter) Close() error { return s.Disconnect(context.Background()) }
