package adapter

import (
	"context"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/model"
)

// httpAdapter speaks MCP through mcp-go's SSE client (transport http) or
// its streamable HTTP client (transport streamable-http). It does not
// post bare JSON-RPC envelopes: Connect starts the client and runs the
// initialize handshake against the endpoint.
type httpAdapter struct {
	base
	cfg        model.Template
	streamable bool
}

func (h *httpAdapter) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var c mcpclient.MCPClient
	var err error

	if h.streamable {
		c, err = mcpclient.NewStreamableHttpClient(h.cfg.Endpoint)
	} else {
		c, err = mcpclient.NewSSEMCPClient(h.cfg.Endpoint)
	}
	if err != nil {
		return apierr.NewInternal("ADAPTER_CONNECT_ERROR", err)
	}

	if starter, ok := c.(interface{ Start(context.Context) error }); ok {
		if err := starter.Start(ctx); err != nil {
			return apierr.NewInternal("ADAPTER_CONNECT_ERROR", err)
		}
	}

	initCtx, cancel := withTimeout(ctx, h.cfg)
	defer cancel()
	if _, err := c.Initialize(initCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			ClientInfo:      mcp.Implementation{Name: "mcp-gateway", Version: "1.0.0"},
			Capabilities:    mcp.ClientCapabilities{},
		},
	}); err != nil {
		_ = c.Close()
		return apierr.NewInternal("ADAPTER_CONNECT_ERROR", err)
	}

	h.client = c
	h.connected = true
	return nil
}

func (h *httpAdapter) Send(ctx context.Context, req *Request) error {
	return h.base.send(ctx, req)
}

func (h *httpAdapter) SendAndReceive(ctx context.Context, req *Request) (*Response, error) {
	return sendAndReceiveTimed(ctx, h.cfg, &h.base, req)
}

func (h *httpAdapter) Disconnect(ctx context.Context) error {
	return h.base.disconnect(ctx)
}
