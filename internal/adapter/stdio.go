package adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/model"
)

// stdioAdapter spawns the template's command and speaks MCP over its
// stdin/stdout: build the env slice, call client.NewStdioMCPClient, then
// Initialize with a short timeout.
type stdioAdapter struct {
	base
	cfg model.Template
}

func (s *stdioAdapter) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	envStrings := make([]string, 0, len(s.cfg.Env))
	for k, v := range s.cfg.Env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	c, err := mcpclient.NewStdioMCPClient(s.cfg.Command, envStrings, s.cfg.Args...)
	if err != nil {
		return apierr.NewInternal("ADAPTER_CONNECT_ERROR", err)
	}

	initCtx, cancel := withTimeout(ctx, s.cfg)
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

	s.client = c
	s.connected = true

	if stderr, ok := mcpclient.GetStderr(c); ok {
		go s.pumpStderr(stderr)
	}

	return nil
}

// pumpStderr forwards the child process's stderr lines as EventStderr
// events until the pipe closes.
func (s *stdioAdapter) pumpStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.emit(Event{Kind: EventStderr, Line: scanner.Text()})
	}
}

func (s *stdioAdapter) Send(ctx context.Context, req *Request) error {
	return s.base.send(ctx, req)
}

func (s *stdioAdapter) SendAndReceive(ctx context.Context, req *Request) (*Response, error) {
	return sendAndReceiveTimed(ctx, s.cfg, &s.base, req)
}

func (s *stdioAdapter) Disconnect(ctx context.Context) error {
	return s.base.disconnect(ctx)
}
