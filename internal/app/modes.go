package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mcp-gateway/pkg/logging"
)

// shutdownTimeout bounds how long in-flight requests get to finish once
// a shutdown signal arrives.
const shutdownTimeout = 10 * time.Second

// runServer starts the health checker and HTTP listener, blocks for
// SIGINT/SIGTERM (or ctx cancellation), then drains in-flight requests.
func runServer(ctx context.Context, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go services.Health.Run(ctx)

	if err := services.Sandbox.WatchRoot(ctx); err != nil {
		logging.Warn("Server", "sandbox watch unavailable: %v", err)
	}

	addr := services.Config.Addr()
	httpServer := &http.Server{
		Addr:    addr,
		Handler: services.Server,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Server", "listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logging.Info("Server", "shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
		return err
	}
	return <-errCh
}
