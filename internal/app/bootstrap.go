package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"mcp-gateway/pkg/logging"
)

// Application bootstraps and runs the gateway: load config, build every
// component, then serve HTTP until signaled to stop.
type Application struct {
	config   *Config
	services *Services
}

// NewApplication performs the gateway's bootstrap sequence: configure
// logging, resolve environment config, and construct every component.
func NewApplication(cfg *Config) (*Application, error) {
	level := logging.LevelInfo
	if cfg.Debug {
		level = logging.LevelDebug
	}

	var out io.Writer = os.Stdout
	if cfg.Silent {
		out = io.Discard
	}
	logging.Init(level, out)

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{config: cfg, services: services}, nil
}

// Run blocks serving HTTP and running the health checker until ctx is
// cancelled or a SIGINT/SIGTERM arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	return runServer(ctx, a.services)
}
