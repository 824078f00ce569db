package cmd

import (
	"context"
	"fmt"

	"mcp-gateway/internal/app"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging across the gateway.
var serveDebug bool

// serveSilent suppresses process logging entirely.
var serveSilent bool

// serveCmd starts the gateway's HTTP surface and health checker.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP gateway HTTP server",
	Long: `Starts the gateway's HTTP server: the service registry, health
checker, router, authenticator, log bus, local pairing handshake, and
sandbox provisioner, all exposed over the routes documented under
/api and the LocalMCP-authenticated /tools and /call surface.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveSilent)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveSilent, "silent", false, "Suppress process logging")
}
