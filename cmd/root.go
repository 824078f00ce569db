package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootCmd is the entry point when gatewayd is invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "gatewayd",
	Short: "MCP gateway: routes and manages MCP server instances over HTTP",
	Long: `gatewayd runs the MCP gateway: a service registry, health checker,
and router in front of a fleet of MCP server instances, exposed over
HTTP with token and local-pairing authentication.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, injected from main.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gatewayd version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
