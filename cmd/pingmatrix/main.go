// Package main is the entry point for the pingmatrix CLI.
//
// pingmatrix can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	pingmatrix serve -c config.yaml              # Probe targets and serve the API
//	pingmatrix validate -c config.yaml           # Validate configuration
//	pingmatrix probe -c config.yaml              # Run a single round
//	pingmatrix history -c config.yaml            # Print stored rounds
//	pingmatrix export logs -c config.yaml        # Write a log export file
//	pingmatrix import logs -c config.yaml -f x   # Replace history from a file
//	pingmatrix version                           # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "pingmatrix",
	Short: "An HTTP ping matrix",
	Long: `pingmatrix probes a set of HTTP targets in rounds and keeps a bounded
history of their reachability and latency.

Each round sends one cache-bypassing GET to every target at once and records
success, timeout, or error per target. History is persisted and served over
an HTTP API with Server-Sent Events for live updates.

Quick start:
  1. Create a config file (pingmatrix.yaml)
  2. Run: pingmatrix serve -c pingmatrix.yaml
  3. Open http://localhost:8080/api/state

Example config:
  port: 8080
  interval: 800ms
  auto_start: true
  targets:
    - name: github
      url: https://github.com/favicon.ico`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pingmatrix binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pingmatrix %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before config expansion (ignored if missing)")
	rootCmd.AddCommand(versionCmd)
}
