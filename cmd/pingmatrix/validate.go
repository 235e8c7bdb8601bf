package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pingmatrix/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a pingmatrix configuration file without starting the server.

This command parses the YAML, expands environment variables, validates all
fields, and builds every target including grid expansions. It does not
connect to the storage backend. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pingmatrix validate -c config.yaml
  pingmatrix validate --config /etc/pingmatrix/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addConfigFlag(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	targets, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Targets)
	fromGrids := len(targets) - direct
	total := fmt.Sprintf("%d direct + %d from grids = %d total", direct, fromGrids, len(targets))
	if len(targets) == 0 {
		total = "none configured, using 5 defaults"
	}

	timeout := "synced to interval"
	if !cfg.Synced() {
		timeout = "800ms (default)"
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout.Duration().String()
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:     %d\n", cfg.Port)
	fmt.Fprintf(out, "  Interval: %s\n", cfg.Interval.Duration())
	fmt.Fprintf(out, "  Timeout:  %s\n", timeout)
	fmt.Fprintf(out, "  Targets:  %s\n", total)
	fmt.Fprintf(out, "  Storage:  %s\n", storageSummary(cfg.Storage))

	return nil
}

func storageSummary(s config.StorageConfig) string {
	p := s.Persistence()
	where := ""
	switch s.Driver {
	case config.DriverSQLite:
		where = " at " + s.Path
	case config.DriverRedis, config.DriverMySQL:
		where = " (dsn set)"
	}
	return fmt.Sprintf("%s%s, %d days, %d entries", s.Driver, where, p.RetentionDays, p.MaxEntries)
}
