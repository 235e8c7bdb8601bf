package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/pingmatrix"
	"github.com/jpalmerr/pingmatrix/config"
	"github.com/jpalmerr/pingmatrix/internal/logging"
)

// addConfigFlag registers the required -c/--config flag on cmd.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
}

// loadConfig loads the dotenv file, if present, and then the config file
// named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger creates the CLI logger from the log section.
func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(cfg.Log.Logging(), os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, closer, nil
}

// openMonitor opens the configured store and builds a Monitor around it.
// The Monitor owns the store; closing the Monitor closes it.
func openMonitor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pingmatrix.Monitor, error) {
	opts, err := config.BuildOptions(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build targets: %w", err)
	}

	st, err := config.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m, err := pingmatrix.New(append(opts, pingmatrix.WithStore(st))...)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create monitor: %w", err)
	}
	return m, nil
}

// withMonitor loads config, opens a Monitor, runs fn, and closes the
// Monitor. Logs go to the configured destination; command output goes to
// cmd's stdout.
func withMonitor(cmd *cobra.Command, fn func(ctx context.Context, m *pingmatrix.Monitor) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	m, err := openMonitor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close monitor: %w", cerr)
		}
	}()

	if err := m.Open(ctx); err != nil {
		return err
	}
	return fn(ctx, m)
}
