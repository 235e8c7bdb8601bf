package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 15 * time.Second
)

// serveCmd starts the monitor and its HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Probe targets and serve the HTTP API",
	Long: `Start the pingmatrix monitor and HTTP API.

The server will:
  - Load configuration from the specified YAML file
  - Load stored history, dropping entries outside the retention window
  - Start polling when auto_start is set (or on POST /api/start)
  - Serve the API on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pingmatrix serve -c config.yaml
  pingmatrix serve --config /etc/pingmatrix/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addConfigFlag(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info("config loaded",
		"targets", len(cfg.Targets),
		"grids", len(cfg.Grids),
		"storage", cfg.Storage.Driver,
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := openMonitor(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("starting server",
		"port", m.Port(),
		"interval", m.Timers().Interval.String(),
		"auto_start", cfg.AutoStart,
	)

	// Run blocks until context cancelled, then closes the monitor
	errChan := make(chan error, 1)
	go func() {
		errChan <- m.Run(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
