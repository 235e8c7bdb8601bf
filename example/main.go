// Demo of the pingmatrix SDK against local mock targets.
//
// Usage:
//
//	go run ./example
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pingmatrix"
	"github.com/jpalmerr/pingmatrix/example/mock"
	"github.com/jpalmerr/pingmatrix/internal/storage"
	"github.com/jpalmerr/pingmatrix/internal/storage/sqlite"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// start mock targets (see example/mock)
	go func() {
		if err := http.ListenAndServe(":9999", mock.NewHandler(logger)); err != nil {
			logger.Error("mock server stopped", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	// grid API: one declaration, 3 latency profiles
	targets, err := pingmatrix.NewTargetGrid("Mock",
		pingmatrix.WithURLTemplate("http://localhost:9999/slow?ms={{.ms}}"),
		pingmatrix.WithDimensions(map[string][]string{
			"ms": {"50", "400", "1500"},
		}),
	)
	if err != nil {
		slog.Error("failed to create target grid", "error", err)
		os.Exit(1)
	}

	flaky, _ := pingmatrix.NewTarget("Flaky", "http://localhost:9999/flaky")
	down, _ := pingmatrix.NewTarget("Down", "http://localhost:9999/down")
	github, _ := pingmatrix.NewTarget("GitHub", "https://github.com/favicon.ico", pingmatrix.WithColor("#8b5cf6"))
	targets = append(targets, flaky, down, github)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(ctx, "example.db", storage.DefaultConfig())
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	m, err := pingmatrix.New(
		pingmatrix.WithTargets(targets...),
		pingmatrix.WithInterval(time.Second),
		pingmatrix.WithStore(store),
		pingmatrix.WithAutoStart(true),
		pingmatrix.WithPort(8080),
		pingmatrix.WithLogger(logger),
		pingmatrix.WithEntryCallback(func(e pingmatrix.LogEntry) {
			for _, r := range e.Results {
				if r.Status != pingmatrix.StatusSuccess {
					fmt.Printf("  %s  %-16s %-8s %s\n", e.Time().Format("15:04:05"), r.TargetName, r.Status, r.Error)
				}
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create monitor", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  pingmatrix demo")
	fmt.Println()
	fmt.Println("  State:   http://localhost:8080/api/state")
	fmt.Println("  Stream:  curl -N http://localhost:8080/api/sse")
	fmt.Println("  Targets: 3 mock latencies (grid), flaky, down, GitHub")
	fmt.Println()
	fmt.Println("  Failed probes are printed below. Press Ctrl+C to stop.")
	fmt.Println()

	if err := m.Run(ctx); err != nil {
		slog.Error("monitor error", "error", err)
		os.Exit(1)
	}
}
