// Package pingmatrix provides an embeddable HTTP ping matrix: it probes a
// fixed set of targets in rounds and keeps a bounded, persisted history of
// their reachability and latency.
//
// Each round sends one cache-bypassing GET to every target concurrently and
// classifies each probe as success (any HTTP response), timeout, or error.
// The results are aggregated into a single log entry in target order. The
// history keeps entries newest first and drops anything older than the
// retention window or beyond the entry cap.
//
// # Quick Start
//
// Probe the default targets and serve the HTTP API with graceful shutdown:
//
//	m, _ := pingmatrix.New(pingmatrix.WithAutoStart(true))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	m.Run(ctx) // blocks until context is cancelled
//
// # Configuration
//
// pingmatrix uses the functional options pattern for configuration:
//
//	tg, _ := pingmatrix.NewTarget("API", "https://api.example.com/favicon.ico")
//	m, err := pingmatrix.New(
//	    pingmatrix.WithTarget(tg),
//	    pingmatrix.WithInterval(2 * time.Second),
//	    pingmatrix.WithSyncTimers(false),
//	    pingmatrix.WithTimeout(time.Second),
//	    pingmatrix.WithStore(st),
//	    pingmatrix.WithSettings("settings.yaml"),
//	)
//
// While timers are synced (the default), the probe timeout always equals the
// interval and [Monitor.SetTimeout] returns [ErrTimersSynced].
//
// Grids of similar targets can be generated from a URL template with
// [NewTargetGrid].
//
// # Import and Export
//
// [Monitor.ExportLogs] and [Monitor.ExportConfig] produce versioned JSON
// files. The matching import methods validate a file completely before
// applying anything; a rejected file yields an error matching
// [ErrValidation] and leaves the Monitor unchanged.
//
// # Architecture
//
// pingmatrix consists of several internal packages (under internal/):
//
//   - internal/probe: Single cache-bypassing GET with outcome classification
//   - internal/poller: Round aggregation and interval scheduling
//   - internal/history: Bounded in-memory history with pub/sub and write-behind flushing
//   - internal/storage: Retention policy over sqlite, redis, mysql, and memory backends
//   - internal/transfer: Log and config export file formats
//   - internal/settings: Persisted timer and presentation settings
//   - internal/server: HTTP API with REST endpoints and Server-Sent Events
//
// The internal packages are not part of the public API and may change
// without notice.
package pingmatrix
