package pingmatrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/jpalmerr/pingmatrix/internal/history"
	"github.com/jpalmerr/pingmatrix/internal/model"
	"github.com/jpalmerr/pingmatrix/internal/poller"
	"github.com/jpalmerr/pingmatrix/internal/probe"
	"github.com/jpalmerr/pingmatrix/internal/server"
	"github.com/jpalmerr/pingmatrix/internal/settings"
	"github.com/jpalmerr/pingmatrix/internal/storage"
	"github.com/jpalmerr/pingmatrix/internal/transfer"
)

const (
	defaultInterval  = 800 * time.Millisecond
	defaultTimeout   = 800 * time.Millisecond
	defaultPort      = 8080
	defaultRetention = storage.DefaultRetentionDays * 24 * time.Hour
	closeTimeout     = 10 * time.Second
)

var (
	// ErrClosed is returned by operations on a closed [Monitor].
	ErrClosed = errors.New("monitor is closed")

	// ErrTimersSynced is returned by [Monitor.SetTimeout] while the timeout
	// follows the interval.
	ErrTimersSynced = errors.New("timeout follows interval while timers are synced")

	// ErrValidation matches errors from rejected import files.
	ErrValidation = transfer.ErrValidation

	// ErrStorage matches errors from the durable store.
	ErrStorage = storage.ErrStorage
)

// Monitor probes a fixed set of targets on an interval and keeps a bounded,
// persisted history of the rounds.
//
// Monitor is created using [New] with functional options. The typical
// lifecycle is:
//
//	m, err := pingmatrix.New(pingmatrix.WithStore(st))
//	if err != nil {
//	    slog.Error("failed to create monitor", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	m.Run(ctx) // blocks until context cancelled
//
// Embedders that drive the Monitor themselves call [Monitor.Open], then
// [Monitor.Start] and [Monitor.Stop] as needed, and [Monitor.Close] when done.
//
// All methods are safe for concurrent use.
type Monitor struct {
	targets   []Target
	port      int
	autoStart bool
	logger    *slog.Logger
	callbacks []func(LogEntry)

	store      Store
	settings   *settings.File
	history    *history.History
	prober     *probe.Client
	aggregator *poller.Aggregator
	scheduler  *poller.Scheduler

	mu         sync.RWMutex
	timers     model.Timers
	layoutMode string
	locale     string

	lifeMu sync.Mutex
	opened bool
	closed bool
}

// New creates a new [Monitor] instance with the given options.
//
// Without targets, [DefaultTargets] are used. Targets without a color get one
// from [Palette] by position. Other defaults:
//   - Interval and timeout: 800ms, synced
//   - Retention: 3 days, 500 entries
//   - Port: 8080
//
// Returns an error if any option is invalid or two targets share an ID.
func New(opts ...Option) (*Monitor, error) {
	cfg := &monitorConfig{
		interval:   defaultInterval,
		timeout:    defaultTimeout,
		syncTimers: true,
		retention:  defaultRetention,
		maxEntries: storage.DefaultMaxEntries,
		port:       defaultPort,
		layoutMode: settings.DefaultLayoutMode,
		locale:     settings.DefaultLocale,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	targets := cfg.targets
	if len(targets) == 0 {
		targets = DefaultTargets()
	}

	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t.id == "" {
			return nil, errors.New("target has no ID (use NewTarget)")
		}
		if seen[t.id] {
			return nil, fmt.Errorf("duplicate target ID: %q", t.id)
		}
		seen[t.id] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		targets:    assignColors(targets),
		port:       cfg.port,
		autoStart:  cfg.autoStart,
		logger:     logger,
		callbacks:  cfg.entryCallbacks,
		store:      cfg.store,
		layoutMode: cfg.layoutMode,
		locale:     cfg.locale,
		timers: model.Timers{
			Interval: cfg.interval,
			Timeout:  cfg.timeout,
			Sync:     cfg.syncTimers,
		},
	}
	if m.timers.Sync {
		m.timers.Timeout = m.timers.Interval
	}
	if cfg.settingsPath != "" {
		m.settings = settings.NewFile(cfg.settingsPath)
	}

	policy := storage.Policy{Retention: cfg.retention, MaxEntries: cfg.maxEntries}
	m.history = history.New(policy, cfg.store, logger)
	m.prober = probe.NewClient()
	m.aggregator = poller.NewAggregator(m.prober, cfg.maxConcurrency, logger)
	m.scheduler = poller.NewScheduler(m.aggregator, m.timers.Interval, roundSource{m}, m.handleEntry, logger)

	return m, nil
}

// assignColors returns a copy of targets with empty colors filled from the
// palette by position.
func assignColors(targets []Target) []Target {
	out := make([]Target, len(targets))
	for i, t := range targets {
		if t.color == "" {
			t.color = Palette[i%len(Palette)]
		}
		out[i] = t
	}
	return out
}

// roundSource feeds the scheduler the current targets and timeout.
type roundSource struct{ m *Monitor }

func (s roundSource) Targets() []model.Target {
	out := make([]model.Target, len(s.m.targets))
	for i, t := range s.m.targets {
		out[i] = t.toModel()
	}
	return out
}

func (s roundSource) Timeout() time.Duration {
	return s.m.Timers().Timeout
}

// Open restores persisted settings, loads history from the store, and
// starts the background flusher. Open is idempotent.
//
// A store that fails to load is an error; the Monitor stays usable with an
// empty history. A settings file that fails to parse is logged and ignored.
func (m *Monitor) Open(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.opened {
		return nil
	}

	m.restoreSettings()

	if err := m.history.Load(ctx); err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	m.history.Start()
	m.opened = true

	m.logger.Info("monitor opened",
		"targets", len(m.targets),
		"entries", m.history.Len(),
	)
	return nil
}

func (m *Monitor) restoreSettings() {
	if m.settings == nil {
		return
	}
	if !m.settings.Exists() {
		m.saveSettings()
		return
	}

	s, err := m.settings.Load()
	if err != nil {
		m.logger.Warn("ignoring unreadable settings file", "path", m.settings.Path(), "error", err)
		return
	}

	m.mu.Lock()
	m.timers = model.Timers{Interval: s.Interval(), Timeout: s.Timeout(), Sync: s.SyncTimers}
	if m.timers.Sync {
		m.timers.Timeout = m.timers.Interval
	}
	m.layoutMode = s.LayoutMode
	m.locale = s.Locale
	interval := m.timers.Interval
	m.mu.Unlock()

	m.scheduler.SetInterval(interval)
	m.logger.Info("settings restored", "path", m.settings.Path(), "interval", interval.String())
}

// saveSettings persists the current timers and presentation fields.
// Failures are logged; the in-memory values stay authoritative.
func (m *Monitor) saveSettings() {
	if m.settings == nil {
		return
	}

	m.mu.RLock()
	s := settings.Settings{
		IntervalMs: m.timers.Interval.Milliseconds(),
		TimeoutMs:  m.timers.Timeout.Milliseconds(),
		SyncTimers: m.timers.Sync,
		LayoutMode: m.layoutMode,
		Locale:     m.locale,
	}
	m.mu.RUnlock()

	if err := m.settings.Save(s); err != nil {
		m.logger.Warn("failed to save settings", "path", m.settings.Path(), "error", err)
	}
}

// Start begins polling: one round immediately, then one per interval.
//
// Start opens the Monitor first if needed. Cancelling ctx stops polling and
// discards the round in flight. Start on a running Monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.Open(ctx); err != nil {
		return err
	}
	m.scheduler.Start(ctx)
	return nil
}

// Stop cancels future rounds. A round already in flight completes and its
// entry is still recorded.
func (m *Monitor) Stop() {
	m.scheduler.Stop()
}

// ProbeOnce runs a single round with the current targets and timeout and
// returns its entry. The entry is not recorded and subscribers are not
// notified.
func (m *Monitor) ProbeOnce(ctx context.Context) LogEntry {
	src := roundSource{m}
	entry, _ := m.aggregator.RunTick(ctx, src.Targets(), src.Timeout())
	return entry
}

// IsRunning reports whether rounds are being scheduled.
func (m *Monitor) IsRunning() bool {
	return m.scheduler.IsRunning()
}

// Timers returns the current interval, timeout, and sync flag.
func (m *Monitor) Timers() model.Timers {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timers
}

// SetInterval changes the time between rounds. While timers are synced, the
// timeout changes with it. A running Monitor restarts its timer; no round
// is run or skipped because of the change.
//
// Returns an error if d is zero or negative.
func (m *Monitor) SetInterval(d time.Duration) error {
	if d <= 0 {
		return errors.New("interval must be positive")
	}

	m.mu.Lock()
	m.timers.Interval = d
	if m.timers.Sync {
		m.timers.Timeout = d
	}
	m.mu.Unlock()

	m.scheduler.SetInterval(d)
	m.saveSettings()
	return nil
}

// SetTimeout changes the per-probe timeout from the next round on.
//
// Returns [ErrTimersSynced] while timers are synced, or an error if d is
// zero or negative.
func (m *Monitor) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.New("timeout must be positive")
	}

	m.mu.Lock()
	if m.timers.Sync {
		m.mu.Unlock()
		return ErrTimersSynced
	}
	m.timers.Timeout = d
	m.mu.Unlock()

	m.saveSettings()
	return nil
}

// SetSyncTimers couples or decouples the timeout and the interval. Turning
// sync on sets the timeout to the interval.
func (m *Monitor) SetSyncTimers(sync bool) {
	m.mu.Lock()
	m.timers.Sync = sync
	if sync {
		m.timers.Timeout = m.timers.Interval
	}
	m.mu.Unlock()

	m.saveSettings()
}

// Targets returns a copy of the configured targets.
func (m *Monitor) Targets() []Target {
	cp := make([]Target, len(m.targets))
	copy(cp, m.targets)
	return cp
}

// Port returns the HTTP API port used by [Monitor.Run].
func (m *Monitor) Port() int {
	return m.port
}

// Log returns the history, newest first. The slice is a copy.
func (m *Monitor) Log() []LogEntry {
	return m.history.Entries()
}

// LatencyStats maps each target name to its duration in the newest entry.
// It is empty when there is no history.
func (m *Monitor) LatencyStats() map[string]int64 {
	stats := make(map[string]int64)
	latest, ok := m.history.Latest()
	if !ok {
		return stats
	}
	for _, r := range latest.Results {
		stats[r.TargetName] = r.Duration
	}
	return stats
}

// State returns a snapshot of targets, history, timers, and running state.
func (m *Monitor) State() State {
	timers := m.Timers()

	targets := make([]model.Target, len(m.targets))
	for i, t := range m.targets {
		targets[i] = t.toModel()
	}

	return State{
		Targets:      targets,
		Log:          m.Log(),
		Interval:     timers.Interval.Milliseconds(),
		Timeout:      timers.Timeout.Milliseconds(),
		SyncTimers:   timers.Sync,
		IsRunning:    m.IsRunning(),
		LatencyStats: m.LatencyStats(),
	}
}

// Subscribe returns a channel receiving every new entry. The channel is
// buffered; a slow reader misses entries rather than blocking polling.
// Callers must call [Monitor.Unsubscribe] when done.
func (m *Monitor) Subscribe() <-chan LogEntry {
	return m.history.Subscribe()
}

// Unsubscribe removes a subscription and closes its channel.
func (m *Monitor) Unsubscribe(ch <-chan LogEntry) {
	m.history.Unsubscribe(ch)
}

// ClearLog empties the history and the durable store.
func (m *Monitor) ClearLog(ctx context.Context) error {
	m.history.Clear()
	if err := m.history.Flush(ctx); err != nil {
		return fmt.Errorf("clear log: %w", err)
	}
	m.logger.Info("log cleared")
	return nil
}

// Flush writes the current history to the durable store and waits for the
// write. Background flushes happen on every change; Flush is for callers
// that need the result.
func (m *Monitor) Flush(ctx context.Context) error {
	return m.history.Flush(ctx)
}

// ExportLogs encodes the history as a log export file.
func (m *Monitor) ExportLogs() ([]byte, error) {
	f := transfer.BuildLogFile(m.history.Entries(), m.history.Policy().Retention, time.Now())
	return f.Marshal()
}

// ImportLogs validates a log export file and, only if it is valid, replaces
// the history with its entries. Entries outside the retention window are
// dropped. It returns the number of entries kept.
//
// A rejected file leaves the history untouched and yields an error matching
// [ErrValidation]. A store failure after a successful replace is
// returned too; the in-memory history keeps the imported entries.
func (m *Monitor) ImportLogs(ctx context.Context, data []byte) (int, error) {
	f, err := transfer.ParseLogFile(data, m.history.Policy())
	if err != nil {
		return 0, err
	}

	m.history.Replace(f.Entries)
	n := m.history.Len()
	m.logger.Info("logs imported", "entries", n, "file_entries", len(f.Entries))

	if err := m.history.Flush(ctx); err != nil {
		return n, fmt.Errorf("persist imported logs: %w", err)
	}
	return n, nil
}

// ExportConfig encodes the timers, layout mode, and locale as a config
// export file.
func (m *Monitor) ExportConfig() ([]byte, error) {
	m.mu.RLock()
	data := transfer.AppConfig{
		Timers: transfer.TimerSettings{
			Interval:   m.timers.Interval.Milliseconds(),
			Timeout:    m.timers.Timeout.Milliseconds(),
			SyncTimers: m.timers.Sync,
		},
		LayoutMode: m.layoutMode,
		Locale:     m.locale,
	}
	m.mu.RUnlock()

	return transfer.BuildConfigFile(data, time.Now()).Marshal()
}

// ImportConfig validates a config export file and applies it. A rejected
// file changes nothing.
func (m *Monitor) ImportConfig(_ context.Context, data []byte) error {
	f, err := transfer.ParseConfigFile(data)
	if err != nil {
		return err
	}

	timers := f.Data.Timers
	m.mu.Lock()
	m.timers = model.Timers{
		Interval: timers.IntervalDuration(),
		Timeout:  timers.TimeoutDuration(),
		Sync:     timers.SyncTimers,
	}
	if m.timers.Sync {
		m.timers.Timeout = m.timers.Interval
	}
	m.layoutMode = f.Data.LayoutMode
	m.locale = f.Data.Locale
	interval := m.timers.Interval
	m.mu.Unlock()

	m.scheduler.SetInterval(interval)
	m.saveSettings()
	m.logger.Info("config imported", "interval", interval.String(), "sync_timers", timers.SyncTimers)
	return nil
}

// Run opens the Monitor, starts polling if auto-start is enabled, and serves
// the HTTP API until ctx is cancelled. It then closes the Monitor.
//
// Returns nil on graceful shutdown. Returns an error if history fails to load
// or the HTTP server fails to start.
func (m *Monitor) Run(ctx context.Context) (err error) {
	m.logger.Info("pingmatrix starting", "targets", len(m.targets))
	m.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d", m.port))

	defer func() {
		err = multierr.Append(err, m.Close())
	}()

	if ctx.Err() != nil {
		return nil
	}

	if err := m.Open(ctx); err != nil {
		return err
	}
	if m.autoStart {
		if err := m.Start(ctx); err != nil {
			return err
		}
	}

	srv := server.NewServer(m, m.port, m.logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	m.logger.Info("pingmatrix stopping")
	return nil
}

// Close stops polling, waits for the round in flight, writes a final
// snapshot, and closes the store. Close is idempotent.
func (m *Monitor) Close() error {
	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		return nil
	}
	m.closed = true
	m.lifeMu.Unlock()

	m.scheduler.Stop()
	m.scheduler.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var err error
	err = multierr.Append(err, m.history.Close(ctx))
	if m.store != nil {
		err = multierr.Append(err, m.store.Close())
	}
	m.prober.Close()

	m.logger.Info("monitor closed")
	return err
}

// handleEntry records a round and fans it out to callbacks.
func (m *Monitor) handleEntry(entry LogEntry) {
	m.history.Add(entry)
	for _, cb := range m.callbacks {
		invokeCallbackSafe(cb, entry.Clone(), m.logger)
	}
}

// invokeCallbackSafe calls an entry callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(LogEntry), entry LogEntry, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("entry callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", r,
				"entry_id", entry.ID,
			)
		}
	}()
	cb(entry)
}
