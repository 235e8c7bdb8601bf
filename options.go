package pingmatrix

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// monitorConfig holds mutable state during Monitor construction.
type monitorConfig struct {
	targets        []Target
	interval       time.Duration
	timeout        time.Duration
	syncTimers     bool
	store          Store
	retention      time.Duration
	maxEntries     int
	port           int
	maxConcurrency int
	autoStart      bool
	settingsPath   string
	layoutMode     string
	locale         string
	logger         *slog.Logger
	entryCallbacks []func(LogEntry)
}

// Option is a function that configures a [Monitor] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*monitorConfig) error

// WithTarget adds a single [Target] to the probe list.
//
// Can be called multiple times. Without any target, [New] falls back to
// [DefaultTargets].
func WithTarget(t Target) Option {
	return func(cfg *monitorConfig) error {
		cfg.targets = append(cfg.targets, t)
		return nil
	}
}

// WithTargets adds multiple [Target] values to the probe list.
//
// Example:
//
//	grid, _ := pingmatrix.NewTargetGrid("CDN", ...)
//	m, err := pingmatrix.New(pingmatrix.WithTargets(grid...))
func WithTargets(targets ...Target) Option {
	return func(cfg *monitorConfig) error {
		cfg.targets = append(cfg.targets, targets...)
		return nil
	}
}

// WithInterval sets the time between polling rounds. Defaults to 800ms.
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithTimeout sets the per-probe timeout. Defaults to 800ms.
//
// While timers are synced (the default), the timeout follows the interval
// and this value is ignored; combine with WithSyncTimers(false).
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithSyncTimers couples the probe timeout to the interval. Defaults to true.
func WithSyncTimers(sync bool) Option {
	return func(cfg *monitorConfig) error {
		cfg.syncTimers = sync
		return nil
	}
}

// WithStore sets the durable history store. The Monitor closes it on
// [Monitor.Close]. Without a store, history lives in memory only.
func WithStore(st Store) Option {
	return func(cfg *monitorConfig) error {
		if st == nil {
			return errors.New("store cannot be nil")
		}
		cfg.store = st
		return nil
	}
}

// WithRetention sets how long entries are kept. Defaults to 3 days.
//
// Returns an error if the duration is zero or negative.
func WithRetention(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("retention must be positive")
		}
		cfg.retention = d
		return nil
	}
}

// WithMaxEntries caps the number of entries kept. Defaults to 500.
//
// Returns an error if n is zero or negative.
func WithMaxEntries(n int) Option {
	return func(cfg *monitorConfig) error {
		if n <= 0 {
			return fmt.Errorf("max entries must be positive, got %d", n)
		}
		cfg.maxEntries = n
		return nil
	}
}

// WithPort sets the HTTP API port used by [Monitor.Run]. Defaults to 8080.
//
// Returns an error if the port is not between 1 and 65535.
func WithPort(port int) Option {
	return func(cfg *monitorConfig) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", port)
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency limits how many probes of one round run at once.
// Defaults to 0, meaning every target is probed in parallel.
//
// Returns an error if n is negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *monitorConfig) error {
		if n < 0 {
			return fmt.Errorf("max concurrency cannot be negative, got %d", n)
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithAutoStart makes [Monitor.Run] start polling as soon as history is
// loaded. Defaults to false.
func WithAutoStart(auto bool) Option {
	return func(cfg *monitorConfig) error {
		cfg.autoStart = auto
		return nil
	}
}

// WithSettings persists timer, layout, and locale changes to a YAML file at
// path. When the file exists, [Monitor.Open] restores its values over the
// constructor options.
func WithSettings(path string) Option {
	return func(cfg *monitorConfig) error {
		if path == "" {
			return errors.New("settings path cannot be empty")
		}
		cfg.settingsPath = path
		return nil
	}
}

// WithLayoutMode sets the opaque presentation layout carried in config
// exports. Defaults to "table".
func WithLayoutMode(mode string) Option {
	return func(cfg *monitorConfig) error {
		cfg.layoutMode = mode
		return nil
	}
}

// WithLocale sets the opaque presentation locale carried in config exports.
// Defaults to "en".
func WithLocale(locale string) Option {
	return func(cfg *monitorConfig) error {
		cfg.locale = locale
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Monitor.
//
// If not provided, [slog.Default] is used. Rounds are logged at DEBUG, rounds
// with failed probes at WARN.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *monitorConfig) error {
		cfg.logger = logger
		return nil
	}
}

// WithEntryCallback registers a function called with every [LogEntry] after
// it has been added to history.
//
// Callbacks run on the polling goroutine, one after another, in registration
// order. Slow callbacks delay the next round. A panicking callback is
// recovered and logged. A nil callback is ignored.
func WithEntryCallback(fn func(LogEntry)) Option {
	return func(cfg *monitorConfig) error {
		if fn != nil {
			cfg.entryCallbacks = append(cfg.entryCallbacks, fn)
		}
		return nil
	}
}
