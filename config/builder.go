package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/pingmatrix"
	"github.com/jpalmerr/pingmatrix/internal/storage"
	"github.com/jpalmerr/pingmatrix/internal/storage/memory"
	"github.com/jpalmerr/pingmatrix/internal/storage/mysql"
	"github.com/jpalmerr/pingmatrix/internal/storage/redis"
	"github.com/jpalmerr/pingmatrix/internal/storage/sqlite"
)

// BuildTargets converts parsed configuration into SDK Target objects.
//
// It processes both direct targets and grids, returning a combined slice in
// file order. Grid dimensions are expanded via cartesian product. An empty
// result means the SDK defaults apply.
func BuildTargets(cfg *Config) ([]pingmatrix.Target, error) {
	var targets []pingmatrix.Target

	for i, tc := range cfg.Targets {
		tg, err := buildTarget(tc)
		if err != nil {
			return nil, fmt.Errorf("targets[%d] (%s): %w", i, tc.Name, err)
		}
		targets = append(targets, tg)
	}

	for i, gc := range cfg.Grids {
		grid, err := buildGrid(gc)
		if err != nil {
			return nil, fmt.Errorf("grids[%d] (%s): %w", i, gc.Name, err)
		}
		targets = append(targets, grid...)
	}

	return targets, nil
}

// buildTarget converts a single TargetConfig to an SDK Target.
func buildTarget(tc TargetConfig) (pingmatrix.Target, error) {
	var opts []pingmatrix.TargetOption

	if tc.ID != "" {
		opts = append(opts, pingmatrix.WithID(tc.ID))
	}
	if tc.Color != "" {
		opts = append(opts, pingmatrix.WithColor(tc.Color))
	}

	return pingmatrix.NewTarget(tc.Name, tc.URL, opts...)
}

func buildGrid(gc GridConfig) ([]pingmatrix.Target, error) {
	opts := []pingmatrix.GridOption{
		pingmatrix.WithURLTemplate(gc.URLTemplate),
		pingmatrix.WithDimensions(gc.Dimensions),
	}
	if gc.Color != "" {
		opts = append(opts, pingmatrix.WithGridColor(gc.Color))
	}
	return pingmatrix.NewTargetGrid(gc.Name, opts...)
}

// BuildOptions converts parsed configuration into [pingmatrix.New] options.
//
// The store is not included; open it with [OpenStore] and pass it with
// [pingmatrix.WithStore]. A nil logger leaves the SDK default in place.
func BuildOptions(cfg *Config, logger *slog.Logger) ([]pingmatrix.Option, error) {
	targets, err := BuildTargets(cfg)
	if err != nil {
		return nil, err
	}

	persistence := cfg.Storage.Persistence()
	opts := []pingmatrix.Option{
		pingmatrix.WithPort(cfg.Port),
		pingmatrix.WithInterval(cfg.Interval.Duration()),
		pingmatrix.WithSyncTimers(cfg.Synced()),
		pingmatrix.WithAutoStart(cfg.AutoStart),
		pingmatrix.WithRetention(persistence.Retention()),
		pingmatrix.WithMaxEntries(persistence.MaxEntries),
	}

	if len(targets) > 0 {
		opts = append(opts, pingmatrix.WithTargets(targets...))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, pingmatrix.WithTimeout(cfg.Timeout.Duration()))
	}
	if cfg.LayoutMode != "" {
		opts = append(opts, pingmatrix.WithLayoutMode(cfg.LayoutMode))
	}
	if cfg.Locale != "" {
		opts = append(opts, pingmatrix.WithLocale(cfg.Locale))
	}
	if cfg.SettingsFile != "" {
		opts = append(opts, pingmatrix.WithSettings(cfg.SettingsFile))
	}
	if logger != nil {
		opts = append(opts, pingmatrix.WithLogger(logger))
	}

	return opts, nil
}

// storeOpenTimeout bounds connecting to a networked backend.
const storeOpenTimeout = 10 * time.Second

// OpenStore opens the durable history backend selected by the storage
// section. The caller owns the returned store; [pingmatrix.Monitor.Close]
// closes it when passed through [pingmatrix.WithStore].
func OpenStore(ctx context.Context, cfg *Config) (pingmatrix.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
	defer cancel()

	sc := cfg.Storage
	persistence := sc.Persistence()

	var (
		st  *storage.RetentionStore
		err error
	)
	switch sc.Driver {
	case DriverMemory:
		st, _ = memory.Open(persistence)
	case DriverSQLite:
		st, err = sqlite.Open(ctx, sc.Path, persistence)
	case DriverRedis:
		st, err = redis.Open(ctx, sc.DSN, persistence)
	case DriverMySQL:
		st, err = mysql.Open(ctx, sc.DSN, persistence)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", sc.Driver, err)
	}
	return st, nil
}
