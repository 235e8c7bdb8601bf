// Package sqlite provides the default durable storage backend on top of the
// pure-Go modernc.org/sqlite driver.
//
// Entries of one namespace live in a versioned table named
// "<store>_v<version>". A schema_versions table records which namespaces
// have been migrated. Bumping the schema version creates a fresh table; old
// tables are left alone and never read.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jpalmerr/pingmatrix/internal/model"
	"github.com/jpalmerr/pingmatrix/internal/storage"
)

const (
	busyTimeoutMs = 10_000
	maxRetries    = 3
)

// Backend is a SQLite [storage.Backend].
type Backend struct {
	db    *sql.DB
	cfg   storage.Config
	table string
}

var _ storage.Backend = (*Backend)(nil)

// New opens (creating if needed) the database at path and migrates the
// namespace described by cfg. Use ":memory:" for a private in-memory
// database.
func New(ctx context.Context, path string, cfg storage.Config) (*Backend, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	b := &Backend{db: db, cfg: cfg, table: cfg.Table()}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return b, nil
}

// Open returns a [storage.RetentionStore] over a SQLite backend.
func Open(ctx context.Context, path string, cfg storage.Config) (*storage.RetentionStore, error) {
	b, err := New(ctx, path, cfg)
	if err != nil {
		return nil, &storage.Error{Op: "open", Backend: "sqlite", Err: err}
	}
	return storage.NewRetentionStore(b, b.cfg.Policy()), nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// migrate ensures the registry and the namespace table exist.
func (b *Backend) migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS schema_versions (
	namespace   TEXT NOT NULL,
	store       TEXT NOT NULL,
	version     INTEGER NOT NULL,
	migrated_at TEXT NOT NULL,
	PRIMARY KEY (namespace, store, version)
);

CREATE TABLE IF NOT EXISTS %[1]s (
	id        TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	results   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (timestamp DESC);
`, quoteIdent(b.table), quoteIdent("idx_"+b.table+"_timestamp"))

	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO schema_versions (namespace, store, version, migrated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(namespace, store, version) DO NOTHING`,
		b.cfg.DBName, b.cfg.StoreName, b.cfg.SchemaVersion, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Name implements [storage.Backend].
func (b *Backend) Name() string { return "sqlite" }

// Table returns the namespace table name.
func (b *Backend) Table() string { return b.table }

// DB exposes the underlying handle for tests and maintenance commands.
func (b *Backend) DB() *sql.DB { return b.db }

// Close closes the database connection.
func (b *Backend) Close() error { return b.db.Close() }

// ReadAll returns every entry in the namespace, newest first.
func (b *Backend) ReadAll(ctx context.Context) ([]model.LogEntry, error) {
	query := fmt.Sprintf(`SELECT id, timestamp, results FROM %s ORDER BY timestamp DESC`, quoteIdent(b.table))
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var (
			e       model.LogEntry
			results string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &results); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(results), &e.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results of entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// WriteAll clears the namespace table and inserts entries in one
// transaction. The transaction is retried when the database is busy.
func (b *Backend) WriteAll(ctx context.Context, entries []model.LogEntry) error {
	encoded := make([]string, len(entries))
	for i, e := range entries {
		data, err := json.Marshal(e.Results)
		if err != nil {
			return fmt.Errorf("failed to encode results of entry %s: %w", e.ID, err)
		}
		encoded[i] = string(data)
	}

	table := quoteIdent(b.table)
	return runTx(ctx, b.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear entries: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+table+" (id, timestamp, results) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.ID, e.Timestamp, encoded[i]); err != nil {
				return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// isBusy reports whether err indicates a SQLITE_BUSY condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// runTx executes fn inside a transaction, retrying up to three times with
// 100/200/300 ms backoff while the database is busy.
func runTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = runOnce(ctx, db, fn)
		if err == nil || !isBusy(err) || i == maxRetries-1 {
			return err
		}

		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-t.C:
		}
	}
	return err
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
