// Package memory provides an in-process storage backend.
//
// Entries are kept in a map keyed by entry ID and do not survive a restart.
// The backend is used for the "memory" storage driver and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/jpalmerr/pingmatrix/internal/model"
	"github.com/jpalmerr/pingmatrix/internal/storage"
)

// Backend is an in-memory [storage.Backend].
type Backend struct {
	mu       sync.RWMutex
	entries  map[string]model.LogEntry
	writeErr error
	readErr  error
	writes   int
}

var _ storage.Backend = (*Backend)(nil)

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{entries: make(map[string]model.LogEntry)}
}

// Open returns a [storage.RetentionStore] over a new in-memory backend.
func Open(cfg storage.Config) (*storage.RetentionStore, *Backend) {
	b := New()
	return storage.NewRetentionStore(b, cfg.WithDefaults().Policy()), b
}

// Name implements [storage.Backend].
func (b *Backend) Name() string { return "memory" }

// ReadAll returns every stored entry in no particular order.
func (b *Backend) ReadAll(ctx context.Context) ([]model.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.readErr != nil {
		return nil, b.readErr
	}
	out := make([]model.LogEntry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.Clone())
	}
	return out, nil
}

// WriteAll replaces every stored entry. A configured write failure leaves
// the previous contents untouched.
func (b *Backend) WriteAll(ctx context.Context, entries []model.LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	next := make(map[string]model.LogEntry, len(entries))
	for _, e := range entries {
		next[e.ID] = e.Clone()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writeErr != nil {
		return b.writeErr
	}
	b.entries = next
	b.writes++
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }

// Seed stores entries directly, bypassing any retention policy.
func (b *Backend) Seed(entries ...model.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range entries {
		b.entries[e.ID] = e.Clone()
	}
}

// FailWrites makes every later WriteAll return err; nil restores normal
// behaviour.
func (b *Backend) FailWrites(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeErr = err
}

// FailReads makes every later ReadAll return err; nil restores normal
// behaviour.
func (b *Backend) FailReads(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readErr = err
}

// Len returns the number of stored entries.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Writes returns how many WriteAll calls succeeded.
func (b *Backend) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes
}
