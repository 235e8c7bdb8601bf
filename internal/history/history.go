package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/pingmatrix/internal/model"
	"github.com/jpalmerr/pingmatrix/internal/storage"
)

const (
	subscriberBuffer = 100
	flushTimeout     = 10 * time.Second
)

// History is the in-memory, newest-first log history.
type History struct {
	policy storage.Policy
	store  storage.Store
	logger *slog.Logger

	mu      sync.RWMutex
	entries []model.LogEntry

	subMu       sync.RWMutex
	subscribers map[chan model.LogEntry]struct{}

	// flushMu serializes snapshot+write so writes commit in mutation order
	flushMu  sync.Mutex
	flushReq chan struct{}

	lifeMu  sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates an empty history bounded by policy. store may be nil, in
// which case nothing is persisted.
func New(policy storage.Policy, store storage.Store, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}
	return &History{
		policy:      policy,
		store:       store,
		logger:      logger,
		subscribers: make(map[chan model.LogEntry]struct{}),
		flushReq:    make(chan struct{}, 1),
	}
}

// Policy returns the retention policy.
func (h *History) Policy() storage.Policy {
	return h.policy
}

// Load replaces the in-memory history with the durable store's contents.
// It is a no-op without a store.
func (h *History) Load(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	entries, err := h.store.Load(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.entries = h.policy.Apply(entries)
	n := len(h.entries)
	h.mu.Unlock()

	h.logger.Info("history loaded", "entries", n)
	return nil
}

// Add records a new entry, trims the history, notifies subscribers, and
// schedules a flush.
func (h *History) Add(entry model.LogEntry) {
	entry = entry.Clone()

	h.mu.Lock()
	next := make([]model.LogEntry, 0, len(h.entries)+1)
	next = append(next, entry)
	next = append(next, h.entries...)
	h.entries = h.policy.Apply(next)
	h.mu.Unlock()

	h.notifySubscribers(entry)
	h.scheduleFlush()
}

// Replace swaps the whole history for entries and schedules a flush.
func (h *History) Replace(entries []model.LogEntry) {
	cp := make([]model.LogEntry, len(entries))
	for i, e := range entries {
		cp[i] = e.Clone()
	}

	h.mu.Lock()
	h.entries = h.policy.Apply(cp)
	h.mu.Unlock()

	h.scheduleFlush()
}

// Clear empties the history and schedules a flush.
func (h *History) Clear() {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()

	h.scheduleFlush()
}

// Entries returns a snapshot of the history, newest first.
// The returned slice is a copy; modifications do not affect the history.
func (h *History) Entries() []model.LogEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]model.LogEntry, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Clone()
	}
	return out
}

// Latest returns the newest entry.
func (h *History) Latest() (model.LogEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.entries) == 0 {
		return model.LogEntry{}, false
	}
	return h.entries[0].Clone(), true
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Subscribe creates a new subscription and returns a channel for receiving
// new entries.
//
// The returned channel has a buffer of 100 entries. If the buffer fills
// (slow consumer), new entries are dropped for this subscriber.
//
// Caller must call [History.Unsubscribe] when done to prevent resource leaks.
func (h *History) Subscribe() <-chan model.LogEntry {
	ch := make(chan model.LogEntry, subscriberBuffer)

	h.subMu.Lock()
	h.subscribers[ch] = struct{}{}
	h.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (h *History) Unsubscribe(ch <-chan model.LogEntry) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	for subCh := range h.subscribers {
		if subCh == ch {
			delete(h.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (h *History) notifySubscribers(entry model.LogEntry) {
	h.subMu.RLock()
	defer h.subMu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- entry.Clone():
		default:
			// subscriber is slow, drop the entry
		}
	}
}

// Start launches the flusher goroutine. Calling Start more than once has no
// effect until [History.Close].
func (h *History) Start() {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	if h.started || h.store == nil {
		return
	}
	h.started = true
	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	go h.flushLoop(h.stop, h.done)
}

// Close stops the flusher and writes a final snapshot.
func (h *History) Close(ctx context.Context) error {
	h.lifeMu.Lock()
	started := h.started
	if started {
		h.started = false
		close(h.stop)
	}
	done := h.done
	h.lifeMu.Unlock()

	if !started {
		return nil
	}
	<-done
	return h.Flush(ctx)
}

// Flush synchronously writes the current snapshot to the store.
func (h *History) Flush(ctx context.Context) error {
	if h.store == nil {
		return nil
	}

	h.flushMu.Lock()
	defer h.flushMu.Unlock()

	snapshot := h.Entries()
	if err := h.store.ReplaceAll(ctx, snapshot); err != nil {
		return err
	}
	h.logger.Debug("history flushed", "entries", len(snapshot))
	return nil
}

// scheduleFlush requests a flush; pending requests coalesce.
func (h *History) scheduleFlush() {
	if h.store == nil {
		return
	}
	select {
	case h.flushReq <- struct{}{}:
	default:
	}
}

func (h *History) flushLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-h.flushReq:
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			if err := h.Flush(ctx); err != nil {
				h.logger.Warn("history flush failed, keeping in-memory entries",
					"error", err,
					"entries", h.Len(),
				)
			}
			cancel()
		}
	}
}
