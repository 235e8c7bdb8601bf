package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pingmatrix/internal/model"
)

// Source supplies the inputs of each round. It is consulted at the start of
// every round, so target and timeout changes apply to the next round.
type Source interface {
	Targets() []model.Target
	Timeout() time.Duration
}

// EntryHandler receives the entry produced by each round.
type EntryHandler func(model.LogEntry)

// Scheduler runs polling rounds on a fixed interval.
//
// A Scheduler is either idle or running. [Scheduler.Start] runs one round
// immediately and then one per interval; [Scheduler.Stop] cancels future
// rounds but lets an in-flight round finish, and its entry is still handed
// to the handler. Rounds never overlap: a single loop goroutine runs them
// one after another, and interval fires that arrive while a round is in
// flight are dropped.
//
// A Scheduler may be started and stopped any number of times. All methods
// are safe for concurrent use.
type Scheduler struct {
	agg     *Aggregator
	source  Source
	handler EntryHandler
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	interval time.Duration
	stop     chan struct{}
	reset    chan time.Duration
	done     chan struct{}
}

// NewScheduler creates a new polling [Scheduler].
//
// Parameters:
//   - agg: Runs each round
//   - interval: Time between rounds; must be positive
//   - source: Supplies targets and the probe timeout per round
//   - handler: Receives every produced entry (may be nil)
//   - logger: Logger for round summaries and handler panics
//
// The scheduler is idle until [Scheduler.Start] is called.
func NewScheduler(agg *Aggregator, interval time.Duration, source Source, handler EntryHandler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		agg:      agg,
		source:   source,
		handler:  handler,
		logger:   logger,
		interval: interval,
	}
}

// Start moves the scheduler from idle to running.
//
// Start is non-blocking. The loop goroutine runs one round immediately, then
// one round per interval until [Scheduler.Stop] is called or ctx is
// cancelled. Cancelling ctx also cancels in-flight probes; entries of rounds
// cut short that way are discarded.
//
// Start on a running scheduler is a no-op. If a previous loop is still
// finishing its last round, the new loop waits for it before its first round.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	prev := s.done
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop = stop
	s.reset = make(chan time.Duration, 1)
	s.done = done
	reset := s.reset
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", s.Interval().String())

	go s.loop(ctx, prev, stop, reset, done)
}

// Stop moves the scheduler from running to idle.
//
// Future rounds are cancelled; a round already in flight completes and its
// entry is delivered. Stop does not wait for that round; use
// [Scheduler.Wait] for that. Stop on an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
	s.logger.Info("scheduler stopped")
}

// Wait blocks until the most recent loop goroutine has exited.
// It returns immediately if the scheduler was never started.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval returns the current interval between rounds.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval changes the interval between rounds.
//
// While running, the timer is restarted so the new interval governs the next
// fire; no round is run or skipped because of the change. Non-positive
// values are ignored.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if d == s.interval {
		return
	}
	s.interval = d

	if s.running {
		// keep only the newest pending value
		select {
		case <-s.reset:
		default:
		}
		s.reset <- d
	}
}

func (s *Scheduler) loop(ctx context.Context, prev <-chan struct{}, stop <-chan struct{}, reset <-chan time.Duration, done chan struct{}) {
	defer close(done)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			s.markIdle(stop)
			return
		}
	}

	select {
	case <-stop:
		return
	default:
	}

	s.runRound(ctx)

	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.markIdle(stop)
			return
		case <-stop:
			return
		case d := <-reset:
			ticker.Reset(d)
		case <-ticker.C:
			// a Stop that raced with the fire wins
			select {
			case <-stop:
				return
			default:
			}
			s.runRound(ctx)
		}
	}
}

// markIdle flips the running flag after a context cancellation, unless a
// newer Start has already replaced this loop.
func (s *Scheduler) markIdle(stop <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.stop == stop {
		s.running = false
		close(s.stop)
		s.logger.Info("scheduler stopped", "reason", "context cancelled")
	}
}

func (s *Scheduler) runRound(ctx context.Context) {
	targets := s.source.Targets()
	timeout := s.source.Timeout()

	entry, ok := s.agg.RunTick(ctx, targets, timeout)
	if !ok {
		s.logger.Debug("round skipped", "reason", "no targets")
		return
	}
	if ctx.Err() != nil {
		s.logger.Debug("round discarded", "reason", "context cancelled", "entry_id", entry.ID)
		return
	}

	s.logRound(entry)
	s.deliver(entry)
}

// logRound logs a round summary (DEBUG when every probe succeeded).
func (s *Scheduler) logRound(entry model.LogEntry) {
	failed := 0
	for _, r := range entry.Results {
		if r.Status != model.StatusSuccess {
			failed++
		}
	}

	attrs := []any{
		"entry_id", entry.ID,
		"targets", len(entry.Results),
		"failed", failed,
	}
	if failed > 0 {
		s.logger.Warn("round completed with failures", attrs...)
		return
	}
	s.logger.Debug("round completed", attrs...)
}

// deliver calls the handler with panic recovery.
// Panics are logged but do not stop the scheduler.
func (s *Scheduler) deliver(entry model.LogEntry) {
	if s.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("entry handler panicked",
				"correlation_id", uuid.NewString(),
				"panic", r,
				"entry_id", entry.ID,
			)
		}
	}()
	s.handler(entry)
}
