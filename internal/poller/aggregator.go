package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pingmatrix/internal/model"
	"github.com/jpalmerr/pingmatrix/internal/probe"
)

// UnknownError is recorded for a target whose probe task failed to settle
// with a classified outcome.
const UnknownError = "Unknown"

// Prober executes one bounded-time request and classifies the outcome.
//
// Implementations must not return until the outcome is known and should
// honour the timeout themselves; probe.Client satisfies this interface.
type Prober interface {
	Probe(ctx context.Context, url string, timeout time.Duration) model.Outcome
}

// Aggregator runs polling rounds.
//
// A round probes every target concurrently, waits for all of them, and
// reduces the outcomes into one [model.LogEntry] whose results follow the
// input target order, not completion order.
type Aggregator struct {
	prober         Prober
	maxConcurrency int
	logger         *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewAggregator creates an [Aggregator].
//
// Parameters:
//   - prober: Executes individual probes
//   - maxConcurrency: Upper bound on simultaneous probes; 0 means one per target
//   - logger: Logger for panic recovery (nil uses slog.Default)
func NewAggregator(prober Prober, maxConcurrency int, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		prober:         prober,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// RunTick executes one round against targets.
//
// The entry timestamp is captured once, before any probe starts. Every target
// yields exactly one result: a probe task that panics or returns an
// unclassified outcome is replaced by an error result with duration equal to
// timeout and message [UnknownError]. A non-positive timeout is replaced by
// [probe.DefaultTimeout] before any probe starts.
//
// Returns false without doing any work when targets is empty.
func (a *Aggregator) RunTick(ctx context.Context, targets []model.Target, timeout time.Duration) (model.LogEntry, bool) {
	if len(targets) == 0 {
		return model.LogEntry{}, false
	}
	if timeout <= 0 {
		timeout = probe.DefaultTimeout
	}

	startedAt := a.now()

	// snapshot so later caller mutation cannot leak into this round
	round := make([]model.Target, len(targets))
	copy(round, targets)

	results := make([]model.TargetLogEntry, len(round))

	var sem chan struct{}
	if a.maxConcurrency > 0 && a.maxConcurrency < len(round) {
		sem = make(chan struct{}, a.maxConcurrency)
	}

	var wg sync.WaitGroup
	for i, target := range round {
		wg.Add(1)
		go func(i int, target model.Target) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			// each goroutine writes only its own slot
			results[i] = a.probeTarget(ctx, target, timeout)
		}(i, target)
	}
	wg.Wait()

	return model.LogEntry{
		ID:        a.newID(),
		Timestamp: startedAt.UnixMilli(),
		Results:   results,
	}, true
}

// probeTarget probes one target inside a panic recovery boundary.
// If the prober panics, the full stack trace is logged with a correlation ID
// and the fallback result is returned instead.
func (a *Aggregator) probeTarget(ctx context.Context, target model.Target, timeout time.Duration) (result model.TargetLogEntry) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			a.logger.Error("probe panic",
				"correlation_id", correlationID,
				"target", target.ID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			result = fallbackResult(target, timeout)
		}
	}()

	outcome := a.prober.Probe(ctx, target.URL, timeout)
	if !outcome.Status.Valid() {
		a.logger.Warn("probe returned unclassified outcome",
			"target", target.ID,
			"status", string(outcome.Status),
		)
		return fallbackResult(target, timeout)
	}
	if outcome.URL == "" {
		outcome.URL = target.URL
	}
	if outcome.Duration < 0 {
		outcome.Duration = 0
	}
	return model.ResultFromOutcome(target, outcome)
}

func fallbackResult(target model.Target, timeout time.Duration) model.TargetLogEntry {
	return model.TargetLogEntry{
		TargetID:   target.ID,
		TargetName: target.Name,
		URL:        target.URL,
		Status:     model.StatusError,
		Duration:   timeout.Milliseconds(),
		Error:      UnknownError,
	}
}
