package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jpalmerr/pingmatrix/internal/model"
)

// Default persistence settings.
const (
	DefaultRetentionDays = 3
	DefaultMaxEntries    = 500
	DefaultDBName        = "http-ping-logs"
	DefaultStoreName     = "logEntries"
	DefaultSchemaVersion = 1
)

// maxStringLen bounds every string field written to a backend.
const maxStringLen = 2048

// ErrStorage matches every error returned by a [RetentionStore].
var ErrStorage = errors.New("storage failure")

// Error describes a failed storage operation.
type Error struct {
	Op      string // "open", "load", "replace", "close"
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is [ErrStorage].
func (e *Error) Is(target error) bool { return target == ErrStorage }

// Store is the durable log store used by the history layer.
type Store interface {
	Load(ctx context.Context) ([]model.LogEntry, error)
	ReplaceAll(ctx context.Context, entries []model.LogEntry) error
	Close() error
}

// Backend is a keyed object store for one namespace.
//
// WriteAll must replace the namespace atomically: either every entry is
// written and everything else removed, or nothing changes.
type Backend interface {
	Name() string
	ReadAll(ctx context.Context) ([]model.LogEntry, error)
	WriteAll(ctx context.Context, entries []model.LogEntry) error
	Close() error
}

// Config identifies a store namespace and its retention bounds.
type Config struct {
	RetentionDays int
	MaxEntries    int
	DBName        string
	StoreName     string
	SchemaVersion int
}

// DefaultConfig returns the default persistence settings.
func DefaultConfig() Config {
	return Config{
		RetentionDays: DefaultRetentionDays,
		MaxEntries:    DefaultMaxEntries,
		DBName:        DefaultDBName,
		StoreName:     DefaultStoreName,
		SchemaVersion: DefaultSchemaVersion,
	}
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.RetentionDays == 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = d.MaxEntries
	}
	if c.DBName == "" {
		c.DBName = d.DBName
	}
	if c.StoreName == "" {
		c.StoreName = d.StoreName
	}
	if c.SchemaVersion == 0 {
		c.SchemaVersion = d.SchemaVersion
	}
	return c
}

var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Validate checks the configuration. StoreName must be a plain identifier
// because SQL backends derive table names from it.
func (c Config) Validate() error {
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive, got %d", c.RetentionDays)
	}
	if c.MaxEntries <= 0 {
		return fmt.Errorf("max_entries must be positive, got %d", c.MaxEntries)
	}
	if c.DBName == "" {
		return errors.New("db_name is required")
	}
	if !identPattern.MatchString(c.StoreName) {
		return fmt.Errorf("store_name %q must start with a letter and contain only letters, digits, or underscores", c.StoreName)
	}
	if c.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive, got %d", c.SchemaVersion)
	}
	return nil
}

// Retention returns the retention window.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Table returns the versioned table (or key suffix) name, e.g. "logEntries_v1".
func (c Config) Table() string {
	return fmt.Sprintf("%s_v%d", c.StoreName, c.SchemaVersion)
}

// Namespace returns the fully qualified namespace, e.g.
// "http-ping-logs:logEntries:v1".
func (c Config) Namespace() string {
	return fmt.Sprintf("%s:%s:v%d", c.DBName, c.StoreName, c.SchemaVersion)
}

// Policy returns the retention policy for c.
func (c Config) Policy() Policy {
	return Policy{Retention: c.Retention(), MaxEntries: c.MaxEntries}
}

// Policy bounds a history by age and by count.
type Policy struct {
	Retention  time.Duration
	MaxEntries int
	// Now defaults to time.Now.
	Now func() time.Time
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Cutoff returns the oldest timestamp, in Unix milliseconds, still retained.
func (p Policy) Cutoff() int64 {
	return p.now().Add(-p.Retention).UnixMilli()
}

// Apply returns the newest-first subset of entries that is inside the
// retention window, capped at MaxEntries. Only the newest entry per ID is
// kept. The input is not modified. A zero Retention or MaxEntries disables
// that bound.
func (p Policy) Apply(entries []model.LogEntry) []model.LogEntry {
	sorted := make([]model.LogEntry, len(entries))
	copy(sorted, entries)
	SortNewestFirst(sorted)
	sorted = Dedupe(sorted)

	out := sorted[:0]
	if p.Retention > 0 {
		cutoff := p.Cutoff()
		for _, e := range sorted {
			if e.Timestamp >= cutoff {
				out = append(out, e)
			}
		}
	} else {
		out = sorted
	}

	if p.MaxEntries > 0 && len(out) > p.MaxEntries {
		out = out[:p.MaxEntries]
	}
	return out
}

// SortNewestFirst sorts entries by descending timestamp in place. Entries
// with equal timestamps keep their relative order.
func SortNewestFirst(entries []model.LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
}

// Dedupe drops every entry whose ID already appeared earlier in entries.
// On newest-first input that keeps the newest occurrence. The result reuses
// the backing array of entries.
func Dedupe(entries []model.LogEntry) []model.LogEntry {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Sanitize returns a deep copy of entries holding only the persisted
// fields, with negative durations clamped to zero and oversized strings
// truncated.
func Sanitize(entries []model.LogEntry) []model.LogEntry {
	out := make([]model.LogEntry, len(entries))
	for i, e := range entries {
		cp := model.LogEntry{
			ID:        truncate(e.ID),
			Timestamp: e.Timestamp,
			Results:   make([]model.TargetLogEntry, len(e.Results)),
		}
		for j, r := range e.Results {
			if r.Duration < 0 {
				r.Duration = 0
			}
			r.TargetID = truncate(r.TargetID)
			r.TargetName = truncate(r.TargetName)
			r.URL = truncate(r.URL)
			r.Error = truncate(r.Error)
			cp.Results[j] = r
		}
		out[i] = cp
	}
	return out
}

func truncate(s string) string {
	if len(s) <= maxStringLen {
		return s
	}
	// never split a multi-byte character
	cut := maxStringLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// RetentionStore enforces a retention policy around a [Backend].
// Writes are serialized; the last committed ReplaceAll wins.
type RetentionStore struct {
	backend Backend
	policy  Policy

	mu sync.Mutex
}

var _ Store = (*RetentionStore)(nil)

// NewRetentionStore wraps backend with the given policy.
func NewRetentionStore(backend Backend, policy Policy) *RetentionStore {
	return &RetentionStore{backend: backend, policy: policy}
}

// Policy returns the store's retention policy.
func (s *RetentionStore) Policy() Policy {
	return s.policy
}

// Backend returns the wrapped backend name.
func (s *RetentionStore) Backend() string {
	return s.backend.Name()
}

// Load returns the retained entries, newest first.
//
// When retention removed anything, the trimmed set is written back before
// returning so the backend never keeps expired entries around.
func (s *RetentionStore) Load(ctx context.Context) ([]model.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.backend.ReadAll(ctx)
	if err != nil {
		return nil, s.wrap("load", err)
	}

	retained := s.policy.Apply(all)
	if len(retained) != len(all) {
		if err := s.backend.WriteAll(ctx, Sanitize(retained)); err != nil {
			return nil, s.wrap("load", fmt.Errorf("write back trimmed entries: %w", err))
		}
	}
	return retained, nil
}

// ReplaceAll atomically replaces the stored entries with the sanitized,
// retained subset of entries.
func (s *RetentionStore) ReplaceAll(ctx context.Context, entries []model.LogEntry) error {
	retained := s.policy.Apply(Sanitize(entries))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.WriteAll(ctx, retained); err != nil {
		return s.wrap("replace", err)
	}
	return nil
}

// Close closes the backend.
func (s *RetentionStore) Close() error {
	if err := s.backend.Close(); err != nil {
		return s.wrap("close", err)
	}
	return nil
}

func (s *RetentionStore) wrap(op string, err error) error {
	return &Error{Op: op, Backend: s.backend.Name(), Err: err}
}
