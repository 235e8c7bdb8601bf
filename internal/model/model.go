// Package model defines the value types shared by the polling, history,
// storage, and transfer packages.
//
// The types are kept free of behaviour beyond small helpers so that every
// internal package can depend on them without creating import cycles. The
// root pingmatrix package re-exports them as aliases.
package model

import "time"

// Status classifies the outcome of a single probe.
type Status string

const (
	// StatusSuccess means a response was received, whatever its HTTP status.
	StatusSuccess Status = "success"

	// StatusTimeout means the probe's own deadline fired before a response.
	StatusTimeout Status = "timeout"

	// StatusError covers every other failure (DNS, TLS, refused connection).
	StatusError Status = "error"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusTimeout, StatusError:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// Target is an endpoint to probe. Identity is ID.
type Target struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Color string `json:"color"`
}

// Outcome is the classified result of probing one URL.
type Outcome struct {
	Timestamp time.Time
	URL       string
	Status    Status
	// Duration is wall-clock elapsed time, or exactly the timeout for
	// StatusTimeout.
	Duration time.Duration
	Error    string
}

// TargetLogEntry is an Outcome bound to a snapshot of its target's identity.
type TargetLogEntry struct {
	TargetID   string `json:"targetId"`
	TargetName string `json:"targetName"`
	URL        string `json:"url"`
	Status     Status `json:"status"`
	// Duration is in whole milliseconds.
	Duration int64  `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// LogEntry is the aggregate of one polling round.
type LogEntry struct {
	ID string `json:"id"`
	// Timestamp is the round start in Unix milliseconds.
	Timestamp int64            `json:"timestamp"`
	Results   []TargetLogEntry `json:"results"`
}

// Time returns Timestamp as a time.Time.
func (e LogEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Clone returns a deep copy of e.
func (e LogEntry) Clone() LogEntry {
	cp := e
	if e.Results != nil {
		cp.Results = make([]TargetLogEntry, len(e.Results))
		copy(cp.Results, e.Results)
	}
	return cp
}

// ResultFromOutcome binds an outcome to the target that produced it.
func ResultFromOutcome(t Target, o Outcome) TargetLogEntry {
	return TargetLogEntry{
		TargetID:   t.ID,
		TargetName: t.Name,
		URL:        o.URL,
		Status:     o.Status,
		Duration:   o.Duration.Milliseconds(),
		Error:      o.Error,
	}
}

// Timers holds the polling cadence settings.
type Timers struct {
	Interval time.Duration
	Timeout  time.Duration
	// Sync couples Timeout to Interval.
	Sync bool
}

// State is a point-in-time view of a monitor, shaped for the HTTP API.
type State struct {
	Targets []Target   `json:"targets"`
	Log     []LogEntry `json:"log"`
	// Interval and Timeout are in milliseconds.
	Interval   int64 `json:"interval"`
	Timeout    int64 `json:"timeout"`
	SyncTimers bool  `json:"syncTimers"`
	IsRunning  bool  `json:"isRunning"`
	// LatencyStats maps target name to its duration in the newest entry.
	LatencyStats map[string]int64 `json:"latencyStats"`
}
