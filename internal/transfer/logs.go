package transfer

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jpalmerr/pingmatrix/internal/model"
	"github.com/jpalmerr/pingmatrix/internal/storage"
)

// Log file framing.
const (
	LogFileType    = "http-ping-logs"
	LogFileVersion = 1
)

// exportedAtLayout matches JavaScript's Date.toISOString.
const exportedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// LogFile is the portable history export.
type LogFile struct {
	Type        string           `json:"type"`
	Version     int              `json:"version"`
	ExportedAt  string           `json:"exportedAt"`
	RetentionMs int64            `json:"retentionMs"`
	Entries     []model.LogEntry `json:"entries"`
}

// BuildLogFile frames a sanitized copy of entries for export.
func BuildLogFile(entries []model.LogEntry, retention time.Duration, now time.Time) LogFile {
	return LogFile{
		Type:        LogFileType,
		Version:     LogFileVersion,
		ExportedAt:  now.UTC().Format(exportedAtLayout),
		RetentionMs: retention.Milliseconds(),
		Entries:     storage.Sanitize(entries),
	}
}

// Marshal encodes f as indented JSON.
func (f LogFile) Marshal() ([]byte, error) {
	if f.Entries == nil {
		f.Entries = []model.LogEntry{}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode log file: %w", err)
	}
	return data, nil
}

// ParseLogFile validates a log export.
//
// The header (type, version, exportedAt, retentionMs, entries) must match
// exactly or the file is rejected. Individual entries are then sanitized:
// malformed results are dropped, entries left with no results are dropped,
// durations and timestamps are rounded to whole milliseconds with durations
// clamped at zero, and entries older than the policy's retention window are
// dropped. Of entries sharing an ID only the newest is kept. The returned
// entries are newest first and RetentionMs reflects the active policy, not
// the file.
func ParseLogFile(data []byte, policy storage.Policy) (LogFile, error) {
	root, verr := decodeObject(data)
	if verr != nil {
		return LogFile{}, verr
	}

	if typ, _ := root.str("type"); typ != LogFileType {
		return LogFile{}, invalid("type", fmt.Sprintf("expected %q", LogFileType))
	}
	if v, ok := root.number("version"); !ok || v != LogFileVersion {
		return LogFile{}, invalid("version", fmt.Sprintf("unsupported version, expected %d", LogFileVersion))
	}
	exportedAt, ok := root.str("exportedAt")
	if !ok {
		return LogFile{}, invalid("exportedAt", "must be a string")
	}
	if _, ok := root.number("retentionMs"); !ok {
		return LogFile{}, invalid("retentionMs", "must be a finite number")
	}
	rawEntries, ok := root.array("entries")
	if !ok {
		return LogFile{}, invalid("entries", "must be an array")
	}

	entries := make([]model.LogEntry, 0, len(rawEntries))
	for _, raw := range rawEntries {
		if e, ok := sanitizeEntry(raw); ok {
			entries = append(entries, e)
		}
	}

	if policy.Retention > 0 {
		cutoff := policy.Cutoff()
		kept := entries[:0]
		for _, e := range entries {
			if e.Timestamp >= cutoff {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	storage.SortNewestFirst(entries)
	entries = storage.Dedupe(entries)

	return LogFile{
		Type:        LogFileType,
		Version:     LogFileVersion,
		ExportedAt:  exportedAt,
		RetentionMs: policy.Retention.Milliseconds(),
		Entries:     entries,
	}, nil
}

func sanitizeEntry(raw any) (model.LogEntry, bool) {
	rec, ok := raw.(map[string]any)
	if !ok {
		return model.LogEntry{}, false
	}
	o := object(rec)

	id, ok := o.str("id")
	if !ok {
		return model.LogEntry{}, false
	}
	ts, ok := o.number("timestamp")
	if !ok {
		return model.LogEntry{}, false
	}
	rawResults, ok := o.array("results")
	if !ok {
		return model.LogEntry{}, false
	}

	results := make([]model.TargetLogEntry, 0, len(rawResults))
	for _, r := range rawResults {
		if res, ok := sanitizeResult(r); ok {
			results = append(results, res)
		}
	}
	if len(results) == 0 {
		return model.LogEntry{}, false
	}

	return model.LogEntry{ID: id, Timestamp: roundMs(ts), Results: results}, true
}

func sanitizeResult(raw any) (model.TargetLogEntry, bool) {
	rec, ok := raw.(map[string]any)
	if !ok {
		return model.TargetLogEntry{}, false
	}
	o := object(rec)

	var r model.TargetLogEntry
	if r.TargetID, ok = o.str("targetId"); !ok {
		return r, false
	}
	if r.TargetName, ok = o.str("targetName"); !ok {
		return r, false
	}
	if r.URL, ok = o.str("url"); !ok {
		return r, false
	}
	status, _ := o.str("status")
	r.Status = model.Status(status)
	if !r.Status.Valid() {
		return r, false
	}
	d, ok := o.number("duration")
	if !ok {
		return r, false
	}
	if ms := roundMs(d); ms > 0 {
		r.Duration = ms
	}
	if v, present := rec["error"]; present {
		msg, ok := v.(string)
		if !ok {
			return r, false
		}
		r.Error = msg
	}
	return r, true
}

// roundMs rounds half up, like JavaScript's Math.round, saturating at the
// int64 range.
func roundMs(f float64) int64 {
	r := math.Floor(f + 0.5)
	switch {
	case r >= math.MaxInt64:
		return math.MaxInt64
	case r <= math.MinInt64:
		return math.MinInt64
	}
	return int64(r)
}
