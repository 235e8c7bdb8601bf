package transfer

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config file framing.
const (
	ConfigFileType    = "http-ping-config"
	ConfigFileVersion = 1
)

// MaxTimerMs is the largest accepted interval or timeout, in milliseconds.
const MaxTimerMs = int64(24 * time.Hour / time.Millisecond)

// TimerSettings are the polling timers in milliseconds.
type TimerSettings struct {
	Interval   int64 `json:"interval"`
	Timeout    int64 `json:"timeout"`
	SyncTimers bool  `json:"syncTimers"`
}

// IntervalDuration returns Interval as a time.Duration.
func (t TimerSettings) IntervalDuration() time.Duration {
	return time.Duration(t.Interval) * time.Millisecond
}

// TimeoutDuration returns Timeout as a time.Duration.
func (t TimerSettings) TimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Millisecond
}

// AppConfig is the portable application configuration. LayoutMode and
// Locale are opaque to the monitor and carried for the presentation layer.
type AppConfig struct {
	Timers     TimerSettings `json:"timers"`
	LayoutMode string        `json:"layoutMode"`
	Locale     string        `json:"locale"`
}

// ConfigFile is the portable configuration export.
type ConfigFile struct {
	Type       string    `json:"type"`
	Version    int       `json:"version"`
	ExportedAt string    `json:"exportedAt"`
	Data       AppConfig `json:"data"`
}

// BuildConfigFile frames data for export.
func BuildConfigFile(data AppConfig, now time.Time) ConfigFile {
	return ConfigFile{
		Type:       ConfigFileType,
		Version:    ConfigFileVersion,
		ExportedAt: now.UTC().Format(exportedAtLayout),
		Data:       data,
	}
}

// Marshal encodes f as indented JSON.
func (f ConfigFile) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config file: %w", err)
	}
	return data, nil
}

// ParseConfigFile validates a config export. Every field must be present
// with the right JSON type; there is no partial result.
func ParseConfigFile(data []byte) (ConfigFile, error) {
	root, verr := decodeObject(data)
	if verr != nil {
		return ConfigFile{}, verr
	}

	if typ, _ := root.str("type"); typ != ConfigFileType {
		return ConfigFile{}, invalid("type", fmt.Sprintf("expected %q", ConfigFileType))
	}
	if v, ok := root.number("version"); !ok || v != ConfigFileVersion {
		return ConfigFile{}, invalid("version", fmt.Sprintf("unsupported version, expected %d", ConfigFileVersion))
	}
	exportedAt, ok := root.str("exportedAt")
	if !ok {
		return ConfigFile{}, invalid("exportedAt", "must be a string")
	}

	body, ok := root.obj("data")
	if !ok {
		return ConfigFile{}, invalid("data", "must be an object")
	}
	timers, ok := body.obj("timers")
	if !ok {
		return ConfigFile{}, invalid("data.timers", "must be an object")
	}

	interval, ok := timers.number("interval")
	if !ok {
		return ConfigFile{}, invalid("data.timers.interval", "must be a finite number")
	}
	timeout, ok := timers.number("timeout")
	if !ok {
		return ConfigFile{}, invalid("data.timers.timeout", "must be a finite number")
	}
	syncTimers, ok := timers.boolean("syncTimers")
	if !ok {
		return ConfigFile{}, invalid("data.timers.syncTimers", "must be a boolean")
	}
	layoutMode, ok := body.str("layoutMode")
	if !ok {
		return ConfigFile{}, invalid("data.layoutMode", "must be a string")
	}
	locale, ok := body.str("locale")
	if !ok {
		return ConfigFile{}, invalid("data.locale", "must be a string")
	}

	intervalMs, timeoutMs := roundMs(interval), roundMs(timeout)
	if intervalMs <= 0 {
		return ConfigFile{}, invalid("data.timers.interval", "must be positive")
	}
	if intervalMs > MaxTimerMs {
		return ConfigFile{}, invalid("data.timers.interval", fmt.Sprintf("must be at most %d", MaxTimerMs))
	}
	if timeoutMs <= 0 {
		return ConfigFile{}, invalid("data.timers.timeout", "must be positive")
	}
	if timeoutMs > MaxTimerMs {
		return ConfigFile{}, invalid("data.timers.timeout", fmt.Sprintf("must be at most %d", MaxTimerMs))
	}

	return ConfigFile{
		Type:       ConfigFileType,
		Version:    ConfigFileVersion,
		ExportedAt: exportedAt,
		Data: AppConfig{
			Timers: TimerSettings{
				Interval:   intervalMs,
				Timeout:    timeoutMs,
				SyncTimers: syncTimers,
			},
			LayoutMode: layoutMode,
			Locale:     locale,
		},
	}, nil
}
