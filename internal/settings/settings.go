// Package settings persists user-adjustable preferences across sessions.
//
// The file is a small YAML document:
//
//	interval_ms: 800
//	timeout_ms: 800
//	sync_timers: true
//	layout_mode: table
//	locale: en
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for a fresh installation.
const (
	DefaultInterval   = 800 * time.Millisecond
	DefaultTimeout    = 800 * time.Millisecond
	DefaultSyncTimers = true
	DefaultLayoutMode = "table"
	DefaultLocale     = "en"
)

// Settings are the persisted preferences.
type Settings struct {
	IntervalMs int64  `yaml:"interval_ms"`
	TimeoutMs  int64  `yaml:"timeout_ms"`
	SyncTimers bool   `yaml:"sync_timers"`
	LayoutMode string `yaml:"layout_mode"`
	Locale     string `yaml:"locale"`
}

// Default returns the default settings.
func Default() Settings {
	return Settings{
		IntervalMs: DefaultInterval.Milliseconds(),
		TimeoutMs:  DefaultTimeout.Milliseconds(),
		SyncTimers: DefaultSyncTimers,
		LayoutMode: DefaultLayoutMode,
		Locale:     DefaultLocale,
	}
}

// Interval returns IntervalMs as a time.Duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// Timeout returns TimeoutMs as a time.Duration.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// File is a settings file on disk. Saves are serialized.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a settings file at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Exists reports whether the file is present on disk.
func (f *File) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Load reads the settings. A missing file yields the defaults. Fields that
// are missing or non-positive fall back to their defaults.
func (f *File) Load() (Settings, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("failed to read settings file: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("failed to parse settings file: %w", err)
	}

	d := Default()
	if s.IntervalMs <= 0 {
		s.IntervalMs = d.IntervalMs
	}
	if s.TimeoutMs <= 0 {
		s.TimeoutMs = d.TimeoutMs
	}
	if s.LayoutMode == "" {
		s.LayoutMode = d.LayoutMode
	}
	if s.Locale == "" {
		s.Locale = d.Locale
	}
	return s, nil
}

// Save writes s atomically (temp file + rename).
func (f *File) Save(s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
