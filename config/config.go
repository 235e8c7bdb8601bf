// Package config provides YAML configuration parsing for pingmatrix.
//
// This package enables running pingmatrix as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	interval: 800ms
//	sync_timers: true
//	auto_start: true
//
//	targets:
//	  - name: github
//	    url: https://github.com/favicon.ico
//	    color: "#8b5cf6"
//
//	grids:
//	  - name: Regional
//	    url_template: "https://{{.region}}.example.com/favicon.ico"
//	    dimensions:
//	      region: [eu, us]
//
//	storage:
//	  driver: sqlite
//	  path: pingmatrix.db
//
// Without targets or grids the built-in default targets are probed.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/pingmatrix/internal/logging"
	"github.com/jpalmerr/pingmatrix/internal/storage"
)

// minInterval is the minimum allowed round interval.
// This prevents accidental DoS of targets with overly aggressive polling.
const minInterval = 100 * time.Millisecond

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverMySQL  = "mysql"
)

const (
	defaultPort        = 8080
	defaultInterval    = 800 * time.Millisecond
	defaultSQLitePath  = "pingmatrix.db"
	defaultStoreDriver = DriverSQLite
)

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Config is the root configuration structure for pingmatrix.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP API port. Defaults to 8080.
	Port int `yaml:"port"`

	// Interval is the time between rounds.
	// Accepts duration strings like "800ms", "2s". Defaults to 800ms.
	Interval Duration `yaml:"interval"`

	// Timeout is the per-probe timeout. Ignored while timers are synced.
	// Defaults to the interval.
	Timeout Duration `yaml:"timeout"`

	// SyncTimers couples the timeout to the interval. Defaults to true.
	SyncTimers *bool `yaml:"sync_timers"`

	// AutoStart starts polling as soon as the server is up.
	AutoStart bool `yaml:"auto_start"`

	// LayoutMode and Locale are opaque presentation values carried in
	// config exports.
	LayoutMode string `yaml:"layout_mode"`
	Locale     string `yaml:"locale"`

	// Targets defines individual probe targets.
	Targets []TargetConfig `yaml:"targets"`

	// Grids defines target grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`

	// Storage selects the durable history backend.
	Storage StorageConfig `yaml:"storage"`

	// SettingsFile persists runtime timer changes. Empty disables it.
	SettingsFile string `yaml:"settings_file"`

	// Log configures the binary's logger.
	Log LogConfig `yaml:"log"`
}

// TargetConfig defines a single probe target.
type TargetConfig struct {
	// Name is the display name.
	Name string `yaml:"name"`

	// URL is the probed URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// ID overrides the identifier derived from Name.
	ID string `yaml:"id"`

	// Color is a hex color like "#22c55e". Empty picks one from the palette.
	Color string `yaml:"color"`
}

// GridConfig defines a target grid that expands via cartesian product.
//
// For example, with dimensions {env: [prod, staging], region: [eu, us]},
// the grid expands to 4 targets.
type GridConfig struct {
	// Name is the base name for generated targets.
	Name string `yaml:"name"`

	// URLTemplate is a Go template for generating target URLs.
	// Dimension keys are available as template variables: {{.env}}, {{.region}}
	// Supports environment variable substitution in the template.
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	// Color applies to every generated target.
	Color string `yaml:"color"`
}

// StorageConfig selects and parameterizes the history backend.
type StorageConfig struct {
	// Driver is sqlite, memory, redis, or mysql. Defaults to sqlite.
	Driver string `yaml:"driver"`

	// Path is the sqlite database file. Defaults to pingmatrix.db.
	Path string `yaml:"path"`

	// DSN is the redis address/URL or the mysql DSN.
	// Supports environment variable substitution.
	DSN string `yaml:"dsn"`

	RetentionDays int    `yaml:"retention_days"`
	MaxEntries    int    `yaml:"max_entries"`
	DBName        string `yaml:"db_name"`
	StoreName     string `yaml:"store_name"`
	SchemaVersion int    `yaml:"schema_version"`
}

// Persistence returns the storage namespace and retention bounds.
func (s StorageConfig) Persistence() storage.Config {
	return storage.Config{
		RetentionDays: s.RetentionDays,
		MaxEntries:    s.MaxEntries,
		DBName:        s.DBName,
		StoreName:     s.StoreName,
		SchemaVersion: s.SchemaVersion,
	}.WithDefaults()
}

// LogConfig configures logging for the binary.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Logging converts c to the logging package configuration.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format, File: c.File}
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Synced reports whether timers are synced, applying the default.
func (c *Config) Synced() bool {
	return c.SyncTimers == nil || *c.SyncTimers
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in URL, URLTemplate, and storage DSN
// values. Defaults are applied for Port (8080), Interval (800ms), and the
// storage driver (sqlite at pingmatrix.db).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Interval == 0 {
		cfg.Interval = Duration(defaultInterval)
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaultStoreDriver
	}
	if cfg.Storage.Driver == DriverSQLite && cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultSQLitePath
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Interval.Duration() < minInterval {
		return fmt.Errorf("interval must be at least %s, got %s", minInterval, c.Interval.Duration())
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", c.Timeout.Duration())
	}

	for i := range c.Targets {
		tc := &c.Targets[i]

		if strings.TrimSpace(tc.Name) == "" {
			return fmt.Errorf("targets[%d]: name is required", i)
		}

		if tc.URL == "" {
			return fmt.Errorf("targets[%d] (%s): url is required", i, tc.Name)
		}
		expanded, err := expandEnvVars(tc.URL)
		if err != nil {
			return fmt.Errorf("targets[%d] (%s): url: %w", i, tc.Name, err)
		}
		tc.URL = expanded

		if err := validateURL(tc.URL); err != nil {
			return fmt.Errorf("targets[%d] (%s): %w", i, tc.Name, err)
		}

		if tc.Color != "" && !colorPattern.MatchString(tc.Color) {
			return fmt.Errorf("targets[%d] (%s): color must be a hex color like #22c55e, got %q", i, tc.Name, tc.Color)
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}

		if g.URLTemplate == "" {
			return fmt.Errorf("grids[%d] (%s): url_template is required", i, g.Name)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("grids[%d] (%s): url_template: %w", i, g.Name, err)
		}
		g.URLTemplate = expanded

		// fail fast before SDK tries to use invalid template
		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("grids[%d] (%s): invalid url_template: %w", i, g.Name, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("grids[%d] (%s): at least one dimension is required", i, g.Name)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("grids[%d] (%s): dimension %q has no values", i, g.Name, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("grids[%d] (%s): dimension %q has duplicate value %q", i, g.Name, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}

		if g.Color != "" && !colorPattern.MatchString(g.Color) {
			return fmt.Errorf("grids[%d] (%s): color must be a hex color like #22c55e, got %q", i, g.Name, g.Color)
		}
	}

	if err := c.Storage.expandAndValidate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("log: format must be json or text, got %q", c.Log.Format)
	}

	return nil
}

func (s *StorageConfig) expandAndValidate() error {
	switch s.Driver {
	case DriverSQLite:
		if s.Path == "" {
			return errors.New("path is required for the sqlite driver")
		}
	case DriverMemory:
	case DriverRedis, DriverMySQL:
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for the %s driver", s.Driver)
		}
		expanded, err := expandEnvVars(s.DSN)
		if err != nil {
			return fmt.Errorf("dsn: %w", err)
		}
		s.DSN = expanded
	default:
		return fmt.Errorf("unknown driver %q (expected sqlite, memory, redis, or mysql)", s.Driver)
	}

	if s.RetentionDays < 0 {
		return fmt.Errorf("retention_days cannot be negative, got %d", s.RetentionDays)
	}
	if s.MaxEntries < 0 {
		return fmt.Errorf("max_entries cannot be negative, got %d", s.MaxEntries)
	}
	return s.Persistence().Validate()
}

func validateURL(raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}
