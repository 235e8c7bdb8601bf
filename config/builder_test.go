package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/pingmatrix"
)

func mustParse(t *testing.T, yaml string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cfg
}

func TestBuildTargets_SingleTarget(t *testing.T) {
	cfg := mustParse(t, `
targets:
  - name: GitHub
    url: https://github.com/favicon.ico
`)

	targets, err := BuildTargets(cfg)
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("len(targets) = %d, want 1", len(targets))
	}

	tg := targets[0]
	if tg.Name() != "GitHub" || tg.ID() != "github" || tg.URL() != "https://github.com/favicon.ico" {
		t.Errorf("target = %s/%s/%s", tg.ID(), tg.Name(), tg.URL())
	}
}

func TestBuildTargets_IDAndColor(t *testing.T) {
	cfg := mustParse(t, `
targets:
  - name: GitHub
    url: https://github.com/favicon.ico
    id: gh
    color: "#8b5cf6"
`)

	targets, err := BuildTargets(cfg)
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}
	if targets[0].ID() != "gh" || targets[0].Color() != "#8b5cf6" {
		t.Errorf("target = %s/%s", targets[0].ID(), targets[0].Color())
	}
}

func TestBuildTargets_Grid(t *testing.T) {
	cfg := mustParse(t, `
grids:
  - name: CDN
    url_template: "https://{{.region}}.example.com/favicon.ico"
    color: "#22c55e"
    dimensions:
      region: [eu, us]
`)

	targets, err := BuildTargets(cfg)
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("len(targets) = %d, want 2", len(targets))
	}

	want := []struct{ name, url string }{
		{"CDN (eu)", "https://eu.example.com/favicon.ico"},
		{"CDN (us)", "https://us.example.com/favicon.ico"},
	}
	for i, w := range want {
		if targets[i].Name() != w.name || targets[i].URL() != w.url {
			t.Errorf("targets[%d] = %s %s, want %s %s", i, targets[i].Name(), targets[i].URL(), w.name, w.url)
		}
		if targets[i].Color() != "#22c55e" {
			t.Errorf("targets[%d].Color() = %q", i, targets[i].Color())
		}
	}
}

func TestBuildTargets_MixedKeepsFileOrder(t *testing.T) {
	cfg := mustParse(t, `
targets:
  - name: Direct
    url: https://direct.example.com
grids:
  - name: Grid
    url_template: "https://{{.env}}.example.com"
    dimensions:
      env: [prod, staging]
`)

	targets, err := BuildTargets(cfg)
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}
	if len(targets) != 3 || targets[0].Name() != "Direct" {
		t.Errorf("targets = %d, first %q", len(targets), targets[0].Name())
	}
}

func TestBuildTargets_Empty(t *testing.T) {
	targets, err := BuildTargets(mustParse(t, ""))
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}
	if len(targets) != 0 {
		t.Errorf("len(targets) = %d, want 0", len(targets))
	}
}

func TestBuildTargets_TemplateExecutionError(t *testing.T) {
	// the template parses but references a key no dimension provides
	cfg := mustParse(t, `
grids:
  - name: Grid
    url_template: "https://{{.zone}}.example.com"
    dimensions:
      env: [prod]
`)

	_, err := BuildTargets(cfg)
	if err == nil {
		t.Fatal("BuildTargets() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "grids[0] (Grid)") {
		t.Errorf("error = %q, want it to name the grid", err)
	}
}

func TestBuildTargets_GridRenderedURLInvalid(t *testing.T) {
	cfg := mustParse(t, `
grids:
  - name: Grid
    url_template: "{{.env}}.example.com"
    dimensions:
      env: [prod]
`)

	if _, err := BuildTargets(cfg); err == nil {
		t.Fatal("BuildTargets() expected error for a scheme-less URL")
	}
}

func TestBuildOptions_ConfiguresMonitor(t *testing.T) {
	cfg := mustParse(t, `
port: 9191
interval: 2s
timeout: 500ms
sync_timers: false
targets:
  - name: Origin
    url: https://example.com/favicon.ico
storage:
  driver: memory
`)

	opts, err := BuildOptions(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	m, err := pingmatrix.New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	if m.Port() != 9191 {
		t.Errorf("Port() = %d, want 9191", m.Port())
	}
	timers := m.Timers()
	if timers.Interval != 2*time.Second || timers.Timeout != 500*time.Millisecond || timers.Sync {
		t.Errorf("Timers() = %+v", timers)
	}
	if got := m.Targets(); len(got) != 1 || got[0].ID() != "origin" {
		t.Errorf("Targets() = %v", got)
	}
}

func TestBuildOptions_DefaultTargets(t *testing.T) {
	opts, err := BuildOptions(mustParse(t, ""), nil)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	m, err := pingmatrix.New(append(opts, pingmatrix.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	if got := len(m.Targets()); got != 5 {
		t.Errorf("len(Targets()) = %d, want the 5 defaults", got)
	}
	if timers := m.Timers(); timers.Timeout != 800*time.Millisecond || !timers.Sync {
		t.Errorf("Timers() = %+v, want synced 800ms", timers)
	}
}

func TestOpenStore_Memory(t *testing.T) {
	st, err := OpenStore(context.Background(), mustParse(t, "storage:\n  driver: memory\n"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer st.Close()

	entries, err := st.Load(context.Background())
	if err != nil || len(entries) != 0 {
		t.Errorf("Load() = %d entries, %v", len(entries), err)
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pings.db")
	cfg := mustParse(t, "storage:\n  driver: sqlite\n  path: "+path+"\n")

	st, err := OpenStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer st.Close()

	entry := pingmatrix.LogEntry{
		ID:        "e1",
		Timestamp: time.Now().UnixMilli(),
		Results: []pingmatrix.TargetLogEntry{
			{TargetID: "a", TargetName: "a", URL: "https://a.example.com", Status: pingmatrix.StatusSuccess, Duration: 12},
		},
	}
	if err := st.ReplaceAll(context.Background(), []pingmatrix.LogEntry{entry}); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("Load() = %+v", got)
	}
}

func TestOpenStore_RedisUnreachable(t *testing.T) {
	cfg := mustParse(t, "storage:\n  driver: redis\n  dsn: 127.0.0.1:1\n")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := OpenStore(ctx, cfg)
	if !errors.Is(err, pingmatrix.ErrStorage) {
		t.Errorf("OpenStore() error = %v, want ErrStorage", err)
	}
}
