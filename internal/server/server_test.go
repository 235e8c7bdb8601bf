package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/pingmatrix/internal/model"
	"github.com/jpalmerr/pingmatrix/internal/transfer"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockMonitor implements Monitor for testing.
type mockMonitor struct {
	mu       sync.Mutex
	running  bool
	timers   model.Timers
	entries  []model.LogEntry
	cleared  int
	calls    []string
	startCtx context.Context

	importErr   error
	importCount int
	imported    []byte

	subMu       sync.Mutex
	subscribers map[chan model.LogEntry]struct{}
}

func newMockMonitor() *mockMonitor {
	return &mockMonitor{
		timers:      model.Timers{Interval: 800 * time.Millisecond, Timeout: 800 * time.Millisecond, Sync: true},
		subscribers: make(map[chan model.LogEntry]struct{}),
	}
}

func (m *mockMonitor) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockMonitor) State() model.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.State{
		Targets:      []model.Target{{ID: "github", Name: "github", URL: "https://github.com/favicon.ico", Color: "#8b5cf6"}},
		Log:          append([]model.LogEntry(nil), m.entries...),
		Interval:     m.timers.Interval.Milliseconds(),
		Timeout:      m.timers.Timeout.Milliseconds(),
		SyncTimers:   m.timers.Sync,
		IsRunning:    m.running,
		LatencyStats: map[string]int64{"github": 42},
	}
}

func (m *mockMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	m.startCtx = ctx
	m.record("start")
	return nil
}

func (m *mockMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.record("stop")
}

func (m *mockMonitor) ClearLog(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.cleared++
	return nil
}

func (m *mockMonitor) SetInterval(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d <= 0 {
		return errors.New("interval must be positive")
	}
	m.timers.Interval = d
	if m.timers.Sync {
		m.timers.Timeout = d
	}
	m.record(fmt.Sprintf("interval=%d", d.Milliseconds()))
	return nil
}

func (m *mockMonitor) SetTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timers.Sync {
		return errors.New("timeout follows interval while timers are synced")
	}
	m.timers.Timeout = d
	m.record(fmt.Sprintf("timeout=%d", d.Milliseconds()))
	return nil
}

func (m *mockMonitor) SetSyncTimers(sync bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers.Sync = sync
	if sync {
		m.timers.Timeout = m.timers.Interval
	}
	m.record(fmt.Sprintf("sync=%v", sync))
}

func (m *mockMonitor) ExportLogs() ([]byte, error) {
	return []byte(`{"type":"http-ping-logs"}`), nil
}

func (m *mockMonitor) ImportLogs(_ context.Context, data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.importErr != nil {
		return 0, m.importErr
	}
	m.imported = data
	return m.importCount, nil
}

func (m *mockMonitor) ExportConfig() ([]byte, error) {
	return []byte(`{"type":"http-ping-config"}`), nil
}

func (m *mockMonitor) ImportConfig(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.importErr != nil {
		return m.importErr
	}
	m.imported = data
	return nil
}

func (m *mockMonitor) Subscribe() <-chan model.LogEntry {
	ch := make(chan model.LogEntry, 100)
	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()
	return ch
}

func (m *mockMonitor) Unsubscribe(ch <-chan model.LogEntry) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *mockMonitor) publish(entry model.LogEntry) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

func (m *mockMonitor) subscriberCount() int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return len(m.subscribers)
}

func entry(id string) model.LogEntry {
	return model.LogEntry{
		ID:        id,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		Results: []model.TargetLogEntry{
			{TargetID: "github", TargetName: "github", URL: "https://github.com/favicon.ico", Status: model.StatusSuccess, Duration: 42},
		},
	}
}

// serve runs a request through the full router.
func serve(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// waitSubscribed blocks until the mock has n subscribers.
func waitSubscribed(t *testing.T, mm *mockMonitor, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mm.subscriberCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscribers = %d, want %d", mm.subscriberCount(), n)
}

// --- REST API ---

func TestHealthz(t *testing.T) {
	srv := NewServer(newMockMonitor(), 0, testLogger())

	rec := serve(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("GET /healthz = %d %q, want 200 ok", rec.Code, rec.Body.String())
	}
}

func TestHandleState_Shape(t *testing.T) {
	mm := newMockMonitor()
	mm.entries = []model.LogEntry{entry("e1")}
	srv := NewServer(mm, 0, testLogger())

	rec := serve(t, srv, http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"targets", "log", "interval", "timeout", "syncTimers", "isRunning", "latencyStats"} {
		if _, ok := got[key]; !ok {
			t.Errorf("state is missing %q: %s", key, rec.Body.String())
		}
	}
	if got["interval"] != float64(800) {
		t.Errorf("interval = %v, want 800", got["interval"])
	}

	log := got["log"].([]any)
	first := log[0].(map[string]any)["results"].([]any)[0].(map[string]any)
	if first["targetId"] != "github" || first["duration"] != float64(42) {
		t.Errorf("result = %v", first)
	}
	if _, ok := first["error"]; ok {
		t.Error("empty error should be omitted")
	}
}

func TestHandleStartStop(t *testing.T) {
	mm := newMockMonitor()
	srv := NewServer(mm, 0, testLogger())

	rec := serve(t, srv, http.MethodPost, "/api/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/start = %d", rec.Code)
	}
	if !mm.State().IsRunning {
		t.Error("monitor not started")
	}
	// polling must not be tied to the request
	if mm.startCtx == nil || mm.startCtx.Err() != nil {
		t.Error("Start received a request-scoped context")
	}

	rec = serve(t, srv, http.MethodPost, "/api/stop", "")
	if rec.Code != http.StatusOK || mm.State().IsRunning {
		t.Errorf("POST /api/stop = %d, running = %v", rec.Code, mm.State().IsRunning)
	}
}

func TestHandleClearLog(t *testing.T) {
	mm := newMockMonitor()
	mm.entries = []model.LogEntry{entry("e1")}
	srv := NewServer(mm, 0, testLogger())

	rec := serve(t, srv, http.MethodDelete, "/api/log", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE /api/log = %d, want 204", rec.Code)
	}
	if mm.cleared != 1 || len(mm.State().Log) != 0 {
		t.Errorf("cleared = %d, log = %d", mm.cleared, len(mm.State().Log))
	}
}

func TestHandleTimers(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantCalls []string
	}{
		{
			name:      "interval follows into timeout while synced",
			body:      `{"interval":2000}`,
			wantCode:  http.StatusOK,
			wantCalls: []string{"interval=2000"},
		},
		{
			name:      "unsync applied before timeout",
			body:      `{"timeout":500,"syncTimers":false}`,
			wantCode:  http.StatusOK,
			wantCalls: []string{"sync=false", "timeout=500"},
		},
		{
			name:     "timeout while synced",
			body:     `{"timeout":500}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "non-positive interval",
			body:     `{"interval":0}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "interval overflows duration",
			body:     `{"interval":10000000000000}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "timeout over a day",
			body:     `{"timeout":86400001,"syncTimers":false}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "sync with bad interval changes nothing",
			body:     `{"syncTimers":false,"interval":-1}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed body",
			body:     `{"interval":`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mm := newMockMonitor()
			srv := NewServer(mm, 0, testLogger())

			rec := serve(t, srv, http.MethodPut, "/api/timers", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("PUT /api/timers = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCalls != nil && strings.Join(mm.calls, ",") != strings.Join(tt.wantCalls, ",") {
				t.Errorf("calls = %v, want %v", mm.calls, tt.wantCalls)
			}
			if rec.Code >= 400 {
				if len(mm.calls) != 0 {
					t.Errorf("rejected request applied %v", mm.calls)
				}
				var body map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
					t.Errorf("error body = %q", rec.Body.String())
				}
			}
		})
	}
}

func TestHandleTimers_ResponseReflectsSync(t *testing.T) {
	srv := NewServer(newMockMonitor(), 0, testLogger())

	rec := serve(t, srv, http.MethodPut, "/api/timers", `{"interval":1500}`)

	var got struct {
		Interval   int64 `json:"interval"`
		Timeout    int64 `json:"timeout"`
		SyncTimers bool  `json:"syncTimers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Interval != 1500 || got.Timeout != 1500 || !got.SyncTimers {
		t.Errorf("timers = %+v, want 1500/1500 synced", got)
	}
}

func TestHandleExport(t *testing.T) {
	srv := NewServer(newMockMonitor(), 0, testLogger())

	for path, prefix := range map[string]string{
		"/api/export/logs":   "http-ping-logs-",
		"/api/export/config": "http-ping-config-",
	} {
		rec := serve(t, srv, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
			continue
		}
		cd := rec.Header().Get("Content-Disposition")
		if !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, prefix) {
			t.Errorf("GET %s Content-Disposition = %q", path, cd)
		}
		if !strings.Contains(rec.Body.String(), strings.TrimSuffix(prefix, "-")) {
			t.Errorf("GET %s body = %q", path, rec.Body.String())
		}
	}
}

func TestHandleImportLogs(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		mm := newMockMonitor()
		mm.importCount = 3
		srv := NewServer(mm, 0, testLogger())

		rec := serve(t, srv, http.MethodPost, "/api/import/logs", `{"type":"http-ping-logs"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		if strings.TrimSpace(rec.Body.String()) != `{"imported":3}` {
			t.Errorf("body = %q", rec.Body.String())
		}
		if string(mm.imported) != `{"type":"http-ping-logs"}` {
			t.Errorf("monitor received %q", mm.imported)
		}
	})

	t.Run("rejected file", func(t *testing.T) {
		mm := newMockMonitor()
		mm.importErr = &transfer.ValidationError{Field: "type", Reason: "expected \"http-ping-logs\""}
		srv := NewServer(mm, 0, testLogger())

		rec := serve(t, srv, http.MethodPost, "/api/import/logs", `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		mm := newMockMonitor()
		mm.importErr = errors.New("disk full")
		srv := NewServer(mm, 0, testLogger())

		rec := serve(t, srv, http.MethodPost, "/api/import/logs", `{}`)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestHandleImportConfig(t *testing.T) {
	mm := newMockMonitor()
	srv := NewServer(mm, 0, testLogger())

	rec := serve(t, srv, http.MethodPost, "/api/import/config", `{"type":"http-ping-config"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	mm.importErr = fmt.Errorf("wrapped: %w", transfer.ErrValidation)
	rec = serve(t, srv, http.MethodPost, "/api/import/config", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	srv := NewServer(newMockMonitor(), 0, testLogger())

	rec := serve(t, srv, http.MethodPost, "/api/state", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/state = %d, want 405", rec.Code)
	}
}

func TestRouter_CORS(t *testing.T) {
	srv := NewServer(newMockMonitor(), 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	preflight := httptest.NewRequest(http.MethodOptions, "/api/timers", nil)
	preflight.Header.Set("Origin", "http://localhost:5173")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, preflight)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("preflight Access-Control-Allow-Origin = %q, want *", got)
	}
}

// --- SSE ---

func TestHandleSSE_StreamsEntries(t *testing.T) {
	mm := newMockMonitor()
	srv := NewServer(mm, 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	waitSubscribed(t, mm, 1)
	mm.publish(entry("live-entry"))

	// give time for the entry to be written
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 1 || events[0].ID != "live-entry" {
		t.Errorf("events = %+v, want live-entry", events)
	}
	if !strings.Contains(rec.Body.String(), "event: entry\n") {
		t.Errorf("body = %q, want named events", rec.Body.String())
	}
}

func TestHandleSSE_ClientDisconnect(t *testing.T) {
	mm := newMockMonitor()
	srv := NewServer(mm, 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	waitSubscribed(t, mm, 1)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after client disconnect")
	}
	if mm.subscriberCount() != 0 {
		t.Error("handler did not unsubscribe")
	}
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	// allow existing goroutines to settle
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	mm := newMockMonitor()
	srv := NewServer(mm, 0, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
			req = req.WithContext(ctx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 { // small tolerance for runtime variance
		t.Errorf("potential goroutine leak: before=%d, after=%d", before, after)
	}
}

func TestHandleSSE_SSENotSupported(t *testing.T) {
	srv := NewServer(newMockMonitor(), 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	w := &nonFlushWriter{header: make(http.Header)}

	srv.handleSSE(w, req)

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.statusCode)
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
	body       []byte
}

func (n *nonFlushWriter) Header() http.Header {
	return n.header
}

func (n *nonFlushWriter) Write(b []byte) (int, error) {
	n.body = append(n.body, b...)
	return len(b), nil
}

func (n *nonFlushWriter) WriteHeader(statusCode int) {
	n.statusCode = statusCode
}

func TestHandleSSE_Headers(t *testing.T) {
	srv := NewServer(newMockMonitor(), 0, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	expectedHeaders := map[string]string{
		"Content-Type":  "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}
	for key, expected := range expectedHeaders {
		if got := rec.Header().Get(key); got != expected {
			t.Errorf("header %s = %q, want %q", key, got, expected)
		}
	}
	if !strings.HasPrefix(rec.Body.String(), ": connected\n\n") {
		t.Errorf("body = %q, want connected comment first", rec.Body.String())
	}
}

// --- Integration tests with real HTTP connections ---
//
// httptest.Server connections support write deadlines; recorders do not.

func TestHandleSSE_ServerShutdownIntegration(t *testing.T) {
	mm := newMockMonitor()
	srv := NewServer(mm, 0, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// derive request context from server context (simulates BaseContext)
		r = r.WithContext(serverCtx)
		srv.Handler().ServeHTTP(w, r)
	})

	ts := httptest.NewServer(handler)
	defer ts.Close()

	connDone := make(chan error, 1)
	go func() {
		resp, err := ts.Client().Get(ts.URL + "/api/sse")
		if err != nil {
			connDone <- err
			return
		}
		defer func() { _ = resp.Body.Close() }()

		buf := make([]byte, 1024)
		for {
			if _, err := resp.Body.Read(buf); err != nil {
				connDone <- nil // expected - connection closed
				return
			}
		}
	}()

	waitSubscribed(t, mm, 1)
	serverCancel()

	select {
	case <-connDone:
	case <-time.After(3 * time.Second):
		t.Fatal("SSE connection did not close after server shutdown")
	}
}

func TestHandleSSE_MultipleClientsIntegration(t *testing.T) {
	mm := newMockMonitor()
	srv := NewServer(mm, 0, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.Handler().ServeHTTP(w, r.WithContext(serverCtx))
	})
	ts := httptest.NewServer(handler)
	defer ts.Close()

	const numClients = 5
	var wg sync.WaitGroup
	var received atomic.Int32

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := ts.Client().Get(ts.URL + "/api/sse")
			if err != nil {
				return
			}
			defer func() { _ = resp.Body.Close() }()

			var body strings.Builder
			seen := false
			buf := make([]byte, 1024)
			for {
				n, err := resp.Body.Read(buf)
				body.Write(buf[:n])
				if !seen && strings.Contains(body.String(), "fan-out") {
					seen = true
					received.Add(1)
				}
				if err != nil {
					return
				}
			}
		}()
	}

	waitSubscribed(t, mm, numClients)
	mm.publish(entry("fan-out"))
	time.Sleep(100 * time.Millisecond)
	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("not all SSE clients disconnected after shutdown")
	}
	if received.Load() < numClients {
		t.Errorf("%d of %d clients saw the entry", received.Load(), numClients)
	}
}

// parseSSEEvents decodes the data lines of an SSE body.
func parseSSEEvents(body string) []model.LogEntry {
	var entries []model.LogEntry
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e model.LogEntry
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

// --- Server Start ---

func TestStart_AvailablePort_ReturnsNil(t *testing.T) {
	// port 0 = OS assigns available port; the public API validates port > 0
	srv := NewServer(newMockMonitor(), 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Errorf("Start() on available port returned error: %v", err)
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port
	srv := NewServer(newMockMonitor(), port, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

func TestStart_InvalidPort_ReturnsError(t *testing.T) {
	srv := NewServer(newMockMonitor(), -1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() with invalid port should return error")
	}
}

func TestStart_ServesAPI(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	mm := newMockMonitor()
	srv := NewServer(mm, port, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/api/start", port), "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/start: %v", err)
	}
	resp.Body.Close()

	if !mm.State().IsRunning {
		t.Error("monitor not started")
	}
	// the start context is the server context, not the request's
	if mm.startCtx != ctx {
		t.Error("Start received a context other than the server's")
	}
}
