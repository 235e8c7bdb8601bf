package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/pingmatrix/internal/model"
)

// hangingServer returns a server whose handler blocks until the request is
// abandoned or the test ends.
func hangingServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})
	return server
}

func TestClient_Probe_SuccessRegardlessOfStatusCode(t *testing.T) {
	codes := []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError}

	for _, code := range codes {
		t.Run(http.StatusText(code), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))
			defer server.Close()

			client := NewClient()
			defer client.Close()

			out := client.Probe(context.Background(), server.URL, time.Second)
			if out.Status != model.StatusSuccess {
				t.Errorf("Status = %q, want %q (error: %s)", out.Status, model.StatusSuccess, out.Error)
			}
			if out.Error != "" {
				t.Errorf("Error = %q, want empty", out.Error)
			}
			if out.URL != server.URL {
				t.Errorf("URL = %q, want %q (without cache-busting token)", out.URL, server.URL)
			}
			if out.Duration < 0 {
				t.Errorf("Duration = %v, want >= 0", out.Duration)
			}
		})
	}
}

func TestClient_Probe_TimeoutReportsExactTimeout(t *testing.T) {
	server := hangingServer(t)

	client := NewClient()
	defer client.Close()

	timeout := 80 * time.Millisecond
	out := client.Probe(context.Background(), server.URL, timeout)

	if out.Status != model.StatusTimeout {
		t.Fatalf("Status = %q, want %q (error: %s)", out.Status, model.StatusTimeout, out.Error)
	}
	if out.Duration != timeout {
		t.Errorf("Duration = %v, want exactly %v", out.Duration, timeout)
	}
	if out.Error != TimeoutMessage {
		t.Errorf("Error = %q, want %q", out.Error, TimeoutMessage)
	}
}

func TestClient_Probe_ConnectionRefusedIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close() // nothing listens on addr anymore

	client := NewClient()
	defer client.Close()

	out := client.Probe(context.Background(), addr, time.Second)
	if out.Status != model.StatusError {
		t.Fatalf("Status = %q, want %q", out.Status, model.StatusError)
	}
	if out.Error == "" {
		t.Error("Error is empty, want a failure message")
	}
	if strings.Contains(out.Error, "_t=") {
		t.Errorf("Error = %q, should not leak the cache-busted URL", out.Error)
	}
}

func TestClient_Probe_InvalidURLIsError(t *testing.T) {
	client := NewClient()
	defer client.Close()

	out := client.Probe(context.Background(), "://missing-scheme", time.Second)
	if out.Status != model.StatusError {
		t.Errorf("Status = %q, want %q", out.Status, model.StatusError)
	}
}

func TestClient_Probe_ParentCancellationIsError(t *testing.T) {
	server := hangingServer(t)

	client := NewClient()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	out := client.Probe(ctx, server.URL, 5*time.Second)
	if out.Status != model.StatusError {
		t.Errorf("Status = %q, want %q for cancelled parent", out.Status, model.StatusError)
	}
}

func TestClient_Probe_SendsCacheBustingRequest(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []string
		headers []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		headers = append(headers, r.Header.Get("Cache-Control"))
		mu.Unlock()
	}))
	defer server.Close()

	client := NewClient()
	defer client.Close()

	client.Probe(context.Background(), server.URL+"/favicon.ico?v=1", time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(queries) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(queries))
	}
	if !strings.HasPrefix(queries[0], "v=1&_t=") {
		t.Errorf("query = %q, want original params followed by _t token", queries[0])
	}
	if headers[0] != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", headers[0])
	}
}

func TestUniqueURL(t *testing.T) {
	now := time.UnixMilli(1764636922421)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no query", "https://a.example/favicon.ico", "https://a.example/favicon.ico?_t=1764636922421"},
		{"existing query", "https://a.example/x?y=1", "https://a.example/x?y=1&_t=1764636922421"},
		{"fragment kept last", "https://a.example/x#top", "https://a.example/x?_t=1764636922421#top"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UniqueURL(tt.in, now); got != tt.want {
				t.Errorf("UniqueURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestClient_ConnectionReuse verifies that draining the body lets the
// transport reuse connections between probes.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient()
	defer client.Close()

	var mu sync.Mutex
	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				mu.Lock()
				reusedCount++
				mu.Unlock()
			}
		},
	}

	const numRequests = 5
	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		if out := client.Probe(ctx, server.URL, 5*time.Second); out.Status != model.StatusSuccess {
			t.Fatalf("probe %d failed: %s", i, out.Error)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if reusedCount < numRequests-2 {
		t.Errorf("expected at least %d reused connections, got %d", numRequests-2, reusedCount)
	}
}

func TestClient_Close_NilClient(t *testing.T) {
	var client *Client
	client.Close()
}
