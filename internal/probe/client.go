package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/pingmatrix/internal/model"
)

const (
	// maxDrainSize bounds how much of a response body is read before closing,
	// so keep-alive connections can be reused without buffering large assets.
	maxDrainSize = 1 << 20 // 1MB

	// cacheBustParam is the query parameter carrying the uniqueness token.
	cacheBustParam = "_t"

	// DefaultTimeout replaces a non-positive probe timeout.
	DefaultTimeout = 10 * time.Second

	// TimeoutMessage is the error text recorded for timed-out probes.
	TimeoutMessage = "Timeout"
)

// connection pooling limits to prevent resource exhaustion when probing many targets
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Client is an HTTP client wrapper tuned for latency probes.
//
// Client uses per-request timeouts via context rather than a global timeout,
// so the timeout can change between rounds without rebuilding the client.
type Client struct {
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new probe [Client] with a pooled transport.
//
// Connection pooling configuration:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		now: time.Now,
	}
}

// NewClientWithHTTP wraps an existing http.Client. A nil hc falls back to
// [NewClient]'s transport.
func NewClientWithHTTP(hc *http.Client) *Client {
	if hc == nil {
		return NewClient()
	}
	return &Client{httpClient: hc, now: time.Now}
}

// Probe performs one cache-bypassing GET against rawURL and classifies it.
//
// The outcome is:
//   - success when any HTTP response arrives, regardless of status code
//   - timeout when no response arrives within timeout; Duration is exactly timeout
//   - error for any other failure, including cancellation of ctx itself
//
// Probe always returns an Outcome; it never panics on bad input.
func (c *Client) Probe(ctx context.Context, rawURL string, timeout time.Duration) model.Outcome {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	outcome := model.Outcome{
		Timestamp: c.now(),
		URL:       rawURL,
	}

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, UniqueURL(rawURL, c.now()), nil)
	if err != nil {
		outcome.Status = model.StatusError
		outcome.Duration = roundMillis(time.Since(start))
		outcome.Error = fmt.Sprintf("invalid request: %v", err)
		return outcome
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpClient.Do(req)
	elapsed := roundMillis(time.Since(start))
	if err != nil {
		// only our own deadline counts as a timeout; a cancelled parent is an error
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			outcome.Status = model.StatusTimeout
			outcome.Duration = timeout
			outcome.Error = TimeoutMessage
			return outcome
		}
		outcome.Status = model.StatusError
		outcome.Duration = elapsed
		outcome.Error = errorMessage(err)
		return outcome
	}

	// drain a bounded amount so the connection returns to the pool
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))
	_ = resp.Body.Close()

	outcome.Status = model.StatusSuccess
	outcome.Duration = elapsed
	return outcome
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil receiver. After Close, the client
// remains usable but new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// UniqueURL appends a cache-busting token derived from now to rawURL,
// keeping any fragment at the end.
func UniqueURL(rawURL string, now time.Time) string {
	base, fragment, hasFragment := strings.Cut(rawURL, "#")

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	unique := base + sep + cacheBustParam + "=" + strconv.FormatInt(now.UnixMilli(), 10)

	if hasFragment {
		unique += "#" + fragment
	}
	return unique
}

func roundMillis(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

// errorMessage unwraps the url.Error layer the http client adds, which
// repeats the method and cache-busted URL.
func errorMessage(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}
