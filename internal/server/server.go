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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jpalmerr/pingmatrix/internal/model"
	"github.com/jpalmerr/pingmatrix/internal/transfer"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// maxImportBytes bounds uploaded export files.
	maxImportBytes = 16 << 20
)

// Monitor is the subset of pingmatrix.Monitor the API drives.
type Monitor interface {
	State() model.State
	Start(ctx context.Context) error
	Stop()
	ClearLog(ctx context.Context) error
	SetInterval(d time.Duration) error
	SetTimeout(d time.Duration) error
	SetSyncTimers(sync bool)
	ExportLogs() ([]byte, error)
	ImportLogs(ctx context.Context, data []byte) (int, error)
	ExportConfig() ([]byte, error)
	ImportConfig(ctx context.Context, data []byte) error
	Subscribe() <-chan model.LogEntry
	Unsubscribe(ch <-chan model.LogEntry)
}

// Server handles HTTP requests for the ping matrix API.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	monitor    Monitor
	port       int
	httpServer *http.Server
	logger     *slog.Logger

	// baseCtx outlives requests; polling started over HTTP runs under it.
	baseCtx context.Context
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - m: Monitor the API reads and controls
//   - port: TCP port to listen on
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(m Monitor, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		monitor: m,
		port:    port,
		logger:  logger,
		baseCtx: context.Background(),
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Delete("/log", s.handleClearLog)
		r.Put("/timers", s.handleTimers)
		r.Get("/export/logs", s.handleExportLogs)
		r.Post("/import/logs", s.handleImportLogs)
		r.Get("/export/config", s.handleExportConfig)
		r.Post("/import/config", s.handleImportConfig)
		r.Get("/sse", s.handleSSE)
	})

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE streams end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.State())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.Start(s.baseCtx); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"isRunning": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.monitor.Stop()
	s.writeJSON(w, http.StatusOK, map[string]bool{"isRunning": false})
}

func (s *Server) handleClearLog(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.ClearLog(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// timersPayload is a partial timer update; intervals are in milliseconds.
type timersPayload struct {
	Interval   *int64 `json:"interval"`
	Timeout    *int64 `json:"timeout"`
	SyncTimers *bool  `json:"syncTimers"`
}

// handleTimers validates every field before applying any of them. Fields
// are then applied as syncTimers, interval, timeout, so a request that
// unsyncs and sets a timeout in one go succeeds.
func (s *Server) handleTimers(w http.ResponseWriter, r *http.Request) {
	var p timersPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("bad payload: %w", err))
		return
	}
	if err := s.validateTimers(p); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if p.SyncTimers != nil {
		s.monitor.SetSyncTimers(*p.SyncTimers)
	}
	if p.Interval != nil {
		if err := s.monitor.SetInterval(msDuration(*p.Interval)); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if p.Timeout != nil {
		if err := s.monitor.SetTimeout(msDuration(*p.Timeout)); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	st := s.monitor.State()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"interval":   st.Interval,
		"timeout":    st.Timeout,
		"syncTimers": st.SyncTimers,
	})
}

func (s *Server) validateTimers(p timersPayload) error {
	if p.Interval != nil {
		if err := checkTimerMs("interval", *p.Interval); err != nil {
			return err
		}
	}
	if p.Timeout != nil {
		if err := checkTimerMs("timeout", *p.Timeout); err != nil {
			return err
		}
		synced := s.monitor.State().SyncTimers
		if p.SyncTimers != nil {
			synced = *p.SyncTimers
		}
		if synced {
			return errors.New("timeout follows interval while timers are synced")
		}
	}
	return nil
}

func checkTimerMs(field string, ms int64) error {
	if ms <= 0 || ms > transfer.MaxTimerMs {
		return fmt.Errorf("%s must be between 1 and %d ms, got %d", field, transfer.MaxTimerMs, ms)
	}
	return nil
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (s *Server) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	data, err := s.monitor.ExportLogs()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeAttachment(w, transfer.LogFileType, data)
}

func (s *Server) handleExportConfig(w http.ResponseWriter, r *http.Request) {
	data, err := s.monitor.ExportConfig()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeAttachment(w, transfer.ConfigFileType, data)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	n, err := s.monitor.ImportLogs(r.Context(), data)
	if err != nil {
		s.writeError(w, importStatus(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (s *Server) handleImportConfig(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	if err := s.monitor.ImportConfig(r.Context(), data); err != nil {
		s.writeError(w, importStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importStatus maps rejected files to 400 and everything else to 500.
func importStatus(err error) int {
	if errors.Is(err, transfer.ErrValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleSSE streams new log entries via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// may be unsupported for some ResponseWriter impls
	deadlinesSupported := true

	write := func(format string, args ...any) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, format, args...); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.monitor.Subscribe()
	defer s.monitor.Unsubscribe(ch)

	if err := write(": connected\n\n"); err != nil {
		return
	}

	for {
		select {
		case entry, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			if err := write("event: entry\ndata: %s\n\n", data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on both client disconnect and server shutdown
			return
		}
	}
}

func (s *Server) writeAttachment(w http.ResponseWriter, prefix string, data []byte) {
	name := fmt.Sprintf("%s-%s.json", prefix, time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := w.Write(data); err != nil {
		s.logger.Error("failed to write export", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
