// Package mock serves targets with controllable behaviour for demos and
// manual testing of the ping matrix.
//
// Routes:
//
//	GET /fast          responds immediately
//	GET /slow?ms=N     responds after N milliseconds (default 600)
//	GET /status/{code} responds immediately with the given status code
//	GET /flaky         fast, slow, or hanging at random
//	GET /down          closes the connection without a response
//	GET /favicon.ico   responds immediately
package mock

import (
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const defaultSlow = 600 * time.Millisecond

// NewHandler returns the mock target router.
func NewHandler(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NoCache)

	r.Get("/fast", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		delay := defaultSlow
		if ms, err := strconv.Atoi(r.URL.Query().Get("ms")); err == nil && ms >= 0 {
			delay = time.Duration(ms) * time.Millisecond
		}
		if !sleep(r, delay) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(chi.URLParam(r, "code"))
		if err != nil || code < 200 || code > 599 {
			http.Error(w, "invalid status code", http.StatusBadRequest)
			return
		}
		w.WriteHeader(code)
	})

	r.Get("/flaky", func(w http.ResponseWriter, r *http.Request) {
		switch n := rand.Intn(10); {
		case n < 6:
			w.WriteHeader(http.StatusNoContent)
		case n < 9:
			if sleep(r, time.Duration(200+rand.Intn(800))*time.Millisecond) {
				w.WriteHeader(http.StatusNoContent)
			}
		default:
			// hang until the prober gives up
			<-r.Context().Done()
		}
	})

	r.Get("/down", func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			logger.Warn("connection hijacking not supported")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			logger.Warn("hijack failed", "error", err)
			return
		}
		conn.Close()
	})

	return r
}

// sleep waits for d or until the client goes away, reporting whether the
// full delay elapsed.
func sleep(r *http.Request, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.Context().Done():
		return false
	}
}
