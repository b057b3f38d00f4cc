// Package server exposes the scan gauges and the last gate decision over HTTP while the
// pipeline runs in continuous mode.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/imagegate/internal/pipeline"
)

const shutdownTimeout = 5 * time.Second

// Tracker remembers the most recent pipeline outcome. Record matches pipeline.Controller.OnOutcome.
type Tracker struct {
	mu   sync.RWMutex
	last *pipeline.Outcome
}

func (t *Tracker) Record(o pipeline.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = &o
}

// Last returns the most recent outcome, if any pass has completed.
func (t *Tracker) Last() (pipeline.Outcome, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return pipeline.Outcome{}, false
	}
	return *t.last, true
}

// HealthStatus is the /healthz response body.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"target,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Pass      int       `json:"pass,omitempty"`
	Critical  int       `json:"critical"`
	High      int       `json:"high"`
	Error     string    `json:"error,omitempty"`
}

// NewRouter serves gatherer on /metrics and the tracker state on /healthz.
func NewRouter(gatherer prometheus.Gatherer, tracker *Tracker) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)

	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health, code := healthOf(tracker)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(health)
	})

	return mux
}

// A failing gate decision is still a healthy process; only a scan error is not.
func healthOf(tracker *Tracker) (HealthStatus, int) {
	out, ok := tracker.Last()
	if !ok {
		return HealthStatus{Status: "starting", Timestamp: time.Now().UTC()}, http.StatusServiceUnavailable
	}

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: out.FinishedAt.UTC(),
		Target:    out.Target,
		Decision:  string(out.Decision),
		Pass:      out.Pass,
		Critical:  out.Summary.Critical(),
		High:      out.Summary.High(),
	}
	if out.ScanErr != nil {
		health.Status = "unhealthy"
		health.Error = out.ScanErr.Error()
		return health, http.StatusServiceUnavailable
	}
	return health, http.StatusOK
}

// Serve blocks until ctx is cancelled, then drains in-flight requests.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
