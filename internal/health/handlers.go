package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync/atomic"
	"time"
)

// Probe checks a single dependency.
type Probe func(ctx context.Context) error

// Readiness tracks whether the process is willing to accept traffic.
// The zero value reports ready.
type Readiness struct {
	draining atomic.Bool
}

// SetReady flips the readiness state; false is set once shutdown begins.
func (r *Readiness) SetReady(ready bool) {
	if r == nil {
		return
	}
	r.draining.Store(!ready)
}

// Ready reports the current readiness state.
func (r *Readiness) Ready() bool {
	return r == nil || !r.draining.Load()
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes    map[string]Probe
	Timeout   time.Duration
	Readiness *Readiness
}

// Status is the plain liveness document: {"status":"ok"}.
func (h Handler) Status(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.Readiness.Ready() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	names := make([]string, 0, len(h.Probes))
	for name := range h.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	status := map[string]string{"app": "ok"}
	healthy := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
		err := h.Probes[name](ctx)
		cancel()
		if err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.Timeout
}
