// Package health implements liveness and readiness endpoints.
//
// Liveness is unconditional: if the process answers, it is alive.
// Readiness aggregates registered checkers so the gateway only receives
// traffic once providers and listeners are wired.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
)

// Checker reports whether one dependency is ready.
type Checker func() error

// Handler serves /healthz and /readyz.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewHandler creates an empty Handler.
func NewHandler() *Handler {
	return &Handler{checkers: make(map[string]Checker)}
}

// Register adds a named readiness checker. Registering the same name again
// replaces the previous checker.
func (h *Handler) Register(name string, c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = c
}

// Liveness answers 200 unconditionally.
func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readiness runs every checker and reports per-checker status. Any failure
// yields 503.
func (h *Handler) Readiness(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, c := range h.checkers {
		checkers[name] = c
	}
	h.mu.RUnlock()

	status := http.StatusOK
	results := make(map[string]string, len(checkers))
	for name, c := range checkers {
		if err := c(); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(results)
}
