// Package health serves the liveness and readiness probes.
//
//   - /healthz always answers 200 while the process can serve HTTP.
//   - /readyz runs every registered [Checker] concurrently and answers 200
//     only when all required checks pass. Optional checks are reported but
//     never fail readiness, so a travel API outage degrades the concierge
//     without taking it out of rotation.
//
// Response bodies are {"status": "ok"|"fail", "checks": {name: result}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named dependency probe.
type Checker struct {
	// Name labels the check in the response, e.g. "vectorstore" or "redis".
	Name string

	// Check returns nil when the dependency is healthy. It must respect ctx.
	Check func(ctx context.Context) error

	// Optional checks are reported as "warn: ..." on failure without failing
	// readiness.
	Optional bool
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. It is safe for concurrent use.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
}

// New returns a Handler evaluating checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	h := &Handler{}
	h.Add(checkers...)
	return h
}

// Add registers more checkers. A checker whose Name is already registered
// replaces the old one.
func (h *Handler) Add(checkers ...Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range checkers {
		if c.Check == nil {
			continue
		}
		replaced := false
		for i := range h.checkers {
			if h.checkers[i].Name == c.Name {
				h.checkers[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			h.checkers = append(h.checkers, c)
		}
	}
}

// Names returns the registered check names in sorted order.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.checkers))
	for i, c := range h.checkers {
		out[i] = c.Name
	}
	sort.Strings(out)
	return out
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is the readiness probe. Checks run concurrently, each under its own
// [checkTimeout] deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checkers := append([]Checker(nil), h.checkers...)
	h.mu.RUnlock()

	outcomes := make([]string, len(checkers))
	failed := make([]bool, len(checkers))

	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)
			switch {
			case err == nil:
				outcomes[i] = "ok"
			case c.Optional:
				outcomes[i] = "warn: " + err.Error()
			default:
				outcomes[i] = "fail: " + err.Error()
				failed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: make(map[string]string, len(checkers))}
	status := http.StatusOK
	for i, c := range checkers {
		res.Checks[c.Name] = outcomes[i]
		if failed[i] {
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
