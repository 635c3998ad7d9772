// Package health serves the liveness and readiness probes of the analysis
// server.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz
// runs every registered [Checker] concurrently and answers with a [Report]:
// 200 when all required checks pass, even if optional ones fail (status
// "degraded"), and 503 otherwise. [GroupCheck] and [PingCheck] build
// optional checks; [CatalogCheck] builds a required one.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// Status is the outcome of a check or of a whole probe.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFail     Status = "fail"
)

// Checker is a named readiness check. Check returns nil while the
// dependency is usable and must honour ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error

	// Optional checks only degrade the probe when they fail.
	Optional bool
}

// CheckResult is the outcome of one [Checker].
type CheckResult struct {
	Status  Status  `json:"status"`
	Error   string  `json:"error,omitempty"`
	Latency float64 `json:"latency_ms"`
}

// Report is the /readyz response body.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New returns a Handler evaluating checkers on every readiness probe.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Evaluate runs every checker concurrently, each under its own
// [checkTimeout], and folds the outcomes into a Report.
func (h *Handler) Evaluate(ctx context.Context) Report {
	var (
		mu  sync.Mutex
		rep = Report{Status: StatusOK, Checks: make(map[string]CheckResult, len(h.checkers))}
		eg  errgroup.Group
	)
	for _, c := range h.checkers {
		eg.Go(func() error {
			res := run(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			rep.Checks[c.Name] = res
			switch {
			case res.Status == StatusOK:
			case c.Optional:
				if rep.Status == StatusOK {
					rep.Status = StatusDegraded
				}
			default:
				rep.Status = StatusFail
			}
			return nil
		})
	}
	_ = eg.Wait()
	return rep
}

func run(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	start := time.Now()
	err := c.Check(ctx)
	res := CheckResult{Status: StatusOK, Latency: float64(time.Since(start).Microseconds()) / 1000}
	if err != nil {
		res.Status = StatusFail
		if c.Optional {
			res.Status = StatusDegraded
		}
		res.Error = err.Error()
	}
	return res
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Evaluate(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Register adds GET /healthz and GET /readyz to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"fail"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
