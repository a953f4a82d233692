package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/roboverse/bookqa-go/internal/logging"
)

// probeTimeout is the maximum time allowed for each individual dependency
// probe during a health check. Kept short so /health responds quickly even
// when a dependency is slow rather than unreachable.
const probeTimeout = 5 * time.Second

// Overall health states reported by GET /health.
const (
	statusHealthy     = "healthy"
	statusDegraded    = "degraded"
	statusUnavailable = "unavailable"
)

// Pinger is the interface implemented by any dependency that can report its
// own reachability. Each implementation must return nil when the dependency
// is healthy and a descriptive error otherwise.
// Implementations must be safe to call from multiple goroutines.
type Pinger interface {
	// Ping checks whether the dependency is reachable within the given context.
	// Returns nil on success, a descriptive error on failure.
	Ping(ctx context.Context) error

	// Name returns a short human-readable label used in health responses
	// (e.g. "qdrant", "postgres").
	Name() string
}

// MultiPinger aggregates one or more Pinger implementations and reports
// the combined reachability of all dependencies.
type MultiPinger struct {
	// pingers is the ordered list of dependency probes to run.
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger from the provided list of Pingers.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping runs all registered probes sequentially and returns the first error
// encountered, or nil if all probes succeed.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// Name returns a combined label for logging purposes.
func (m *MultiPinger) Name() string { return "multi" }

// serviceHealth holds the per-dependency result of a health probe.
type serviceHealth struct {
	// Name is the dependency label (e.g. "qdrant", "postgres").
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// LatencyMS is the probe round-trip time in milliseconds.
	LatencyMS float64 `json:"latency_ms"`
	// Error contains the failure reason when OK is false. Empty on success.
	Error string `json:"error,omitempty"`
}

// healthResponse is the JSON body returned by GET /health.
type healthResponse struct {
	// Status is healthy when every probe succeeded, degraded when some
	// failed, unavailable when all failed.
	Status string `json:"status"`
	// Services contains the per-dependency probe results.
	Services []serviceHealth `json:"services"`
}

// handleHealth handles GET /health. It probes each registered Pinger with a
// short timeout and reports per-dependency status with latency. The overall
// status degrades to "degraded" when any dependency is down and to
// "unavailable" (HTTP 503) when all are.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := healthResponse{Services: []serviceHealth{}}
	failed := 0

	for _, p := range s.checks {
		probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		start := time.Now()
		err := p.Ping(probeCtx)
		elapsed := time.Since(start)
		cancel()

		check := serviceHealth{
			Name:      p.Name(),
			OK:        err == nil,
			LatencyMS: float64(elapsed.Microseconds()) / 1000,
		}
		if err != nil {
			check.Error = err.Error()
			failed++
			log.Warn("health probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		resp.Services = append(resp.Services, check)
	}

	status := http.StatusOK
	switch {
	case failed == 0:
		resp.Status = statusHealthy
	case failed < len(s.checks):
		resp.Status = statusDegraded
	default:
		resp.Status = statusUnavailable
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
