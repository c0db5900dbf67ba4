package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CircuitReporter is satisfied by *provider.Registry. Availability maps each
// provider to whether calls to it may currently be attempted.
type CircuitReporter interface {
	Availability() map[string]bool
}

// CheckResult represents the health of a single dependency.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResult is the top-level health response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker verifies that all dependencies are reachable.
type Checker struct {
	db       Pinger
	circuits CircuitReporter
	logger   *slog.Logger
	gauge    *prometheus.GaugeVec
}

// NewChecker creates a health checker and registers its Prometheus gauge.
// circuits may be nil for processes that make no provider calls.
func NewChecker(db Pinger, circuits CircuitReporter, logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "anime_sync",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		db:       db,
		circuits: circuits,
		logger:   logger.With("component", "health"),
		gauge:    gauge,
	}
}

// Liveness returns a simple "up" response if the process is running.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness pings every dependency and reports per-check status. An open
// provider circuit is reported but does not make the process unready: jobs
// still fail over to other providers or retry later.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result := HealthResult{
		Status: "up",
		Checks: make(map[string]CheckResult),
	}

	if err := c.db.Ping(checkCtx); err != nil {
		c.logger.Warn("postgres health check failed", "error", err)
		result.Status = "down"
		result.Checks["postgres"] = CheckResult{Status: "down", Error: err.Error()}
		c.gauge.WithLabelValues("postgres").Set(0)
	} else {
		result.Checks["postgres"] = CheckResult{Status: "up"}
		c.gauge.WithLabelValues("postgres").Set(1)
	}

	if c.circuits == nil {
		return result
	}

	availability := c.circuits.Availability()
	names := make([]string, 0, len(availability))
	for name := range availability {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dep := "provider_" + name
		if availability[name] {
			result.Checks[dep] = CheckResult{Status: "up"}
			c.gauge.WithLabelValues(dep).Set(1)
			continue
		}
		result.Checks[dep] = CheckResult{Status: "down", Error: "circuit open"}
		c.gauge.WithLabelValues(dep).Set(0)
	}

	return result
}

func (c *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, c.Liveness(r.Context()))
	})
}

func (c *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, c.Readiness(r.Context()))
	})
}

func writeResult(w http.ResponseWriter, result HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
