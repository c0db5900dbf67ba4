package provider

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/WatchBeam/clock"

	"github.com/ErlanBelekov/anime-sync/internal/metrics"
)

// FailureThreshold is the number of consecutive failures that opens a
// provider's circuit.
const FailureThreshold = 3

// Health tracks one provider's live availability. Counters are atomics so
// the hot path never blocks; the mutex guards only timestamps and the
// response-time average.
type Health struct {
	name  string
	clock clock.Clock

	totalRequests       atomic.Int64
	successfulRequests  atomic.Int64
	consecutiveFailures atomic.Int64
	healthy             atomic.Bool

	mu              sync.Mutex
	lastSuccessAt   time.Time
	lastFailureAt   time.Time
	avgResponseTime time.Duration
}

func NewHealth(name string, c clock.Clock) *Health {
	if c == nil {
		c = clock.C
	}
	h := &Health{name: name, clock: c}
	h.healthy.Store(true)
	return h
}

func (h *Health) Name() string { return h.name }

// RecordSuccess closes the circuit and folds responseTime into the running
// average.
func (h *Health) RecordSuccess(responseTime time.Duration) {
	n := h.successfulRequests.Add(1)
	h.totalRequests.Add(1)
	h.consecutiveFailures.Store(0)
	if !h.healthy.Swap(true) {
		metrics.ProviderCircuitOpen.WithLabelValues(h.name).Set(0)
	}

	h.mu.Lock()
	h.lastSuccessAt = h.clock.Now()
	h.avgResponseTime += (responseTime - h.avgResponseTime) / time.Duration(n)
	h.mu.Unlock()
}

// RecordFailure counts a failed call and opens the circuit once
// FailureThreshold consecutive failures are reached.
func (h *Health) RecordFailure() {
	h.totalRequests.Add(1)
	h.mu.Lock()
	h.lastFailureAt = h.clock.Now()
	h.mu.Unlock()

	if h.consecutiveFailures.Add(1) >= FailureThreshold {
		if h.healthy.Swap(false) {
			metrics.ProviderCircuitOpen.WithLabelValues(h.name).Set(1)
		}
	}
}

func (h *Health) IsHealthy() bool {
	return h.healthy.Load()
}

// IsAvailable reports whether a call may be attempted now: the circuit is
// closed, or it is open and the cool-down for the current failure count has
// elapsed (a half-open trial call).
func (h *Health) IsAvailable() bool {
	return h.IsHealthy() || h.ShouldRetry()
}

// ShouldRetry reports whether enough time has passed since the last failure
// to try the provider again. The wait grows with the consecutive failure
// count.
func (h *Health) ShouldRetry() bool {
	failures := h.consecutiveFailures.Load()
	if failures == 0 {
		return true
	}

	h.mu.Lock()
	last := h.lastFailureAt
	h.mu.Unlock()

	return h.clock.Now().Sub(last) >= coolDown(failures)
}

func coolDown(failures int64) time.Duration {
	switch {
	case failures <= 2:
		return 30 * time.Second
	case failures <= 4:
		return 2 * time.Minute
	case failures <= 6:
		return 5 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// SuccessRate is the percentage of successful calls; 100 before any call.
func (h *Health) SuccessRate() float64 {
	total := h.totalRequests.Load()
	if total == 0 {
		return 100
	}
	return float64(h.successfulRequests.Load()) / float64(total) * 100
}

// Snapshot is a point-in-time copy of a provider's health.
type Snapshot struct {
	Name                string        `json:"name"`
	Healthy             bool          `json:"healthy"`
	Available           bool          `json:"available"`
	TotalRequests       int64         `json:"total_requests"`
	SuccessfulRequests  int64         `json:"successful_requests"`
	ConsecutiveFailures int64         `json:"consecutive_failures"`
	SuccessRate         float64       `json:"success_rate"`
	AvgResponseTime     time.Duration `json:"avg_response_time_ns"`
	LastSuccessAt       *time.Time    `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time    `json:"last_failure_at,omitempty"`
}

func (h *Health) Snapshot() Snapshot {
	s := Snapshot{
		Name:                h.name,
		Healthy:             h.IsHealthy(),
		Available:           h.IsAvailable(),
		TotalRequests:       h.totalRequests.Load(),
		SuccessfulRequests:  h.successfulRequests.Load(),
		ConsecutiveFailures: h.consecutiveFailures.Load(),
		SuccessRate:         h.SuccessRate(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s.AvgResponseTime = h.avgResponseTime
	if !h.lastSuccessAt.IsZero() {
		t := h.lastSuccessAt
		s.LastSuccessAt = &t
	}
	if !h.lastFailureAt.IsZero() {
		t := h.lastFailureAt
		s.LastFailureAt = &t
	}
	return s
}
