package provider_test

import (
	"testing"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErlanBelekov/anime-sync/internal/provider"
)

func TestHealth_CircuitOpensAfterThreeFailures(t *testing.T) {
	mock := clock.NewMockClock()
	h := provider.NewHealth("jikan", mock)

	h.RecordFailure()
	h.RecordFailure()
	require.True(t, h.IsHealthy(), "two failures must not open the circuit")

	h.RecordFailure()
	assert.False(t, h.IsHealthy())
	assert.False(t, h.IsAvailable(), "circuit should block immediately after opening")

	mock.AddTime(2*time.Minute - time.Second)
	assert.False(t, h.IsAvailable())

	mock.AddTime(time.Second)
	assert.True(t, h.IsAvailable(), "a trial call should be allowed once the window elapsed")
	assert.False(t, h.IsHealthy(), "a trial window does not close the circuit")
}

func TestHealth_ShouldRetryTiers(t *testing.T) {
	tests := []struct {
		failures int
		window   time.Duration
	}{
		{1, 30 * time.Second},
		{2, 30 * time.Second},
		{3, 2 * time.Minute},
		{4, 2 * time.Minute},
		{5, 5 * time.Minute},
		{6, 5 * time.Minute},
		{7, 15 * time.Minute},
		{20, 15 * time.Minute},
	}
	for _, tt := range tests {
		mock := clock.NewMockClock()
		h := provider.NewHealth("kitsu", mock)
		for range tt.failures {
			h.RecordFailure()
		}

		mock.AddTime(tt.window - time.Millisecond)
		assert.False(t, h.ShouldRetry(), "failures=%d: retried before %s", tt.failures, tt.window)
		mock.AddTime(time.Millisecond)
		assert.True(t, h.ShouldRetry(), "failures=%d: not retried after %s", tt.failures, tt.window)
	}
}

func TestHealth_SuccessClosesCircuit(t *testing.T) {
	mock := clock.NewMockClock()
	h := provider.NewHealth("jikan", mock)
	for range 5 {
		h.RecordFailure()
	}
	require.False(t, h.IsHealthy())

	h.RecordSuccess(100 * time.Millisecond)

	snap := h.Snapshot()
	assert.True(t, snap.Healthy)
	assert.True(t, snap.Available)
	assert.Equal(t, int64(0), snap.ConsecutiveFailures)
	assert.Equal(t, int64(6), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.SuccessfulRequests)
	require.NotNil(t, snap.LastSuccessAt)
	require.NotNil(t, snap.LastFailureAt)
}

func TestHealth_SuccessRateAndAverage(t *testing.T) {
	h := provider.NewHealth("jikan", clock.NewMockClock())
	assert.Equal(t, 100.0, h.SuccessRate(), "no traffic yet")

	h.RecordSuccess(100 * time.Millisecond)
	h.RecordSuccess(300 * time.Millisecond)
	h.RecordFailure()
	h.RecordSuccess(200 * time.Millisecond)

	assert.InDelta(t, 75.0, h.SuccessRate(), 0.001)
	assert.Equal(t, 200*time.Millisecond, h.Snapshot().AvgResponseTime)
}

func TestHealth_ConcurrentRecording(t *testing.T) {
	h := provider.NewHealth("jikan", clock.NewMockClock())

	done := make(chan struct{})
	for i := range 50 {
		go func() {
			defer func() { done <- struct{}{} }()
			if i%2 == 0 {
				h.RecordSuccess(time.Millisecond)
			} else {
				h.RecordFailure()
			}
			_ = h.Snapshot()
		}()
	}
	for range 50 {
		<-done
	}

	snap := h.Snapshot()
	assert.Equal(t, int64(50), snap.TotalRequests)
	assert.Equal(t, int64(25), snap.SuccessfulRequests)
}
