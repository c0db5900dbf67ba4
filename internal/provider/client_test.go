package provider_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/provider"
)

var fastPolicy = provider.RetryPolicy{
	MaxRetries:  3,
	BaseDelay:   time.Millisecond,
	MaxDelay:    5 * time.Millisecond,
	Exponential: true,
	Multiplier:  2,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, srv *httptest.Server, policy provider.RetryPolicy) (*provider.Client, *provider.Health) {
	t.Helper()
	h := provider.NewHealth("test", clock.NewMockClock())
	c := provider.NewClient(provider.ClientConfig{
		Name:    "test",
		BaseURL: srv.URL,
		Timeout: time.Second,
		Policy:  policy,
	}, h, discardLogger())
	return c, h
}

type payload struct {
	Value string `json:"value"`
}

func TestClient_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"value":"ok"}`)
	}))
	defer srv.Close()

	c, h := newTestClient(t, srv, fastPolicy)

	var out payload
	require.NoError(t, c.GetJSON(context.Background(), "/thing", nil, &out))
	assert.Equal(t, "ok", out.Value)
	assert.Equal(t, int32(3), calls.Load())

	snap := h.Snapshot()
	assert.True(t, snap.Healthy)
	assert.Equal(t, int64(1), snap.SuccessfulRequests, "health tracks calls, not attempts")
}

func TestClient_TerminalStatusIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such anime", http.StatusNotFound)
	}))
	defer srv.Close()

	c, h := newTestClient(t, srv, fastPolicy)

	err := c.GetJSON(context.Background(), "/anime/999", nil, &payload{})
	require.Error(t, err)
	assert.True(t, provider.IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, h.IsHealthy(), "a 404 is an answer, not an outage")
}

func TestClient_ExhaustedRetriesRecordFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, h := newTestClient(t, srv, fastPolicy)

	err := c.GetJSON(context.Background(), "/thing", nil, &payload{})
	var httpErr *provider.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, int32(fastPolicy.MaxRetries+1), calls.Load())
	assert.Equal(t, int64(1), h.Snapshot().ConsecutiveFailures)
}

func TestClient_HonoursRetryAfter(t *testing.T) {
	var mu sync.Mutex
	var seen []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, time.Now())
		n := len(seen)
		mu.Unlock()
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"value":"ok"}`)
	}))
	defer srv.Close()

	policy := fastPolicy
	policy.MaxDelay = 50 * time.Millisecond
	c, _ := newTestClient(t, srv, policy)

	require.NoError(t, c.GetJSON(context.Background(), "/thing", nil, &payload{}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	first, second := seen[0], seen[1]
	// The 1s hint wins over the 1ms base delay but is capped at MaxDelay.
	assert.GreaterOrEqual(t, second.Sub(first), 40*time.Millisecond)
	assert.Less(t, second.Sub(first), time.Second)
}

func TestClient_OpenCircuitFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c, h := newTestClient(t, srv, fastPolicy)
	for range provider.FailureThreshold {
		h.RecordFailure()
	}

	err := c.GetJSON(context.Background(), "/thing", nil, nil)
	assert.True(t, errors.Is(err, domain.ErrProviderUnavailable))
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_CancelledContextStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	policy := fastPolicy
	policy.BaseDelay = time.Second
	policy.MaxDelay = time.Second
	c, h := newTestClient(t, srv, policy)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.GetJSON(ctx, "/thing", nil, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(0), h.Snapshot().TotalRequests, "caller cancellation is not held against the provider")
}

func TestClient_UnsupportedSchemeIsNotRetried(t *testing.T) {
	policy := fastPolicy
	policy.BaseDelay = time.Hour
	policy.MaxDelay = time.Hour
	c := provider.NewClient(provider.ClientConfig{
		Name:    "test",
		BaseURL: "gopher://jikan.invalid",
		Timeout: time.Second,
		Policy:  policy,
	}, provider.NewHealth("test", clock.NewMockClock()), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.GetJSON(ctx, "/anime/1", nil, nil)
	require.Error(t, err)
	assert.False(t, provider.IsRetryable(err))
	assert.NoError(t, ctx.Err(), "a terminal transport error must not wait out the backoff")
}
