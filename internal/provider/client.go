package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/metrics"
)

type ClientConfig struct {
	Name    string
	BaseURL string
	// Accept overrides the default application/json Accept header.
	Accept        string
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Policy        RetryPolicy
}

// Client performs throttled, retried GET requests against one provider and
// reports every call's outcome to that provider's Health.
type Client struct {
	name      string
	baseURL   string
	accept    string
	userAgent string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
	policy    RetryPolicy
	health    *Health
	logger    *slog.Logger
}

func NewClient(cfg ClientConfig, health *Health, logger *slog.Logger) *Client {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	accept := cfg.Accept
	if accept == "" {
		accept = "application/json"
	}
	return &Client{
		name:      cfg.Name,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		accept:    accept,
		userAgent: cfg.UserAgent,
		timeout:   timeout,
		http:      &http.Client{}, // per-attempt timeout comes from the request context
		limiter:   rate.NewLimiter(limit, burst),
		policy:    cfg.Policy,
		health:    health,
		logger:    logger.With("provider", cfg.Name),
	}
}

// GetJSON fetches baseURL+path and decodes the body into out. Transient
// failures are retried per the client's RetryPolicy; an open circuit fails
// fast with domain.ErrProviderUnavailable.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	if !c.health.IsAvailable() {
		return fmt.Errorf("%s: %w", c.name, domain.ErrProviderUnavailable)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	b := c.policy.newBackOff()
	var lastElapsed time.Duration

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		elapsed, err := c.do(ctx, u, out)
		lastElapsed = elapsed
		if err == nil {
			return nil
		}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			b.observe(httpErr.RateLimit)
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		metrics.ProviderRetriesTotal.WithLabelValues(c.name).Inc()
		c.logger.WarnContext(ctx, "provider request failed, retrying", "error", err, "retry_in", wait)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	c.record(ctx, err, lastElapsed)
	return err
}

// record feeds the final outcome of a call into the health tracker. A
// non-retryable 4xx means the provider answered and is left healthy; a
// cancelled caller says nothing about the provider.
func (c *Client) record(ctx context.Context, err error, elapsed time.Duration) {
	var httpErr *HTTPError
	switch {
	case err == nil:
		c.health.RecordSuccess(elapsed)
	case ctx.Err() != nil:
	case errors.As(err, &httpErr) && httpErr.StatusCode < 500 && !RetryableStatus(httpErr.StatusCode):
		c.health.RecordSuccess(elapsed)
	default:
		c.health.RecordFailure()
	}
}

func (c *Client) do(ctx context.Context, u string, out any) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Accept", c.accept)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ProviderRequestDuration.WithLabelValues(c.name, "error").Observe(elapsed.Seconds())
		return elapsed, fmt.Errorf("%s: do request: %w", c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.ProviderRequestDuration.WithLabelValues(c.name, strconv.Itoa(resp.StatusCode)).Observe(elapsed.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return elapsed, &HTTPError{
			Provider:   c.name,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RateLimit:  ParseRateLimit(resp.Header, time.Now()),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return elapsed, fmt.Errorf("%s: decode response: %w", c.name, err)
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body) // drain so the connection can be reused by the pool
	return elapsed, nil
}
