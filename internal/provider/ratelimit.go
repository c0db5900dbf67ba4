package provider

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitInfo is what a single response says about the provider's limits.
// Zero values mean the header was absent, except RetryAfter, whose presence
// is tracked by HasRetryAfter so that "Retry-After: 0" still counts.
type RateLimitInfo struct {
	RetryAfter    time.Duration
	HasRetryAfter bool
	ResetTime     time.Time
	Remaining     *int
	Limit         *int
}

// epochCutoff separates X-RateLimit-Reset values sent as unix timestamps from
// ones sent as seconds-until-reset.
const epochCutoff = 1_000_000_000

// ParseRateLimit reads Retry-After and the common RateLimit-* / X-RateLimit-*
// headers. It returns nil when none are present.
func ParseRateLimit(h http.Header, now time.Time) *RateLimitInfo {
	var info RateLimitInfo
	found := false

	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
			info.RetryAfter = time.Duration(secs * float64(time.Second))
			info.HasRetryAfter = true
			found = true
		} else if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(now); d > 0 {
				info.RetryAfter = d
			}
			info.HasRetryAfter = true
			found = true
		}
	}

	if v := firstHeader(h, "X-RateLimit-Reset", "RateLimit-Reset"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n >= 0 {
			if n >= epochCutoff {
				info.ResetTime = time.Unix(int64(n), 0)
			} else {
				info.ResetTime = now.Add(time.Duration(n * float64(time.Second)))
			}
			found = true
		}
	}

	if v := firstHeader(h, "X-RateLimit-Remaining", "RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Remaining = &n
			found = true
		}
	}

	if v := firstHeader(h, "X-RateLimit-Limit", "RateLimit-Limit"); v != "" {
		// RateLimit-Limit may carry a policy suffix ("100, 100;w=60").
		v, _, _ = strings.Cut(v, ",")
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			info.Limit = &n
			found = true
		}
	}

	if !found {
		return nil
	}
	return &info
}

// WaitHint returns the delay the server asked for, if any. Retry-After wins;
// the reset time is only used when the window is known to be exhausted.
func (i *RateLimitInfo) WaitHint(now time.Time) (time.Duration, bool) {
	if i == nil {
		return 0, false
	}
	if i.HasRetryAfter || i.RetryAfter > 0 {
		return i.RetryAfter, true
	}
	if !i.ResetTime.IsZero() && (i.Remaining == nil || *i.Remaining <= 0) {
		if d := i.ResetTime.Sub(now); d > 0 {
			return d, true
		}
	}
	return 0, false
}

func firstHeader(h http.Header, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
