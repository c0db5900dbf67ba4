package provider

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the static per-provider backoff configuration for a single
// outbound call.
type RetryPolicy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Exponential bool
	Multiplier  float64
}

// DefaultRetryPolicy is used for providers without a tuned policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:  3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    15 * time.Second,
	Exponential: true,
	Multiplier:  2,
}

// CalculateDelay returns the wait before retry number attempt (0-based).
// A server wait hint overrides the computed backoff; both are capped at
// MaxDelay.
func (p RetryPolicy) CalculateDelay(attempt int, info *RateLimitInfo) time.Duration {
	return p.calculateDelayAt(attempt, info, time.Now())
}

func (p RetryPolicy) calculateDelayAt(attempt int, info *RateLimitInfo, now time.Time) time.Duration {
	if hint, ok := info.WaitHint(now); ok {
		return p.capped(hint)
	}

	if !p.Exponential {
		return p.capped(p.BaseDelay)
	}

	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(max(attempt, 0)))
	if delay >= float64(math.MaxInt64) {
		return p.capped(time.Duration(math.MaxInt64))
	}
	return p.capped(time.Duration(delay))
}

func (p RetryPolicy) capped(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// newBackOff adapts the policy to backoff.BackOff so the retry loop can be
// driven by backoff.RetryNotify.
func (p RetryPolicy) newBackOff() *policyBackOff {
	return &policyBackOff{policy: p}
}

type policyBackOff struct {
	policy  RetryPolicy
	attempt int
	hint    *RateLimitInfo
}

var _ backoff.BackOff = (*policyBackOff)(nil)

// observe records the rate-limit info of the response that just failed; it
// applies to the next delay only.
func (b *policyBackOff) observe(info *RateLimitInfo) {
	b.hint = info
}

func (b *policyBackOff) NextBackOff() time.Duration {
	if b.attempt >= b.policy.MaxRetries {
		return backoff.Stop
	}
	d := b.policy.CalculateDelay(b.attempt, b.hint)
	b.attempt++
	b.hint = nil
	return d
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
	b.hint = nil
}
