package provider_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ErlanBelekov/anime-sync/internal/provider"
)

func TestCalculateDelay_ExponentialIsMonotonic(t *testing.T) {
	p := provider.RetryPolicy{
		MaxRetries:  5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Minute,
		Exponential: true,
		Multiplier:  2,
	}

	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(0, nil))
	assert.Equal(t, 200*time.Millisecond, p.CalculateDelay(1, nil))
	assert.Equal(t, 800*time.Millisecond, p.CalculateDelay(3, nil))
	assert.Greater(t, p.CalculateDelay(3, nil), p.CalculateDelay(1, nil))
}

func TestCalculateDelay_CappedAtMaxDelay(t *testing.T) {
	p := provider.RetryPolicy{
		MaxRetries:  100,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Exponential: true,
		Multiplier:  2,
	}

	assert.Equal(t, 10*time.Second, p.CalculateDelay(10, nil))
	assert.Equal(t, 10*time.Second, p.CalculateDelay(80, nil), "huge exponents must not overflow")
}

func TestCalculateDelay_Flat(t *testing.T) {
	p := provider.RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: time.Minute}

	assert.Equal(t, 2*time.Second, p.CalculateDelay(0, nil))
	assert.Equal(t, 2*time.Second, p.CalculateDelay(4, nil))
}

func TestCalculateDelay_ServerHintOverrides(t *testing.T) {
	p := provider.JikanPolicy
	hint := &provider.RateLimitInfo{RetryAfter: 7 * time.Second}

	for _, attempt := range []int{0, 1, 2, 3} {
		assert.Equal(t, 7*time.Second, p.CalculateDelay(attempt, hint), "attempt %d", attempt)
	}
}

func TestCalculateDelay_ServerHintCapped(t *testing.T) {
	p := provider.KitsuPolicy
	hint := &provider.RateLimitInfo{RetryAfter: time.Hour}

	assert.Equal(t, p.MaxDelay, p.CalculateDelay(0, hint))
}

func TestCalculateDelay_ResetTimeUsedWhenExhausted(t *testing.T) {
	p := provider.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Minute, Exponential: true, Multiplier: 2}
	zero := 0
	hint := &provider.RateLimitInfo{ResetTime: time.Now().Add(20 * time.Second), Remaining: &zero}

	d := p.CalculateDelay(0, hint)
	assert.Greater(t, d, 15*time.Second)
	assert.LessOrEqual(t, d, 20*time.Second)
}

func TestCalculateDelay_RetryAfterZeroSkipsBackoff(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "0")

	assert.Zero(t, provider.JikanPolicy.CalculateDelay(3, provider.ParseRateLimit(h, time.Now())))
}
