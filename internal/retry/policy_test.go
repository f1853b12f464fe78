package retry

import (
	"context"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestCalculateDelay_Formula(t *testing.T) {
	p := Policy{InitialDelayMs: 100, BackoffMultiplier: 2, MaxDelayMs: 1000}

	assert.Equal(t, int64(0), p.CalculateDelay(0).Milliseconds())
	assert.Equal(t, int64(100), p.CalculateDelay(1).Milliseconds())
	assert.Equal(t, int64(200), p.CalculateDelay(2).Milliseconds())
	assert.Equal(t, int64(400), p.CalculateDelay(3).Milliseconds())
	// clamps at maxDelayMs
	assert.Equal(t, int64(1000), p.CalculateDelay(10).Milliseconds())
}

func TestCalculateDelay_MonotoneNonDecreasing(t *testing.T) {
	p := Policy{InitialDelayMs: 50, BackoffMultiplier: 1.5, MaxDelayMs: 5000}
	prev := p.CalculateDelay(1)
	for n := 2; n <= 20; n++ {
		cur := p.CalculateDelay(n)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestShouldRetry_CancellationNeverRetried(t *testing.T) {
	p := DefaultPolicy()
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
}

func TestShouldRetry_ExceedsMaxCount(t *testing.T) {
	p := Policy{MaxRetryCount: 2}
	assert.False(t, p.ShouldRetry(context.DeadlineExceeded, 3))
	assert.True(t, p.ShouldRetry(context.DeadlineExceeded, 2))
}

func TestShouldRetryStatusCode(t *testing.T) {
	p := Policy{MaxRetryCount: 3}
	assert.True(t, p.ShouldRetryStatusCode(500, 1))
	assert.True(t, p.ShouldRetryStatusCode(599, 3))
	assert.False(t, p.ShouldRetryStatusCode(599, 4))
	assert.False(t, p.ShouldRetryStatusCode(404, 1))
	assert.False(t, p.ShouldRetryStatusCode(200, 1))
}

func TestNewBackOff_MatchesCalculateDelayThenStops(t *testing.T) {
	p := Policy{MaxRetryCount: 2, InitialDelayMs: 100, BackoffMultiplier: 2, MaxDelayMs: 1000}
	b := NewBackOff(p)

	assert.Equal(t, p.CalculateDelay(1), b.NextBackOff())
	assert.Equal(t, p.CalculateDelay(2), b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestNewBackOff_ResetRestartsAttemptCount(t *testing.T) {
	p := Policy{MaxRetryCount: 1, InitialDelayMs: 50, BackoffMultiplier: 2, MaxDelayMs: 1000}
	b := NewBackOff(p)

	b.NextBackOff()
	assert.Equal(t, backoff.Stop, b.NextBackOff())

	b.Reset()
	assert.Equal(t, p.CalculateDelay(1), b.NextBackOff())
}
