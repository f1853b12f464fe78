// ABOUTME: Retry policy with exponential backoff and transient-error classification
// ABOUTME: Exposes CalculateDelay standalone and a cenkalti/backoff/v4-compatible driver

package retry

import (
	"context"
	"errors"
	"math"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flowctl/engine/pkg/types"
)

// Policy is the configured retry behavior of §4.3.
type Policy struct {
	MaxRetryCount     int
	InitialDelayMs    int64
	BackoffMultiplier float64
	MaxDelayMs        int64
}

// DefaultPolicy matches the teacher's conservative defaults for an
// outbound HTTP dependency.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetryCount:     3,
		InitialDelayMs:    200,
		BackoffMultiplier: 2.0,
		MaxDelayMs:        10_000,
	}
}

// FromConfig builds a Policy from an optional per-task override, falling
// back to DefaultPolicy for zero-valued fields.
func FromConfig(cfg *types.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg == nil {
		return p
	}
	if cfg.MaxRetryCount > 0 {
		p.MaxRetryCount = cfg.MaxRetryCount
	}
	if cfg.InitialDelayMs > 0 {
		p.InitialDelayMs = cfg.InitialDelayMs
	}
	if cfg.BackoffMultiplier > 0 {
		p.BackoffMultiplier = cfg.BackoffMultiplier
	}
	if cfg.MaxDelayMs > 0 {
		p.MaxDelayMs = cfg.MaxDelayMs
	}
	return p
}

// CalculateDelay returns the wait duration before attempt n (1-indexed).
// calculateDelay(n) = min(maxDelayMs, initialDelayMs * multiplier^(n-1));
// n < 1 yields zero (§4.3, §8).
func (p Policy) CalculateDelay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	delayMs := float64(p.InitialDelayMs) * math.Pow(p.BackoffMultiplier, float64(n-1))
	if delayMs > float64(p.MaxDelayMs) {
		delayMs = float64(p.MaxDelayMs)
	}
	return time.Duration(delayMs) * time.Millisecond
}

// ShouldRetry reports whether attempt n may be retried given err: n must
// not exceed MaxRetryCount and err must be transient (network/timeout).
// Cancellation is never retried (§4.3).
func (p Policy) ShouldRetry(err error, n int) bool {
	if n > p.MaxRetryCount {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return types.IsRetryable(err)
}

// ShouldRetryStatusCode reports whether an HTTP status code warrants a
// retry: n must not exceed MaxRetryCount and code must be a 5xx (§4.3).
func (p Policy) ShouldRetryStatusCode(code, n int) bool {
	return n <= p.MaxRetryCount && code >= 500 && code <= 599
}

// backOff adapts Policy to cenkalti/backoff/v4's BackOff interface so an
// executor's attempt loop can call NextBackOff for each successive delay
// instead of recomputing it by hand, while CalculateDelay remains
// independently testable (§8's backoff testable property targets
// CalculateDelay directly, not this adapter).
type backOff struct {
	policy  Policy
	attempt int
}

// NewBackOff returns a backoff.BackOff driven by p.CalculateDelay.
func NewBackOff(p Policy) backoff.BackOff {
	return &backOff{policy: p}
}

func (b *backOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt > b.policy.MaxRetryCount {
		return backoff.Stop
	}
	return b.policy.CalculateDelay(b.attempt)
}

func (b *backOff) Reset() {
	b.attempt = 0
}
