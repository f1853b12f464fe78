// ABOUTME: Three-state circuit breaker with sliding-window failure counting
// ABOUTME: Wraps sony/gobreaker's two-step breaker, tracked per task reference

package breaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/flowctl/engine/pkg/types"
)

// Config mirrors types.CircuitBreakerConfig with defaults applied.
type Config struct {
	FailureThreshold int
	SamplingDuration time.Duration
	BreakDuration    time.Duration
	HalfOpenRequests int
}

// DefaultConfig matches the teacher's conservative defaults for an
// outbound HTTP dependency.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SamplingDuration: 30 * time.Second,
		BreakDuration:    10 * time.Second,
		HalfOpenRequests: 1,
	}
}

// FromConfig builds a Config from an optional per-task override.
func FromConfig(cfg *types.CircuitBreakerConfig) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if cfg.FailureThreshold > 0 {
		c.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.SamplingDuration > 0 {
		c.SamplingDuration = cfg.SamplingDuration
	}
	if cfg.BreakDuration > 0 {
		c.BreakDuration = cfg.BreakDuration
	}
	if cfg.HalfOpenRequests > 0 {
		c.HalfOpenRequests = cfg.HalfOpenRequests
	}
	return c
}

// Breaker is a single per-taskRef circuit breaker (§4.4). gobreaker's own
// Counts reset on a fixed Interval timer while closed, which is not the
// same thing as "≥ failureThreshold failures within samplingDuration": a
// run of failures straddling an Interval boundary would never trip even
// though they all fall inside one sliding window. So gobreaker's periodic
// reset is disabled (Interval left at zero) and Breaker keeps its own
// timestamp ring of recent failures, evicting entries older than
// samplingDuration on every check; ReadyToTrip asks that ring instead of
// gobreaker's Counts. gobreaker still drives the actual
// Closed/Open/HalfOpen state machine and Timeout/MaxRequests handling.
type Breaker struct {
	inner *gobreaker.TwoStepCircuitBreaker
	cfg   Config

	mu           sync.Mutex
	info         types.CircuitStateInfo
	failureTimes []time.Time
}

// CircuitStateInfoState mirrors §3's enumerated breaker states.
type CircuitStateInfoState string

const (
	StateClosed   CircuitStateInfoState = "Closed"
	StateOpen     CircuitStateInfoState = "Open"
	StateHalfOpen CircuitStateInfoState = "HalfOpen"
)

// New builds a Breaker for a single taskRef.
func New(taskRef string, cfg Config) *Breaker {
	b := &Breaker{cfg: cfg}
	b.info.State = string(StateClosed)

	settings := gobreaker.Settings{
		Name:        taskRef,
		MaxRequests: uint32(cfg.HalfOpenRequests),
		Timeout:     cfg.BreakDuration,
		ReadyToTrip: func(gobreaker.Counts) bool {
			return b.windowFailureCount() >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.mu.Lock()
			defer b.mu.Unlock()
			now := time.Now()
			b.info.LastStateTransitionAt = now
			switch to {
			case gobreaker.StateOpen:
				b.info.State = string(StateOpen)
				b.info.CircuitOpenedAt = now
			case gobreaker.StateHalfOpen:
				b.info.State = string(StateHalfOpen)
				b.info.HalfOpenSuccessCount = 0
			case gobreaker.StateClosed:
				b.info.State = string(StateClosed)
				b.info.FailureCount = 0
				b.failureTimes = nil
			}
		},
	}
	b.inner = gobreaker.NewTwoStepCircuitBreaker(settings)
	return b
}

// windowFailureCount evicts failure timestamps older than cfg.SamplingDuration
// and returns how many remain, i.e. the failure count within the current
// sliding window.
func (b *Breaker) windowFailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := time.Now().Add(-b.cfg.SamplingDuration)
	kept := b.failureTimes[:0]
	for _, t := range b.failureTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failureTimes = kept
	return len(b.failureTimes)
}

// Permit is returned by Allow when the call may proceed; the caller must
// report the outcome exactly once via Success or Failure.
type Permit struct {
	done func(success bool)
}

// Success reports that the permitted call succeeded.
func (p *Permit) Success() {
	if p.done != nil {
		p.done(true)
	}
}

// Failure reports that the permitted call failed.
func (p *Permit) Failure() {
	if p.done != nil {
		p.done(false)
	}
}

// Allow reports whether a call may proceed (§4.4's CanExecute). When the
// breaker is open, it returns a CircuitOpenError and a nil Permit; the
// caller must not attempt the underlying operation.
func (b *Breaker) Allow(taskRef string) (*Permit, error) {
	done, err := b.inner.Allow()
	if err != nil {
		return nil, types.NewCircuitOpenError(taskRef)
	}
	return &Permit{done: func(success bool) {
		b.record(success)
		done(success)
	}}, nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		switch b.info.State {
		case string(StateHalfOpen):
			b.info.HalfOpenSuccessCount++
		case string(StateClosed):
			b.info.FailureCount = 0
			b.failureTimes = nil
		}
		return
	}
	now := time.Now()
	b.info.LastFailureTime = now
	b.info.FailureCount++
	b.failureTimes = append(b.failureTimes, now)
}

// State returns a snapshot of the breaker's current state info (§3).
func (b *Breaker) State() types.CircuitStateInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info
}
