package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBreaker_OpensAfterThresholdAndHalfOpenCloses mirrors §8 scenario 5:
// failureThreshold=3, breakDuration=200ms, halfOpenRequests=1.
func TestBreaker_OpensAfterThresholdAndHalfOpenCloses(t *testing.T) {
	cfg := Config{
		FailureThreshold: 3,
		SamplingDuration: time.Second,
		BreakDuration:    200 * time.Millisecond,
		HalfOpenRequests: 1,
	}
	b := New("X", cfg)

	for i := 0; i < 3; i++ {
		permit, err := b.Allow("X")
		require.NoError(t, err)
		permit.Failure()
	}

	_, err := b.Allow("X")
	require.Error(t, err, "breaker should be open after threshold failures")

	time.Sleep(250 * time.Millisecond)

	permit, err := b.Allow("X")
	require.NoError(t, err, "breaker should allow a half-open probe after breakDuration")
	permit.Success()

	permit, err = b.Allow("X")
	require.NoError(t, err, "breaker should be closed after the half-open success")
	permit.Success()
}

// TestBreaker_OnlyTripsOnFailuresWithinSamplingWindow verifies the breaker
// counts failures against a true sliding window rather than gobreaker's own
// Interval-reset counter: failures more than samplingDuration apart must
// not accumulate, but failures that genuinely fall inside one window must.
func TestBreaker_OnlyTripsOnFailuresWithinSamplingWindow(t *testing.T) {
	cfg := Config{
		FailureThreshold: 2,
		SamplingDuration: 100 * time.Millisecond,
		BreakDuration:    time.Second,
		HalfOpenRequests: 1,
	}
	b := New("X", cfg)

	permit, err := b.Allow("X")
	require.NoError(t, err)
	permit.Failure()

	time.Sleep(150 * time.Millisecond)

	permit, err = b.Allow("X")
	require.NoError(t, err, "first failure fell outside the window, so this is only the 1st failure seen within it")
	permit.Failure()

	permit, err = b.Allow("X")
	require.NoError(t, err, "only one failure inside the current window so far, breaker should still be closed")
	permit.Failure()

	_, err = b.Allow("X")
	require.Error(t, err, "two failures within the sampling window should trip the breaker")
}

func TestRegistry_CreatesOncePerTaskRef(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	a := reg.Get("X", nil)
	b := reg.Get("X", nil)
	assert.Same(t, a, b)

	c := reg.Get("Y", nil)
	assert.NotSame(t, a, c)
}
