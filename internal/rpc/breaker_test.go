package rpc

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBreaker(t *testing.T, threshold int, coolDown time.Duration) (*Breaker, *time.Time) {
	t.Helper()
	b := NewBreaker(BreakerConfig{FailureThreshold: threshold, CoolDown: coolDown}, discardLogger())
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, 3, 30*time.Second)

	b.RecordFailure("ep")
	b.RecordFailure("ep")

	assert.Equal(t, StateClosed, b.State("ep"))
	assert.True(t, b.Allow("ep"))
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, 3, 30*time.Second)

	for i := 0; i < 3; i++ {
		require.True(t, b.Allow("ep"))
		b.RecordFailure("ep")
	}

	assert.Equal(t, StateOpen, b.State("ep"))
	assert.False(t, b.Allow("ep"))
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b, now := newTestBreaker(t, 3, 30*time.Second)
	for i := 0; i < 3; i++ {
		b.RecordFailure("ep")
	}
	require.False(t, b.Allow("ep"))

	// Before cool-down expiry calls stay denied.
	*now = now.Add(29 * time.Second)
	assert.False(t, b.Allow("ep"))

	// After expiry exactly one trial call passes.
	*now = now.Add(2 * time.Second)
	assert.True(t, b.Allow("ep"))
	assert.Equal(t, StateHalfOpen, b.State("ep"))
	assert.False(t, b.Allow("ep"), "second caller must wait for the trial to resolve")
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(t, 1, 10*time.Second)
	b.RecordFailure("ep")
	*now = now.Add(11 * time.Second)
	require.True(t, b.Allow("ep"))

	b.RecordSuccess("ep", 5*time.Millisecond)

	assert.Equal(t, StateClosed, b.State("ep"))
	assert.True(t, b.Allow("ep"))
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t, 1, 10*time.Second)
	b.RecordFailure("ep")
	*now = now.Add(11 * time.Second)
	require.True(t, b.Allow("ep"))

	b.RecordFailure("ep")

	assert.Equal(t, StateOpen, b.State("ep"))
	assert.False(t, b.Allow("ep"), "cool-down restarts after a failed trial")

	*now = now.Add(11 * time.Second)
	assert.True(t, b.Allow("ep"))
}

func TestBreakerReleaseFreesTrialWithoutCounting(t *testing.T) {
	b, now := newTestBreaker(t, 1, 10*time.Second)
	b.RecordFailure("ep")
	*now = now.Add(11 * time.Second)
	require.True(t, b.Allow("ep"))

	// The granted call was never attempted (cancelled before dispatch).
	b.Release("ep")

	assert.Equal(t, StateHalfOpen, b.State("ep"))
	assert.True(t, b.Allow("ep"), "trial slot must be reusable after release")
}

func TestBreakerCircuitsAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(t, 1, 10*time.Second)

	b.RecordFailure("dead")

	assert.Equal(t, StateOpen, b.State("dead"))
	assert.True(t, b.Allow("healthy"))
	assert.Equal(t, StateClosed, b.State("healthy"))
}
