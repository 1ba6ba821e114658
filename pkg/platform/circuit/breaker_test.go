package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New("kv")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "kv", b.Name())
	assert.Equal(t, "closed", b.State().String())
}

func TestBreaker_OpensOnThresholdAndReportsTransitionOnce(t *testing.T) {
	b := New("kv", WithFailureThreshold(2))

	useFallback, change := b.RecordFailure()
	assert.False(t, useFallback)
	assert.False(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)

	// already open: fallback without a second transition
	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.False(t, change.Opened)
}

func TestBreaker_ClosesAfterConsecutiveSuccesses(t *testing.T) {
	b := New("kv", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	usePrimary, change := b.RecordSuccess()
	assert.False(t, usePrimary)
	assert.False(t, change.Closed)

	// a failure in between restarts the success streak
	b.RecordFailure()
	b.RecordSuccess()
	assert.True(t, b.IsOpen())

	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreaker_SuccessWhileClosedClearsFailures(t *testing.T) {
	b := New("kv", WithFailureThreshold(3))
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
}

func TestBreaker_ResetAndIgnoredOptions(t *testing.T) {
	b := New("kv", WithFailureThreshold(0), WithSuccessThreshold(-1))
	for range 5 {
		b.RecordFailure()
	}
	assert.True(t, b.IsOpen(), "non-positive thresholds keep the default of 5")

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}
