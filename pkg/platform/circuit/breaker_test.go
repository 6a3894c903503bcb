package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New("detector")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "detector", b.Name())
}

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	b := New("detector", WithFailureThreshold(3))

	for i := 0; i < 2; i++ {
		useFallback, change := b.RecordFailure()
		assert.False(t, useFallback, "failure %d must not trip the breaker", i+1)
		assert.False(t, change.Opened)
	}

	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())
}

func TestBreaker_ClosesAfterEnoughSuccesses(t *testing.T) {
	b := New("detector", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	usePrimary, change := b.RecordSuccess()
	assert.False(t, usePrimary, "one success is not recovery yet")
	assert.False(t, change.Closed)
	assert.True(t, b.IsOpen())

	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreaker_SuccessClearsTheFailureStreak(t *testing.T) {
	b := New("detector", WithFailureThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	// The streak restarted, so two more failures stay under threshold.
	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreaker_FailureClearsTheRecoveryStreak(t *testing.T) {
	b := New("detector", WithFailureThreshold(1), WithSuccessThreshold(3))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure()

	// Recovery starts over; three fresh successes are needed again.
	b.RecordSuccess()
	b.RecordSuccess()
	assert.True(t, b.IsOpen())
	b.RecordSuccess()
	assert.False(t, b.IsOpen())
}

func TestBreaker_ResetForcesClosed(t *testing.T) {
	b := New("detector", WithFailureThreshold(1))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_RepeatFailureWhileOpenIsNotAStateChange(t *testing.T) {
	b := New("detector", WithFailureThreshold(1))
	b.RecordFailure()

	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback)
	assert.False(t, change.Opened, "the breaker was already open")
}
