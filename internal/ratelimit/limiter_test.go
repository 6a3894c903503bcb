package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_WithinLimit(t *testing.T) {
	l := New(3, time.Minute)
	now := time.Now()

	assert.True(t, l.Allow("10.0.0.1", now))
	assert.True(t, l.Allow("10.0.0.1", now))
	assert.True(t, l.Allow("10.0.0.1", now))
	assert.False(t, l.Allow("10.0.0.1", now))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	now := time.Now()

	assert.True(t, l.Allow("10.0.0.1", now))
	assert.False(t, l.Allow("10.0.0.1", now))
	assert.True(t, l.Allow("10.0.0.2", now))
}

func TestAllow_WindowSlides(t *testing.T) {
	l := New(2, time.Minute)
	start := time.Now()

	assert.True(t, l.Allow("10.0.0.1", start))
	assert.True(t, l.Allow("10.0.0.1", start.Add(30*time.Second)))
	assert.False(t, l.Allow("10.0.0.1", start.Add(45*time.Second)))

	// The first attempt ages out; one slot frees up while the second
	// attempt still counts.
	assert.True(t, l.Allow("10.0.0.1", start.Add(61*time.Second)))
	assert.False(t, l.Allow("10.0.0.1", start.Add(62*time.Second)))
}

func TestAllow_DeniedAttemptsAreNotCounted(t *testing.T) {
	l := New(1, time.Minute)
	start := time.Now()

	assert.True(t, l.Allow("10.0.0.1", start))
	for i := 0; i < 10; i++ {
		assert.False(t, l.Allow("10.0.0.1", start.Add(time.Duration(i)*time.Second)))
	}
	// Hammering while blocked must not extend the block.
	assert.True(t, l.Allow("10.0.0.1", start.Add(61*time.Second)))
}
