package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackoff_ExponentialGrowth(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second, 10)

	var delays []time.Duration
	for i := 0; i < 5; i++ {
		delay, stop := b.Next()
		require.False(t, stop)
		delays = append(delays, delay)
	}

	// The fifth delay is nominally 16s; jitter spreads it +/-20%.
	nominal := 16 * time.Second
	assert.GreaterOrEqual(t, delays[4], time.Duration(float64(nominal)*0.8))
	assert.LessOrEqual(t, delays[4], time.Duration(float64(nominal)*1.2))
}

func TestNewBackoff_Cap(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second, 10)

	var last time.Duration
	for i := 0; i < 8; i++ {
		delay, stop := b.Next()
		require.False(t, stop)
		last = delay
	}

	// Nominally 128s, capped to 30s before jitter applies.
	capped := 30 * time.Second
	assert.GreaterOrEqual(t, last, time.Duration(float64(capped)*0.8))
	assert.LessOrEqual(t, last, time.Duration(float64(capped)*1.2))
}

func TestNewBackoff_Exhaustion(t *testing.T) {
	b := NewBackoff(time.Millisecond, 10*time.Millisecond, 3)

	for i := 0; i < 3; i++ {
		_, stop := b.Next()
		require.False(t, stop, "attempt %d should be allowed", i+1)
	}

	_, stop := b.Next()
	assert.True(t, stop)
}
