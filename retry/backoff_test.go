package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_GrowsAndCaps(t *testing.T) {
	b := NewExponentialBackoff(100*time.Millisecond, time.Second, 2.0, 0)

	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 200*time.Millisecond, b.Next(1))
	assert.Equal(t, 400*time.Millisecond, b.Next(2))
	assert.Equal(t, 800*time.Millisecond, b.Next(3))
	// Capped at max.
	assert.Equal(t, time.Second, b.Next(4))
	assert.Equal(t, time.Second, b.Next(10))
}

func TestExponentialBackoff_JitterStaysInRange(t *testing.T) {
	b := NewExponentialBackoff(100*time.Millisecond, time.Second, 2.0, 0.5)

	for i := 0; i < 100; i++ {
		d := b.Next(1)
		// 200ms +/- 50%.
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestExponentialBackoff_NegativeAttemptClamped(t *testing.T) {
	b := NewExponentialBackoff(100*time.Millisecond, time.Second, 2.0, 0)
	assert.Equal(t, 100*time.Millisecond, b.Next(-1))
}

func TestConstantBackoff(t *testing.T) {
	b := NewConstantBackoff(50 * time.Millisecond)

	assert.Equal(t, 50*time.Millisecond, b.Next(0))
	assert.Equal(t, 50*time.Millisecond, b.Next(5))
}

func TestScheduleBackoff(t *testing.T) {
	b := NewScheduleBackoff(10*time.Millisecond, 20*time.Millisecond, 40*time.Millisecond)

	assert.Equal(t, 10*time.Millisecond, b.Next(0))
	assert.Equal(t, 20*time.Millisecond, b.Next(1))
	assert.Equal(t, 40*time.Millisecond, b.Next(2))
	assert.Equal(t, 40*time.Millisecond, b.Next(9))
}

func TestScheduleBackoff_Empty(t *testing.T) {
	b := NewScheduleBackoff()
	assert.Equal(t, time.Duration(0), b.Next(0))
}

func TestDecorrelatedJitterBackoff_Bounds(t *testing.T) {
	b := NewDecorrelatedJitterBackoff(10*time.Millisecond, 100*time.Millisecond)

	assert.Equal(t, 10*time.Millisecond, b.Next(0))
	for i := 1; i < 50; i++ {
		d := b.Next(i)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}

	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.Next(0))
}
