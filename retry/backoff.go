// Package retry decides whether a failed call attempt may be tried again
// and how long to wait before the next attempt. A policy is consulted
// after every failure and never schedules an attempt past the deadline.
package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes the delay before the next retry attempt.
type Backoff interface {
	// Next returns the duration to wait before retry attempt number
	// attempt (zero-based).
	Next(attempt int) time.Duration

	// Reset resets any internal state.
	Reset()
}

// ExponentialBackoff implements exponential backoff with optional jitter.
// The pre-jitter schedule is monotonically non-decreasing.
type ExponentialBackoff struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	jitter  float64

	mu   sync.Mutex
	rand *rand.Rand
}

// NewExponentialBackoff creates a new exponential backoff.
func NewExponentialBackoff(initial, max time.Duration, factor, jitter float64) *ExponentialBackoff {
	if factor <= 1 {
		factor = 2.0
	}
	return &ExponentialBackoff{
		initial: initial,
		max:     max,
		factor:  factor,
		jitter:  jitter,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // timing jitter, not security-sensitive
	}
}

// Next implements Backoff.
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	backoff := float64(b.initial) * math.Pow(b.factor, float64(attempt))
	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}

	if b.jitter > 0 {
		b.mu.Lock()
		jitterRange := backoff * b.jitter
		backoff += (b.rand.Float64() * 2 * jitterRange) - jitterRange
		b.mu.Unlock()
	}

	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}

// Reset implements Backoff.
func (b *ExponentialBackoff) Reset() {}

// ConstantBackoff waits the same duration between every attempt.
type ConstantBackoff struct {
	interval time.Duration
}

// NewConstantBackoff creates a new constant backoff.
func NewConstantBackoff(interval time.Duration) *ConstantBackoff {
	return &ConstantBackoff{interval: interval}
}

// Next implements Backoff.
func (b *ConstantBackoff) Next(attempt int) time.Duration {
	return b.interval
}

// Reset implements Backoff.
func (b *ConstantBackoff) Reset() {}

// ScheduleBackoff walks a fixed delay schedule, repeating the last entry
// once the schedule is exhausted.
type ScheduleBackoff struct {
	schedule []time.Duration
}

// NewScheduleBackoff creates a backoff from an explicit delay schedule.
func NewScheduleBackoff(schedule ...time.Duration) *ScheduleBackoff {
	return &ScheduleBackoff{schedule: schedule}
}

// Next implements Backoff.
func (b *ScheduleBackoff) Next(attempt int) time.Duration {
	if len(b.schedule) == 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(b.schedule) {
		attempt = len(b.schedule) - 1
	}
	return b.schedule[attempt]
}

// Reset implements Backoff.
func (b *ScheduleBackoff) Reset() {}

// DecorrelatedJitterBackoff implements AWS-style decorrelated jitter.
type DecorrelatedJitterBackoff struct {
	initial time.Duration
	max     time.Duration

	mu      sync.Mutex
	rand    *rand.Rand
	current time.Duration
}

// NewDecorrelatedJitterBackoff creates a new decorrelated jitter backoff.
func NewDecorrelatedJitterBackoff(initial, max time.Duration) *DecorrelatedJitterBackoff {
	return &DecorrelatedJitterBackoff{
		initial: initial,
		max:     max,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // timing jitter, not security-sensitive
		current: initial,
	}
}

// Next implements Backoff.
func (b *DecorrelatedJitterBackoff) Next(attempt int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if attempt <= 0 {
		b.current = b.initial
		return b.current
	}

	// sleep = min(cap, random_between(base, sleep * 3))
	minBackoff := float64(b.initial)
	maxBackoff := float64(b.current) * 3

	backoff := minBackoff + b.rand.Float64()*(maxBackoff-minBackoff)
	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}

	b.current = time.Duration(backoff)
	return b.current
}

// Reset implements Backoff.
func (b *DecorrelatedJitterBackoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
}
