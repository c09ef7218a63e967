package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/rpcguard/breaker"
	"github.com/vyrodovalexey/rpcguard/outcome"
)

// Default policy values.
const (
	// DefaultMaxAttempts is the default attempt budget, including the
	// first attempt.
	DefaultMaxAttempts = 3

	// DefaultBackoffBase is the default initial backoff duration.
	DefaultBackoffBase = 100 * time.Millisecond

	// DefaultBackoffMax is the default maximum backoff duration.
	DefaultBackoffMax = 10 * time.Second

	// DefaultBackoffJitter is the default jitter factor.
	DefaultBackoffJitter = 0.25

	// DefaultMinAttemptBudget is the minimum time that must remain before
	// the deadline for another attempt to be worth starting.
	DefaultMinAttemptBudget = 5 * time.Millisecond
)

// Policy is the per-call retry decision function. A Policy value is cheap
// and stateless; derive one per call sequence from the dependency's
// configuration.
type Policy struct {
	// MaxAttempts bounds the total number of attempts, first included.
	MaxAttempts int

	// Backoff computes the delay between attempts. If nil, exponential
	// backoff with the default base and jitter is used.
	Backoff Backoff

	// MinAttemptBudget is the minimum remaining time before the deadline
	// required to start another attempt.
	MinAttemptBudget time.Duration

	// Classifier decides whether the last error is retryable. If nil,
	// outcome.Auto() is used.
	Classifier outcome.Classifier

	// Logger logs retry decisions at debug level.
	Logger *zap.Logger
}

// NewPolicy returns a Policy with defaults filled in.
func NewPolicy(maxAttempts int, backoff Backoff) *Policy {
	p := &Policy{MaxAttempts: maxAttempts, Backoff: backoff}
	p.normalize()
	return p
}

// normalize fills zero values with defaults.
func (p *Policy) normalize() {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = NewExponentialBackoff(
			DefaultBackoffBase, DefaultBackoffMax, 2.0, DefaultBackoffJitter)
	}
	if p.MinAttemptBudget <= 0 {
		p.MinAttemptBudget = DefaultMinAttemptBudget
	}
	if p.Classifier == nil {
		p.Classifier = outcome.Auto()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
}

// ShouldRetry reports whether another attempt may be made after attempt
// attempts have been made (first included) and the last one failed with
// lastErr. The deadline is the call's absolute deadline; zero means none.
//
// A circuit-open rejection is never retried: the breaker already knows the
// dependency is unhealthy and another attempt cannot succeed. Deadline
// expiry is never retried because the budget is gone by definition.
func (p *Policy) ShouldRetry(attempt int, deadline time.Time, lastErr error) bool {
	p.normalize()

	if attempt >= p.MaxAttempts {
		return false
	}

	if errors.Is(lastErr, breaker.ErrCircuitOpen) {
		return false
	}
	if errors.Is(lastErr, context.DeadlineExceeded) || errors.Is(lastErr, context.Canceled) {
		return false
	}

	if !p.Classifier.Classify(lastErr).Retryable() {
		return false
	}

	if !deadline.IsZero() {
		delay := p.Backoff.Next(attempt - 1)
		if time.Now().Add(delay + p.MinAttemptBudget).After(deadline) {
			p.Logger.Debug("retry declined: insufficient deadline budget",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Time("deadline", deadline),
			)
			return false
		}
	}

	return true
}

// Delay returns the backoff delay before retry attempt number attempt
// (one-based: Delay(1) is the wait after the first failed attempt).
func (p *Policy) Delay(attempt int) time.Duration {
	p.normalize()
	return p.Backoff.Next(attempt - 1)
}

// Wait sleeps for the backoff delay before retry attempt number attempt,
// returning early with the context error if ctx is done first.
func (p *Policy) Wait(ctx context.Context, attempt int) error {
	delay := p.Delay(attempt)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
