// Package breaker implements the circuit breaker pattern for downstream
// dependencies. One breaker guards one logical dependency and fast-fails
// calls once the dependency is judged unhealthy.
package breaker

import (
	"time"
)

// Engine selects the breaker implementation backing a dependency.
type Engine string

const (
	// EngineNative uses the windowed state machine in this package.
	EngineNative Engine = "native"

	// EngineGobreaker uses sony/gobreaker's two-step breaker.
	EngineGobreaker Engine = "gobreaker"
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// TripThreshold is the number of recorded failures within the current
	// evaluation window that opens the circuit.
	TripThreshold int

	// SampleSize is the minimum number of recorded calls in the window
	// before the trip threshold is evaluated.
	SampleSize int

	// Cooldown is how long the circuit stays open before admitting a
	// half-open probe.
	Cooldown time.Duration

	// SamplingWindow bounds the evaluation window in time. Counters reset
	// when the window rolls over. Zero disables time-based rollover.
	SamplingWindow time.Duration

	// WindowSize bounds the evaluation window by call count. Counters
	// reset once this many calls have been recorded. Zero disables
	// count-based rollover.
	WindowSize int

	// ProbeTimeout is how long a half-open probe may stay in flight before
	// it is treated as failed. Zero falls back to Cooldown.
	ProbeTimeout time.Duration

	// IsFailure decides whether an error counts as a dependency failure.
	// If nil, all non-nil errors count. Caller-side errors must be
	// excluded here so they never trip the breaker.
	IsFailure func(err error) bool

	// OnStateChange is called after every state transition.
	OnStateChange func(change StateChange)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		TripThreshold:  5,
		SampleSize:     10,
		Cooldown:       30 * time.Second,
		SamplingWindow: time.Minute,
	}
}

// Validate normalizes out-of-range values.
func (c *Config) Validate() {
	if c.TripThreshold < 1 {
		c.TripThreshold = 5
	}
	if c.SampleSize < 1 {
		c.SampleSize = c.TripThreshold
	}
	if c.Cooldown < time.Millisecond {
		c.Cooldown = 30 * time.Second
	}
	if c.SamplingWindow < 0 {
		c.SamplingWindow = time.Minute
	}
	if c.WindowSize < 0 {
		c.WindowSize = 0
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = c.Cooldown
	}
}

// WithTripThreshold sets the trip threshold.
func (c *Config) WithTripThreshold(n int) *Config {
	c.TripThreshold = n
	return c
}

// WithSampleSize sets the minimum sample size.
func (c *Config) WithSampleSize(n int) *Config {
	c.SampleSize = n
	return c
}

// WithCooldown sets the open-state cooldown.
func (c *Config) WithCooldown(d time.Duration) *Config {
	c.Cooldown = d
	return c
}

// WithSamplingWindow sets the time-based evaluation window.
func (c *Config) WithSamplingWindow(d time.Duration) *Config {
	c.SamplingWindow = d
	return c
}

// WithIsFailure sets the failure classification predicate.
func (c *Config) WithIsFailure(fn func(err error) bool) *Config {
	c.IsFailure = fn
	return c
}

// WithOnStateChange sets the state change callback.
func (c *Config) WithOnStateChange(fn func(change StateChange)) *Config {
	c.OnStateChange = fn
	return c
}

// clone returns a copy so breakers never share a mutable Config.
func (c *Config) clone() *Config {
	derived := *c
	return &derived
}
