package breaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and calls pass through.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and calls fast-fail.
	StateOpen

	// StateHalfOpen indicates a single probe call is testing recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit
// is open or a half-open probe is already in flight. It is distinguishable
// from downstream failures so retry logic never burns an attempt on it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StateChange describes one breaker state transition.
type StateChange struct {
	Name string
	From State
	To   State
	At   time.Time
}

// Breaker is the admission interface shared by the native breaker and the
// gobreaker adapter. Allow either admits the call and returns a done
// callback that must be invoked exactly once with the call's terminal
// error, or rejects the call with ErrCircuitOpen.
type Breaker interface {
	Name() string
	State() State
	Allow() (done func(err error), err error)
}

// CircuitBreaker is a windowed failure-rate state machine. It is safe for
// concurrent use; all counters and transitions are guarded by one mutex.
type CircuitBreaker struct {
	name   string
	logger *zap.Logger

	mu  sync.Mutex
	cfg *Config

	state State

	// generation increments on every state transition. Done callbacks
	// carry the generation they were admitted under; a callback from an
	// earlier generation is stale and must not decide the current state.
	generation uint64

	failures int
	total    int

	windowStart     time.Time
	lastStateChange time.Time

	probeInFlight bool
	probeStarted  time.Time
}

var _ Breaker = (*CircuitBreaker)(nil)

// New creates a circuit breaker for the named dependency.
func New(name string, cfg *Config, logger *zap.Logger) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.clone()
	}
	cfg.Validate()

	if logger == nil {
		logger = zap.NewNop()
	}

	now := time.Now()
	return &CircuitBreaker{
		name:            name,
		cfg:             cfg,
		logger:          logger,
		state:           StateClosed,
		windowStart:     now,
		lastStateChange: now,
	}
}

// Name returns the dependency name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state, accounting for cooldown expiry.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked(time.Now())
	return cb.state
}

// Allow admits or rejects a call. On admission the returned done callback
// must be invoked with the call's terminal error so the outcome is
// recorded; on rejection done is nil and ErrCircuitOpen is returned.
func (cb *CircuitBreaker) Allow() (func(err error), error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.advanceLocked(now)

	switch cb.state {
	case StateClosed:
		RecordRequest(cb.name, true)
		return cb.doneLocked(), nil

	case StateHalfOpen:
		if cb.probeInFlight {
			RecordRequest(cb.name, false)
			return nil, ErrCircuitOpen
		}
		cb.probeInFlight = true
		cb.probeStarted = now
		RecordRequest(cb.name, true)
		return cb.doneLocked(), nil

	default:
		RecordRequest(cb.name, false)
		return nil, ErrCircuitOpen
	}
}

// doneLocked builds a done callback fenced to the current generation.
func (cb *CircuitBreaker) doneLocked() func(err error) {
	gen := cb.generation
	return func(err error) {
		cb.record(gen, err)
	}
}

// record applies the outcome of a call admitted under gen.
func (cb *CircuitBreaker) record(gen uint64, err error) {
	failed := cb.isFailure(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	// The breaker transitioned since this call was admitted: a call that
	// outlived a trip, cooldown, or probe decision is not the probe and
	// its outcome must not mutate the current window.
	if gen != cb.generation {
		return
	}

	if failed {
		RecordFailure(cb.name)
	} else {
		RecordSuccess(cb.name)
	}

	switch cb.state {
	case StateHalfOpen:
		cb.probeInFlight = false
		if failed {
			cb.transitionLocked(StateOpen, now)
		} else {
			cb.transitionLocked(StateClosed, now)
		}

	case StateClosed:
		cb.rollWindowLocked(now)
		cb.total++
		if failed {
			cb.failures++
		}
		if cb.failures >= cb.cfg.TripThreshold && cb.total >= cb.cfg.SampleSize {
			cb.transitionLocked(StateOpen, now)
		}
	}
}

// advanceLocked applies time-based transitions: open -> half-open after
// the cooldown, and half-open -> open when a probe never completed.
func (cb *CircuitBreaker) advanceLocked(now time.Time) {
	switch cb.state {
	case StateOpen:
		if now.Sub(cb.lastStateChange) >= cb.cfg.Cooldown {
			cb.transitionLocked(StateHalfOpen, now)
		}
	case StateHalfOpen:
		if cb.probeInFlight && now.Sub(cb.probeStarted) >= cb.cfg.ProbeTimeout {
			cb.probeInFlight = false
			cb.transitionLocked(StateOpen, now)
		}
	}
}

// rollWindowLocked resets counters when the evaluation window rolled over.
func (cb *CircuitBreaker) rollWindowLocked(now time.Time) {
	if cb.cfg.SamplingWindow > 0 && now.Sub(cb.windowStart) >= cb.cfg.SamplingWindow {
		cb.resetCountersLocked(now)
		return
	}
	if cb.cfg.WindowSize > 0 && cb.total >= cb.cfg.WindowSize {
		cb.resetCountersLocked(now)
	}
}

// transitionLocked moves the breaker to a new state and resets counters.
func (cb *CircuitBreaker) transitionLocked(to State, now time.Time) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.generation++
	cb.lastStateChange = now
	cb.resetCountersLocked(now)

	change := StateChange{Name: cb.name, From: from, To: to, At: now}
	RecordStateChange(cb.name, from, to)

	cb.logger.Info("circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)

	if cb.cfg.OnStateChange != nil {
		go cb.cfg.OnStateChange(change)
	}
}

// resetCountersLocked resets the window counters.
func (cb *CircuitBreaker) resetCountersLocked(now time.Time) {
	cb.failures = 0
	cb.total = 0
	cb.windowStart = now
}

// isFailure applies the configured classification predicate.
func (cb *CircuitBreaker) isFailure(err error) bool {
	if cb.cfg.IsFailure != nil {
		return cb.cfg.IsFailure(err)
	}
	return err != nil
}

// Reset forces the breaker back to closed with fresh counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.state = StateClosed
	cb.generation++
	cb.probeInFlight = false
	cb.resetCountersLocked(now)
	cb.lastStateChange = now

	cb.logger.Info("circuit breaker reset", zap.String("name", cb.name))
}

// UpdateConfig replaces the breaker's thresholds without resetting its
// state. Used by configuration hot reload.
func (cb *CircuitBreaker) UpdateConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg = cfg.clone()
	cfg.Validate()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.cfg = cfg
}

// Stats holds a snapshot of breaker counters.
type Stats struct {
	State           State
	Failures        int
	Total           int
	WindowStart     time.Time
	LastStateChange time.Time
}

// Stats returns a snapshot of the breaker's current counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		State:           cb.state,
		Failures:        cb.failures,
		Total:           cb.total,
		WindowStart:     cb.windowStart,
		LastStateChange: cb.lastStateChange,
	}
}
