package breaker

import (
	"errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// SonyBreaker adapts sony/gobreaker's two-step breaker to the Breaker
// interface. MaxRequests is pinned to one so half-open admits a single
// probe, matching the native breaker's semantics.
type SonyBreaker struct {
	name   string
	cb     *gobreaker.TwoStepCircuitBreaker
	logger *zap.Logger

	isFailure func(err error) bool
}

var _ Breaker = (*SonyBreaker)(nil)

// NewSonyBreaker creates a gobreaker-backed Breaker.
func NewSonyBreaker(name string, cfg *Config, logger *zap.Logger) *SonyBreaker {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.clone()
	}
	cfg.Validate()

	if logger == nil {
		logger = zap.NewNop()
	}

	sb := &SonyBreaker{
		name:      name,
		logger:    logger,
		isFailure: cfg.IsFailure,
	}

	tripThreshold := safeIntToUint32(cfg.TripThreshold)
	sampleSize := safeIntToUint32(cfg.SampleSize)
	onStateChange := cfg.OnStateChange

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.SamplingWindow,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= tripThreshold && counts.Requests >= sampleSize
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromState := fromGobreakerState(from)
			toState := fromGobreakerState(to)
			RecordStateChange(name, fromState, toState)
			logger.Info("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)
			if onStateChange != nil {
				onStateChange(StateChange{Name: name, From: fromState, To: toState})
			}
		},
	}

	sb.cb = gobreaker.NewTwoStepCircuitBreaker(settings)
	return sb
}

// Name returns the dependency name this breaker guards.
func (sb *SonyBreaker) Name() string {
	return sb.name
}

// State returns the current state.
func (sb *SonyBreaker) State() State {
	return fromGobreakerState(sb.cb.State())
}

// Allow implements Breaker.
func (sb *SonyBreaker) Allow() (func(err error), error) {
	done, err := sb.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			RecordRequest(sb.name, false)
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	RecordRequest(sb.name, true)
	return func(callErr error) {
		failed := sb.failed(callErr)
		if failed {
			RecordFailure(sb.name)
		} else {
			RecordSuccess(sb.name)
		}
		done(!failed)
	}, nil
}

// failed applies the configured failure predicate.
func (sb *SonyBreaker) failed(err error) bool {
	if sb.isFailure != nil {
		return sb.isFailure(err)
	}
	return err != nil
}

// fromGobreakerState maps gobreaker states onto this package's states.
func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n)
}
