package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry(testConfig(), zap.NewNop())

	cb := r.GetOrCreate("payments")
	require.NotNil(t, cb)
	assert.Equal(t, "payments", cb.Name())

	// Same name returns the same breaker.
	assert.Same(t, cb, r.GetOrCreate("payments"))

	// Different name returns a different breaker.
	other := r.GetOrCreate("inventory")
	assert.NotSame(t, cb, other)
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_GetReturnsNilForUnknown(t *testing.T) {
	r := NewRegistry(testConfig(), zap.NewNop())
	assert.Nil(t, r.Get("missing"))
}

func TestRegistry_BreakersAreIndependent(t *testing.T) {
	cfg := testConfig()
	cfg.TripThreshold = 1
	cfg.SampleSize = 1
	r := NewRegistry(cfg, zap.NewNop())

	payments := r.GetOrCreate("payments")
	inventory := r.GetOrCreate("inventory")

	done, err := payments.Allow()
	require.NoError(t, err)
	done(errDownstream)

	assert.Equal(t, StateOpen, payments.State())
	assert.Equal(t, StateClosed, inventory.State())
}

func TestRegistry_ConfigureOverridesBeforeCreation(t *testing.T) {
	r := NewRegistry(testConfig(), zap.NewNop())

	override := testConfig()
	override.TripThreshold = 1
	override.SampleSize = 1
	r.Configure("payments", override)

	cb := r.GetOrCreate("payments")
	done, err := cb.Allow()
	require.NoError(t, err)
	done(errDownstream)

	assert.Equal(t, StateOpen, cb.State())
}

func TestRegistry_ConfigureUpdatesExistingNativeBreaker(t *testing.T) {
	r := NewRegistry(testConfig(), zap.NewNop())
	cb := r.GetOrCreate("payments")

	override := testConfig()
	override.TripThreshold = 1
	override.SampleSize = 1
	r.Configure("payments", override)

	done, err := cb.Allow()
	require.NoError(t, err)
	done(errDownstream)

	assert.Equal(t, StateOpen, cb.State())
}

func TestRegistry_GetOrCreateWithConfig_GobreakerEngine(t *testing.T) {
	r := NewRegistry(testConfig(), zap.NewNop())

	cfg := testConfig()
	cfg.TripThreshold = 1
	cfg.SampleSize = 1
	cb := r.GetOrCreateWithConfig("payments", cfg, EngineGobreaker)
	require.NotNil(t, cb)

	_, ok := cb.(*SonyBreaker)
	assert.True(t, ok)

	done, err := cb.Allow()
	require.NoError(t, err)
	done(errDownstream)
	assert.Equal(t, StateOpen, cb.State())
}

func TestRegistry_ResetAll(t *testing.T) {
	cfg := testConfig()
	cfg.TripThreshold = 1
	cfg.SampleSize = 1
	r := NewRegistry(cfg, zap.NewNop())

	cb := r.GetOrCreate("payments")
	done, err := cb.Allow()
	require.NoError(t, err)
	done(errDownstream)
	require.Equal(t, StateOpen, cb.State())

	r.ResetAll()
	assert.Equal(t, StateClosed, cb.State())
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(testConfig(), zap.NewNop())
	r.GetOrCreate("payments")

	r.Remove("payments")
	assert.Nil(t, r.Get("payments"))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry(testConfig(), zap.NewNop())
	cb := r.GetOrCreate("payments")

	done, err := cb.Allow()
	require.NoError(t, err)
	done(nil)

	stats := r.Stats()
	require.Contains(t, stats, "payments")
	assert.Equal(t, 1, stats["payments"].Total)
	assert.Equal(t, 0, stats["payments"].Failures)
}

func TestSonyBreaker_TripAndRecover(t *testing.T) {
	cfg := testConfig()
	cfg.TripThreshold = 2
	cfg.SampleSize = 2
	cfg.Cooldown = 20 * time.Millisecond
	cb := NewSonyBreaker("test", cfg, zap.NewNop())

	for i := 0; i < 2; i++ {
		done, err := cb.Allow()
		require.NoError(t, err)
		done(errDownstream)
	}
	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Allow()
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(25 * time.Millisecond)

	// Single successful probe closes the circuit.
	done, err := cb.Allow()
	require.NoError(t, err)
	done(nil)
	assert.Equal(t, StateClosed, cb.State())
}

func TestSonyBreaker_SingleProbeInHalfOpen(t *testing.T) {
	cfg := testConfig()
	cfg.TripThreshold = 1
	cfg.SampleSize = 1
	cfg.Cooldown = 20 * time.Millisecond
	cb := NewSonyBreaker("test", cfg, zap.NewNop())

	done, err := cb.Allow()
	require.NoError(t, err)
	done(errDownstream)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(25 * time.Millisecond)

	first, err := cb.Allow()
	require.NoError(t, err)

	_, err = cb.Allow()
	assert.ErrorIs(t, err, ErrCircuitOpen)

	first(nil)
	assert.Equal(t, StateClosed, cb.State())
}
