package breaker

import (
	"sync"

	"go.uber.org/zap"
)

// Registry manages one circuit breaker per dependency name. It is an
// explicit object with lifecycle tied to the owning client, injected into
// call sites rather than reached through a package-level singleton, so
// tests can use a fresh registry each.
type Registry struct {
	breakers sync.Map

	mu      sync.RWMutex
	config  *Config
	engines map[string]*Config

	logger *zap.Logger
}

// NewRegistry creates a registry whose breakers default to config.
func NewRegistry(config *Config, logger *zap.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		config:  config,
		engines: make(map[string]*Config),
		logger:  logger,
	}
}

// Get returns the breaker for name, or nil if none exists yet.
func (r *Registry) Get(name string) Breaker {
	value, ok := r.breakers.Load(name)
	if !ok {
		return nil
	}
	return value.(Breaker)
}

// GetOrCreate returns the breaker for name, creating it from the registry
// default config on first use.
func (r *Registry) GetOrCreate(name string) Breaker {
	r.mu.RLock()
	cfg := r.config
	if override, ok := r.engines[name]; ok {
		cfg = override
	}
	r.mu.RUnlock()
	return r.GetOrCreateWithConfig(name, cfg, EngineNative)
}

// GetOrCreateWithConfig returns the breaker for name, creating it with the
// given config and engine on first use.
func (r *Registry) GetOrCreateWithConfig(name string, config *Config, engine Engine) Breaker {
	if value, ok := r.breakers.Load(name); ok {
		return value.(Breaker)
	}

	var cb Breaker
	switch engine {
	case EngineGobreaker:
		cb = NewSonyBreaker(name, config, r.logger)
	default:
		cb = New(name, config, r.logger)
	}

	actual, loaded := r.breakers.LoadOrStore(name, cb)
	if loaded {
		return actual.(Breaker)
	}

	r.logger.Debug("created circuit breaker",
		zap.String("name", name),
		zap.String("engine", string(engine)),
	)

	return cb
}

// Configure sets the config used when the breaker for name is created,
// and updates the breaker in place when it already exists and supports
// live reconfiguration.
func (r *Registry) Configure(name string, config *Config) {
	r.mu.Lock()
	r.engines[name] = config
	r.mu.Unlock()

	if value, ok := r.breakers.Load(name); ok {
		if cb, ok := value.(*CircuitBreaker); ok {
			cb.UpdateConfig(config)
			return
		}
		r.logger.Warn("breaker engine does not support live reconfiguration",
			zap.String("name", name),
		)
	}
}

// UpdateConfig replaces the default config for breakers created later.
func (r *Registry) UpdateConfig(config *Config) {
	if config == nil {
		return
	}
	r.mu.Lock()
	r.config = config
	r.mu.Unlock()
}

// Remove removes the breaker for name.
func (r *Registry) Remove(name string) {
	r.breakers.Delete(name)
}

// Names returns the names of all registered breakers.
func (r *Registry) Names() []string {
	var names []string
	r.breakers.Range(func(key, value interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

// ResetAll resets every native breaker to closed state.
func (r *Registry) ResetAll() {
	r.breakers.Range(func(key, value interface{}) bool {
		if cb, ok := value.(*CircuitBreaker); ok {
			cb.Reset()
		}
		return true
	})
	r.logger.Info("reset all circuit breakers")
}

// Stats returns counter snapshots for all native breakers.
func (r *Registry) Stats() map[string]Stats {
	stats := make(map[string]Stats)
	r.breakers.Range(func(key, value interface{}) bool {
		if cb, ok := value.(*CircuitBreaker); ok {
			stats[key.(string)] = cb.Stats()
		}
		return true
	})
	return stats
}

// Count returns the number of registered breakers.
func (r *Registry) Count() int {
	count := 0
	r.breakers.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}
