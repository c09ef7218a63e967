// Package rpcguard wraps outbound RPC calls with circuit breaking,
// deadline-aware retries, rate limiting, and call-chain tracing. A
// Client owns one circuit breaker per named dependency and assembles a
// per-dependency interceptor chain from configuration.
package rpcguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/rpcguard/breaker"
	"github.com/vyrodovalexey/rpcguard/config"
	"github.com/vyrodovalexey/rpcguard/middleware"
	"github.com/vyrodovalexey/rpcguard/outcome"
	"github.com/vyrodovalexey/rpcguard/retry"
	"github.com/vyrodovalexey/rpcguard/tracing"
)

// Client is the entry point for guarded calls. It is safe for concurrent
// use; one Client is meant to be shared across a whole process.
type Client struct {
	logger     *zap.Logger
	tracer     *tracing.Tracer
	classifier outcome.Classifier

	registry *breaker.Registry
	limiters *middleware.LimiterSet

	mu     sync.RWMutex
	cfg    *config.Config
	cfgGen uint64
	chains map[string]middleware.Interceptor

	watcher  *config.Watcher
	provider *tracing.Provider
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by all components.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer that spans every guarded call.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithClassifier sets the outcome classifier applied to downstream
// errors. Defaults to outcome.Auto().
func WithClassifier(classifier outcome.Classifier) Option {
	return func(c *Client) {
		if classifier != nil {
			c.classifier = classifier
		}
	}
}

// New creates a Client from the given configuration. A nil cfg uses the
// library defaults for every dependency. The logging and tracing blocks
// of the configuration are honored unless WithLogger or WithTracer
// override them.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	} else if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	c := &Client{
		classifier: outcome.Auto(),
		limiters:   middleware.NewLimiterSet(),
		chains:     make(map[string]middleware.Interceptor),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		logger, err := buildLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
		c.logger = logger
	}
	if c.tracer == nil {
		tracer, provider, err := buildTracer(cfg.Tracing, c.logger)
		if err != nil {
			return nil, err
		}
		c.tracer = tracer
		c.provider = provider
	}

	c.registry = breaker.NewRegistry(c.breakerConfig(cfg.Defaults), c.logger)
	c.ApplyConfig(cfg)

	return c, nil
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	idempotent bool
	timeout    time.Duration
}

// WithIdempotent marks the call as safe to retry. Without it the call
// gets exactly one attempt.
func WithIdempotent() CallOption {
	return func(o *callOptions) {
		o.idempotent = true
	}
}

// WithTimeout overrides the configured per-call timeout for this call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// Call runs invoke against the named dependency under the full guard
// chain: panic recovery, metrics, tracing, circuit breaking, rate
// limiting, deadline enforcement, and retries.
func (c *Client) Call(
	ctx context.Context,
	dependency, operation string,
	invoke middleware.Invoker,
	opts ...CallOption,
) (interface{}, error) {
	if dependency == "" {
		return nil, fmt.Errorf("rpcguard: dependency name must not be empty")
	}
	if invoke == nil {
		return nil, fmt.Errorf("rpcguard: invoke must not be nil")
	}

	var options callOptions
	for _, opt := range opts {
		opt(&options)
	}

	if options.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.timeout)
		defer cancel()
	}

	chain := c.chainFor(dependency)
	handler := chain(middleware.Executor(invoke, c.classifier, c.logger))

	call := &middleware.Call{
		Dependency: dependency,
		Operation:  operation,
		Idempotent: options.idempotent,
	}

	return handler(ctx, call)
}

// Wrap binds a dependency, operation, and invoker into a plain function
// so call sites do not repeat the naming on every call.
func (c *Client) Wrap(
	dependency, operation string,
	invoke middleware.Invoker,
	opts ...CallOption,
) func(ctx context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		return c.Call(ctx, dependency, operation, invoke, opts...)
	}
}

// Breakers returns the client's breaker registry for inspection and
// manual resets.
func (c *Client) Breakers() *breaker.Registry {
	return c.registry
}

// ApplyConfig installs a new configuration. Existing breakers keep their
// state; thresholds and retry budgets take effect on the next call.
func (c *Client) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	c.mu.Lock()
	c.cfg = cfg
	c.cfgGen++
	c.chains = make(map[string]middleware.Interceptor)
	c.mu.Unlock()

	c.registry.UpdateConfig(c.breakerConfig(cfg.Defaults))

	for name := range cfg.Dependencies {
		dep := cfg.Dependency(name)
		c.registry.Configure(name, c.breakerConfig(dep))
		c.limiters.Set(name, dep.RateLimitRPS, dep.RateLimitBurst)
		if dep.Engine == string(breaker.EngineGobreaker) {
			c.registry.GetOrCreateWithConfig(name, c.breakerConfig(dep), breaker.EngineGobreaker)
		}
	}

	c.logger.Info("configuration applied",
		zap.Int("dependencies", len(cfg.Dependencies)),
	)
}

// WatchConfig starts watching a configuration file and applies every
// valid reload. Invalid documents are logged and skipped.
func (c *Client) WatchConfig(ctx context.Context, path string) error {
	watcher, err := config.NewWatcher(path, c.ApplyConfig,
		config.WithWatcherLogger(c.logger),
		config.WithErrorCallback(func(err error) {
			c.logger.Error("config reload failed", zap.Error(err))
		}),
	)
	if err != nil {
		return err
	}

	if err := watcher.Start(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.watcher = watcher
	c.mu.Unlock()

	c.ApplyConfig(watcher.LastConfig())
	return nil
}

// Close releases the client's background resources.
func (c *Client) Close() error {
	c.mu.Lock()
	watcher := c.watcher
	c.watcher = nil
	provider := c.provider
	c.provider = nil
	c.mu.Unlock()

	var err error
	if watcher != nil {
		err = watcher.Stop()
	}
	if provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if stopErr := provider.Stop(ctx); err == nil {
			err = stopErr
		}
	}
	return err
}

// chainFor returns the cached interceptor chain for a dependency,
// building it from the current configuration on first use.
func (c *Client) chainFor(dependency string) middleware.Interceptor {
	for {
		c.mu.RLock()
		chain, ok := c.chains[dependency]
		cfg, gen := c.cfg, c.cfgGen
		c.mu.RUnlock()
		if ok {
			return chain
		}

		chain = c.buildChain(cfg.Dependency(dependency))
		if cached, stored := c.storeChain(dependency, chain, gen); stored {
			return cached
		}
		// A reload landed while the chain was being built; rebuild from
		// the configuration that replaced it.
	}
}

// buildChain assembles the interceptor chain for one dependency's
// effective settings.
func (c *Client) buildChain(dep config.DependencyConfig) middleware.Interceptor {
	return middleware.Chain(
		middleware.Recovery(c.logger),
		middleware.Metrics(c.classifier),
		middleware.Tracing(c.tracer, c.classifier),
		middleware.CircuitBreak(c.registry, c.classifier),
		middleware.RateLimit(c.limiters),
		middleware.Timeout(dep.PerCallTimeout.Duration()),
		middleware.Retry(c.retryPolicy(dep), c.logger),
	)
}

// storeChain caches a freshly built chain unless the configuration
// changed since gen was observed, so a chain derived from a replaced
// config never outlives the reload that replaced it.
func (c *Client) storeChain(
	dependency string,
	chain middleware.Interceptor,
	gen uint64,
) (middleware.Interceptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.cfgGen {
		return nil, false
	}
	if existing, ok := c.chains[dependency]; ok {
		return existing, true
	}
	c.chains[dependency] = chain
	return chain, true
}

// breakerConfig maps a dependency's settings to a breaker config.
func (c *Client) breakerConfig(dep config.DependencyConfig) *breaker.Config {
	classifier := c.classifier
	return &breaker.Config{
		TripThreshold:  dep.TripThreshold,
		SampleSize:     dep.SampleSize,
		Cooldown:       dep.Cooldown.Duration(),
		SamplingWindow: dep.SamplingWindow.Duration(),
		WindowSize:     dep.WindowSize,
		ProbeTimeout:   dep.ProbeTimeout.Duration(),
		IsFailure: func(err error) bool {
			return middleware.ErrorKind(err, classifier).IsFailure()
		},
	}
}

// retryPolicy maps a dependency's settings to a retry policy.
func (c *Client) retryPolicy(dep config.DependencyConfig) *retry.Policy {
	backoff := retry.NewExponentialBackoff(
		dep.BackoffBase.Duration(),
		dep.BackoffMax.Duration(),
		2.0,
		dep.BackoffJitter,
	)

	return &retry.Policy{
		MaxAttempts:      dep.MaxAttempts,
		Backoff:          backoff,
		MinAttemptBudget: dep.MinAttemptBudget.Duration(),
		Classifier:       middleware.Classifier(c.classifier),
		Logger:           c.logger,
	}
}
