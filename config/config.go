// Package config defines the file-based configuration for guarded
// dependencies: circuit breaker thresholds, retry budgets, timeouts, and
// rate limits, with per-dependency overrides on top of shared defaults.
package config

import (
	"fmt"
	"time"
)

// DependencyConfig holds the resilience settings for one dependency.
// Zero values mean "inherit from defaults" when used as an override.
type DependencyConfig struct {
	// Circuit breaker settings.
	TripThreshold  int      `yaml:"tripThreshold" json:"tripThreshold"`
	SampleSize     int      `yaml:"sampleSize" json:"sampleSize"`
	Cooldown       Duration `yaml:"cooldown" json:"cooldown"`
	SamplingWindow Duration `yaml:"samplingWindow" json:"samplingWindow"`
	WindowSize     int      `yaml:"windowSize" json:"windowSize"`
	ProbeTimeout   Duration `yaml:"probeTimeout" json:"probeTimeout"`
	Engine         string   `yaml:"engine" json:"engine"`

	// Retry settings.
	MaxAttempts      int      `yaml:"maxAttempts" json:"maxAttempts"`
	BackoffBase      Duration `yaml:"backoffBase" json:"backoffBase"`
	BackoffMax       Duration `yaml:"backoffMax" json:"backoffMax"`
	BackoffJitter    float64  `yaml:"backoffJitter" json:"backoffJitter"`
	MinAttemptBudget Duration `yaml:"minAttemptBudget" json:"minAttemptBudget"`

	// Call settings.
	PerCallTimeout Duration `yaml:"perCallTimeout" json:"perCallTimeout"`
	RateLimitRPS   float64  `yaml:"rateLimitRps" json:"rateLimitRps"`
	RateLimitBurst int      `yaml:"rateLimitBurst" json:"rateLimitBurst"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	ServiceName string            `yaml:"serviceName" json:"serviceName"`
	Exporter    string            `yaml:"exporter" json:"exporter"`
	Endpoint    string            `yaml:"endpoint" json:"endpoint"`
	Insecure    bool              `yaml:"insecure" json:"insecure"`
	SampleRate  float64           `yaml:"sampleRate" json:"sampleRate"`
	Headers     map[string]string `yaml:"headers" json:"headers"`
	Propagators []string          `yaml:"propagators" json:"propagators"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Config is the root configuration document.
type Config struct {
	// Defaults applies to every dependency without an override.
	Defaults DependencyConfig `yaml:"defaults" json:"defaults"`

	// Dependencies holds per-dependency overrides keyed by name.
	Dependencies map[string]DependencyConfig `yaml:"dependencies" json:"dependencies"`

	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DefaultConfig returns a Config with library defaults filled in.
func DefaultConfig() *Config {
	return &Config{
		Defaults: DependencyConfig{
			TripThreshold:  5,
			SampleSize:     10,
			Cooldown:       Duration(30 * time.Second),
			SamplingWindow: Duration(time.Minute),
			ProbeTimeout:   Duration(10 * time.Second),
			MaxAttempts:    3,
			BackoffBase:    Duration(100 * time.Millisecond),
			BackoffMax:     Duration(10 * time.Second),
			BackoffJitter:  0.25,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// Dependency returns the effective settings for a dependency: the
// defaults with the named override's non-zero fields applied on top.
func (c *Config) Dependency(name string) DependencyConfig {
	merged := c.Defaults
	override, ok := c.Dependencies[name]
	if !ok {
		return merged
	}

	if override.TripThreshold > 0 {
		merged.TripThreshold = override.TripThreshold
	}
	if override.SampleSize > 0 {
		merged.SampleSize = override.SampleSize
	}
	if override.Cooldown > 0 {
		merged.Cooldown = override.Cooldown
	}
	if override.SamplingWindow > 0 {
		merged.SamplingWindow = override.SamplingWindow
	}
	if override.WindowSize > 0 {
		merged.WindowSize = override.WindowSize
	}
	if override.ProbeTimeout > 0 {
		merged.ProbeTimeout = override.ProbeTimeout
	}
	if override.Engine != "" {
		merged.Engine = override.Engine
	}
	if override.MaxAttempts > 0 {
		merged.MaxAttempts = override.MaxAttempts
	}
	if override.BackoffBase > 0 {
		merged.BackoffBase = override.BackoffBase
	}
	if override.BackoffMax > 0 {
		merged.BackoffMax = override.BackoffMax
	}
	if override.BackoffJitter > 0 {
		merged.BackoffJitter = override.BackoffJitter
	}
	if override.MinAttemptBudget > 0 {
		merged.MinAttemptBudget = override.MinAttemptBudget
	}
	if override.PerCallTimeout > 0 {
		merged.PerCallTimeout = override.PerCallTimeout
	}
	if override.RateLimitRPS > 0 {
		merged.RateLimitRPS = override.RateLimitRPS
	}
	if override.RateLimitBurst > 0 {
		merged.RateLimitBurst = override.RateLimitBurst
	}

	return merged
}

// Validate checks the configuration for values that cannot be normalized
// away. It is called on load and on every hot reload; a reload with an
// invalid document is rejected and the previous configuration stays in
// effect.
func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if err := validateDependency("defaults", c.Defaults); err != nil {
		return err
	}
	for name, dep := range c.Dependencies {
		if name == "" {
			return fmt.Errorf("dependency with empty name")
		}
		if err := validateDependency(name, dep); err != nil {
			return err
		}
	}

	switch c.Tracing.Exporter {
	case "", "otlp-grpc", "otlp-http", "none":
	default:
		return fmt.Errorf("tracing: unknown exporter %q", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing: sampleRate must be in [0, 1], got %v", c.Tracing.SampleRate)
	}
	for _, p := range c.Tracing.Propagators {
		switch p {
		case "w3c", "b3", "b3-multi", "jaeger":
		default:
			return fmt.Errorf("tracing: unknown propagator %q", p)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}

	return nil
}

// validateDependency checks one dependency block.
func validateDependency(name string, dep DependencyConfig) error {
	if dep.TripThreshold < 0 {
		return fmt.Errorf("%s: tripThreshold must not be negative", name)
	}
	if dep.SampleSize < 0 {
		return fmt.Errorf("%s: sampleSize must not be negative", name)
	}
	if dep.SampleSize > 0 && dep.TripThreshold > dep.SampleSize {
		return fmt.Errorf("%s: tripThreshold %d exceeds sampleSize %d",
			name, dep.TripThreshold, dep.SampleSize)
	}
	if dep.Cooldown < 0 || dep.SamplingWindow < 0 || dep.ProbeTimeout < 0 {
		return fmt.Errorf("%s: durations must not be negative", name)
	}
	switch dep.Engine {
	case "", "native", "gobreaker":
	default:
		return fmt.Errorf("%s: unknown breaker engine %q", name, dep.Engine)
	}
	if dep.MaxAttempts < 0 {
		return fmt.Errorf("%s: maxAttempts must not be negative", name)
	}
	if dep.BackoffJitter < 0 || dep.BackoffJitter > 1 {
		return fmt.Errorf("%s: backoffJitter must be in [0, 1]", name)
	}
	if dep.BackoffMax > 0 && dep.BackoffBase > dep.BackoffMax {
		return fmt.Errorf("%s: backoffBase exceeds backoffMax", name)
	}
	if dep.RateLimitRPS < 0 {
		return fmt.Errorf("%s: rateLimitRps must not be negative", name)
	}
	return nil
}
