package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
defaults:
  tripThreshold: 5
  sampleSize: 10
  cooldown: "30s"
  maxAttempts: 3
  backoffBase: "100ms"
  backoffMax: "10s"
  backoffJitter: 0.25

dependencies:
  payments:
    tripThreshold: 3
    sampleSize: 6
    maxAttempts: 5
    perCallTimeout: "2s"
    rateLimitRps: 100
    rateLimitBurst: 20
  search:
    engine: gobreaker
    maxAttempts: 1

tracing:
  enabled: true
  serviceName: checkout
  exporter: otlp-grpc
  endpoint: collector:4317
  insecure: true
  sampleRate: 0.5

logging:
  level: debug
  format: console
`

func TestParse_FullDocument(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Defaults.TripThreshold)
	assert.Equal(t, 30*time.Second, cfg.Defaults.Cooldown.Duration())
	assert.Equal(t, 0.25, cfg.Defaults.BackoffJitter)

	require.Contains(t, cfg.Dependencies, "payments")
	assert.Equal(t, 3, cfg.Dependencies["payments"].TripThreshold)

	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "checkout", cfg.Tracing.ServiceName)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRate)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestDependency_MergesOverridesOntoDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	payments := cfg.Dependency("payments")
	// Overridden fields.
	assert.Equal(t, 3, payments.TripThreshold)
	assert.Equal(t, 6, payments.SampleSize)
	assert.Equal(t, 5, payments.MaxAttempts)
	assert.Equal(t, 2*time.Second, payments.PerCallTimeout.Duration())
	assert.Equal(t, 100.0, payments.RateLimitRPS)
	// Inherited fields.
	assert.Equal(t, 30*time.Second, payments.Cooldown.Duration())
	assert.Equal(t, 100*time.Millisecond, payments.BackoffBase.Duration())

	search := cfg.Dependency("search")
	assert.Equal(t, "gobreaker", search.Engine)
	assert.Equal(t, 1, search.MaxAttempts)
	assert.Equal(t, 5, search.TripThreshold)
}

func TestDependency_UnknownNameGetsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	dep := cfg.Dependency("unknown")
	assert.Equal(t, cfg.Defaults, dep)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("defaults: [not a map"))
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative trip threshold", func(c *Config) { c.Defaults.TripThreshold = -1 }},
		{"trip above sample", func(c *Config) {
			c.Defaults.TripThreshold = 10
			c.Defaults.SampleSize = 5
		}},
		{"unknown engine", func(c *Config) {
			c.Dependencies = map[string]DependencyConfig{"x": {Engine: "bogus"}}
		}},
		{"jitter above one", func(c *Config) { c.Defaults.BackoffJitter = 1.5 }},
		{"backoff base above max", func(c *Config) {
			c.Defaults.BackoffBase = Duration(time.Minute)
			c.Defaults.BackoffMax = Duration(time.Second)
		}},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "smoke-signals" }},
		{"bad propagator", func(c *Config) { c.Tracing.Propagators = []string{"carrier-pigeon"} }},
		{"bad sample rate", func(c *Config) { c.Tracing.SampleRate = 2 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"negative rate limit", func(c *Config) { c.Defaults.RateLimitRPS = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpcguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Dependencies, "payments")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDuration_YAMLAndJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1h30m"`)))
	assert.Equal(t, 90*time.Minute, d.Duration())

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1h30m0s"`, string(out))

	require.NoError(t, d.UnmarshalJSON([]byte("null")))
	assert.Equal(t, time.Duration(0), d.Duration())

	var bad Duration
	assert.Error(t, bad.UnmarshalJSON([]byte(`"soonish"`)))
}
