package rpcguard

import (
	"context"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/rpcguard/config"
	"github.com/vyrodovalexey/rpcguard/logging"
	"github.com/vyrodovalexey/rpcguard/tracing"
)

// buildLogger constructs the client logger from the configuration's
// logging block.
func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	logger, err := logging.New(&logging.Config{
		Level:  logging.Level(lc.Level),
		Format: logging.Format(lc.Format),
		Output: lc.Output,
	})
	if err != nil {
		return nil, err
	}
	return logger.Logger, nil
}

// buildTracer constructs the client tracer from the configuration's
// tracing block. When tracing is enabled it starts an export provider,
// installs the configured propagators, and mirrors every span into the
// provider; the returned provider must be stopped on Close.
func buildTracer(tc config.TracingConfig, logger *zap.Logger) (*tracing.Tracer, *tracing.Provider, error) {
	opts := []tracing.TracerOption{
		tracing.WithSink(tracing.NewLogSink(logger)),
	}
	if !tc.Enabled {
		return tracing.NewTracer(opts...), nil, nil
	}

	provider, err := tracing.NewProvider(providerConfig(tc), logger)
	if err != nil {
		return nil, nil, err
	}
	if err := provider.Start(context.Background()); err != nil {
		return nil, nil, err
	}

	tracing.SetupPropagators(propagatorConfig(tc))

	opts = append(opts, tracing.WithOTel(provider.Tracer("rpcguard")))
	return tracing.NewTracer(opts...), provider, nil
}

// providerConfig maps the tracing block onto the export provider's
// config, leaving unset fields at the provider defaults.
func providerConfig(tc config.TracingConfig) *tracing.ProviderConfig {
	pc := tracing.DefaultProviderConfig()
	if tc.ServiceName != "" {
		pc.ServiceName = tc.ServiceName
	}
	if tc.Exporter != "" {
		pc.ExporterType = tracing.ExporterType(tc.Exporter)
	}
	if tc.Endpoint != "" {
		pc.Endpoint = tc.Endpoint
	}
	pc.Insecure = tc.Insecure
	if tc.SampleRate > 0 {
		pc.SampleRate = tc.SampleRate
	}
	if len(tc.Headers) > 0 {
		pc.Headers = tc.Headers
	}
	return pc
}

// propagatorConfig maps the configured propagator names onto the
// propagator setup, defaulting to W3C trace context.
func propagatorConfig(tc config.TracingConfig) *tracing.PropagatorConfig {
	if len(tc.Propagators) == 0 {
		return tracing.DefaultPropagatorConfig()
	}

	types := make([]tracing.PropagatorType, 0, len(tc.Propagators))
	for _, p := range tc.Propagators {
		types = append(types, tracing.PropagatorType(p))
	}
	return &tracing.PropagatorConfig{
		Types:         types,
		EnableBaggage: true,
	}
}
