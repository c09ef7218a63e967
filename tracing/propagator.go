package tracing

import (
	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// PropagatorType defines the type of context propagator.
type PropagatorType string

const (
	// PropagatorW3C uses W3C Trace Context propagation.
	PropagatorW3C PropagatorType = "w3c"
	// PropagatorB3 uses B3 single-header propagation (Zipkin style).
	PropagatorB3 PropagatorType = "b3"
	// PropagatorB3Multi uses B3 multi-header propagation.
	PropagatorB3Multi PropagatorType = "b3-multi"
	// PropagatorJaeger uses Jaeger propagation.
	PropagatorJaeger PropagatorType = "jaeger"
)

// PropagatorConfig holds configuration for context propagation.
type PropagatorConfig struct {
	// Types is the list of propagator types to use.
	Types []PropagatorType

	// EnableBaggage enables baggage propagation.
	EnableBaggage bool
}

// DefaultPropagatorConfig returns a PropagatorConfig with default values.
func DefaultPropagatorConfig() *PropagatorConfig {
	return &PropagatorConfig{
		Types:         []PropagatorType{PropagatorW3C},
		EnableBaggage: true,
	}
}

// SetupPropagators configures the global text map propagators. Callers on
// the edge of the process that need interop with B3 or Jaeger peers set
// those types here; the wire carrier helpers below pick up the result.
func SetupPropagators(config *PropagatorConfig) {
	if config == nil {
		config = DefaultPropagatorConfig()
	}

	propagators := make([]propagation.TextMapPropagator, 0, len(config.Types)+1)

	for _, t := range config.Types {
		switch t {
		case PropagatorW3C:
			propagators = append(propagators, propagation.TraceContext{})
		case PropagatorB3:
			propagators = append(propagators, b3.New(b3.WithInjectEncoding(b3.B3SingleHeader)))
		case PropagatorB3Multi:
			propagators = append(propagators, b3.New(b3.WithInjectEncoding(b3.B3MultipleHeader)))
		case PropagatorJaeger:
			propagators = append(propagators, jaeger.Jaeger{})
		default:
			propagators = append(propagators, propagation.TraceContext{})
		}
	}

	if config.EnableBaggage {
		propagators = append(propagators, propagation.Baggage{})
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagators...))
}

// GetPropagator returns the current global text map propagator.
func GetPropagator() propagation.TextMapPropagator {
	return otel.GetTextMapPropagator()
}

// AllPropagators returns a composite propagator with W3C, B3, and Jaeger
// support for edges that must accept traffic from mixed fleets.
func AllPropagators() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		b3.New(b3.WithInjectEncoding(b3.B3MultipleHeader|b3.B3SingleHeader)),
		jaeger.Jaeger{},
	)
}

// MapCarrier adapts a map[string]string to propagation.TextMapCarrier.
type MapCarrier map[string]string

// Get returns the value associated with the passed key.
func (mc MapCarrier) Get(key string) string {
	return mc[key]
}

// Set stores the key-value pair.
func (mc MapCarrier) Set(key, value string) {
	mc[key] = value
}

// Keys lists the keys stored in this carrier.
func (mc MapCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	return keys
}
