// Package tracing provides the span lifecycle for call-chain observability
// and the OpenTelemetry provider that exports finished spans.
package tracing

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/rpcguard/reqcontext"
)

// OutcomeCode is the terminal outcome of a span.
type OutcomeCode int

const (
	// OutcomeUnset means the span has not recorded an outcome yet.
	OutcomeUnset OutcomeCode = iota

	// OutcomeSuccess means the traced work succeeded.
	OutcomeSuccess

	// OutcomeError means the traced work failed; ErrorKind names the
	// failure class.
	OutcomeError

	// OutcomeTimeout means the traced work exceeded its deadline.
	OutcomeTimeout
)

// String returns the string representation of the outcome.
func (o OutcomeCode) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unset"
	}
}

// Span is a timed unit of work bound to one node of a call chain. It
// transitions start -> finished exactly once; Finish on an already
// finished span is a no-op.
type Span struct {
	mu sync.Mutex

	tracer *Tracer
	rc     *reqcontext.Context

	name  string
	start time.Time
	end   time.Time

	tags     map[string]interface{}
	counters map[string]int64

	outcome   OutcomeCode
	errorKind string

	finished bool
	otelSpan trace.Span
}

// FinishedSpan is the record emitted to the sink when a span finishes.
type FinishedSpan struct {
	TraceID      trace.TraceID
	SpanID       trace.SpanID
	ParentSpanID trace.SpanID
	Name         string
	Start        time.Time
	End          time.Time
	Outcome      OutcomeCode
	ErrorKind    string
	Tags         map[string]interface{}
	Counters     map[string]int64
}

// Duration returns the span duration.
func (fs FinishedSpan) Duration() time.Duration {
	return fs.End.Sub(fs.Start)
}

// Context returns the request context this span is bound to.
func (s *Span) Context() *reqcontext.Context {
	return s.rc
}

// Name returns the span name.
func (s *Span) Name() string {
	return s.name
}

// SetTag sets a tag on the span. Tags set after Finish are dropped.
func (s *Span) SetTag(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.tags == nil {
		s.tags = make(map[string]interface{}, 4)
	}
	s.tags[key] = value
	if s.otelSpan != nil {
		s.otelSpan.SetAttributes(attributeFromTag(key, value))
	}
}

// AddCounter increments a named counter on the span.
func (s *Span) AddCounter(key string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.counters == nil {
		s.counters = make(map[string]int64, 2)
	}
	s.counters[key] += delta
}

// SetOutcome records the terminal outcome. The first non-unset outcome
// wins; later calls are ignored so the earliest classification sticks.
func (s *Span) SetOutcome(outcome OutcomeCode, errorKind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.outcome != OutcomeUnset {
		return
	}
	s.outcome = outcome
	s.errorKind = errorKind
}

// Finish ends the span and reports it to the sink exactly once, no matter
// how many times it is called or which exit path reached it. A span with
// no recorded outcome finishes as success.
func (s *Span) Finish() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.end = time.Now()
	if s.outcome == OutcomeUnset {
		s.outcome = OutcomeSuccess
	}

	record := FinishedSpan{
		TraceID:   s.rc.TraceID(),
		SpanID:    s.rc.SpanID(),
		Name:      s.name,
		Start:     s.start,
		End:       s.end,
		Outcome:   s.outcome,
		ErrorKind: s.errorKind,
		Tags:      s.tags,
		Counters:  s.counters,
	}
	if parent, ok := s.rc.ParentSpanID(); ok {
		record.ParentSpanID = parent
	}

	otelSpan := s.otelSpan
	outcome := s.outcome
	errorKind := s.errorKind
	s.mu.Unlock()

	if otelSpan != nil {
		switch outcome {
		case OutcomeSuccess:
			otelSpan.SetStatus(codes.Ok, "")
		case OutcomeTimeout:
			otelSpan.SetStatus(codes.Error, "timeout")
		case OutcomeError:
			otelSpan.SetStatus(codes.Error, errorKind)
		}
		otelSpan.End()
	}

	s.tracer.sink.Record(record)
}

// attributeFromTag converts a tag to an OTel attribute.
func attributeFromTag(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case time.Duration:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, stringify(v))
	}
}
