package tracing

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Sink receives finished span records. Implementations must be safe for
// concurrent use; Record is called once per span.
type Sink interface {
	Record(span FinishedSpan)
}

// NopSink discards all spans.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(FinishedSpan) {}

// LogSink writes finished spans to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs finished spans at debug level.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Record implements Sink.
func (s *LogSink) Record(span FinishedSpan) {
	fields := []zap.Field{
		zap.String("trace_id", span.TraceID.String()),
		zap.String("span_id", span.SpanID.String()),
		zap.String("name", span.Name),
		zap.Duration("duration", span.Duration()),
		zap.String("outcome", span.Outcome.String()),
	}
	if span.ParentSpanID.IsValid() {
		fields = append(fields, zap.String("parent_span_id", span.ParentSpanID.String()))
	}
	if span.ErrorKind != "" {
		fields = append(fields, zap.String("error_kind", span.ErrorKind))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.Any("tag_"+k, v))
	}
	s.logger.Debug("span finished", fields...)
}

// MultiSink fans out each record to several sinks.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(span FinishedSpan) {
	for _, s := range m {
		s.Record(span)
	}
}

// CaptureSink retains finished spans in memory. Intended for tests and
// diagnostics, not production traffic.
type CaptureSink struct {
	mu    sync.Mutex
	spans []FinishedSpan
}

// NewCaptureSink creates an empty capture sink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// Record implements Sink.
func (c *CaptureSink) Record(span FinishedSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, span)
}

// Spans returns a copy of the captured spans in finish order.
func (c *CaptureSink) Spans() []FinishedSpan {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FinishedSpan, len(c.spans))
	copy(out, c.spans)
	return out
}

// Len returns the number of captured spans.
func (c *CaptureSink) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// stringify renders arbitrary tag values.
func stringify(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
