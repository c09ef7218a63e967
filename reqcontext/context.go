// Package reqcontext carries per-call-chain request metadata: trace
// identifiers, the call deadline, and typed attachments. A Context is a
// value that is never mutated in place; every derivation returns a new
// value, so instances can be shared across goroutines freely.
package reqcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Key is a typed attachment key. Keys are compared by identity, so two
// packages can use the same name without colliding.
type Key struct {
	name string
}

// NewKey creates a new attachment key with a descriptive name.
func NewKey(name string) Key {
	return Key{name: name}
}

// String returns the key name.
func (k Key) String() string {
	return k.name
}

// Context is an immutable carrier of trace identifiers, deadline, and
// attachments for one node of a call chain.
type Context struct {
	traceID      trace.TraceID
	spanID       trace.SpanID
	parentSpanID trace.SpanID
	deadline     time.Time
	attachments  map[Key]interface{}
}

// New creates a root Context starting a new trace.
func New() *Context {
	return &Context{
		traceID: newTraceID(),
		spanID:  newSpanID(),
	}
}

// Continue creates a Context that continues a trace propagated by a remote
// caller. The remote span becomes this context's own span identity; derive
// a child before starting local work.
func Continue(traceID trace.TraceID, spanID trace.SpanID, deadline time.Time) *Context {
	return &Context{
		traceID:  traceID,
		spanID:   spanID,
		deadline: deadline,
	}
}

// TraceID returns the trace identifier shared by the whole call chain.
func (c *Context) TraceID() trace.TraceID {
	return c.traceID
}

// SpanID returns this context's span identifier.
func (c *Context) SpanID() trace.SpanID {
	return c.spanID
}

// ParentSpanID returns the parent span identifier and whether one exists.
func (c *Context) ParentSpanID() (trace.SpanID, bool) {
	return c.parentSpanID, c.parentSpanID.IsValid()
}

// Deadline returns the absolute deadline and whether one is set.
func (c *Context) Deadline() (time.Time, bool) {
	return c.deadline, !c.deadline.IsZero()
}

// DeriveChild returns a new Context sharing the trace identifier, with a
// fresh span identifier and this context's span as parent. The deadline
// and attachments are inherited.
func (c *Context) DeriveChild() *Context {
	child := c.clone()
	child.parentSpanID = c.spanID
	child.spanID = newSpanID()
	return child
}

// WithDeadline returns a new Context whose deadline is the earlier of the
// current deadline and d. A deadline can only ever shrink.
func (c *Context) WithDeadline(d time.Time) *Context {
	if d.IsZero() {
		return c
	}
	if !c.deadline.IsZero() && !d.Before(c.deadline) {
		return c
	}
	derived := c.clone()
	derived.deadline = d
	return derived
}

// WithTimeout returns a new Context whose deadline is at most now+d.
func (c *Context) WithTimeout(d time.Duration) *Context {
	return c.WithDeadline(time.Now().Add(d))
}

// WithAttachment returns a new Context with one more attachment. The
// receiver is left untouched.
func (c *Context) WithAttachment(key Key, value interface{}) *Context {
	derived := c.clone()
	if derived.attachments == nil {
		derived.attachments = make(map[Key]interface{}, 1)
	}
	derived.attachments[key] = value
	return derived
}

// Attachment returns the attachment for key and whether it is present.
func (c *Context) Attachment(key Key) (interface{}, bool) {
	v, ok := c.attachments[key]
	return v, ok
}

// Expired reports whether the deadline has already passed at t.
func (c *Context) Expired(t time.Time) bool {
	return !c.deadline.IsZero() && !t.Before(c.deadline)
}

// clone returns a copy with its own attachments map.
func (c *Context) clone() *Context {
	derived := &Context{
		traceID:      c.traceID,
		spanID:       c.spanID,
		parentSpanID: c.parentSpanID,
		deadline:     c.deadline,
	}
	if len(c.attachments) > 0 {
		derived.attachments = make(map[Key]interface{}, len(c.attachments))
		for k, v := range c.attachments {
			derived.attachments[k] = v
		}
	}
	return derived
}

// Context key for storing a *Context in a context.Context.
type goContextKey struct{}

// Inject returns a context.Context carrying rc.
func Inject(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, goContextKey{}, rc)
}

// FromGoContext returns the Context carried by ctx, if any.
func FromGoContext(ctx context.Context) (*Context, bool) {
	rc, ok := ctx.Value(goContextKey{}).(*Context)
	return rc, ok
}

// Ensure returns the Context carried by ctx, creating a root one when none
// is present. The possibly-updated context.Context is returned alongside.
func Ensure(ctx context.Context) (context.Context, *Context) {
	if rc, ok := FromGoContext(ctx); ok {
		return ctx, rc
	}
	rc := New()
	if dl, ok := ctx.Deadline(); ok {
		rc = rc.WithDeadline(dl)
	}
	return Inject(ctx, rc), rc
}

// newTraceID generates a random 16-byte trace identifier.
func newTraceID() trace.TraceID {
	return trace.TraceID(uuid.New())
}

// newSpanID generates a random 8-byte span identifier.
func newSpanID() trace.SpanID {
	id := uuid.New()
	var sid trace.SpanID
	copy(sid[:], id[:8])
	return sid
}
