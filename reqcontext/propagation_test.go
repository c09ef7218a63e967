package reqcontext

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCarrier map[string]string

func (mc mapCarrier) Get(key string) string { return mc[key] }
func (mc mapCarrier) Set(key, value string) { mc[key] = value }
func (mc mapCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	return keys
}

func TestInjectExtract_RoundTrip(t *testing.T) {
	deadline := time.Now().Add(2 * time.Second).UTC().Truncate(time.Millisecond)
	rc := New().WithDeadline(deadline)

	carrier := mapCarrier{}
	rc.Inject(carrier)

	assert.NotEmpty(t, carrier.Get("traceparent"))
	assert.NotEmpty(t, carrier.Get(DeadlineHeader))

	remote := Extract(carrier)
	assert.Equal(t, rc.TraceID(), remote.TraceID())
	assert.Equal(t, rc.SpanID(), remote.SpanID())

	dl, ok := remote.Deadline()
	require.True(t, ok)
	assert.True(t, dl.Equal(deadline))
}

func TestInject_NoDeadlineOmitsHeader(t *testing.T) {
	carrier := mapCarrier{}
	New().Inject(carrier)

	assert.Empty(t, carrier.Get(DeadlineHeader))
}

func TestExtract_EmptyCarrierStartsNewTrace(t *testing.T) {
	remote := Extract(mapCarrier{})

	assert.True(t, remote.TraceID().IsValid())
	assert.True(t, remote.SpanID().IsValid())
	_, ok := remote.Deadline()
	assert.False(t, ok)
}

func TestExtract_MalformedDeadlineIgnored(t *testing.T) {
	rc := New()
	carrier := mapCarrier{}
	rc.Inject(carrier)
	carrier.Set(DeadlineHeader, "not-a-timestamp")

	remote := Extract(carrier)
	assert.Equal(t, rc.TraceID(), remote.TraceID())
	_, ok := remote.Deadline()
	assert.False(t, ok)
}

func TestExtract_MalformedTraceparentStartsNewTrace(t *testing.T) {
	carrier := mapCarrier{"traceparent": "garbage"}

	remote := Extract(carrier)
	assert.True(t, remote.TraceID().IsValid())
	assert.True(t, remote.SpanID().IsValid())
}
