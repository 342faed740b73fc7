package provider

import (
	"testing"

	"github.com/opentracing/opentracing-go/ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/jaeger-client-go"
)

func TestJaegerWriterDisabled(t *testing.T) {
	assert.Nil(t, NewJaegerWriter(JaegerOptions{ServiceName: "checkout"}, nil, testStdout(t)))
}

func TestJaegerWriterEnabled(t *testing.T) {

	writer := NewJaegerWriter(JaegerOptions{
		AgentHost:   "localhost",
		AgentPort:   6831,
		ServiceName: "checkout",
		Tags:        "tag1=value1,,tag3=${key3:value3}",
	}, nil, testStdout(t))
	require.NotNil(t, writer)
	assert.NoError(t, writer.Write(testTrace()))
	writer.Stop()
}

func TestJaegerWriterKeepsIds(t *testing.T) {

	reporter := jaeger.NewInMemoryReporter()
	jt, closer := jaeger.NewTracer("checkout", jaeger.NewConstSampler(true), reporter)
	writer := newJaegerWriter(JaegerOptions{ServiceName: "checkout"}, jt, closer, testStdout(t))
	// closing the tracer resets the in-memory reporter
	defer writer.Stop()

	require.NoError(t, writer.Write(testTrace()))

	spans := reporter.GetSpans()
	require.Len(t, spans, 2)

	client, ok := spans[1].(*jaeger.Span)
	require.True(t, ok)
	assert.Equal(t, "http.request", client.OperationName())

	ctx := client.SpanContext()
	assert.EqualValues(t, 1001, ctx.TraceID().Low)
	assert.EqualValues(t, 2002, ctx.SpanID())
	assert.EqualValues(t, 1001, ctx.ParentID())
	baggage := make(map[string]string)
	ctx.ForeachBaggageItem(func(k, v string) bool {
		baggage[k] = v
		return true
	})
	assert.Equal(t, map[string]string{"tenant": "acme"}, baggage)

	tags := client.Tags()
	assert.Equal(t, "GET /stock/?", tags[JaegerTagResourceName])
	assert.Equal(t, true, tags[string(ext.Error)])
	assert.Equal(t, testTrace()[1].Duration, client.Duration())
}
