package common

import (
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUtilsTraceID(t *testing.T) {

	s := TraceIDUint64ToHex(0)
	assert.Len(t, s, 32, "Wrong trace ID length")
	assert.Equal(t, uint64(0), TraceIDHexToUint64(s))

	s = TraceIDUint64ToHex(1)
	assert.Equal(t, "00000000000000000000000000000001", s)
	assert.Equal(t, uint64(1), TraceIDHexToUint64(s))

	s = TraceIDUint64ToHex(1 << 32)
	assert.Equal(t, "00000000000000000000000100000000", s)
	assert.Equal(t, uint64(1<<32), TraceIDHexToUint64(s))

	s = TraceIDUint64ToHex(1 << 63)
	assert.Equal(t, "00000000000000008000000000000000", s)
	assert.Equal(t, uint64(1<<63), TraceIDHexToUint64(s))
}

func TestUtilsSpanID(t *testing.T) {

	s := SpanIDUint64ToHex(0)
	assert.Len(t, s, 16, "Wrong span ID length")
	assert.Equal(t, uint64(0), SpanIDHexToUint64(s))

	assert.Equal(t, "0000000000000001", SpanIDUint64ToHex(1))
	assert.Equal(t, "0000000100000000", SpanIDUint64ToHex(1<<32))
	assert.Equal(t, "8000000000000000", SpanIDUint64ToHex(1<<63))
	assert.Equal(t, uint64(1<<63), SpanIDHexToUint64("8000000000000000"))
	assert.Equal(t, uint64(0), SpanIDHexToUint64("not-hex"))
}

func TestUtilsGetKeyValues(t *testing.T) {

	os.Setenv("ASYNCTRACE_TEST_REGION", "eu-west-1")
	defer os.Unsetenv("ASYNCTRACE_TEST_REGION")

	m := GetKeyValues(" team = sre ,region=${ASYNCTRACE_TEST_REGION:local},zone=${ASYNCTRACE_TEST_MISSING:a},,empty")

	assert.Equal(t, map[string]string{
		"team":   "sre",
		"region": "eu-west-1",
		"zone":   "a",
		"empty":  "",
	}, m)
	assert.Empty(t, GetKeyValues(""))
}

func TestUtilsHasElem(t *testing.T) {

	assert.True(t, HasElem([]string{"jaeger", "datadog"}, "datadog"))
	assert.False(t, HasElem([]string{"jaeger"}, "stdout"))
	assert.False(t, HasElem("jaeger", "jaeger"))
}

func TestUtilsGetGuid(t *testing.T) {

	a, b := GetGuid(), GetGuid()
	assert.Len(t, a, 20)
	assert.NotEqual(t, a, b)
}

func TestUtilsMakeHttpClient(t *testing.T) {

	client := MakeHttpClient(3*time.Second, true)
	assert.Equal(t, 3*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	if assert.True(t, ok) {
		assert.Equal(t, 3*time.Second, transport.TLSHandshakeTimeout)
		assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)
		assert.NotNil(t, transport.DialContext)
	}
}
