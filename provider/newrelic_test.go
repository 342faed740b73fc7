package provider

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/devopsext/asynctrace/common"
	"github.com/devopsext/asynctrace/tracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type newrelicCollector struct {
	mutex  sync.Mutex
	bodies []string
	server *httptest.Server
}

func (c *newrelicCollector) payloads() string {

	c.mutex.Lock()
	defer c.mutex.Unlock()
	return strings.Join(c.bodies, "\n")
}

func newNewrelicCollector(t *testing.T) *newrelicCollector {

	c := &newrelicCollector{}
	c.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		var body io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			gz, err := gzip.NewReader(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer gz.Close()
			body = gz
		}
		b, _ := io.ReadAll(body)

		c.mutex.Lock()
		c.bodies = append(c.bodies, string(b))
		c.mutex.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(c.server.Close)
	return c
}

func newrelicOptions() NewRelicOptions {
	return NewRelicOptions{
		ApiKey:        "sdfsFFDfd",
		ServiceName:   "checkout",
		Attributes:    "tag1=value1,,tag3=${key3:value3}",
		HarvestPeriod: -1,
	}
}

func TestNewRelicDisabled(t *testing.T) {

	stdout := testStdout(t)
	assert.Nil(t, NewNewRelicWriter(NewRelicWriterOptions{}, nil, stdout))
	assert.Nil(t, NewNewRelicMeter(NewRelicMeterOptions{}, nil, stdout))
	assert.Nil(t, NewNewRelicLogger(NewRelicLoggerOptions{}, nil, stdout))
}

func TestNewRelicWriter(t *testing.T) {

	collector := newNewrelicCollector(t)
	writer := NewNewRelicWriter(NewRelicWriterOptions{
		NewRelicOptions: newrelicOptions(),
		Endpoint:        collector.server.URL,
	}, nil, testStdout(t))
	require.NotNil(t, writer)

	require.NoError(t, writer.Write(testTrace()))
	writer.Stop()

	payload := collector.payloads()
	assert.Contains(t, payload, common.TraceIDUint64ToHex(1001))
	assert.Contains(t, payload, common.SpanIDUint64ToHex(2002))
	assert.Contains(t, payload, "GET /stock/?")
	assert.Contains(t, payload, "value3")
}

func TestNewRelicMeter(t *testing.T) {

	collector := newNewrelicCollector(t)
	meter := NewNewRelicMeter(NewRelicMeterOptions{
		NewRelicOptions: newrelicOptions(),
		Endpoint:        collector.server.URL,
		Prefix:          "test",
	}, nil, testStdout(t))
	require.NotNil(t, meter)

	meter.Counter("spans_started", "Spans started", common.Labels{"kind": "client"}, "tracer").Add(2)
	meter.Gauge("queue_size", "Queued traces", nil, "tracer").Set(5)
	meter.Stop()

	payload := collector.payloads()
	assert.Contains(t, payload, "test.tracer.spans_started")
	assert.Contains(t, payload, "test.tracer.queue_size")
}

func TestNewRelicLogger(t *testing.T) {

	collector := newNewrelicCollector(t)
	logger := NewNewRelicLogger(NewRelicLoggerOptions{
		NewRelicOptions: newrelicOptions(),
		Endpoint:        collector.server.URL,
		Level:           "info",
	}, nil, testStdout(t))
	require.NotNil(t, logger)

	span := tracer.New(tracer.Options{}, nil, nil, nil).StartSpan("charge")
	logger.SpanInfo(span, "payment %s settled", "p-7")
	logger.Debug("not recorded")
	logger.Stop()

	payload := collector.payloads()
	assert.Contains(t, payload, "payment p-7 settled")
	assert.Contains(t, payload, common.TraceIDUint64ToHex(span.TraceID()))
	assert.NotContains(t, payload, "not recorded")
}
