package provider

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devopsext/asynctrace/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, url string) map[string]string {

	r, err := http.Get(url)
	require.NoError(t, err)
	defer r.Body.Close()
	require.Equal(t, http.StatusOK, r.StatusCode)

	content, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	m := make(map[string]string)
	for _, line := range strings.Split(string(content), "\n") {
		if i := strings.LastIndex(line, " "); i > 0 {
			m[line[:i]] = line[i+1:]
		}
	}
	return m
}

func TestPrometheusHandler(t *testing.T) {

	prometheus := NewPrometheusMeter(PrometheusOptions{Listen: ":0", Prefix: "test"}, nil, testStdout(t))
	require.NotNil(t, prometheus)

	counter := prometheus.Counter("spans_started", "Spans started", common.Labels{"two": "b", "one": "a"}, "tracer")
	for i := 0; i < 5; i++ {
		counter.Inc()
	}
	counter.Add(2)
	prometheus.Gauge("queue_size", "Queued traces", nil, "tracer").Set(1.5)

	server := httptest.NewServer(prometheus.Handler())
	defer server.Close()

	m := scrape(t, server.URL)
	assert.Equal(t, "7", m[`test_tracer_spans_started{one="a",two="b"}`])
	assert.Equal(t, "1.5", m["test_tracer_queue_size"])
}

func TestPrometheusStartStop(t *testing.T) {

	port := 19999
	prometheus := NewPrometheusMeter(PrometheusOptions{
		URL:    "/metrics",
		Listen: fmt.Sprintf("127.0.0.1:%d", port),
	}, nil, testStdout(t))
	require.NotNil(t, prometheus)

	prometheus.Counter("writer_errors", "Writer failures", nil).Inc()

	var wg sync.WaitGroup
	prometheus.StartInWaitGroup(&wg)

	url := fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
	require.Eventually(t, func() bool {
		r, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = r.Body.Close()
		return true
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "1", scrape(t, url)["writer_errors"])

	prometheus.Stop()
	wg.Wait()
}

func TestPrometheusWrongListen(t *testing.T) {

	prometheus := NewPrometheusMeter(PrometheusOptions{
		Listen: fmt.Sprintf("%s:%d", common.GetGuid(), 10000),
	}, nil, testStdout(t))
	require.NotNil(t, prometheus)
	assert.False(t, prometheus.Start())
}

func TestPrometheusDisabled(t *testing.T) {
	assert.Nil(t, NewPrometheusMeter(PrometheusOptions{}, nil, testStdout(t)))
}
