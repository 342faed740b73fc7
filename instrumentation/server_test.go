package instrumentation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devopsext/asynctrace/decorator"
	"github.com/devopsext/asynctrace/propagation"
	"github.com/devopsext/asynctrace/tracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareContinuesRemoteTrace(t *testing.T) {

	env := newTestEnv()

	remote := tracer.NewSpanContext(4242, 77, true).WithBaggageItem("tenant", "acme")

	var active *tracer.Span
	handler := env.instrumenter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		active = tracer.ExecutionFromContext(r.Context()).Active()
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders/1234/items", nil)
	req.Header.Set("User-Agent", "checkout-test")
	propagation.Inject(env.instrumenter.Propagator(), remote, req, propagation.Requests)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.NotNil(t, active)
	assert.Equal(t, http.StatusCreated, rec.Code)

	require.True(t, env.writer.WaitForSpans(1, time.Second))
	span, ok := env.writer.Find(HTTPServerOperation)
	require.True(t, ok)
	assert.Equal(t, active.SpanID(), span.SpanID)
	assert.EqualValues(t, 4242, span.TraceID)
	assert.EqualValues(t, 77, span.ParentID)
	assert.Equal(t, "acme", span.Baggage["tenant"])
	assert.Equal(t, "POST /orders/?/items", span.Resource)
	assert.Equal(t, http.StatusCreated, span.Tags[decorator.TagHTTPStatusCode])
	assert.Equal(t, "checkout-test", span.Tags[decorator.TagHTTPUserAgent])
	assert.Equal(t, decorator.SpanKindServer, span.Tags[decorator.TagSpanKind])
	assert.False(t, span.Error)
}

func TestMiddlewareStartsNewTrace(t *testing.T) {

	env := newTestEnv()
	handler := env.instrumenter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.True(t, env.writer.WaitForSpans(1, time.Second))
	span, _ := env.writer.Find(HTTPServerOperation)
	assert.Zero(t, span.ParentID)
	assert.Equal(t, span.TraceID, span.SpanID)
	assert.Equal(t, http.StatusOK, span.Tags[decorator.TagHTTPStatusCode])
}

func TestMiddlewareRecordsPanic(t *testing.T) {

	env := newTestEnv()

	var exec *tracer.Execution
	handler := env.instrumenter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exec = tracer.ExecutionFromContext(r.Context())
		panic("nil order")
	}))

	assert.PanicsWithValue(t, "nil order", func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders", nil))
	})
	assert.Equal(t, 0, exec.Depth())

	require.True(t, env.writer.WaitForSpans(1, time.Second))
	span, _ := env.writer.Find(HTTPServerOperation)
	assert.True(t, span.Error)
	assert.Equal(t, http.StatusInternalServerError, span.Tags[decorator.TagHTTPStatusCode])
	assert.Equal(t, "panic: nil order", span.Tags[tracer.TagErrorMessage])
}

func TestMiddlewareWithAsyncClientSharesTrace(t *testing.T) {

	env := newTestEnv()

	backend := httptest.NewServer(env.instrumenter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))
	defer backend.Close()

	req, _ := http.NewRequest(http.MethodPut, backend.URL+"/carts/7", nil)
	future, err := env.instrumenter.NewAsyncClient(backend.Client()).Execute(context.Background(), req, nil)
	require.NoError(t, err)
	future.Wait()

	require.True(t, env.writer.WaitForSpans(2, time.Second))
	client, _ := env.writer.Find(HTTPClientOperation)
	server, _ := env.writer.Find(HTTPServerOperation)
	assert.Equal(t, client.TraceID, server.TraceID)
	assert.Equal(t, client.SpanID, server.ParentID)
	assert.Equal(t, "PUT /carts/?", server.Resource)
}
