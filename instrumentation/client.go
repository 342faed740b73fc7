package instrumentation

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/devopsext/asynctrace/decorator"
	"github.com/devopsext/asynctrace/propagation"
	"github.com/devopsext/asynctrace/tracer"
)

const (
	HTTPClientOperation = "http.request"
	HTTPClientComponent = "http-async-client"
)

var ErrInvalidRequest = errors.New("invalid request")

// Future tracks one asynchronous request.
type Future struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel aborts the request. The callback receives Cancelled unless the
// request already completed.
func (f *Future) Cancel() {
	f.cancel()
}

// Done is closed once the callback returned.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) Wait() {
	<-f.done
}

// AsyncClient executes requests on their own goroutine and reports the
// outcome to a FutureCallback. Every request gets a client span that is a
// child of the span active on the caller's execution.
type AsyncClient struct {
	client       *http.Client
	instrumenter *Instrumenter
	decorator    *decorator.Chain
}

func validateRequest(req *http.Request) error {

	switch {
	case req == nil:
		return ErrInvalidRequest
	case req.URL == nil:
		return errors.Join(ErrInvalidRequest, errors.New("no url"))
	case req.URL.Host == "":
		return errors.Join(ErrInvalidRequest, errors.New("no host"))
	}
	return nil
}

// Execute starts req. A request that cannot be sent fails synchronously:
// its span is finished with the error and the callback is not called.
func (c *AsyncClient) Execute(ctx context.Context, req *http.Request, callback FutureCallback[*http.Response]) (*Future, error) {

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)

	var span *tracer.Span
	var parent *tracer.Continuation
	outgoing := req
	wrapped := callback

	entered := c.instrumenter.suppress("async-client.enter", func() {

		exec := tracer.ExecutionFromContext(ctx)
		parent = exec.Capture()
		span = c.instrumenter.tracer.StartSpan(HTTPClientOperation, tracer.ChildOf(exec.ActiveContext()))
		span.SetResourceName(HTTPClientOperation)

		if req != nil {
			outgoing = req.Clone(runCtx)
			c.decorator.Decorate(span, outgoing)
			propagation.Inject(c.instrumenter.propagator, span.Context(), outgoing, propagation.Requests)
		}
		wrapped = NewTraceContinuedCallback[*http.Response](c.instrumenter, parent, span, c.decorator, callback)
	})

	// a half entered request runs untraced; its span must not hold the trace open
	if !entered && span != nil {
		c.instrumenter.suppress("async-client.release", func() {
			span.Finish()
			parent.Cancel()
		})
		span = nil
		wrapped = callback
	}

	if err := validateRequest(req); err != nil {
		cancel()
		c.instrumenter.suppress("async-client.exit", func() {
			if span == nil {
				return
			}
			c.decorator.Decorate(span, err)
			span.Finish()
			parent.Cancel()
		})
		return nil, err
	}

	if outgoing == req {
		outgoing = req.WithContext(runCtx)
	}

	future := &Future{cancel: cancel, done: make(chan struct{})}
	go c.run(runCtx, outgoing, wrapped, callback == nil, future)
	return future, nil
}

func (c *AsyncClient) run(ctx context.Context, req *http.Request, callback FutureCallback[*http.Response], discard bool, future *Future) {

	defer close(future.done)
	defer future.cancel()

	resp, err := c.client.Do(req)
	if err != nil {
		if callback == nil {
			return
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			callback.Cancelled(ctx)
			return
		}
		callback.Failed(ctx, err)
		return
	}

	if discard {
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()
	}
	if callback != nil {
		callback.Completed(ctx, resp)
	}
}

func (i *Instrumenter) NewAsyncClient(client *http.Client) *AsyncClient {

	if client == nil {
		client = http.DefaultClient
	}
	return &AsyncClient{
		client:       client,
		instrumenter: i,
		decorator: decorator.NewChain(i.logger,
			decorator.HTTPClientDecorator{Normalize: decorator.NormalizeNumericSegments},
			decorator.ComponentDecorator{Component: HTTPClientComponent, Kind: decorator.SpanKindClient},
			decorator.ErrorDecorator{},
		),
	}
}

// Transport traces requests sent through a synchronous http.Client.
type Transport struct {
	base         http.RoundTripper
	instrumenter *Instrumenter
	decorator    *decorator.Chain
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {

	var span *tracer.Span
	outgoing := req

	t.instrumenter.suppress("transport.enter", func() {
		span = t.instrumenter.tracer.StartSpanFromContext(req.Context(), HTTPClientOperation)
		t.decorator.Decorate(span, req)
		outgoing = req.Clone(req.Context())
		propagation.Inject(t.instrumenter.propagator, span.Context(), outgoing, propagation.Requests)
	})

	resp, err := t.base.RoundTrip(outgoing)

	t.instrumenter.suppress("transport.exit", func() {
		if span == nil {
			return
		}
		if err != nil {
			t.decorator.Decorate(span, err)
		} else {
			t.decorator.Decorate(span, resp)
		}
		span.Finish()
	})
	return resp, err
}

func (i *Instrumenter) NewTransport(base http.RoundTripper) *Transport {

	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:         base,
		instrumenter: i,
		decorator: decorator.NewChain(i.logger,
			decorator.HTTPClientDecorator{Normalize: decorator.NormalizeNumericSegments},
			decorator.ComponentDecorator{Component: "net/http", Kind: decorator.SpanKindClient},
			decorator.ErrorDecorator{},
		),
	}
}
