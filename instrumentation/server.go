package instrumentation

import (
	"fmt"
	"net/http"

	"github.com/devopsext/asynctrace/decorator"
	"github.com/devopsext/asynctrace/propagation"
	"github.com/devopsext/asynctrace/tracer"
)

const (
	HTTPServerOperation = "http.server.request"
	HTTPServerComponent = "net/http"
)

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {

	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {

	if !w.wroteHeader {
		w.status = http.StatusOK
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {

	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware traces every request served by next. The server span
// continues the trace found in the request headers and is active on a new
// execution carried by the request context. A panicking handler is
// recorded and the panic is raised again.
func (i *Instrumenter) Middleware(next http.Handler) http.Handler {

	chain := decorator.NewChain(i.logger,
		decorator.HTTPServerDecorator{Normalize: decorator.NormalizeNumericSegments},
		decorator.ComponentDecorator{Component: HTTPServerComponent, Kind: decorator.SpanKindServer},
		decorator.ErrorDecorator{},
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		var span *tracer.Span
		var scope *tracer.Scope
		ctx := r.Context()

		i.suppress("server.enter", func() {
			remote := propagation.Extract(i.propagator, r, propagation.Requests)
			span = i.tracer.StartSpan(HTTPServerOperation, tracer.ChildOf(remote))
			chain.Decorate(span, r)

			exec := i.tracer.Scopes().NewExecution()
			scope = exec.Activate(span)
			ctx = tracer.ContextWithExecution(ctx, exec)
		})

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			rec := recover()
			i.suppress("server.exit", func() {
				if span == nil {
					return
				}
				if rec != nil {
					chain.Decorate(span, fmt.Errorf("panic: %v", rec))
					chain.Decorate(span, decorator.StatusCode(http.StatusInternalServerError))
				} else {
					chain.Decorate(span, decorator.StatusCode(sw.status))
				}
			})
			scope.Close()
			if span != nil {
				span.Finish()
			}
			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(sw, r.WithContext(ctx))
	})
}
