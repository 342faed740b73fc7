package instrumentation

import (
	"context"
	"sync/atomic"

	"github.com/devopsext/asynctrace/decorator"
	"github.com/devopsext/asynctrace/tracer"
)

// FutureCallback receives the outcome of an asynchronous operation.
// Exactly one of its methods is expected to be called.
type FutureCallback[T any] interface {
	Completed(ctx context.Context, result T)
	Failed(ctx context.Context, err error)
	Cancelled(ctx context.Context)
}

// CallbackFuncs adapts functions to FutureCallback. Nil functions are
// skipped.
type CallbackFuncs[T any] struct {
	OnCompleted func(ctx context.Context, result T)
	OnFailed    func(ctx context.Context, err error)
	OnCancelled func(ctx context.Context)
}

func (c CallbackFuncs[T]) Completed(ctx context.Context, result T) {
	if c.OnCompleted != nil {
		c.OnCompleted(ctx, result)
	}
}

func (c CallbackFuncs[T]) Failed(ctx context.Context, err error) {
	if c.OnFailed != nil {
		c.OnFailed(ctx, err)
	}
}

func (c CallbackFuncs[T]) Cancelled(ctx context.Context) {
	if c.OnCancelled != nil {
		c.OnCancelled(ctx)
	}
}

// TraceContinuedCallback wraps the caller's callback of an asynchronous
// operation. On the first terminal signal it decorates and finishes the
// operation span, then runs the caller's callback with the captured
// parent span active. Later signals are ignored. A nil delegate is
// allowed; the parent continuation is then released.
type TraceContinuedCallback[T any] struct {
	instrumenter *Instrumenter
	parent       *tracer.Continuation
	span         *tracer.Span
	decorator    decorator.Decorator
	delegate     FutureCallback[T]
	signalled    atomic.Bool
}

func (c *TraceContinuedCallback[T]) signal(kind string) bool {

	if c.signalled.CompareAndSwap(false, true) {
		return true
	}
	c.instrumenter.logger.SpanDebug(c.span, "Callback signal %s ignored, %s already completed", kind, c.span)
	return false
}

func (c *TraceContinuedCallback[T]) complete(object interface{}) {

	c.instrumenter.suppress("callback.decorate", func() {
		if c.decorator != nil {
			c.decorator.Decorate(c.span, object)
		}
	})
	c.instrumenter.suppress("callback.finish", func() {
		c.span.Finish()
	})
}

// resume runs fn on a fresh execution, with the parent span active when
// there is one. The caller's execution never reaches fn. The scope is
// closed on every path, including a panic in fn.
func (c *TraceContinuedCallback[T]) resume(ctx context.Context, fn func(ctx context.Context)) {

	if c.delegate == nil {
		c.parent.Cancel()
		return
	}

	exec := c.instrumenter.tracer.Scopes().NewExecution()
	ctx = tracer.ContextWithExecution(ctx, exec)
	if c.parent == nil {
		fn(ctx)
		return
	}

	var scope *tracer.Scope
	c.instrumenter.suppress("callback.activate", func() {
		scope = c.parent.Activate(exec)
	})
	defer scope.Close()
	fn(ctx)
}

func (c *TraceContinuedCallback[T]) Completed(ctx context.Context, result T) {

	if !c.signal("completed") {
		return
	}
	c.complete(result)
	c.resume(ctx, func(ctx context.Context) {
		c.delegate.Completed(ctx, result)
	})
}

func (c *TraceContinuedCallback[T]) Failed(ctx context.Context, err error) {

	if !c.signal("failed") {
		return
	}
	c.complete(err)
	c.resume(ctx, func(ctx context.Context) {
		c.delegate.Failed(ctx, err)
	})
}

func (c *TraceContinuedCallback[T]) Cancelled(ctx context.Context) {

	if !c.signal("cancelled") {
		return
	}
	c.complete(decorator.Cancelled)
	c.resume(ctx, func(ctx context.Context) {
		c.delegate.Cancelled(ctx)
	})
}

func (c *TraceContinuedCallback[T]) Span() *tracer.Span {
	return c.span
}

// NewTraceContinuedCallback wraps delegate for span. parent and delegate
// may be nil.
func NewTraceContinuedCallback[T any](i *Instrumenter, parent *tracer.Continuation, span *tracer.Span,
	d decorator.Decorator, delegate FutureCallback[T]) *TraceContinuedCallback[T] {

	return &TraceContinuedCallback[T]{
		instrumenter: i,
		parent:       parent,
		span:         span,
		decorator:    d,
		delegate:     delegate,
	}
}
