// Package decorator annotates spans from the objects instrumentation sees:
// requests, responses, errors, entities and messaging commands.
package decorator

import (
	"github.com/devopsext/asynctrace/common"
	"github.com/devopsext/asynctrace/tracer"
)

// Decorator annotates span from object. Decorators ignore objects they do
// not understand.
type Decorator interface {
	Decorate(span *tracer.Span, object interface{})
}

type DecoratorFunc func(span *tracer.Span, object interface{})

func (f DecoratorFunc) Decorate(span *tracer.Span, object interface{}) {
	f(span, object)
}

// Cancellation is the object decorators receive when an operation is
// cancelled.
type Cancellation struct{}

var Cancelled = Cancellation{}

// Chain runs decorators in order. Put the most specific decorator first:
// it gets the first claim on the resource name. A failing decorator is
// skipped; it never reaches the caller.
type Chain struct {
	decorators []Decorator
	logger     common.Logger
}

func (c *Chain) Decorate(span *tracer.Span, object interface{}) {

	if c == nil || span == nil {
		return
	}
	for _, d := range c.decorators {
		c.safely(d, span, object)
	}
}

func (c *Chain) safely(d Decorator, span *tracer.Span, object interface{}) {

	defer func() {
		if r := recover(); r != nil {
			c.logger.SpanDebug(span, "Decorator %T failed on %T: %v", d, object, r)
		}
	}()
	d.Decorate(span, object)
}

func (c *Chain) Len() int {

	if c == nil {
		return 0
	}
	return len(c.decorators)
}

// With returns a new chain with decorators appended. A chain without a
// logger gets a discarding one.
func (c *Chain) With(decorators ...Decorator) *Chain {

	r := &Chain{}
	if c != nil {
		r.logger = c.logger
		r.decorators = append(r.decorators, c.decorators...)
	}
	if r.logger == nil {
		r.logger = common.NewLogs()
	}
	for _, d := range decorators {
		if d != nil {
			r.decorators = append(r.decorators, d)
		}
	}
	return r
}

func NewChain(logger common.Logger, decorators ...Decorator) *Chain {

	if logger == nil {
		logger = common.NewLogs()
	}
	return (&Chain{logger: logger}).With(decorators...)
}
