package instrumentation

import (
	"context"
	"fmt"

	"github.com/devopsext/asynctrace/decorator"
	"github.com/devopsext/asynctrace/tracer"
)

const ORMComponent = "orm"

// TraceEntityOperation runs fn inside an ORM span active on the caller's
// execution. The span resource defaults to the operation and is renamed
// after the entity when the entity has a name.
func (i *Instrumenter) TraceEntityOperation(ctx context.Context, operation string, entity interface{},
	namer decorator.EntityNamer, fn func(ctx context.Context) error) (err error) {

	if ctx == nil {
		ctx = context.Background()
	}

	chain := decorator.NewChain(i.logger,
		decorator.EntityDecorator{Component: ORMComponent, Name: namer},
		decorator.ComponentDecorator{Kind: decorator.SpanKindInternal},
		decorator.ErrorDecorator{},
	)

	var span *tracer.Span
	var scope *tracer.Scope

	i.suppress("orm.enter", func() {
		var exec *tracer.Execution
		ctx, exec = i.tracer.Scopes().Execution(ctx)
		span = i.tracer.StartSpan(fmt.Sprintf("%s.%s", ORMComponent, operation),
			tracer.ChildOf(exec.ActiveContext()),
			tracer.ResourceName(operation),
		)
		chain.Decorate(span, decorator.Entity{Operation: operation, Value: entity})
		scope = exec.Activate(span)
	})

	defer func() {
		rec := recover()
		i.suppress("orm.exit", func() {
			if span == nil {
				return
			}
			if rec != nil {
				chain.Decorate(span, fmt.Errorf("panic: %v", rec))
			} else if err != nil {
				chain.Decorate(span, err)
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

	return fn(ctx)
}
