package instrumentation

import (
	"context"
	"fmt"

	"github.com/devopsext/asynctrace/decorator"
	"github.com/devopsext/asynctrace/propagation"
	"github.com/devopsext/asynctrace/tracer"
)

const (
	AMQPOperation = "amqp.command"
	AMQPComponent = "rabbitmq-amqp"
)

type Message struct {
	Headers map[string]interface{}
	Body    []byte
}

type Delivery struct {
	Exchange   string
	RoutingKey string
	Queue      string
	Message
}

// Channel is the publishing side of a broker connection.
type Channel interface {
	Publish(ctx context.Context, exchange, routingKey string, msg Message) error
}

// Publisher traces publishes and injects the publish span into the
// message headers so consumers continue the trace.
type Publisher struct {
	channel      Channel
	instrumenter *Instrumenter
	decorator    *decorator.Chain
}

func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg Message) error {

	var span *tracer.Span

	p.instrumenter.suppress("amqp.publish.enter", func() {
		span = p.instrumenter.tracer.StartSpanFromContext(ctx, AMQPOperation)
		p.decorator.Decorate(span, decorator.AMQPCommand{
			Method:     "basic.publish",
			Exchange:   exchange,
			RoutingKey: routingKey,
			BodySize:   len(msg.Body),
		})

		headers := make(map[string]interface{}, len(msg.Headers)+5)
		for k, v := range msg.Headers {
			headers[k] = v
		}
		propagation.Inject(p.instrumenter.propagator, span.Context(), headers, propagation.Tables)
		msg.Headers = headers
	})

	err := p.channel.Publish(ctx, exchange, routingKey, msg)

	p.instrumenter.suppress("amqp.publish.exit", func() {
		if span == nil {
			return
		}
		if err != nil {
			p.decorator.Decorate(span, err)
		}
		span.Finish()
	})
	return err
}

func (i *Instrumenter) NewPublisher(channel Channel) *Publisher {
	return &Publisher{
		channel:      channel,
		instrumenter: i,
		decorator: decorator.NewChain(i.logger,
			decorator.AMQPDecorator{},
			decorator.ComponentDecorator{Component: AMQPComponent, Kind: decorator.SpanKindProducer},
			decorator.ErrorDecorator{},
		),
	}
}

// Consume runs handler for delivery inside a consumer span that continues
// the trace carried in the delivery headers. The span is active on a new
// execution carried by the handler context.
func (i *Instrumenter) Consume(ctx context.Context, delivery Delivery, handler func(ctx context.Context) error) (err error) {

	if ctx == nil {
		ctx = context.Background()
	}

	chain := decorator.NewChain(i.logger,
		decorator.AMQPDecorator{},
		decorator.ComponentDecorator{Component: AMQPComponent, Kind: decorator.SpanKindConsumer},
		decorator.ErrorDecorator{},
	)

	var span *tracer.Span
	var scope *tracer.Scope

	i.suppress("amqp.deliver.enter", func() {
		remote := propagation.Extract(i.propagator, delivery.Headers, propagation.Tables)
		span = i.tracer.StartSpan(AMQPOperation, tracer.ChildOf(remote))
		chain.Decorate(span, decorator.AMQPCommand{
			Method:     "basic.deliver",
			Exchange:   delivery.Exchange,
			RoutingKey: delivery.RoutingKey,
			Queue:      delivery.Queue,
			BodySize:   len(delivery.Body),
		})

		exec := i.tracer.Scopes().NewExecution()
		scope = exec.Activate(span)
		ctx = tracer.ContextWithExecution(ctx, exec)
	})

	defer func() {
		rec := recover()
		i.suppress("amqp.deliver.exit", func() {
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

	return handler(ctx)
}
