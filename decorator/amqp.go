package decorator

import (
	"fmt"

	"github.com/devopsext/asynctrace/tracer"
)

const (
	TagAMQPCommand    = "amqp.command"
	TagAMQPExchange   = "amqp.exchange"
	TagAMQPRoutingKey = "amqp.routing_key"
	TagAMQPQueue      = "amqp.queue"
	TagMessageSize    = "message.size"
)

// AMQPCommand describes a publish or a delivery.
type AMQPCommand struct {
	Method     string
	Exchange   string
	RoutingKey string
	Queue      string
	BodySize   int
}

// AMQPDecorator names publish spans "basic.publish <exchange> -> <key>"
// and delivery spans "basic.deliver <queue>".
type AMQPDecorator struct{}

func orDefault(s, def string) string {

	if s == "" {
		return def
	}
	return s
}

func (AMQPDecorator) Decorate(span *tracer.Span, object interface{}) {

	c, ok := object.(AMQPCommand)
	if !ok {
		return
	}

	span.SetTag(TagAMQPCommand, c.Method)
	if c.Exchange != "" {
		span.SetTag(TagAMQPExchange, c.Exchange)
	}
	if c.RoutingKey != "" {
		span.SetTag(TagAMQPRoutingKey, c.RoutingKey)
	}
	if c.Queue != "" {
		span.SetTag(TagAMQPQueue, c.Queue)
	}
	span.SetTag(TagMessageSize, c.BodySize)

	switch c.Method {
	case "basic.publish":
		span.DecorateResourceName(fmt.Sprintf("%s %s -> %s", c.Method,
			orDefault(c.Exchange, "<default>"), orDefault(c.RoutingKey, "<all>")))
	case "basic.deliver", "basic.get":
		span.DecorateResourceName(fmt.Sprintf("%s %s", c.Method, orDefault(c.Queue, "<generated>")))
	default:
		span.DecorateResourceName(c.Method)
	}
}
