package decorator

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/devopsext/asynctrace/tracer"
	"github.com/opentracing/opentracing-go/ext"
)

const (
	TagCancelled     = "cancelled"
	SpanKindInternal = "internal"
)

var (
	TagComponent    = string(ext.Component)
	TagSpanKind     = string(ext.SpanKind)
	TagPeerHostname = string(ext.PeerHostname)
	TagPeerPort     = string(ext.PeerPort)

	SpanKindClient   = string(ext.SpanKindRPCClientEnum)
	SpanKindServer   = string(ext.SpanKindRPCServerEnum)
	SpanKindProducer = string(ext.SpanKindProducerEnum)
	SpanKindConsumer = string(ext.SpanKindConsumerEnum)
)

// ComponentDecorator tags every span it sees with the instrumented
// component and the span kind.
type ComponentDecorator struct {
	Component string
	Kind      string
}

func (d ComponentDecorator) Decorate(span *tracer.Span, object interface{}) {

	if d.Component != "" {
		span.SetTag(TagComponent, d.Component)
	}
	if d.Kind != "" {
		span.SetTag(TagSpanKind, d.Kind)
	}
}

// ErrorDecorator marks spans failed on errors and tags them on
// cancellation. Context cancellation errors count as cancellation.
type ErrorDecorator struct{}

func (ErrorDecorator) Decorate(span *tracer.Span, object interface{}) {

	switch v := object.(type) {
	case Cancellation:
		span.SetTag(TagCancelled, true)
	case error:
		if isCancellation(v) {
			span.SetTag(TagCancelled, true)
			return
		}
		span.Error(v)
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

func setPeer(span *tracer.Span, host, port string) {

	if host == "" {
		return
	}
	span.SetTag(TagPeerHostname, host)
	if p, err := strconv.Atoi(port); err == nil && p > 0 {
		span.SetTag(TagPeerPort, p)
	}
}

func splitHostPort(hostport, scheme string) (string, string) {

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
		port = ""
	}
	if port == "" {
		switch scheme {
		case "https":
			port = "443"
		case "http":
			port = "80"
		}
	}
	return host, port
}
