package decorator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/devopsext/asynctrace/tracer"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Order struct{ ID int }

func newSpan(name string) *tracer.Span {
	return tracer.New(tracer.Options{ServiceName: "shop"}, nil, nil, nil).StartSpan(name)
}

func tag(span *tracer.Span, key string) interface{} {
	v, _ := span.Tag(key)
	return v
}

func TestChainRunsInOrderAndSwallowsPanics(t *testing.T) {

	var calls []string
	record := func(name string) Decorator {
		return DecoratorFunc(func(span *tracer.Span, object interface{}) {
			calls = append(calls, name)
		})
	}
	boom := DecoratorFunc(func(span *tracer.Span, object interface{}) {
		panic("broken decorator")
	})

	chain := NewChain(nil, record("first"), boom, nil, record("last"))
	require.Equal(t, 3, chain.Len())

	span := newSpan("op")
	assert.NotPanics(t, func() { chain.Decorate(span, "anything") })
	assert.Equal(t, []string{"first", "last"}, calls)

	var none *Chain
	assert.NotPanics(t, func() { none.Decorate(span, nil) })
	assert.Zero(t, none.Len())
}

func TestChainWithDoesNotModifyOriginal(t *testing.T) {

	base := NewChain(nil, ComponentDecorator{Component: "netty"})
	extended := base.With(ErrorDecorator{})

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, extended.Len())
}

func TestChainWithoutLoggerSwallowsPanics(t *testing.T) {

	boom := DecoratorFunc(func(span *tracer.Span, object interface{}) {
		panic("broken decorator")
	})

	var none *Chain
	for _, chain := range []*Chain{(&Chain{}).With(boom), none.With(boom)} {
		require.Equal(t, 1, chain.Len())
		assert.NotPanics(t, func() { chain.Decorate(newSpan("op"), "anything") })
	}
}

func TestComponentDecorator(t *testing.T) {

	span := newSpan("op")
	ComponentDecorator{Component: "apache-httpasyncclient", Kind: SpanKindClient}.Decorate(span, nil)

	assert.Equal(t, "apache-httpasyncclient", tag(span, TagComponent))
	assert.Equal(t, SpanKindClient, tag(span, TagSpanKind))

	// keys and values follow the opentracing conventions backends expect
	assert.Equal(t, "apache-httpasyncclient", tag(span, string(ext.Component)))
	assert.Equal(t, string(ext.SpanKindRPCClientEnum), tag(span, string(ext.SpanKind)))
}

func TestErrorDecorator(t *testing.T) {

	span := newSpan("op")
	ErrorDecorator{}.Decorate(span, errors.New("refused"))
	assert.True(t, span.IsError())
	assert.Equal(t, "refused", tag(span, tracer.TagErrorMessage))

	cancelled := newSpan("op")
	ErrorDecorator{}.Decorate(cancelled, Cancelled)
	assert.Equal(t, true, tag(cancelled, TagCancelled))
	assert.False(t, cancelled.IsError())

	ctxCancelled := newSpan("op")
	ErrorDecorator{}.Decorate(ctxCancelled, fmt.Errorf("dial: %w", context.Canceled))
	assert.Equal(t, true, tag(ctxCancelled, TagCancelled))
	assert.False(t, ctxCancelled.IsError())

	ignored := newSpan("op")
	ErrorDecorator{}.Decorate(ignored, "not an error")
	assert.Empty(t, ignored.Tags())
}

func TestHTTPClientDecorator(t *testing.T) {

	req, err := http.NewRequest(http.MethodPost, "https://user:pw@payments.local/v1/charges/1234?token=secret", nil)
	require.NoError(t, err)

	span := newSpan("http.request")
	d := HTTPClientDecorator{Normalize: NormalizeNumericSegments}
	d.Decorate(span, req)

	assert.Equal(t, http.MethodPost, tag(span, TagHTTPMethod))
	assert.Equal(t, "https://payments.local/v1/charges/1234", tag(span, TagHTTPURL))
	assert.Equal(t, "payments.local", tag(span, TagPeerHostname))
	assert.Equal(t, 443, tag(span, TagPeerPort))
	assert.Equal(t, "POST /v1/charges/?", span.ResourceName())

	d.Decorate(span, &http.Response{StatusCode: http.StatusNotFound})
	assert.Equal(t, http.StatusNotFound, tag(span, TagHTTPStatusCode))
	assert.True(t, span.IsError())

	ok := newSpan("http.request")
	d.Decorate(ok, &http.Response{StatusCode: http.StatusOK})
	assert.False(t, ok.IsError())

	var nilReq *http.Request
	assert.NotPanics(t, func() { d.Decorate(ok, nilReq) })
}

func TestHTTPServerDecorator(t *testing.T) {

	req := &http.Request{
		Method: http.MethodGet,
		Host:   "orders.local:8080",
		URL:    &url.URL{Path: "/orders"},
		Header: http.Header{"User-Agent": []string{"curl/8"}},
	}

	span := newSpan("servlet.request")
	d := HTTPServerDecorator{}
	d.Decorate(span, req)
	assert.Equal(t, "http://orders.local:8080/orders", tag(span, TagHTTPURL))
	assert.Equal(t, "curl/8", tag(span, TagHTTPUserAgent))
	assert.Equal(t, "GET /orders", span.ResourceName())

	d.Decorate(span, StatusCode(http.StatusNotFound))
	assert.False(t, span.IsError(), "4xx is a client problem on the server side")

	d.Decorate(span, StatusCode(http.StatusBadGateway))
	assert.True(t, span.IsError())
	assert.Equal(t, http.StatusBadGateway, tag(span, TagHTTPStatusCode))
}

func TestEntityDecoratorDoesNotClobber(t *testing.T) {

	d := EntityDecorator{Component: "hibernate"}

	span := newSpan("hibernate.save")
	d.Decorate(span, Entity{Operation: "save", Value: &Order{ID: 1}})
	assert.Equal(t, "Order", span.ResourceName())
	assert.Equal(t, "Order", tag(span, TagEntityName))

	d.Decorate(span, Entity{Operation: "save", Value: nil})
	assert.Equal(t, "Order", span.ResourceName())

	unnamed := newSpan("hibernate.query")
	unnamed.SetResourceName("select orders")
	d.Decorate(unnamed, Entity{Operation: "query", Value: map[string]int{}})
	assert.Equal(t, "select orders", unnamed.ResourceName())
}

func TestEntityDecoratorFirstClaimWins(t *testing.T) {

	named := func(name string) EntityNamer {
		return func(interface{}) string { return name }
	}
	chain := NewChain(nil,
		EntityDecorator{Name: named("")},
		EntityDecorator{Name: named("Specific")},
		EntityDecorator{Name: named("Generic")},
	)

	span := newSpan("hibernate.load")
	chain.Decorate(span, Entity{Operation: "load", Value: Order{}})
	assert.Equal(t, "Specific", span.ResourceName())
}

func TestTypeName(t *testing.T) {

	assert.Equal(t, "Order", TypeName(Order{}))
	assert.Equal(t, "Order", TypeName(&Order{}))
	assert.Equal(t, "Order", TypeName([]*Order{}))
	assert.Equal(t, "", TypeName(nil))
}

func TestAMQPDecorator(t *testing.T) {

	publish := newSpan("amqp.command")
	AMQPDecorator{}.Decorate(publish, AMQPCommand{Method: "basic.publish", RoutingKey: "orders.created", BodySize: 12})
	assert.Equal(t, "basic.publish <default> -> orders.created", publish.ResourceName())
	assert.Equal(t, "orders.created", tag(publish, TagAMQPRoutingKey))
	assert.Equal(t, 12, tag(publish, TagMessageSize))

	deliver := newSpan("amqp.command")
	AMQPDecorator{}.Decorate(deliver, AMQPCommand{Method: "basic.deliver", Queue: "billing"})
	assert.Equal(t, "basic.deliver billing", deliver.ResourceName())

	other := newSpan("amqp.command")
	AMQPDecorator{}.Decorate(other, AMQPCommand{Method: "queue.declare"})
	assert.Equal(t, "queue.declare", other.ResourceName())
}
