// Package tracer holds the span model, the trace buffers that hand finished
// traces to a Writer, and the scope manager that tracks the active span of
// every logical thread of execution.
package tracer

import (
	"fmt"
	"strings"
)

type baggageItem struct {
	key   string
	value string
}

// SpanContext is the immutable identity of a span. Contexts created by
// StartSpan are local and share a trace buffer with their children;
// contexts returned by extraction are remote.
type SpanContext struct {
	traceID  uint64
	spanID   uint64
	parentID uint64
	sampled  bool
	baggage  []baggageItem
	trace    *trace
}

// NewSpanContext builds a remote context, e.g. from a carrier.
func NewSpanContext(traceID, spanID uint64, sampled bool) *SpanContext {
	return &SpanContext{
		traceID: traceID,
		spanID:  spanID,
		sampled: sampled,
	}
}

func (c *SpanContext) TraceID() uint64 {
	return c.traceID
}

func (c *SpanContext) SpanID() uint64 {
	return c.spanID
}

// ParentID is zero for the root of a trace and for remote contexts.
func (c *SpanContext) ParentID() uint64 {
	return c.parentID
}

func (c *SpanContext) Sampled() bool {
	return c.sampled
}

func (c *SpanContext) IsRemote() bool {
	return c.trace == nil
}

func (c *SpanContext) BaggageItem(key string) (string, bool) {

	key = strings.ToLower(key)
	for _, item := range c.baggage {
		if item.key == key {
			return item.value, true
		}
	}
	return "", false
}

// ForeachBaggageItem visits baggage in insertion order until handler
// returns false.
func (c *SpanContext) ForeachBaggageItem(handler func(key, value string) bool) {

	for _, item := range c.baggage {
		if !handler(item.key, item.value) {
			return
		}
	}
}

func (c *SpanContext) BaggageLen() int {
	return len(c.baggage)
}

// Baggage returns a copy of the baggage as a map.
func (c *SpanContext) Baggage() map[string]string {

	if len(c.baggage) == 0 {
		return nil
	}
	m := make(map[string]string, len(c.baggage))
	for _, item := range c.baggage {
		m[item.key] = item.value
	}
	return m
}

// WithBaggageItem returns a copy of the context carrying the item. Keys are
// lower-cased; an existing key keeps its position and takes the new value.
func (c *SpanContext) WithBaggageItem(key, value string) *SpanContext {

	key = strings.ToLower(key)
	if key == "" {
		return c
	}

	r := *c
	r.baggage = make([]baggageItem, 0, len(c.baggage)+1)

	replaced := false
	for _, item := range c.baggage {
		if item.key == key {
			item.value = value
			replaced = true
		}
		r.baggage = append(r.baggage, item)
	}
	if !replaced {
		r.baggage = append(r.baggage, baggageItem{key: key, value: value})
	}
	return &r
}

func (c *SpanContext) String() string {
	return fmt.Sprintf("%d:%d:%d:%t", c.traceID, c.spanID, c.parentID, c.sampled)
}

func newChildContext(parent *SpanContext, spanID uint64, t *trace) *SpanContext {
	return &SpanContext{
		traceID:  parent.traceID,
		spanID:   spanID,
		parentID: parent.spanID,
		sampled:  parent.sampled,
		baggage:  parent.baggage,
		trace:    t,
	}
}
