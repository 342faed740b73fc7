package propagation

import (
	"fmt"
	"net/http"

	"github.com/opentracing/opentracing-go"
)

// HeaderCarrier reads and writes http.Header.
type HeaderCarrier struct{}

// RequestCarrier reads and writes the headers of an *http.Request.
type RequestCarrier struct{}

// TextMapCarrier reads and writes map[string]string.
type TextMapCarrier struct{}

// TableCarrier reads and writes message header tables such as AMQP
// headers. Values read back are converted to strings.
type TableCarrier struct{}

// OpentracingCarrier adapts opentracing text map writers and readers.
type OpentracingCarrier struct{}

// Attributes is a request scoped attribute store that handlers further
// down the chain can read, such as the attributes of a server request.
type Attributes interface {
	SetAttribute(key string, value interface{})
	Attribute(key string) (interface{}, bool)
	AttributeNames() []string
}

// AttributeMap is a map backed Attributes.
type AttributeMap map[string]interface{}

// AttributeCarrier reads and writes Attributes. Values read back are
// converted to strings.
type AttributeCarrier struct{}

var (
	HTTPHeaders = HeaderCarrier{}
	Requests    = RequestCarrier{}
	TextMaps    = TextMapCarrier{}
	Tables      = TableCarrier{}
	Opentracing = OpentracingCarrier{}
	Attribute   = AttributeCarrier{}
)

func (HeaderCarrier) Set(h http.Header, key, value string) {

	if h == nil {
		return
	}
	h.Set(key, value)
}

func (HeaderCarrier) Keys(h http.Header) []string {

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

func (HeaderCarrier) Get(h http.Header, key string) (string, bool) {

	values := h.Values(key)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (RequestCarrier) Set(r *http.Request, key, value string) {

	if r == nil {
		return
	}
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
}

func (RequestCarrier) Keys(r *http.Request) []string {

	if r == nil {
		return nil
	}
	return HTTPHeaders.Keys(r.Header)
}

func (RequestCarrier) Get(r *http.Request, key string) (string, bool) {

	if r == nil {
		return "", false
	}
	return HTTPHeaders.Get(r.Header, key)
}

func (TextMapCarrier) Set(m map[string]string, key, value string) {

	if m == nil {
		return
	}
	m[key] = value
}

func (TextMapCarrier) Keys(m map[string]string) []string {

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (TextMapCarrier) Get(m map[string]string, key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (TableCarrier) Set(m map[string]interface{}, key, value string) {

	if m == nil {
		return
	}
	m[key] = value
}

func (TableCarrier) Keys(m map[string]interface{}) []string {

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (TableCarrier) Get(m map[string]interface{}, key string) (string, bool) {

	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	switch value := v.(type) {
	case string:
		return value, true
	case []byte:
		return string(value), true
	case fmt.Stringer:
		return value.String(), true
	default:
		return fmt.Sprintf("%v", value), true
	}
}

func (OpentracingCarrier) Set(w opentracing.TextMapWriter, key, value string) {

	if w == nil {
		return
	}
	w.Set(key, value)
}

type opentracingGetter struct{}

func (opentracingGetter) Keys(r opentracing.TextMapReader) []string {

	if r == nil {
		return nil
	}
	var keys []string
	_ = r.ForeachKey(func(key, val string) error {
		keys = append(keys, key)
		return nil
	})
	return keys
}

func (opentracingGetter) Get(r opentracing.TextMapReader, key string) (string, bool) {

	if r == nil {
		return "", false
	}
	value, found := "", false
	_ = r.ForeachKey(func(k, v string) error {
		if k == key && !found {
			value, found = v, true
		}
		return nil
	})
	return value, found
}

// Reader returns the Getter side for opentracing readers.
func (OpentracingCarrier) Reader() Getter[opentracing.TextMapReader] {
	return opentracingGetter{}
}

func (m AttributeMap) SetAttribute(key string, value interface{}) {
	m[key] = value
}

func (m AttributeMap) Attribute(key string) (interface{}, bool) {
	v, ok := m[key]
	return v, ok
}

func (m AttributeMap) AttributeNames() []string {

	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	return names
}

func (AttributeCarrier) Set(a Attributes, key, value string) {

	if a == nil {
		return
	}
	a.SetAttribute(key, value)
}

func (AttributeCarrier) Keys(a Attributes) []string {

	if a == nil {
		return nil
	}
	return a.AttributeNames()
}

func (AttributeCarrier) Get(a Attributes, key string) (string, bool) {

	if a == nil {
		return "", false
	}
	v, ok := a.Attribute(key)
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprintf("%v", v), true
}
