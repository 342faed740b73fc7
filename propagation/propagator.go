package propagation

import (
	"sort"
	"strconv"
	"strings"

	"github.com/devopsext/asynctrace/tracer"
)

const (
	DefaultTraceIDKey       = "x-datadog-trace-id"
	DefaultParentIDKey      = "x-datadog-parent-id"
	DefaultSamplingKey      = "x-datadog-sampling-priority"
	DefaultBaggagePrefixKey = "ot-baggage-"
)

type PropagatorOptions struct {
	TraceIDKey    string
	ParentIDKey   string
	SamplingKey   string
	BaggagePrefix string
}

// Propagator injects span contexts into carriers and extracts them back.
// Ids are written as decimal strings, the sampling decision as "1" or "0",
// and every baggage item under the baggage prefix. Keys are matched
// without regard to case on extraction.
type Propagator struct {
	traceIDKey    string
	parentIDKey   string
	samplingKey   string
	baggagePrefix string
}

func (p *Propagator) inject(ctx *tracer.SpanContext, set func(key, value string)) {

	if ctx == nil {
		return
	}

	set(p.traceIDKey, strconv.FormatUint(ctx.TraceID(), 10))
	set(p.parentIDKey, strconv.FormatUint(ctx.SpanID(), 10))

	priority := "0"
	if ctx.Sampled() {
		priority = "1"
	}
	set(p.samplingKey, priority)

	ctx.ForeachBaggageItem(func(k, v string) bool {
		set(p.baggagePrefix+k, v)
		return true
	})
}

func parseID(s string) (uint64, bool) {

	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (p *Propagator) extract(keys []string, get func(key string) (string, bool)) *tracer.SpanContext {

	var traceID, spanID uint64
	var traceOK, spanOK bool
	sampled := true

	type item struct{ key, value string }
	var baggage []item

	for _, key := range keys {

		lower := strings.ToLower(key)
		switch {
		case lower == p.traceIDKey:
			if v, ok := get(key); ok {
				traceID, traceOK = parseID(v)
			}
		case lower == p.parentIDKey:
			if v, ok := get(key); ok {
				spanID, spanOK = parseID(v)
			}
		case lower == p.samplingKey:
			if v, ok := get(key); ok {
				if priority, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
					sampled = priority > 0
				}
			}
		case strings.HasPrefix(lower, p.baggagePrefix) && len(lower) > len(p.baggagePrefix):
			if v, ok := get(key); ok {
				baggage = append(baggage, item{key: lower[len(p.baggagePrefix):], value: v})
			}
		}
	}

	if !traceOK || !spanOK {
		return nil
	}

	// carriers list keys in no particular order
	sort.SliceStable(baggage, func(i, j int) bool { return baggage[i].key < baggage[j].key })

	ctx := tracer.NewSpanContext(traceID, spanID, sampled)
	for _, b := range baggage {
		ctx = ctx.WithBaggageItem(b.key, b.value)
	}
	return ctx
}

// Inject writes ctx into carrier. A nil context writes nothing.
func Inject[C any](p *Propagator, ctx *tracer.SpanContext, carrier C, setter Setter[C]) {

	if p == nil || setter == nil {
		return
	}
	p.inject(ctx, func(key, value string) {
		setter.Set(carrier, key, value)
	})
}

// Extract reads a remote span context from carrier. It returns nil when
// the trace id or span id is missing or malformed; it never fails.
func Extract[C any](p *Propagator, carrier C, getter Getter[C]) *tracer.SpanContext {

	if p == nil || getter == nil {
		return nil
	}
	return p.extract(getter.Keys(carrier), func(key string) (string, bool) {
		return getter.Get(carrier, key)
	})
}

func orDefault(value, def string) string {

	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func NewPropagator(options PropagatorOptions) *Propagator {
	return &Propagator{
		traceIDKey:    orDefault(options.TraceIDKey, DefaultTraceIDKey),
		parentIDKey:   orDefault(options.ParentIDKey, DefaultParentIDKey),
		samplingKey:   orDefault(options.SamplingKey, DefaultSamplingKey),
		baggagePrefix: orDefault(options.BaggagePrefix, DefaultBaggagePrefixKey),
	}
}
