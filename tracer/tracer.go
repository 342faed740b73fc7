package tracer

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devopsext/asynctrace/common"
	"github.com/uber/jaeger-client-go/utils"
	"github.com/zoobzio/clockz"
)

type Options struct {
	ServiceName string
	Version     string
	Environment string
	// Debug turns scope and continuation misuse into panics.
	Debug     bool
	Workers   int
	QueueSize int
	Clock     clockz.Clock
}

type StartSpanOptions struct {
	Parent       *SpanContext
	ResourceName string
	StartTime    time.Time
	Tags         map[string]interface{}
	Baggage      []baggageItem
}

type StartSpanOption func(*StartSpanOptions)

type tracerMetrics struct {
	spansStarted    common.Counter
	spansFinished   common.Counter
	spansDropped    common.Counter
	finishConflicts common.Counter
	tracesWritten   common.Counter
	tracesDropped   common.Counter
	writerErrors    common.Counter
}

// Tracer starts spans and delivers finished traces to its writer. It is
// safe for concurrent use.
type Tracer struct {
	options      Options
	logger       common.Logger
	writer       Writer
	clock        clockz.Clock
	scopes       *ScopeManager
	metrics      tracerMetrics
	workers      *workerPool
	dropped      atomic.Uint64
	stopped      atomic.Bool
	randomNumber func() uint64
}

// ChildOf makes the new span a child of parent. A nil parent starts a new
// trace.
func ChildOf(parent *SpanContext) StartSpanOption {
	return func(o *StartSpanOptions) {
		o.Parent = parent
	}
}

func ResourceName(name string) StartSpanOption {
	return func(o *StartSpanOptions) {
		o.ResourceName = name
	}
}

func StartTime(t time.Time) StartSpanOption {
	return func(o *StartSpanOptions) {
		o.StartTime = t
	}
}

func Tag(key string, value interface{}) StartSpanOption {
	return func(o *StartSpanOptions) {
		if o.Tags == nil {
			o.Tags = make(map[string]interface{})
		}
		o.Tags[key] = value
	}
}

func BaggageItem(key, value string) StartSpanOption {
	return func(o *StartSpanOptions) {
		o.Baggage = append(o.Baggage, baggageItem{key: key, value: value})
	}
}

func (t *Tracer) newID() uint64 {

	for {
		if id := t.randomNumber(); id != 0 {
			return id
		}
	}
}

// StartSpan never fails. Without a parent it starts a new trace whose root
// span id equals the trace id; with a parent it inherits the trace id,
// sampling decision and baggage.
func (t *Tracer) StartSpan(operationName string, opts ...StartSpanOption) *Span {

	o := StartSpanOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	start := o.StartTime
	if start.IsZero() {
		start = t.clock.Now()
	}

	var ctx *SpanContext
	if o.Parent == nil {
		id := t.newID()
		ctx = &SpanContext{
			traceID: id,
			spanID:  id,
			sampled: true,
			trace:   newTrace(t.traceFinished),
		}
	} else {
		tr := o.Parent.trace
		if tr == nil {
			tr = newTrace(t.traceFinished)
		}
		ctx = newChildContext(o.Parent, t.newID(), tr)
	}

	for _, item := range o.Baggage {
		ctx = ctx.WithBaggageItem(item.key, item.value)
	}

	span := &Span{
		tracer:        t,
		context:       ctx,
		operationName: operationName,
		resourceName:  o.ResourceName,
		start:         start,
	}
	for k, v := range o.Tags {
		span.SetTag(k, v)
	}

	if err := ctx.trace.push(span); err != nil {
		t.metrics.spansDropped.Inc()
		t.logger.Error("Span %s is not buffered: %s", span, err)
	} else {
		span.buffered = true
	}
	t.metrics.spansStarted.Inc()
	return span
}

// StartSpanFromContext starts a child of the span active on the execution
// carried by ctx, or a new trace when nothing is active.
func (t *Tracer) StartSpanFromContext(ctx context.Context, operationName string, opts ...StartSpanOption) *Span {

	parent := ExecutionFromContext(ctx).ActiveContext()
	return t.StartSpan(operationName, append([]StartSpanOption{ChildOf(parent)}, opts...)...)
}

func (t *Tracer) spanFinished(s *Span) {

	t.metrics.spansFinished.Inc()
	if s.buffered {
		s.context.trace.ackFinish()
	}
}

func (t *Tracer) traceFinished(spans []*Span) {

	batch := make([]SpanData, 0, len(spans))
	for _, s := range spans {
		batch = append(batch, s.Data())
	}

	if t.stopped.Load() {
		t.drop(batch, "tracer is stopped")
		return
	}

	if t.workers == nil {
		t.write(batch)
		return
	}
	if !t.workers.submit(func() { t.write(batch) }) {
		t.drop(batch, "writer queue is full")
	}
}

func (t *Tracer) drop(batch []SpanData, reason string) {

	t.dropped.Add(1)
	t.metrics.tracesDropped.Inc()
	t.logger.Warn("Trace %d with %d spans dropped: %s", batch[0].TraceID, len(batch), reason)
}

func (t *Tracer) write(batch []SpanData) {

	if t.writer == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.metrics.writerErrors.Inc()
			t.logger.Error("Writer panic on trace %d: %v", batch[0].TraceID, r)
		}
	}()

	if err := t.writer.Write(batch); err != nil {
		t.metrics.writerErrors.Inc()
		t.logger.Error("Writer failed on trace %d: %s", batch[0].TraceID, err)
		return
	}
	t.metrics.tracesWritten.Inc()
}

func (t *Tracer) Scopes() *ScopeManager {
	return t.scopes
}

func (t *Tracer) Logger() common.Logger {
	return t.logger
}

func (t *Tracer) Clock() clockz.Clock {
	return t.clock
}

func (t *Tracer) Options() Options {
	return t.options
}

// Dropped returns the number of traces that never reached the writer.
func (t *Tracer) Dropped() uint64 {
	return t.dropped.Load()
}

// Stop flushes queued traces and stops the writer. Traces finishing after
// Stop are dropped.
func (t *Tracer) Stop() {

	if !t.stopped.CompareAndSwap(false, true) {
		return
	}
	if t.workers != nil {
		t.workers.shutdown()
	}
	if t.writer != nil {
		t.writer.Stop()
	}
}

func newRandomNumber() func() uint64 {

	seedGenerator := utils.NewRand(time.Now().UnixNano())
	pool := sync.Pool{
		New: func() interface{} {
			return rand.NewSource(seedGenerator.Int63())
		},
	}

	return func() uint64 {
		generator := pool.Get().(rand.Source)
		number := uint64(generator.Int63())
		pool.Put(generator)
		return number
	}
}

func New(options Options, writer Writer, logger common.Logger, meter common.Meter) *Tracer {

	if logger == nil {
		logger = common.NewLogs()
	}
	if meter == nil {
		meter = common.NewMetrics()
	}

	clock := options.Clock
	if clock == nil {
		clock = clockz.RealClock
	}

	t := &Tracer{
		options:      options,
		logger:       logger,
		writer:       writer,
		clock:        clock,
		randomNumber: newRandomNumber(),
		metrics: tracerMetrics{
			spansStarted:    meter.Counter("spans_started", "Spans started", nil, "tracer"),
			spansFinished:   meter.Counter("spans_finished", "Spans finished", nil, "tracer"),
			spansDropped:    meter.Counter("spans_dropped", "Spans not buffered", nil, "tracer"),
			finishConflicts: meter.Counter("finish_conflicts", "Repeated finish calls", nil, "tracer"),
			tracesWritten:   meter.Counter("traces_written", "Traces delivered to the writer", nil, "tracer"),
			tracesDropped:   meter.Counter("traces_dropped", "Traces not delivered", nil, "tracer"),
			writerErrors:    meter.Counter("writer_errors", "Writer failures", nil, "tracer"),
		},
	}
	t.scopes = newScopeManager(options.Debug, logger, meter)

	if options.Workers > 0 {
		queueSize := options.QueueSize
		if queueSize <= 0 {
			queueSize = 1000
		}
		t.workers = newWorkerPool(options.Workers, queueSize)
	}
	return t
}
