package provider

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/devopsext/asynctrace/common"
	"github.com/devopsext/asynctrace/tracer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

const opentelemetryInstrumentation = "github.com/devopsext/asynctrace"

type OpentelemetryOptions struct {
	ServiceName string
	Version     string
	Environment string
	Attributes  string
}

type OpentelemetryWriterOptions struct {
	OpentelemetryOptions
	AgentHost string
	AgentPort int
}

// OpentelemetryWriter replays finished traces through an OTLP tracer
// provider. Span ids are taken from the trace, not generated.
type OpentelemetryWriter struct {
	options  OpentelemetryWriterOptions
	logger   common.Logger
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

type opentelemetryIDsKey struct{}

type opentelemetryIDs struct {
	traceID trace.TraceID
	spanID  trace.SpanID
}

// opentelemetryIDGenerator hands out the ids carried by the start context.
type opentelemetryIDGenerator struct{}

func (opentelemetryIDGenerator) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {

	ids, _ := ctx.Value(opentelemetryIDsKey{}).(opentelemetryIDs)
	return ids.traceID, ids.spanID
}

func (opentelemetryIDGenerator) NewSpanID(ctx context.Context, traceID trace.TraceID) trace.SpanID {

	ids, _ := ctx.Value(opentelemetryIDsKey{}).(opentelemetryIDs)
	return ids.spanID
}

func opentelemetryTraceID(id uint64) trace.TraceID {

	var r trace.TraceID
	binary.BigEndian.PutUint64(r[8:], id)
	return r
}

func opentelemetrySpanID(id uint64) trace.SpanID {

	var r trace.SpanID
	binary.BigEndian.PutUint64(r[:], id)
	return r
}

func opentelemetryAttribute(key string, value interface{}) attribute.KeyValue {

	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case uint64:
		return attribute.Int64(key, int64(v))
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

func (otw *OpentelemetryWriter) replay(s tracer.SpanData) {

	traceID := opentelemetryTraceID(s.TraceID)
	ctx := context.WithValue(context.Background(), opentelemetryIDsKey{}, opentelemetryIDs{
		traceID: traceID,
		spanID:  opentelemetrySpanID(s.SpanID),
	})

	if s.ParentID != 0 {
		flags := trace.TraceFlags(0)
		if s.Sampled {
			flags = trace.FlagsSampled
		}
		ctx = trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     opentelemetrySpanID(s.ParentID),
			TraceFlags: flags,
			Remote:     true,
		}))
	}

	attributes := []attribute.KeyValue{attribute.String("resource.name", s.Resource)}
	for k, v := range s.Tags {
		attributes = append(attributes, opentelemetryAttribute(k, v))
	}
	for k, v := range s.Baggage {
		attributes = append(attributes, attribute.String("baggage."+k, v))
	}

	_, span := otw.tracer.Start(ctx, s.Name,
		trace.WithTimestamp(s.Start),
		trace.WithAttributes(attributes...),
	)
	if s.Error {
		message, _ := s.Tags[tracer.TagErrorMessage].(string)
		span.SetStatus(codes.Error, message)
	}
	span.End(trace.WithTimestamp(s.End))
}

func (otw *OpentelemetryWriter) Write(spans []tracer.SpanData) error {

	for _, s := range spans {
		otw.replay(s)
	}
	return nil
}

func (otw *OpentelemetryWriter) Stop() {

	if err := otw.provider.Shutdown(context.Background()); err != nil {
		otw.logger.Error(err)
	}
}

func opentelemetryResource(options OpentelemetryOptions) (*resource.Resource, error) {

	attributes := []attribute.KeyValue{
		semconv.ServiceNameKey.String(options.ServiceName),
		semconv.ServiceVersionKey.String(options.Version),
		semconv.DeploymentEnvironmentKey.String(options.Environment),
	}
	for k, v := range common.GetKeyValues(options.Attributes) {
		attributes = append(attributes, attribute.String(k, v))
	}
	return resource.New(context.Background(), resource.WithAttributes(attributes...))
}

func newOpentelemetryWriter(options OpentelemetryWriterOptions, provider *sdktrace.TracerProvider, logger common.Logger) *OpentelemetryWriter {
	return &OpentelemetryWriter{
		options:  options,
		logger:   logger,
		provider: provider,
		tracer:   provider.Tracer(opentelemetryInstrumentation, trace.WithInstrumentationVersion(options.Version)),
	}
}

func NewOpentelemetryWriter(options OpentelemetryWriterOptions, logger common.Logger, stdout *Stdout) *OpentelemetryWriter {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.AgentHost) {
		stdout.Debug("Opentelemetry writer is disabled.")
		return nil
	}

	res, err := opentelemetryResource(options.OpentelemetryOptions)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	exporter, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort)),
	)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithIDGenerator(opentelemetryIDGenerator{}),
		sdktrace.WithBatcher(exporter),
	)

	logger.Info("Opentelemetry writer is up...")
	return newOpentelemetryWriter(options, provider, logger)
}
