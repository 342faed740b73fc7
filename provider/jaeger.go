package provider

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/devopsext/asynctrace/common"
	"github.com/devopsext/asynctrace/tracer"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/uber/jaeger-client-go"
	jaegerConfig "github.com/uber/jaeger-client-go/config"
)

const JaegerTagResourceName = "resource.name"

type JaegerOptions struct {
	ServiceName         string
	AgentHost           string
	AgentPort           int
	Endpoint            string
	User                string
	Password            string
	BufferFlushInterval int
	QueueSize           int
	Tags                string
	Version             string
}

// JaegerWriter replays finished traces through a jaeger tracer. Every span
// keeps the ids it was created with.
type JaegerWriter struct {
	options JaegerOptions
	tracer  opentracing.Tracer
	closer  io.Closer
	logger  common.Logger
}

type JaegerLogger struct {
	logger common.Logger
}

func (j *JaegerLogger) Error(msg string) {
	j.logger.Stack(-2).Error(msg).Stack(2)
}

func (j *JaegerLogger) Infof(msg string, args ...interface{}) {

	msg = strings.TrimSpace(msg)
	if common.IsEmpty(msg) {
		return
	}
	j.logger.Stack(-2).Debug(msg, args...).Stack(2)
}

func (j *JaegerWriter) replay(s tracer.SpanData) {

	self := jaeger.NewSpanContext(
		jaeger.TraceID{Low: s.TraceID},
		jaeger.SpanID(s.SpanID),
		jaeger.SpanID(s.ParentID),
		s.Sampled,
		s.Baggage,
	)

	tags := opentracing.Tags{JaegerTagResourceName: s.Resource}
	for k, v := range s.Tags {
		tags[k] = v
	}

	span := j.tracer.StartSpan(s.Name,
		jaeger.SelfRef(self),
		opentracing.StartTime(s.Start),
		tags,
	)
	if s.Error {
		ext.Error.Set(span, true)
	}
	span.FinishWithOptions(opentracing.FinishOptions{FinishTime: s.End})
}

func (j *JaegerWriter) Write(trace []tracer.SpanData) error {

	for _, s := range trace {
		j.replay(s)
	}
	return nil
}

func (j *JaegerWriter) Stop() {

	if j.closer == nil {
		return
	}
	if err := j.closer.Close(); err != nil {
		j.logger.Error(err)
	}
}

func jaegerTags(options JaegerOptions) []opentracing.Tag {

	var tags []opentracing.Tag
	for k, v := range common.GetKeyValues(options.Tags) {
		tags = append(tags, opentracing.Tag{Key: k, Value: v})
	}
	return append(tags, opentracing.Tag{Key: "version", Value: options.Version})
}

func newJaegerTracer(options JaegerOptions, logger common.Logger) (opentracing.Tracer, io.Closer, error) {

	cfg := &jaegerConfig.Configuration{

		ServiceName: options.ServiceName,
		Tags:        jaegerTags(options),

		// every trace reaching a writer is already sampled
		Sampler: &jaegerConfig.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},

		Reporter: &jaegerConfig.ReporterConfig{
			LogSpans:            true,
			User:                options.User,
			Password:            options.Password,
			LocalAgentHostPort:  fmt.Sprintf("%s:%d", options.AgentHost, options.AgentPort),
			CollectorEndpoint:   options.Endpoint,
			BufferFlushInterval: time.Duration(options.BufferFlushInterval) * time.Second,
			QueueSize:           options.QueueSize,
		},
	}
	return cfg.NewTracer(jaegerConfig.Logger(&JaegerLogger{logger: logger}))
}

func newJaegerWriter(options JaegerOptions, t opentracing.Tracer, closer io.Closer, logger common.Logger) *JaegerWriter {
	return &JaegerWriter{
		options: options,
		tracer:  t,
		closer:  closer,
		logger:  logger,
	}
}

func NewJaegerWriter(options JaegerOptions, logger common.Logger, stdout *Stdout) *JaegerWriter {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.AgentHost) && common.IsEmpty(options.Endpoint) {
		stdout.Debug("Jaeger writer is disabled.")
		return nil
	}

	t, closer, err := newJaegerTracer(options, logger)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	logger.Info("Jaeger writer is up...")
	return newJaegerWriter(options, t, closer, logger)
}
