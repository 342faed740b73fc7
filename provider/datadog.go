package provider

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/devopsext/asynctrace/common"
	"github.com/devopsext/asynctrace/tracer"
	"github.com/sirupsen/logrus"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace"
	ddtracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

type DataDogOptions struct {
	ServiceName string
	Environment string
	Version     string
	Tags        string
	Debug       bool
}

type DataDogWriterOptions struct {
	DataDogOptions
	AgentHost string
	AgentPort int
}

type DataDogLoggerOptions struct {
	DataDogOptions
	AgentHost string
	AgentPort int
	Level     string
}

type DataDogMeterOptions struct {
	DataDogOptions
	AgentHost string
	AgentPort int
	Prefix    string
}

type DataDogInternalLogger struct {
	logger common.Logger
}

// DataDogWriter replays finished traces into the DataDog agent keeping
// their ids, times and parent links.
type DataDogWriter struct {
	options DataDogWriterOptions
	logger  common.Logger
}

type DataDogLogger struct {
	connection   *net.UDPConn
	log          *logrus.Logger
	options      DataDogLoggerOptions
	callerOffset int
}

type DataDogCounter struct {
	meter *DataDogMeter
	name  string
	tags  []string
}

type DataDogGauge struct {
	meter *DataDogMeter
	name  string
	tags  []string
}

type DataDogMeter struct {
	options DataDogMeterOptions
	logger  common.Logger
	client  *statsd.Client
}

func (ddtl *DataDogInternalLogger) Log(msg string) {
	ddtl.logger.Debug(msg)
}

func (dd *DataDogWriter) parent(s tracer.SpanData) ddtrace.SpanContext {

	if s.ParentID == 0 {
		return nil
	}
	ctx, err := ddtracer.Extract(ddtracer.TextMapCarrier{
		"x-datadog-trace-id":  strconv.FormatUint(s.TraceID, 10),
		"x-datadog-parent-id": strconv.FormatUint(s.ParentID, 10),
	})
	if err != nil {
		dd.logger.Debug("DataDog parent of span %d is lost: %s", s.SpanID, err)
		return nil
	}
	return ctx
}

func (dd *DataDogWriter) replay(s tracer.SpanData) {

	opts := []ddtracer.StartSpanOption{
		ddtracer.StartTime(s.Start),
		ddtracer.ResourceName(s.Resource),
		ddtracer.ServiceName(s.Service),
		ddtracer.WithSpanID(s.SpanID),
	}
	if parent := dd.parent(s); parent != nil {
		opts = append(opts, ddtracer.ChildOf(parent))
	}
	for k, v := range s.Tags {
		opts = append(opts, ddtracer.Tag(k, v))
	}

	span := ddtracer.StartSpan(s.Name, opts...)
	for k, v := range s.Baggage {
		span.SetBaggageItem(k, v)
	}

	finish := []ddtracer.FinishOption{ddtracer.FinishTime(s.End)}
	if s.Error {
		message, _ := s.Tags[tracer.TagErrorMessage].(string)
		if common.IsEmpty(message) {
			message = "error"
		}
		finish = append(finish, ddtracer.WithError(errors.New(message)))
	}
	span.Finish(finish...)
}

func (dd *DataDogWriter) Write(trace []tracer.SpanData) error {

	for _, s := range trace {
		dd.replay(s)
	}
	return nil
}

func (dd *DataDogWriter) Stop() {
	ddtracer.Stop()
}

func NewDataDogWriter(options DataDogWriterOptions, logger common.Logger, stdout *Stdout) *DataDogWriter {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.AgentHost) {
		stdout.Debug("DataDog writer is disabled.")
		return nil
	}

	opts := []ddtracer.StartOption{
		ddtracer.WithAgentAddr(net.JoinHostPort(options.AgentHost, strconv.Itoa(options.AgentPort))),
		ddtracer.WithServiceName(options.ServiceName),
		ddtracer.WithServiceVersion(options.Version),
		ddtracer.WithEnv(options.Environment),
	}
	if options.Debug {
		opts = append(opts, ddtracer.WithLogger(&DataDogInternalLogger{logger: logger}))
	}
	for k, v := range common.GetKeyValues(options.Tags) {
		opts = append(opts, ddtracer.WithGlobalTag(k, v))
	}
	ddtracer.Start(opts...)

	logger.Info("DataDog writer is up...")

	return &DataDogWriter{
		options: options,
		logger:  logger,
	}
}

func (dd *DataDogLogger) fields(span common.TracerSpan) logrus.Fields {

	function, file, line := common.GetCallerInfo(dd.callerOffset + 4)
	fields := logrus.Fields{
		"file":    fmt.Sprintf("%s:%d", file, line),
		"func":    function,
		"service": dd.options.ServiceName,
		"version": dd.options.Version,
		"env":     dd.options.Environment,
	}
	if span != nil && span.TraceID() != 0 {
		fields["dd.trace_id"] = strconv.FormatUint(span.TraceID(), 10)
		fields["dd.span_id"] = strconv.FormatUint(span.SpanID(), 10)
	}
	return fields
}

func (dd *DataDogLogger) write(level logrus.Level, span common.TracerSpan, obj interface{}, args ...interface{}) {

	if obj == nil || !dd.log.IsLevelEnabled(level) {
		return
	}

	message := ""
	switch v := obj.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
		if len(args) > 0 {
			message = fmt.Sprintf(v, args...)
		}
	default:
		message = fmt.Sprintf("%v", v)
	}
	if common.IsEmpty(message) {
		return
	}
	dd.log.WithFields(dd.fields(span)).Logln(level, message)
}

func (dd *DataDogLogger) Info(obj interface{}, args ...interface{}) common.Logger {
	dd.write(logrus.InfoLevel, nil, obj, args...)
	return dd
}

func (dd *DataDogLogger) SpanInfo(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	dd.write(logrus.InfoLevel, span, obj, args...)
	return dd
}

func (dd *DataDogLogger) Warn(obj interface{}, args ...interface{}) common.Logger {
	dd.write(logrus.WarnLevel, nil, obj, args...)
	return dd
}

func (dd *DataDogLogger) SpanWarn(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	dd.write(logrus.WarnLevel, span, obj, args...)
	return dd
}

func (dd *DataDogLogger) Error(obj interface{}, args ...interface{}) common.Logger {
	dd.write(logrus.ErrorLevel, nil, obj, args...)
	return dd
}

func (dd *DataDogLogger) SpanError(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	dd.write(logrus.ErrorLevel, span, obj, args...)
	return dd
}

func (dd *DataDogLogger) Debug(obj interface{}, args ...interface{}) common.Logger {
	dd.write(logrus.DebugLevel, nil, obj, args...)
	return dd
}

func (dd *DataDogLogger) SpanDebug(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	dd.write(logrus.DebugLevel, span, obj, args...)
	return dd
}

func (dd *DataDogLogger) Panic(obj interface{}, args ...interface{}) common.Logger {
	dd.write(logrus.PanicLevel, nil, obj, args...)
	return dd
}

func (dd *DataDogLogger) SpanPanic(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	dd.write(logrus.PanicLevel, span, obj, args...)
	return dd
}

func (dd *DataDogLogger) Stack(offset int) common.Logger {
	dd.callerOffset = dd.callerOffset - offset
	return dd
}

func (dd *DataDogLogger) Stop() {
	_ = dd.connection.Close()
}

func NewDataDogLogger(options DataDogLoggerOptions, logger common.Logger, stdout *Stdout) *DataDogLogger {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.AgentHost) {
		stdout.Debug("DataDog logger is disabled.")
		return nil
	}

	address := net.JoinHostPort(options.AgentHost, strconv.Itoa(options.AgentPort))
	serverAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	connection, err := net.DialUDP("udp", nil, serverAddr)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	level, ok := stdoutLevels[options.Level]
	if !ok {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(connection)

	logger.Info("DataDog logger is up...")

	return &DataDogLogger{
		connection:   connection,
		log:          log,
		options:      options,
		callerOffset: 1,
	}
}

func (ddm *DataDogMeter) name(name string, prefixes []string) string {

	var names []string
	if !common.IsEmpty(ddm.options.Prefix) {
		names = append(names, ddm.options.Prefix)
	}
	if len(prefixes) > 0 {
		names = append(names, strings.Join(prefixes, "_"))
	}
	names = append(names, name)
	return strings.Join(names, ".")
}

func (ddm *DataDogMeter) tags(labels common.Labels) []string {

	var tags []string
	for k, v := range common.GetKeyValues(ddm.options.Tags) {
		tags = append(tags, fmt.Sprintf("%s:%s", k, v))
	}
	tags = append(tags,
		fmt.Sprintf("dd.service:%s", ddm.options.ServiceName),
		fmt.Sprintf("dd.version:%s", ddm.options.Version),
		fmt.Sprintf("dd.env:%s", ddm.options.Environment),
	)
	for k, v := range labels {
		tags = append(tags, fmt.Sprintf("%s:%s", k, v))
	}
	sort.Strings(tags)
	return tags
}

func (ddmc *DataDogCounter) Inc() common.Counter {
	return ddmc.Add(1)
}

func (ddmc *DataDogCounter) Add(value int) common.Counter {

	if err := ddmc.meter.client.Count(ddmc.name, int64(value), ddmc.tags, 1); err != nil {
		ddmc.meter.logger.Error(err)
	}
	return ddmc
}

func (ddmg *DataDogGauge) Set(value float64) common.Gauge {

	if err := ddmg.meter.client.Gauge(ddmg.name, value, ddmg.tags, 1); err != nil {
		ddmg.meter.logger.Error(err)
	}
	return ddmg
}

func (ddm *DataDogMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {
	return &DataDogCounter{
		meter: ddm,
		name:  ddm.name(name, prefixes),
		tags:  ddm.tags(labels),
	}
}

func (ddm *DataDogMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {
	return &DataDogGauge{
		meter: ddm,
		name:  ddm.name(name, prefixes),
		tags:  ddm.tags(labels),
	}
}

func (ddm *DataDogMeter) Stop() {

	if err := ddm.client.Close(); err != nil {
		ddm.logger.Error(err)
	}
}

func NewDataDogMeter(options DataDogMeterOptions, logger common.Logger, stdout *Stdout) *DataDogMeter {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.AgentHost) {
		stdout.Debug("DataDog meter is disabled.")
		return nil
	}

	client, err := statsd.New(net.JoinHostPort(options.AgentHost, strconv.Itoa(options.AgentPort)))
	if err != nil {
		logger.Error(err)
		return nil
	}

	logger.Info("DataDog meter is up...")

	return &DataDogMeter{
		options: options,
		logger:  logger,
		client:  client,
	}
}
