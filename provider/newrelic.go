package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devopsext/asynctrace/common"
	"github.com/devopsext/asynctrace/tracer"
	telemetry "github.com/newrelic/newrelic-telemetry-sdk-go/telemetry"
	"github.com/sirupsen/logrus"
)

type NewRelicOptions struct {
	ApiKey      string
	ServiceName string
	Environment string
	Version     string
	Attributes  string
	Debug       bool
	// HarvestPeriod in seconds; zero keeps the sdk default, negative
	// harvests only on Stop.
	HarvestPeriod int
}

type NewRelicWriterOptions struct {
	NewRelicOptions
	Endpoint string
}

type NewRelicLoggerOptions struct {
	NewRelicOptions
	Endpoint string
	Level    string
}

type NewRelicMeterOptions struct {
	NewRelicOptions
	Endpoint string
	Prefix   string
}

// NewRelicWriter sends finished spans to the New Relic trace API.
type NewRelicWriter struct {
	harvester *telemetry.Harvester
	options   NewRelicWriterOptions
	logger    common.Logger
}

type NewRelicLogger struct {
	harvester    *telemetry.Harvester
	stdout       *Stdout
	level        logrus.Level
	options      NewRelicLoggerOptions
	callerOffset int
}

type NewRelicCounter struct {
	meter      *NewRelicMeter
	name       string
	attributes map[string]interface{}
}

type NewRelicGauge struct {
	meter      *NewRelicMeter
	name       string
	attributes map[string]interface{}
}

type NewRelicMeter struct {
	harvester *telemetry.Harvester
	options   NewRelicMeterOptions
	logger    common.Logger
}

func newRelicHarvester(options NewRelicOptions, url func(string) func(*telemetry.Config), endpoint string, stdout *Stdout) (*telemetry.Harvester, error) {

	attributes := map[string]interface{}{
		"service.name":    options.ServiceName,
		"service.version": options.Version,
		"environment":     options.Environment,
	}
	for k, v := range common.GetKeyValues(options.Attributes) {
		attributes[k] = v
	}

	cfgs := []func(*telemetry.Config){
		telemetry.ConfigAPIKey(options.ApiKey),
		telemetry.ConfigCommonAttributes(attributes),
	}
	if !common.IsEmpty(endpoint) {
		cfgs = append(cfgs, url(endpoint))
	}
	switch {
	case options.HarvestPeriod > 0:
		cfgs = append(cfgs, telemetry.ConfigHarvestPeriod(time.Duration(options.HarvestPeriod)*time.Second))
	case options.HarvestPeriod < 0:
		cfgs = append(cfgs, telemetry.ConfigHarvestPeriod(0))
	}
	if options.Debug {
		cfgs = append(cfgs,
			telemetry.ConfigBasicErrorLogger(stdout.log.Writer()),
			telemetry.ConfigBasicDebugLogger(stdout.log.Writer()),
		)
	}
	return telemetry.NewHarvester(cfgs...)
}

func (nr *NewRelicWriter) Write(trace []tracer.SpanData) error {

	for _, s := range trace {

		attributes := make(map[string]interface{}, len(s.Tags)+len(s.Baggage)+2)
		for k, v := range s.Tags {
			attributes[k] = v
		}
		for k, v := range s.Baggage {
			attributes["baggage."+k] = v
		}
		attributes["resource.name"] = s.Resource
		if s.Error {
			attributes["error"] = true
		}

		span := telemetry.Span{
			ID:          common.SpanIDUint64ToHex(s.SpanID),
			TraceID:     common.TraceIDUint64ToHex(s.TraceID),
			Name:        s.Name,
			Timestamp:   s.Start,
			Duration:    s.Duration,
			ServiceName: s.Service,
			Attributes:  attributes,
		}
		if s.ParentID != 0 {
			span.ParentID = common.SpanIDUint64ToHex(s.ParentID)
		}
		if err := nr.harvester.RecordSpan(span); err != nil {
			return err
		}
	}
	return nil
}

func (nr *NewRelicWriter) Stop() {
	nr.harvester.HarvestNow(context.Background())
}

func NewNewRelicWriter(options NewRelicWriterOptions, logger common.Logger, stdout *Stdout) *NewRelicWriter {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.ApiKey) {
		stdout.Debug("NewRelic writer is disabled.")
		return nil
	}

	harvester, err := newRelicHarvester(options.NewRelicOptions, telemetry.ConfigSpansURLOverride, options.Endpoint, stdout)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	logger.Info("NewRelic writer is up...")

	return &NewRelicWriter{
		harvester: harvester,
		options:   options,
		logger:    logger,
	}
}

func (nr *NewRelicLogger) write(level logrus.Level, span common.TracerSpan, obj interface{}, args ...interface{}) {

	if obj == nil || level > nr.level {
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

	function, file, line := common.GetCallerInfo(nr.callerOffset + 4)
	attributes := map[string]interface{}{
		"level": level.String(),
		"file":  fmt.Sprintf("%s:%d", file, line),
		"func":  function,
	}
	if span != nil && span.TraceID() != 0 {
		attributes["trace.id"] = common.TraceIDUint64ToHex(span.TraceID())
		attributes["span.id"] = common.SpanIDUint64ToHex(span.SpanID())
	}

	err := nr.harvester.RecordLog(telemetry.Log{
		Timestamp:  time.Now(),
		Message:    message,
		Attributes: attributes,
	})
	if err != nil {
		nr.stdout.Error(err)
	}
}

func (nr *NewRelicLogger) Info(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.InfoLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanInfo(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.InfoLevel, span, obj, args...)
	return nr
}

func (nr *NewRelicLogger) Warn(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.WarnLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanWarn(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.WarnLevel, span, obj, args...)
	return nr
}

func (nr *NewRelicLogger) Error(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.ErrorLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanError(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.ErrorLevel, span, obj, args...)
	return nr
}

func (nr *NewRelicLogger) Debug(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.DebugLevel, nil, obj, args...)
	return nr
}

func (nr *NewRelicLogger) SpanDebug(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.DebugLevel, span, obj, args...)
	return nr
}

// Panic records the message and panics with it.
func (nr *NewRelicLogger) Panic(obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.PanicLevel, nil, obj, args...)
	panic(fmt.Sprintf("%v", obj))
}

func (nr *NewRelicLogger) SpanPanic(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	nr.write(logrus.PanicLevel, span, obj, args...)
	panic(fmt.Sprintf("%v", obj))
}

func (nr *NewRelicLogger) Stack(offset int) common.Logger {
	nr.callerOffset = nr.callerOffset - offset
	return nr
}

func (nr *NewRelicLogger) Stop() {
	nr.harvester.HarvestNow(context.Background())
}

func NewNewRelicLogger(options NewRelicLoggerOptions, logger common.Logger, stdout *Stdout) *NewRelicLogger {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.ApiKey) {
		stdout.Debug("NewRelic logger is disabled.")
		return nil
	}

	harvester, err := newRelicHarvester(options.NewRelicOptions, telemetry.ConfigLogsURLOverride, options.Endpoint, stdout)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	level, ok := stdoutLevels[options.Level]
	if !ok {
		level = logrus.InfoLevel
	}

	logger.Info("NewRelic logger is up...")

	return &NewRelicLogger{
		harvester:    harvester,
		stdout:       stdout,
		level:        level,
		options:      options,
		callerOffset: 1,
	}
}

func (nrm *NewRelicMeter) name(name string, prefixes []string) string {

	var names []string
	if !common.IsEmpty(nrm.options.Prefix) {
		names = append(names, nrm.options.Prefix)
	}
	if len(prefixes) > 0 {
		names = append(names, strings.Join(prefixes, "_"))
	}
	return strings.Join(append(names, name), ".")
}

func newRelicAttributes(labels common.Labels) map[string]interface{} {

	attributes := make(map[string]interface{}, len(labels))
	for k, v := range labels {
		attributes[k] = v
	}
	return attributes
}

func (nrc *NewRelicCounter) Inc() common.Counter {
	return nrc.Add(1)
}

func (nrc *NewRelicCounter) Add(value int) common.Counter {

	nrc.meter.harvester.RecordMetric(telemetry.Count{
		Timestamp:  time.Now(),
		Name:       nrc.name,
		Value:      float64(value),
		Attributes: nrc.attributes,
	})
	return nrc
}

func (nrg *NewRelicGauge) Set(value float64) common.Gauge {

	nrg.meter.harvester.RecordMetric(telemetry.Gauge{
		Timestamp:  time.Now(),
		Name:       nrg.name,
		Value:      value,
		Attributes: nrg.attributes,
	})
	return nrg
}

func (nrm *NewRelicMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {
	return &NewRelicCounter{
		meter:      nrm,
		name:       nrm.name(name, prefixes),
		attributes: newRelicAttributes(labels),
	}
}

func (nrm *NewRelicMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {
	return &NewRelicGauge{
		meter:      nrm,
		name:       nrm.name(name, prefixes),
		attributes: newRelicAttributes(labels),
	}
}

func (nrm *NewRelicMeter) Stop() {
	nrm.harvester.HarvestNow(context.Background())
}

func NewNewRelicMeter(options NewRelicMeterOptions, logger common.Logger, stdout *Stdout) *NewRelicMeter {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.ApiKey) {
		stdout.Debug("NewRelic meter is disabled.")
		return nil
	}

	harvester, err := newRelicHarvester(options.NewRelicOptions, telemetry.ConfigMetricsURLOverride, options.Endpoint, stdout)
	if err != nil {
		stdout.Error(err)
		return nil
	}

	logger.Info("NewRelic meter is up...")

	return &NewRelicMeter{
		harvester: harvester,
		options:   options,
		logger:    logger,
	}
}
