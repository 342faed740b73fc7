package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/devopsext/asynctrace/common"
	"github.com/devopsext/asynctrace/instrumentation"
	"github.com/devopsext/asynctrace/propagation"
	"github.com/devopsext/asynctrace/provider"
	"github.com/devopsext/asynctrace/tracer"
	"github.com/spf13/cobra"
)

var VERSION = "unknown"

var logs = common.NewLogs()
var metrics = common.NewMetrics()
var writers = tracer.NewWriters()
var stdout *provider.Stdout
var mainWG sync.WaitGroup

type stopper interface {
	Stop()
}

var stoppers []stopper

type RootOptions struct {
	Logs    []string
	Metrics []string
	Writers []string
}

type DemoOptions struct {
	Listen   string
	Requests int
	Timeout  int
}

var rootOptions = RootOptions{
	Logs:    []string{"stdout"},
	Metrics: []string{},
	Writers: []string{"logging"},
}

var tracerOptions = tracer.Options{
	ServiceName: "asynctrace",
	Environment: "none",
	Workers:     2,
	QueueSize:   1000,
}

var propagatorOptions = propagation.PropagatorOptions{
	TraceIDKey:    propagation.DefaultTraceIDKey,
	ParentIDKey:   propagation.DefaultParentIDKey,
	SamplingKey:   propagation.DefaultSamplingKey,
	BaggagePrefix: propagation.DefaultBaggagePrefixKey,
}

var demoOptions = DemoOptions{
	Listen:   "127.0.0.1:0",
	Requests: 5,
	Timeout:  10,
}

var stdoutOptions = provider.StdoutOptions{
	Format:          "text",
	Level:           "info",
	Template:        "{{.file}} {{.msg}}",
	TimestampFormat: time.RFC3339Nano,
	TextColors:      true,
}

var loggingWriterOptions = provider.LoggingWriterOptions{
	Level: "info",
}

var prometheusOptions = provider.PrometheusOptions{
	URL:    "/metrics",
	Listen: "127.0.0.1:8080",
	Prefix: "asynctrace",
}

var jaegerOptions = provider.JaegerOptions{
	AgentPort: 6831,
}

var datadogOptions = provider.DataDogOptions{
	Environment: "none",
}

var datadogWriterOptions = provider.DataDogWriterOptions{
	AgentPort: 8126,
}

var datadogLoggerOptions = provider.DataDogLoggerOptions{
	AgentPort: 10518,
	Level:     "info",
}

var datadogMeterOptions = provider.DataDogMeterOptions{
	AgentPort: 8125,
	Prefix:    "asynctrace",
}

var opentelemetryWriterOptions = provider.OpentelemetryWriterOptions{
	AgentPort: 4317,
}

var newrelicOptions = provider.NewRelicOptions{}

var newrelicWriterOptions = provider.NewRelicWriterOptions{}

var newrelicLoggerOptions = provider.NewRelicLoggerOptions{
	Level: "info",
}

var newrelicMeterOptions = provider.NewRelicMeterOptions{
	Prefix: "asynctrace",
}

func interceptSyscall() {

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-c
		logs.Info("Exiting...")
		os.Exit(1)
	}()
}

func buildLogs() error {

	var err error
	stdoutOptions.Service = tracerOptions.ServiceName
	stdoutOptions.Version = VERSION
	stdout, err = provider.NewStdout(stdoutOptions)
	if err != nil {
		return err
	}
	stdout.SetCallerOffset(2)
	if common.HasElem(rootOptions.Logs, "stdout") {
		logs.Register(stdout)
	}

	if common.HasElem(rootOptions.Logs, "datadog") {
		datadogLoggerOptions.DataDogOptions = datadogOptions
		datadogLoggerOptions.ServiceName = tracerOptions.ServiceName
		datadogLoggerOptions.Version = VERSION
		if l := provider.NewDataDogLogger(datadogLoggerOptions, logs, stdout); l != nil {
			logs.Register(l)
			stoppers = append(stoppers, l)
		}
	}

	if common.HasElem(rootOptions.Logs, "newrelic") {
		newrelicLoggerOptions.NewRelicOptions = newrelicOptions
		newrelicLoggerOptions.ServiceName = tracerOptions.ServiceName
		newrelicLoggerOptions.Version = VERSION
		if l := provider.NewNewRelicLogger(newrelicLoggerOptions, logs, stdout); l != nil {
			logs.Register(l)
			stoppers = append(stoppers, l)
		}
	}
	return nil
}

func buildMetrics() {

	if common.HasElem(rootOptions.Metrics, "prometheus") {
		prometheusOptions.Version = VERSION
		if m := provider.NewPrometheusMeter(prometheusOptions, logs, stdout); m != nil {
			m.StartInWaitGroup(&mainWG)
			metrics.Register(m)
		}
	}

	if common.HasElem(rootOptions.Metrics, "datadog") {
		datadogMeterOptions.DataDogOptions = datadogOptions
		datadogMeterOptions.ServiceName = tracerOptions.ServiceName
		datadogMeterOptions.Version = VERSION
		if m := provider.NewDataDogMeter(datadogMeterOptions, logs, stdout); m != nil {
			metrics.Register(m)
		}
	}

	if common.HasElem(rootOptions.Metrics, "newrelic") {
		newrelicMeterOptions.NewRelicOptions = newrelicOptions
		newrelicMeterOptions.ServiceName = tracerOptions.ServiceName
		newrelicMeterOptions.Version = VERSION
		if m := provider.NewNewRelicMeter(newrelicMeterOptions, logs, stdout); m != nil {
			metrics.Register(m)
		}
	}
}

func buildWriters() {

	if common.HasElem(rootOptions.Writers, "logging") {
		writers.Register(provider.NewLoggingWriter(loggingWriterOptions, logs))
	}

	if common.HasElem(rootOptions.Writers, "jaeger") {
		jaegerOptions.ServiceName = tracerOptions.ServiceName
		jaegerOptions.Version = VERSION
		if w := provider.NewJaegerWriter(jaegerOptions, logs, stdout); w != nil {
			writers.Register(w)
		}
	}

	if common.HasElem(rootOptions.Writers, "datadog") {
		datadogWriterOptions.DataDogOptions = datadogOptions
		datadogWriterOptions.ServiceName = tracerOptions.ServiceName
		datadogWriterOptions.Version = VERSION
		if w := provider.NewDataDogWriter(datadogWriterOptions, logs, stdout); w != nil {
			writers.Register(w)
		}
	}

	if common.HasElem(rootOptions.Writers, "opentelemetry") {
		opentelemetryWriterOptions.ServiceName = tracerOptions.ServiceName
		opentelemetryWriterOptions.Environment = tracerOptions.Environment
		opentelemetryWriterOptions.Version = VERSION
		if w := provider.NewOpentelemetryWriter(opentelemetryWriterOptions, logs, stdout); w != nil {
			writers.Register(w)
		}
	}

	if common.HasElem(rootOptions.Writers, "newrelic") {
		newrelicWriterOptions.NewRelicOptions = newrelicOptions
		newrelicWriterOptions.ServiceName = tracerOptions.ServiceName
		newrelicWriterOptions.Version = VERSION
		if w := provider.NewNewRelicWriter(newrelicWriterOptions, logs, stdout); w != nil {
			writers.Register(w)
		}
	}
}

func newTracer() *tracer.Tracer {

	tracerOptions.Version = VERSION
	return tracer.New(tracerOptions, writers, logs, metrics)
}

// active returns the span active on the execution carried by ctx, or a nil
// interface when there is none.
func active(ctx context.Context) common.TracerSpan {

	if span := tracer.ExecutionFromContext(ctx).Active(); span != nil {
		return span
	}
	return nil
}

type order struct {
	ID string
}

// runDemo serves an instrumented endpoint and calls it asynchronously from
// inside a root span, so every writer receives a client and a server trace.
func runDemo(t *tracer.Tracer) error {

	i := instrumentation.New(t, propagation.NewPropagator(propagatorOptions), metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		err := i.TraceEntityOperation(r.Context(), "load", &order{ID: r.URL.Path}, nil, func(ctx context.Context) error {
			logs.SpanDebug(active(ctx), "Loading %s", r.URL.Path)
			return nil
		})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	listener, err := net.Listen("tcp", demoOptions.Listen)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: i.Middleware(mux), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Error(err)
		}
	}()
	defer server.Close()

	root := t.StartSpan("demo", tracer.BaggageItem("run", common.GetGuid()))
	exec := t.Scopes().NewExecution()
	scope := exec.Activate(root)
	ctx := tracer.ContextWithExecution(context.Background(), exec)

	client := i.NewAsyncClient(common.MakeHttpClient(time.Duration(demoOptions.Timeout)*time.Second, false))
	callback := instrumentation.CallbackFuncs[*http.Response]{
		OnCompleted: func(ctx context.Context, resp *http.Response) {
			defer resp.Body.Close()
			logs.SpanInfo(active(ctx), "Order request completed with %d", resp.StatusCode)
		},
		OnFailed: func(ctx context.Context, err error) {
			logs.SpanError(active(ctx), err)
		},
		OnCancelled: func(ctx context.Context) {
			logs.SpanWarn(active(ctx), "Order request cancelled")
		},
	}

	var futures []*instrumentation.Future
	for n := 0; n < demoOptions.Requests; n++ {
		url := fmt.Sprintf("http://%s/orders/%d", listener.Addr(), n)
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		future, err := client.Execute(ctx, req, callback)
		if err != nil {
			logs.SpanError(root, err)
			continue
		}
		futures = append(futures, future)
	}

	scope.Close()
	for _, f := range futures {
		f.Wait()
	}
	root.Finish()

	logs.SpanInfo(root, "Demo finished with %d requests", len(futures))
	return nil
}

func Execute() {

	rootCmd := &cobra.Command{
		Use:   "asynctrace",
		Short: "Asynchronous tracing",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {

			if err := buildLogs(); err != nil {
				return err
			}
			logs.Info("Booting...")

			buildMetrics()
			buildWriters()
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()

	flags.StringSliceVar(&rootOptions.Logs, "logs", rootOptions.Logs, "Log providers: stdout, datadog, newrelic")
	flags.StringSliceVar(&rootOptions.Metrics, "metrics", rootOptions.Metrics, "Metric providers: prometheus, datadog, newrelic")
	flags.StringSliceVar(&rootOptions.Writers, "writers", rootOptions.Writers, "Trace writers: logging, jaeger, datadog, opentelemetry, newrelic")

	flags.StringVar(&tracerOptions.ServiceName, "service-name", tracerOptions.ServiceName, "Service name")
	flags.StringVar(&tracerOptions.Environment, "environment", tracerOptions.Environment, "Environment")
	flags.BoolVar(&tracerOptions.Debug, "debug", tracerOptions.Debug, "Panic on scope and continuation misuse")
	flags.IntVar(&tracerOptions.Workers, "workers", tracerOptions.Workers, "Writer workers, 0 writes on the finishing goroutine")
	flags.IntVar(&tracerOptions.QueueSize, "queue-size", tracerOptions.QueueSize, "Writer queue size")

	flags.StringVar(&propagatorOptions.TraceIDKey, "propagation-trace-id-key", propagatorOptions.TraceIDKey, "Propagation trace id key")
	flags.StringVar(&propagatorOptions.ParentIDKey, "propagation-parent-id-key", propagatorOptions.ParentIDKey, "Propagation parent id key")
	flags.StringVar(&propagatorOptions.SamplingKey, "propagation-sampling-key", propagatorOptions.SamplingKey, "Propagation sampling key")
	flags.StringVar(&propagatorOptions.BaggagePrefix, "propagation-baggage-prefix", propagatorOptions.BaggagePrefix, "Propagation baggage prefix")

	flags.StringVar(&stdoutOptions.Format, "stdout-format", stdoutOptions.Format, "Stdout format: json, text, template")
	flags.StringVar(&stdoutOptions.Level, "stdout-level", stdoutOptions.Level, "Stdout level: info, warn, error, debug, panic")
	flags.StringVar(&stdoutOptions.Template, "stdout-template", stdoutOptions.Template, "Stdout template")
	flags.StringVar(&stdoutOptions.TimestampFormat, "stdout-timestamp-format", stdoutOptions.TimestampFormat, "Stdout timestamp format")
	flags.BoolVar(&stdoutOptions.TextColors, "stdout-text-colors", stdoutOptions.TextColors, "Stdout text colors")

	flags.StringVar(&loggingWriterOptions.Level, "logging-writer-level", loggingWriterOptions.Level, "Logging writer level: info, debug")

	flags.StringVar(&prometheusOptions.URL, "prometheus-url", prometheusOptions.URL, "Prometheus endpoint url")
	flags.StringVar(&prometheusOptions.Listen, "prometheus-listen", prometheusOptions.Listen, "Prometheus listen")
	flags.StringVar(&prometheusOptions.Prefix, "prometheus-prefix", prometheusOptions.Prefix, "Prometheus prefix")

	flags.StringVar(&jaegerOptions.AgentHost, "jaeger-agent-host", jaegerOptions.AgentHost, "Jaeger agent host")
	flags.IntVar(&jaegerOptions.AgentPort, "jaeger-agent-port", jaegerOptions.AgentPort, "Jaeger agent port")
	flags.StringVar(&jaegerOptions.Endpoint, "jaeger-endpoint", jaegerOptions.Endpoint, "Jaeger endpoint")
	flags.StringVar(&jaegerOptions.User, "jaeger-user", jaegerOptions.User, "Jaeger user")
	flags.StringVar(&jaegerOptions.Password, "jaeger-password", jaegerOptions.Password, "Jaeger password")
	flags.IntVar(&jaegerOptions.BufferFlushInterval, "jaeger-buffer-flush-interval", jaegerOptions.BufferFlushInterval, "Jaeger buffer flush interval")
	flags.IntVar(&jaegerOptions.QueueSize, "jaeger-queue-size", jaegerOptions.QueueSize, "Jaeger queue size")
	flags.StringVar(&jaegerOptions.Tags, "jaeger-tags", jaegerOptions.Tags, "Jaeger tags, comma separated list of name=value")

	flags.StringVar(&datadogOptions.Environment, "datadog-environment", datadogOptions.Environment, "DataDog environment")
	flags.StringVar(&datadogOptions.Tags, "datadog-tags", datadogOptions.Tags, "DataDog tags")
	flags.BoolVar(&datadogOptions.Debug, "datadog-debug", datadogOptions.Debug, "DataDog debug")
	flags.StringVar(&datadogWriterOptions.AgentHost, "datadog-writer-host", datadogWriterOptions.AgentHost, "DataDog writer agent host")
	flags.IntVar(&datadogWriterOptions.AgentPort, "datadog-writer-port", datadogWriterOptions.AgentPort, "DataDog writer agent port")
	flags.StringVar(&datadogLoggerOptions.AgentHost, "datadog-logger-host", datadogLoggerOptions.AgentHost, "DataDog logger host")
	flags.IntVar(&datadogLoggerOptions.AgentPort, "datadog-logger-port", datadogLoggerOptions.AgentPort, "DataDog logger port")
	flags.StringVar(&datadogLoggerOptions.Level, "datadog-logger-level", datadogLoggerOptions.Level, "DataDog logger level: info, warn, error, debug, panic")
	flags.StringVar(&datadogMeterOptions.AgentHost, "datadog-meter-host", datadogMeterOptions.AgentHost, "DataDog meter host")
	flags.IntVar(&datadogMeterOptions.AgentPort, "datadog-meter-port", datadogMeterOptions.AgentPort, "DataDog meter port")
	flags.StringVar(&datadogMeterOptions.Prefix, "datadog-meter-prefix", datadogMeterOptions.Prefix, "DataDog meter prefix")

	flags.StringVar(&opentelemetryWriterOptions.AgentHost, "opentelemetry-writer-host", opentelemetryWriterOptions.AgentHost, "Opentelemetry writer agent host")
	flags.IntVar(&opentelemetryWriterOptions.AgentPort, "opentelemetry-writer-port", opentelemetryWriterOptions.AgentPort, "Opentelemetry writer agent port")
	flags.StringVar(&opentelemetryWriterOptions.Attributes, "opentelemetry-attributes", opentelemetryWriterOptions.Attributes, "Opentelemetry attributes")

	flags.StringVar(&newrelicOptions.ApiKey, "newrelic-api-key", newrelicOptions.ApiKey, "NewRelic API key")
	flags.StringVar(&newrelicOptions.Environment, "newrelic-environment", newrelicOptions.Environment, "NewRelic environment")
	flags.StringVar(&newrelicOptions.Attributes, "newrelic-attributes", newrelicOptions.Attributes, "NewRelic attributes")
	flags.BoolVar(&newrelicOptions.Debug, "newrelic-debug", newrelicOptions.Debug, "NewRelic debug")
	flags.StringVar(&newrelicWriterOptions.Endpoint, "newrelic-writer-endpoint", newrelicWriterOptions.Endpoint, "NewRelic writer endpoint")
	flags.StringVar(&newrelicLoggerOptions.Endpoint, "newrelic-logger-endpoint", newrelicLoggerOptions.Endpoint, "NewRelic logger endpoint")
	flags.StringVar(&newrelicLoggerOptions.Level, "newrelic-logger-level", newrelicLoggerOptions.Level, "NewRelic logger level: info, warn, error, debug, panic")
	flags.StringVar(&newrelicMeterOptions.Endpoint, "newrelic-meter-endpoint", newrelicMeterOptions.Endpoint, "NewRelic meter endpoint")
	flags.StringVar(&newrelicMeterOptions.Prefix, "newrelic-meter-prefix", newrelicMeterOptions.Prefix, "NewRelic meter prefix")

	interceptSyscall()

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Trace asynchronous requests against a local instrumented server",
		RunE: func(cmd *cobra.Command, args []string) error {

			t := newTracer()
			err := runDemo(t)

			t.Stop()
			for _, s := range stoppers {
				s.Stop()
			}
			metrics.Stop()
			mainWG.Wait()
			return err
		},
	}
	demoCmd.Flags().StringVar(&demoOptions.Listen, "listen", demoOptions.Listen, "Demo server listen address")
	demoCmd.Flags().IntVar(&demoOptions.Requests, "requests", demoOptions.Requests, "Asynchronous requests to send")
	demoCmd.Flags().IntVar(&demoOptions.Timeout, "timeout", demoOptions.Timeout, "Request timeout in seconds")
	rootCmd.AddCommand(demoCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(VERSION)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		logs.Error(err)
		os.Exit(1)
	}
}
