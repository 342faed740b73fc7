package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/devopsext/asynctrace/common"
)

type PrometheusOptions struct {
	URL     string
	Listen  string
	Version string
	Prefix  string
}

type PrometheusCounter struct {
	counter *metrics.Counter
}

type PrometheusGauge struct {
	bits atomic.Uint64
}

// PrometheusMeter keeps its instruments in its own set and serves them in
// the Prometheus text format.
type PrometheusMeter struct {
	options PrometheusOptions
	logger  common.Logger
	set     *metrics.Set
	mutex   sync.Mutex
	server  *http.Server
}

func (p *PrometheusMeter) buildIdent(name string, labels common.Labels, prefixes ...string) string {

	var names []string
	if !common.IsEmpty(p.options.Prefix) {
		names = append(names, p.options.Prefix)
	}
	names = append(names, prefixes...)
	names = append(names, name)
	ident := strings.Join(names, "_")

	if len(labels) == 0 {
		return ident
	}
	arr := make([]string, 0, len(labels))
	for k, v := range labels {
		arr = append(arr, fmt.Sprintf(`%s=%q`, k, v))
	}
	sort.Strings(arr)
	return fmt.Sprintf("%s{%s}", ident, strings.Join(arr, ","))
}

func (pc *PrometheusCounter) Inc() common.Counter {
	pc.counter.Inc()
	return pc
}

func (pc *PrometheusCounter) Add(value int) common.Counter {
	pc.counter.Add(value)
	return pc
}

func (pg *PrometheusGauge) Set(value float64) common.Gauge {
	pg.bits.Store(math.Float64bits(value))
	return pg
}

func (pg *PrometheusGauge) value() float64 {
	return math.Float64frombits(pg.bits.Load())
}

func (p *PrometheusMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {
	return &PrometheusCounter{
		counter: p.set.GetOrCreateCounter(p.buildIdent(name, labels, prefixes...)),
	}
}

func (p *PrometheusMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {

	gauge := &PrometheusGauge{}
	p.set.GetOrCreateGauge(p.buildIdent(name, labels, prefixes...), gauge.value)
	return gauge
}

func (p *PrometheusMeter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		p.set.WritePrometheus(w)
	})
}

// Start serves the metrics endpoint until Stop. It reports whether the
// listener could be opened.
func (p *PrometheusMeter) Start() bool {

	listener, err := net.Listen("tcp", p.options.Listen)
	if err != nil {
		p.logger.Error(err)
		return false
	}

	mux := http.NewServeMux()
	mux.Handle(p.options.URL, p.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	p.mutex.Lock()
	p.server = server
	p.mutex.Unlock()

	p.logger.Info("Prometheus is up. Listening on %s...", listener.Addr())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		p.logger.Error(err)
		return false
	}
	return true
}

func (p *PrometheusMeter) StartInWaitGroup(wg *sync.WaitGroup) {

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Start()
	}()
}

func (p *PrometheusMeter) Stop() {

	p.mutex.Lock()
	server := p.server
	p.mutex.Unlock()

	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		p.logger.Error(err)
	}
}

func NewPrometheusMeter(options PrometheusOptions, logger common.Logger, stdout *Stdout) *PrometheusMeter {

	if logger == nil {
		logger = stdout
	}

	if common.IsEmpty(options.Listen) {
		stdout.Debug("Prometheus meter is disabled.")
		return nil
	}
	if common.IsEmpty(options.URL) {
		options.URL = "/metrics"
	}

	return &PrometheusMeter{
		options: options,
		logger:  logger,
		set:     metrics.NewSet(),
	}
}
