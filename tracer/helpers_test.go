package tracer

import (
	"fmt"
	"sync"
	"time"

	"github.com/devopsext/asynctrace/common"
	"github.com/zoobzio/clockz"
)

type testCounter struct {
	meter *testMeter
	name  string
}

func (c *testCounter) Inc() common.Counter {
	return c.Add(1)
}

func (c *testCounter) Add(value int) common.Counter {

	c.meter.mutex.Lock()
	defer c.meter.mutex.Unlock()
	c.meter.values[c.name] += value
	return c
}

type testGauge struct{}

func (g *testGauge) Set(value float64) common.Gauge { return g }

type testMeter struct {
	mutex  sync.Mutex
	values map[string]int
}

func (m *testMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {
	return &testCounter{meter: m, name: name}
}

func (m *testMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {
	return &testGauge{}
}

func (m *testMeter) Stop() {}

func (m *testMeter) Value(name string) int {

	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.values[name]
}

func newTestMeter() *testMeter {
	return &testMeter{values: make(map[string]int)}
}

type testLogger struct {
	mutex sync.Mutex
	warns []string
}

func (l *testLogger) record(obj interface{}, args ...interface{}) common.Logger {

	l.mutex.Lock()
	defer l.mutex.Unlock()
	if s, ok := obj.(string); ok && len(args) > 0 {
		l.warns = append(l.warns, fmt.Sprintf(s, args...))
	} else {
		l.warns = append(l.warns, fmt.Sprintf("%v", obj))
	}
	return l
}

func (l *testLogger) Warnings() []string {

	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]string(nil), l.warns...)
}

func (l *testLogger) Info(obj interface{}, args ...interface{}) common.Logger { return l }
func (l *testLogger) SpanInfo(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	return l
}
func (l *testLogger) Warn(obj interface{}, args ...interface{}) common.Logger {
	return l.record(obj, args...)
}
func (l *testLogger) SpanWarn(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	return l.record(obj, args...)
}
func (l *testLogger) Error(obj interface{}, args ...interface{}) common.Logger {
	return l.record(obj, args...)
}
func (l *testLogger) SpanError(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	return l.record(obj, args...)
}
func (l *testLogger) Debug(obj interface{}, args ...interface{}) common.Logger { return l }
func (l *testLogger) SpanDebug(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	return l
}
func (l *testLogger) Panic(obj interface{}, args ...interface{}) common.Logger { return l }
func (l *testLogger) SpanPanic(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	return l
}
func (l *testLogger) Stack(offset int) common.Logger { return l }

type fakeClock interface {
	clockz.Clock
	Advance(d time.Duration)
}

type testEnv struct {
	tracer *Tracer
	writer *MemoryWriter
	clock  fakeClock
	meter  *testMeter
	logger *testLogger
}

func newTestEnv(debug bool) *testEnv {

	env := &testEnv{
		writer: NewMemoryWriter(),
		clock:  clockz.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
		meter:  newTestMeter(),
		logger: &testLogger{},
	}
	env.tracer = New(Options{
		ServiceName: "checkout",
		Debug:       debug,
		Clock:       env.clock,
	}, env.writer, env.logger, env.meter)
	return env
}

func recoverError(fn func()) (err error) {

	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}
