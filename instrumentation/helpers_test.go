package instrumentation

import (
	"sync"

	"github.com/devopsext/asynctrace/common"
	"github.com/devopsext/asynctrace/propagation"
	"github.com/devopsext/asynctrace/tracer"
)

type countingCounter struct {
	meter *countingMeter
	name  string
}

func (c *countingCounter) Inc() common.Counter {
	return c.Add(1)
}

func (c *countingCounter) Add(value int) common.Counter {

	c.meter.mutex.Lock()
	defer c.meter.mutex.Unlock()
	c.meter.values[c.name] += value
	return c
}

type nopGauge struct{}

func (g nopGauge) Set(value float64) common.Gauge { return g }

type countingMeter struct {
	mutex  sync.Mutex
	values map[string]int
}

func (m *countingMeter) Counter(name, description string, labels common.Labels, prefixes ...string) common.Counter {
	return &countingCounter{meter: m, name: name}
}

func (m *countingMeter) Gauge(name, description string, labels common.Labels, prefixes ...string) common.Gauge {
	return nopGauge{}
}

func (m *countingMeter) Stop() {}

func (m *countingMeter) Value(name string) int {

	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.values[name]
}

type testEnv struct {
	instrumenter *Instrumenter
	tracer       *tracer.Tracer
	writer       *tracer.MemoryWriter
	meter        *countingMeter
}

func newTestEnv() *testEnv {

	env := &testEnv{
		writer: tracer.NewMemoryWriter(),
		meter:  &countingMeter{values: make(map[string]int)},
	}
	env.tracer = tracer.New(tracer.Options{ServiceName: "storefront", Debug: true}, env.writer, nil, env.meter)
	env.instrumenter = New(env.tracer, propagation.NewPropagator(propagation.PropagatorOptions{}), env.meter)
	return env
}

// activate starts a root span active on a new execution carried by the
// returned context.
func (env *testEnv) activate(name string) (*tracer.Span, *tracer.Scope, *tracer.Execution) {

	span := env.tracer.StartSpan(name)
	exec := env.tracer.Scopes().NewExecution()
	return span, exec.Activate(span), exec
}
