// Package instrumentation holds the enter and exit hooks placed around
// instrumented calls: an asynchronous HTTP client, an http.RoundTripper,
// server middleware, AMQP publish and consume, and ORM operations.
package instrumentation

import (
	"github.com/devopsext/asynctrace/common"
	"github.com/devopsext/asynctrace/propagation"
	"github.com/devopsext/asynctrace/tracer"
)

// Instrumenter carries what every hook needs. Hooks never let a tracing
// fault reach the instrumented call: faults are logged, counted and the
// call proceeds untraced.
type Instrumenter struct {
	tracer     *tracer.Tracer
	propagator *propagation.Propagator
	logger     common.Logger
	faults     common.Counter
}

func (i *Instrumenter) suppress(hook string, fn func()) (ok bool) {

	defer func() {
		if r := recover(); r != nil {
			ok = false
			i.faults.Inc()
			i.logger.Debug("Hook %s failed: %v", hook, r)
		}
	}()
	fn()
	return true
}

func (i *Instrumenter) Tracer() *tracer.Tracer {
	return i.tracer
}

func (i *Instrumenter) Propagator() *propagation.Propagator {
	return i.propagator
}

func New(t *tracer.Tracer, propagator *propagation.Propagator, meter common.Meter) *Instrumenter {

	if propagator == nil {
		propagator = propagation.NewPropagator(propagation.PropagatorOptions{})
	}
	if meter == nil {
		meter = common.NewMetrics()
	}
	return &Instrumenter{
		tracer:     t,
		propagator: propagator,
		logger:     t.Logger(),
		faults:     meter.Counter("hook_faults", "Suppressed instrumentation faults", nil, "instrumentation"),
	}
}
