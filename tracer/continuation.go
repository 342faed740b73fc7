package tracer

import "sync/atomic"

// Continuation carries a captured span to another goroutine. It can be
// activated once; Cancel releases it unused. Continuations do not keep the
// trace open.
type Continuation struct {
	manager *ScopeManager
	span    *Span
	used    atomic.Bool
}

func (c *Continuation) Span() *Span {

	if c == nil {
		return nil
	}
	return c.span
}

// Activate pushes the captured span onto e, or onto a new execution when e
// is nil. The returned scope is async-propagating. A second activation is
// misuse and yields an inert scope.
func (c *Continuation) Activate(e *Execution) *Scope {

	if c == nil {
		return &Scope{}
	}
	if !c.used.CompareAndSwap(false, true) {
		c.manager.violation(ErrContinuationReused, "%s", c.span)
		return &Scope{}
	}
	if e == nil {
		e = c.manager.NewExecution()
	}

	scope := e.Activate(c.span)
	scope.async.Store(true)
	c.manager.activations.Inc()
	return scope
}

// Cancel releases a continuation that will never be activated. It reports
// whether the continuation was still unused.
func (c *Continuation) Cancel() bool {
	return c != nil && c.used.CompareAndSwap(false, true)
}

func (c *Continuation) IsUsed() bool {
	return c == nil || c.used.Load()
}
