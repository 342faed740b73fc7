package tracer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/devopsext/asynctrace/common"
)

var (
	ErrScopeNesting       = errors.New("scope closed out of order")
	ErrContinuationReused = errors.New("continuation activated more than once")
)

// ScopeManager creates executions and reports scope misuse. In debug mode
// misuse panics, otherwise it is logged and counted.
type ScopeManager struct {
	debug       bool
	logger      common.Logger
	violations  common.Counter
	activations common.Counter
}

// Execution is the stack of active spans of one logical thread of
// execution. Only the top frame is active.
type Execution struct {
	id      string
	manager *ScopeManager
	mutex   sync.Mutex
	frames  []*Scope
}

// Scope is one frame of an execution stack. A scope is closed exactly
// once, by the code that opened it, in LIFO order.
type Scope struct {
	execution *Execution
	span      *Span
	closed    atomic.Bool
	async     atomic.Bool
}

type executionKey struct{}

func ContextWithExecution(ctx context.Context, e *Execution) context.Context {
	return context.WithValue(ctx, executionKey{}, e)
}

// ExecutionFromContext returns nil when ctx carries no execution. All
// read methods of Execution accept a nil receiver.
func ExecutionFromContext(ctx context.Context) *Execution {

	if ctx == nil {
		return nil
	}
	e, _ := ctx.Value(executionKey{}).(*Execution)
	return e
}

func (m *ScopeManager) NewExecution() *Execution {
	return &Execution{
		id:      common.GetGuid(),
		manager: m,
	}
}

// Execution returns the execution carried by ctx, attaching a new one when
// there is none.
func (m *ScopeManager) Execution(ctx context.Context) (context.Context, *Execution) {

	if e := ExecutionFromContext(ctx); e != nil {
		return ctx, e
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e := m.NewExecution()
	return ContextWithExecution(ctx, e), e
}

func (m *ScopeManager) Debug() bool {
	return m.debug
}

func (m *ScopeManager) violation(err error, format string, args ...interface{}) {

	if m.debug {
		panic(fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...)))
	}
	m.violations.Inc()
	m.logger.Warn("%s: %s", err, fmt.Sprintf(format, args...))
}

func (e *Execution) ID() string {

	if e == nil {
		return ""
	}
	return e.id
}

// Activate pushes span on top of the stack.
func (e *Execution) Activate(span *Span) *Scope {

	if e == nil || span == nil {
		return &Scope{}
	}
	scope := &Scope{execution: e, span: span}

	e.mutex.Lock()
	e.frames = append(e.frames, scope)
	e.mutex.Unlock()
	return scope
}

func (e *Execution) ActiveScope() *Scope {

	if e == nil {
		return nil
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(e.frames) == 0 {
		return nil
	}
	return e.frames[len(e.frames)-1]
}

func (e *Execution) Active() *Span {

	if scope := e.ActiveScope(); scope != nil {
		return scope.span
	}
	return nil
}

func (e *Execution) ActiveContext() *SpanContext {

	if span := e.Active(); span != nil {
		return span.context
	}
	return nil
}

// Capture returns a continuation of the active span, or nil when nothing
// is active.
func (e *Execution) Capture() *Continuation {

	span := e.Active()
	if span == nil {
		return nil
	}
	return &Continuation{manager: e.manager, span: span}
}

func (e *Execution) Depth() int {

	if e == nil {
		return 0
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.frames)
}

func (e *Execution) close(s *Scope) {

	m := e.manager
	if !s.closed.CompareAndSwap(false, true) {
		m.logger.Debug("Scope of %s is already closed", s.span)
		return
	}

	e.mutex.Lock()
	n := len(e.frames)
	if n > 0 && e.frames[n-1] == s {
		e.frames[n-1] = nil
		e.frames = e.frames[:n-1]
		e.mutex.Unlock()
		return
	}

	var active *Span
	if n > 0 {
		active = e.frames[n-1].span
	}

	if m.debug {
		e.mutex.Unlock()
		s.closed.Store(false)
		m.violation(ErrScopeNesting, "%s closed while %s is active", s.span, active)
		return
	}

	for i := n - 1; i >= 0; i-- {
		if e.frames[i] == s {
			e.frames = append(e.frames[:i], e.frames[i+1:]...)
			break
		}
	}
	e.mutex.Unlock()

	m.violation(ErrScopeNesting, "%s closed while %s is active on execution %s", s.span, active, e.id)
}

func (s *Scope) Span() *Span {

	if s == nil {
		return nil
	}
	return s.span
}

// SetAsyncPropagation marks that work started inside this scope may
// capture its span and resume it on another goroutine.
func (s *Scope) SetAsyncPropagation(value bool) *Scope {

	if s != nil {
		s.async.Store(value)
	}
	return s
}

func (s *Scope) IsAsyncPropagating() bool {
	return s != nil && s.async.Load()
}

func (s *Scope) IsClosed() bool {
	return s == nil || s.execution == nil || s.closed.Load()
}

// Close pops the scope. Closing an inert scope is a no-op.
func (s *Scope) Close() {

	if s == nil || s.execution == nil {
		return
	}
	s.execution.close(s)
}

func newScopeManager(debug bool, logger common.Logger, meter common.Meter) *ScopeManager {
	return &ScopeManager{
		debug:       debug,
		logger:      logger,
		violations:  meter.Counter("scope_violations", "Scope and continuation misuse", nil, "tracer"),
		activations: meter.Counter("continuations_activated", "Continuations activated", nil, "tracer"),
	}
}
