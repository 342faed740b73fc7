package tracer

import (
	"errors"
	"sync"
)

const traceMaxSize = 100000

var ErrBufferFull = errors.New("trace buffer is full")

// trace buffers the spans of one local trace. Once every pushed span has
// finished the batch is handed to onFinish and the buffer starts over, so
// spans started later on the same trace are flushed as another batch.
// Continuations are not tracked here and never delay a flush.
type trace struct {
	mutex    sync.Mutex
	spans    []*Span
	finished int
	onFinish func(spans []*Span)
}

func newTrace(onFinish func(spans []*Span)) *trace {
	return &trace{onFinish: onFinish}
}

func (t *trace) push(s *Span) error {

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if len(t.spans) >= traceMaxSize {
		return ErrBufferFull
	}
	t.spans = append(t.spans, s)
	return nil
}

func (t *trace) ackFinish() {

	t.mutex.Lock()
	t.finished++
	if t.finished < len(t.spans) {
		t.mutex.Unlock()
		return
	}
	spans := t.spans
	t.spans = nil
	t.finished = 0
	t.mutex.Unlock()

	if t.onFinish != nil {
		t.onFinish(spans)
	}
}
