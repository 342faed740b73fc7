package tracer

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Writer receives every finished trace exactly once. Write may be called
// from any goroutine.
type Writer interface {
	Write(trace []SpanData) error
	Stop()
}

// Writers fans traces out to several writers. A failing writer does not
// keep the others from receiving the trace.
type Writers struct {
	mutex   sync.RWMutex
	writers []Writer
}

func (ws *Writers) list() []Writer {

	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	return ws.writers
}

func (ws *Writers) Write(trace []SpanData) error {

	var errs []error
	for _, w := range ws.list() {
		if err := w.Write(trace); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ws *Writers) Stop() {

	for _, w := range ws.list() {
		w.Stop()
	}
}

func (ws *Writers) Register(w Writer) {

	if w == nil {
		return
	}
	ws.mutex.Lock()
	defer ws.mutex.Unlock()
	ws.writers = append(ws.writers, w)
}

func (ws *Writers) Len() int {
	return len(ws.list())
}

func NewWriters() *Writers {
	return &Writers{}
}

// MemoryWriter keeps written traces in memory. Tests and the demo command
// read them back.
type MemoryWriter struct {
	mutex  sync.Mutex
	traces [][]SpanData
	notify chan struct{}
}

func (mw *MemoryWriter) Write(trace []SpanData) error {

	mw.mutex.Lock()
	mw.traces = append(mw.traces, trace)
	mw.mutex.Unlock()

	select {
	case mw.notify <- struct{}{}:
	default:
	}
	return nil
}

func (mw *MemoryWriter) Stop() {}

func (mw *MemoryWriter) Traces() [][]SpanData {

	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	r := make([][]SpanData, len(mw.traces))
	copy(r, mw.traces)
	return r
}

// Spans returns every written span ordered by start time.
func (mw *MemoryWriter) Spans() []SpanData {

	var spans []SpanData
	for _, t := range mw.Traces() {
		spans = append(spans, t...)
	}
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Start.Before(spans[j].Start)
	})
	return spans
}

func (mw *MemoryWriter) Find(name string) (SpanData, bool) {

	for _, s := range mw.Spans() {
		if s.Name == name {
			return s, true
		}
	}
	return SpanData{}, false
}

func (mw *MemoryWriter) Reset() {

	mw.mutex.Lock()
	defer mw.mutex.Unlock()
	mw.traces = nil
}

// WaitForSpans blocks until at least n spans are written or timeout
// passes. It reports whether n spans arrived.
func (mw *MemoryWriter) WaitForSpans(n int, timeout time.Duration) bool {

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if len(mw.Spans()) >= n {
			return true
		}
		select {
		case <-mw.notify:
		case <-deadline.C:
			return len(mw.Spans()) >= n
		}
	}
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{notify: make(chan struct{}, 1)}
}
