package tracer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	TagErrorMessage = "error.msg"
	TagErrorType    = "error.type"
)

// Span is a timed unit of work. It is safe for concurrent use: a span is
// routinely shared between the goroutine that started it and the one that
// completes it. Finish is terminal and takes effect exactly once.
type Span struct {
	tracer  *Tracer
	context *SpanContext

	mutex         sync.RWMutex
	operationName string
	resourceName  string
	decorated     bool
	tags          map[string]interface{}
	isError       bool
	start         time.Time
	end           time.Time

	buffered bool
	finished atomic.Bool
}

// SpanData is the snapshot of a finished span handed to writers.
type SpanData struct {
	TraceID  uint64                 `json:"trace_id"`
	SpanID   uint64                 `json:"span_id"`
	ParentID uint64                 `json:"parent_id,omitempty"`
	Service  string                 `json:"service"`
	Name     string                 `json:"name"`
	Resource string                 `json:"resource"`
	Start    time.Time              `json:"start"`
	End      time.Time              `json:"end"`
	Duration time.Duration          `json:"duration"`
	Error    bool                   `json:"error"`
	Sampled  bool                   `json:"sampled"`
	Tags     map[string]interface{} `json:"tags,omitempty"`
	Baggage  map[string]string      `json:"baggage,omitempty"`
}

func normalizeTag(value interface{}) interface{} {

	switch v := value.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	case error:
		return v.Error()
	case time.Duration:
		return int64(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (s *Span) Context() *SpanContext {
	return s.context
}

func (s *Span) TraceID() uint64 {
	return s.context.traceID
}

func (s *Span) SpanID() uint64 {
	return s.context.spanID
}

// SetTag stores value under key; the last write wins. Values other than
// strings, numbers and booleans are stored as strings. Nil values remove
// the tag.
func (s *Span) SetTag(key string, value interface{}) *Span {

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.finished.Load() || key == "" {
		return s
	}
	if value == nil {
		delete(s.tags, key)
		return s
	}
	if s.tags == nil {
		s.tags = make(map[string]interface{})
	}
	s.tags[key] = normalizeTag(value)
	return s
}

func (s *Span) Tag(key string) (interface{}, bool) {

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	v, ok := s.tags[key]
	return v, ok
}

// Tags returns a copy of the tags.
func (s *Span) Tags() map[string]interface{} {

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	m := make(map[string]interface{}, len(s.tags))
	for k, v := range s.tags {
		m[k] = v
	}
	return m
}

func (s *Span) SetOperationName(name string) *Span {

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.finished.Load() || name == "" {
		return s
	}
	s.operationName = name
	return s
}

func (s *Span) OperationName() string {

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.operationName
}

// SetResourceName overwrites the resource name. An empty name never
// replaces an existing one.
func (s *Span) SetResourceName(name string) *Span {

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.finished.Load() || name == "" {
		return s
	}
	s.resourceName = name
	return s
}

// DecorateResourceName is the decorator path for naming: the first
// decorator that yields a non-empty name claims the resource, later
// decorators keep it. It reports whether this call set the name.
func (s *Span) DecorateResourceName(name string) bool {

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.finished.Load() || name == "" || s.decorated {
		return false
	}
	s.resourceName = name
	s.decorated = true
	return true
}

// ResourceName falls back to the operation name.
func (s *Span) ResourceName() string {

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.resourceName == "" {
		return s.operationName
	}
	return s.resourceName
}

// Error flags the span and records the error message and type.
func (s *Span) Error(err error) {

	if err == nil {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.finished.Load() {
		return
	}
	if s.tags == nil {
		s.tags = make(map[string]interface{})
	}
	s.isError = true
	s.tags[TagErrorMessage] = err.Error()
	s.tags[TagErrorType] = fmt.Sprintf("%T", err)
}

func (s *Span) SetError(flag bool) *Span {

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.finished.Load() {
		s.isError = flag
	}
	return s
}

func (s *Span) IsError() bool {

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.isError
}

func (s *Span) StartTime() time.Time {
	return s.start
}

func (s *Span) EndTime() time.Time {

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.end
}

func (s *Span) Duration() time.Duration {

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.end.IsZero() {
		return 0
	}
	return s.end.Sub(s.start)
}

func (s *Span) IsFinished() bool {
	return s.finished.Load()
}

// Finish stamps the end time from the tracer clock. Only the first call
// has an effect.
func (s *Span) Finish() {
	s.finish(s.tracer.clock.Now())
}

func (s *Span) FinishAt(end time.Time) {
	s.finish(end)
}

func (s *Span) finish(end time.Time) {

	if !s.finished.CompareAndSwap(false, true) {
		s.tracer.metrics.finishConflicts.Inc()
		return
	}

	s.mutex.Lock()
	if end.Before(s.start) {
		end = s.start
	}
	s.end = end
	s.mutex.Unlock()

	s.tracer.spanFinished(s)
}

// Data snapshots the span.
func (s *Span) Data() SpanData {

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	resource := s.resourceName
	if resource == "" {
		resource = s.operationName
	}

	var tags map[string]interface{}
	if len(s.tags) > 0 {
		tags = make(map[string]interface{}, len(s.tags))
		for k, v := range s.tags {
			tags[k] = v
		}
	}

	var duration time.Duration
	if !s.end.IsZero() {
		duration = s.end.Sub(s.start)
	}

	return SpanData{
		TraceID:  s.context.traceID,
		SpanID:   s.context.spanID,
		ParentID: s.context.parentID,
		Service:  s.tracer.options.ServiceName,
		Name:     s.operationName,
		Resource: resource,
		Start:    s.start,
		End:      s.end,
		Duration: duration,
		Error:    s.isError,
		Sampled:  s.context.sampled,
		Tags:     tags,
		Baggage:  s.context.Baggage(),
	}
}

func (s *Span) String() string {

	if s == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s[%s]", s.OperationName(), s.context)
}
