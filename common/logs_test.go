package common

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordLogger struct {
	mutex   sync.Mutex
	records []string
}

func (r *recordLogger) add(level string, span TracerSpan, obj interface{}, args ...interface{}) Logger {

	r.mutex.Lock()
	defer r.mutex.Unlock()

	message := fmt.Sprintf("%v", obj)
	if s, ok := obj.(string); ok && len(args) > 0 {
		message = fmt.Sprintf(s, args...)
	}
	if span != nil {
		message = fmt.Sprintf("%s[%d/%d]", message, span.TraceID(), span.SpanID())
	}
	r.records = append(r.records, level+":"+message)
	return r
}

func (r *recordLogger) Info(obj interface{}, args ...interface{}) Logger {
	return r.add("info", nil, obj, args...)
}
func (r *recordLogger) SpanInfo(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	return r.add("info", span, obj, args...)
}
func (r *recordLogger) Warn(obj interface{}, args ...interface{}) Logger {
	return r.add("warn", nil, obj, args...)
}
func (r *recordLogger) SpanWarn(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	return r.add("warn", span, obj, args...)
}
func (r *recordLogger) Error(obj interface{}, args ...interface{}) Logger {
	return r.add("error", nil, obj, args...)
}
func (r *recordLogger) SpanError(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	return r.add("error", span, obj, args...)
}
func (r *recordLogger) Debug(obj interface{}, args ...interface{}) Logger {
	return r.add("debug", nil, obj, args...)
}
func (r *recordLogger) SpanDebug(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	return r.add("debug", span, obj, args...)
}
func (r *recordLogger) Panic(obj interface{}, args ...interface{}) Logger {
	return r.add("panic", nil, obj, args...)
}
func (r *recordLogger) SpanPanic(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	return r.add("panic", span, obj, args...)
}
func (r *recordLogger) Stack(offset int) Logger { return r }

type fakeSpan struct {
	err error
}

func (f *fakeSpan) TraceID() uint64 { return 7 }
func (f *fakeSpan) SpanID() uint64  { return 9 }
func (f *fakeSpan) Error(err error) { f.err = err }

func TestLogsFanOut(t *testing.T) {

	a, b := &recordLogger{}, &recordLogger{}
	logs := NewLogs()
	logs.Register(a)
	logs.Register(nil)
	logs.Register(b)
	require.Equal(t, 2, logs.Len())

	logs.Info("started %s", "demo").Warn(errors.New("slow writer"))

	expected := []string{"info:started demo", "warn:slow writer"}
	assert.Equal(t, expected, a.records)
	assert.Equal(t, expected, b.records)
}

func TestLogsSpanErrorMarksSpan(t *testing.T) {

	r := &recordLogger{}
	logs := NewLogs()
	logs.Register(r)

	span := &fakeSpan{}
	logs.SpanError(span, "request %d failed", 42)

	require.Error(t, span.err)
	assert.Equal(t, "request 42 failed", span.err.Error())
	assert.Equal(t, []string{"error:request 42 failed[7/9]"}, r.records)
}

func TestLogsEmptyDiscards(t *testing.T) {

	logs := NewLogs()
	assert.NotPanics(t, func() {
		logs.Info("nothing").SpanDebug(nil, "nothing").Stack(1)
	})
}
