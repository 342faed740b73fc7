package common

import (
	"errors"
	"fmt"
	"sync"

	"github.com/devopsext/utils"
)

// Logs fans every record out to the registered loggers. An empty Logs
// discards everything and is the default logger of the tracer.
type Logs struct {
	mutex   sync.RWMutex
	loggers []Logger
}

func (ls *Logs) each(fn func(l Logger)) {

	ls.mutex.RLock()
	loggers := ls.loggers
	ls.mutex.RUnlock()

	for _, l := range loggers {
		fn(l)
	}
}

func (ls *Logs) Info(obj interface{}, args ...interface{}) Logger {
	ls.each(func(l Logger) { l.Info(obj, args...) })
	return ls
}

func (ls *Logs) SpanInfo(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	ls.each(func(l Logger) { l.SpanInfo(span, obj, args...) })
	return ls
}

func (ls *Logs) Warn(obj interface{}, args ...interface{}) Logger {
	ls.each(func(l Logger) { l.Warn(obj, args...) })
	return ls
}

func (ls *Logs) SpanWarn(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	ls.each(func(l Logger) { l.SpanWarn(span, obj, args...) })
	return ls
}

func (ls *Logs) Error(obj interface{}, args ...interface{}) Logger {
	ls.each(func(l Logger) { l.Error(obj, args...) })
	return ls
}

// SpanError logs the record and marks the span as failed with the same
// message.
func (ls *Logs) SpanError(span TracerSpan, obj interface{}, args ...interface{}) Logger {

	ls.each(func(l Logger) { l.SpanError(span, obj, args...) })

	if span == nil || obj == nil {
		return ls
	}

	message := ""
	switch v := obj.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
		if len(args) > 0 {
			message = fmt.Sprintf(v, args...)
		}
	}

	if !utils.IsEmpty(message) {
		span.Error(errors.New(message))
	}
	return ls
}

func (ls *Logs) Debug(obj interface{}, args ...interface{}) Logger {
	ls.each(func(l Logger) { l.Debug(obj, args...) })
	return ls
}

func (ls *Logs) SpanDebug(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	ls.each(func(l Logger) { l.SpanDebug(span, obj, args...) })
	return ls
}

func (ls *Logs) Panic(obj interface{}, args ...interface{}) Logger {
	ls.each(func(l Logger) { l.Panic(obj, args...) })
	return ls
}

func (ls *Logs) SpanPanic(span TracerSpan, obj interface{}, args ...interface{}) Logger {
	ls.each(func(l Logger) { l.SpanPanic(span, obj, args...) })
	return ls
}

func (ls *Logs) Stack(offset int) Logger {
	ls.each(func(l Logger) { l.Stack(offset) })
	return ls
}

func (ls *Logs) Register(l Logger) {

	if l == nil {
		return
	}
	ls.mutex.Lock()
	defer ls.mutex.Unlock()
	ls.loggers = append(ls.loggers, l)
}

func (ls *Logs) Len() int {

	ls.mutex.RLock()
	defer ls.mutex.RUnlock()
	return len(ls.loggers)
}

func NewLogs() *Logs {
	return &Logs{}
}
