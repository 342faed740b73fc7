package provider

import (
	"encoding/json"

	"github.com/devopsext/asynctrace/common"
	"github.com/devopsext/asynctrace/tracer"
)

type LoggingWriterOptions struct {
	// Level is info or debug.
	Level string
}

// LoggingWriter logs every finished span as a JSON document.
type LoggingWriter struct {
	options LoggingWriterOptions
	logger  common.Logger
}

type loggedSpan struct {
	data tracer.SpanData
}

func (s loggedSpan) TraceID() uint64 { return s.data.TraceID }
func (s loggedSpan) SpanID() uint64  { return s.data.SpanID }
func (s loggedSpan) Error(err error) {}

func (lw *LoggingWriter) Write(trace []tracer.SpanData) error {

	for _, s := range trace {
		b, err := json.Marshal(s)
		if err != nil {
			return err
		}
		if lw.options.Level == "debug" {
			lw.logger.SpanDebug(loggedSpan{data: s}, string(b))
			continue
		}
		lw.logger.SpanInfo(loggedSpan{data: s}, string(b))
	}
	return nil
}

func (lw *LoggingWriter) Stop() {}

func NewLoggingWriter(options LoggingWriterOptions, logger common.Logger) *LoggingWriter {
	return &LoggingWriter{
		options: options,
		logger:  logger,
	}
}
