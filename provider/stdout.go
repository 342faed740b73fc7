package provider

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/devopsext/asynctrace/common"
	"github.com/sirupsen/logrus"
)

type StdoutOptions struct {
	Format          string
	Level           string
	Template        string
	TimestampFormat string
	TextColors      bool
	Service         string
	Version         string
	Output          io.Writer
}

// Stdout is the logrus backed logger. Span records carry the trace and
// span ids in the hex form writers use.
type Stdout struct {
	log          *logrus.Logger
	options      StdoutOptions
	callerOffset int
}

type templateFormatter struct {
	template        *template.Template
	timestampFormat string
}

var stdoutLevels = map[string]logrus.Level{
	"panic": logrus.PanicLevel,
	"error": logrus.ErrorLevel,
	"warn":  logrus.WarnLevel,
	"info":  logrus.InfoLevel,
	"debug": logrus.DebugLevel,
	"trace": logrus.TraceLevel,
}

func (f *templateFormatter) Format(entry *logrus.Entry) ([]byte, error) {

	m := make(map[string]interface{}, len(entry.Data)+3)
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			m[k] = err.Error()
			continue
		}
		m[k] = v
	}
	m["msg"] = entry.Message
	m["time"] = entry.Time.Format(f.timestampFormat)
	m["level"] = entry.Level.String()

	var b bytes.Buffer
	if err := f.template.Execute(&b, m); err != nil {
		return []byte(entry.Message), err
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (so *Stdout) fields(span common.TracerSpan, offset int) logrus.Fields {

	function, file, line := common.GetCallerInfo(so.callerOffset + offset)
	fields := logrus.Fields{
		"file": fmt.Sprintf("%s:%d", file, line),
		"func": function,
	}
	if !common.IsEmpty(so.options.Service) {
		fields["service"] = so.options.Service
	}
	if span == nil {
		return fields
	}
	if traceID := span.TraceID(); traceID != 0 {
		fields["trace_id"] = common.TraceIDUint64ToHex(traceID)
		fields["span_id"] = common.SpanIDUint64ToHex(span.SpanID())
	}
	return fields
}

func (so *Stdout) message(level logrus.Level, obj interface{}, args ...interface{}) (string, bool) {

	if obj == nil || !so.log.IsLevelEnabled(level) {
		return "", false
	}

	var message string
	switch v := obj.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
		if len(args) > 0 {
			message = fmt.Sprintf(v, args...)
		}
	case fmt.Stringer:
		message = v.String()
	default:
		message = fmt.Sprintf("%v", v)
	}
	return message, message != ""
}

func (so *Stdout) write(level logrus.Level, span common.TracerSpan, obj interface{}, args ...interface{}) {

	message, ok := so.message(level, obj, args...)
	if !ok {
		return
	}
	so.log.WithFields(so.fields(span, 4)).Logln(level, message)
}

func (so *Stdout) Info(obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.InfoLevel, nil, obj, args...)
	return so
}

func (so *Stdout) SpanInfo(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.InfoLevel, span, obj, args...)
	return so
}

func (so *Stdout) Warn(obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.WarnLevel, nil, obj, args...)
	return so
}

func (so *Stdout) SpanWarn(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.WarnLevel, span, obj, args...)
	return so
}

func (so *Stdout) Error(obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.ErrorLevel, nil, obj, args...)
	return so
}

func (so *Stdout) SpanError(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.ErrorLevel, span, obj, args...)
	return so
}

func (so *Stdout) Debug(obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.DebugLevel, nil, obj, args...)
	return so
}

func (so *Stdout) SpanDebug(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.DebugLevel, span, obj, args...)
	return so
}

func (so *Stdout) Panic(obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.PanicLevel, nil, obj, args...)
	return so
}

func (so *Stdout) SpanPanic(span common.TracerSpan, obj interface{}, args ...interface{}) common.Logger {
	so.write(logrus.PanicLevel, span, obj, args...)
	return so
}

// Stack shifts the caller frame reported in file and func by offset.
func (so *Stdout) Stack(offset int) common.Logger {
	so.callerOffset = so.callerOffset - offset
	return so
}

func (so *Stdout) SetCallerOffset(offset int) {
	so.callerOffset = offset
}

func newLog(options StdoutOptions) (*logrus.Logger, error) {

	log := logrus.New()

	switch options.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: options.TimestampFormat})
	case "template":
		t, err := template.New("stdout").Parse(options.Template)
		if err != nil {
			return nil, err
		}
		log.SetFormatter(&templateFormatter{template: t, timestampFormat: options.TimestampFormat})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: options.TimestampFormat,
			ForceColors:     options.TextColors,
			FullTimestamp:   true,
		})
	}

	level, ok := stdoutLevels[options.Level]
	if !ok {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	output := options.Output
	if output == nil {
		output = os.Stdout
	}
	log.SetOutput(output)
	return log, nil
}

func NewStdout(options StdoutOptions) (*Stdout, error) {

	log, err := newLog(options)
	if err != nil {
		return nil, err
	}
	return &Stdout{
		log:          log,
		options:      options,
		callerOffset: 1,
	}, nil
}
