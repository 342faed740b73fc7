package common

// TracerSpan is the part of a span that loggers and meters need for
// correlation.
type TracerSpan interface {
	TraceID() uint64
	SpanID() uint64
	Error(err error)
}
