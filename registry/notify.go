package registry

import (
	"context"

	"github.com/arcwell/mcpengine/mcp"
)

// ProgressReporter forwards progress of a long-running tool call to the
// client. Transports inject an implementation into the request context;
// tool code retrieves it through the response writer. Reports are
// fire-and-forget: a failed push never fails the call.
type ProgressReporter interface {
	Report(ctx context.Context, progress, total float64, message string) error
}

type progressKey struct{}

// WithProgressReporter returns a context carrying the provided reporter.
func WithProgressReporter(ctx context.Context, pr ProgressReporter) context.Context {
	if pr == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, pr)
}

// ProgressFrom retrieves the ProgressReporter from the context if present.
func ProgressFrom(ctx context.Context) (ProgressReporter, bool) {
	if pr, ok := ctx.Value(progressKey{}).(ProgressReporter); ok && pr != nil {
		return pr, true
	}
	return nil, false
}

// LogSink pushes a structured log message to the client, subject to the
// session's minimum level. Like progress, pushes are fire-and-forget.
type LogSink interface {
	Log(ctx context.Context, level mcp.LoggingLevel, message, logger string) error
}

type logSinkKey struct{}

// WithLogSink returns a context carrying the provided sink.
func WithLogSink(ctx context.Context, sink LogSink) context.Context {
	if sink == nil {
		return ctx
	}
	return context.WithValue(ctx, logSinkKey{}, sink)
}

// LogSinkFrom retrieves the LogSink from the context if present.
func LogSinkFrom(ctx context.Context) (LogSink, bool) {
	if s, ok := ctx.Value(logSinkKey{}).(LogSink); ok && s != nil {
		return s, true
	}
	return nil, false
}
