// Package logging wraps log/slog with trace-correlation: every log line
// written through a Logger picks up the active span's trace/span id, if
// any, reading it off the public go.opentelemetry.io/otel/trace API
// directly rather than through an internal tracing helper.
package logging

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// Logger is the correlation-aware logging interface every component in
// the runtime takes a dependency on, instead of *slog.Logger directly.
type Logger interface {
	InfoCtx(ctx context.Context, msg string, attrs ...any)
	WarnCtx(ctx context.Context, msg string, attrs ...any)
	ErrorCtx(ctx context.Context, msg string, attrs ...any)
	DebugCtx(ctx context.Context, msg string, attrs ...any)
	// With returns a Logger that always includes attrs.
	With(attrs ...any) Logger
}

type correlatedLogger struct{ base *slog.Logger }

// New wraps base (or the package default JSON handler over stderr, if
// base is nil) in a correlation-aware Logger.
func New(base *slog.Logger) Logger {
	if base == nil {
		base = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return &correlatedLogger{base: base}
}

func withCorrelation(ctx context.Context, attrs []any) []any {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return attrs
	}
	return append(attrs, slog.String("trace_id", sc.TraceID().String()), slog.String("span_id", sc.SpanID().String()))
}

func (l *correlatedLogger) InfoCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.InfoContext(ctx, msg, withCorrelation(ctx, attrs)...)
}

func (l *correlatedLogger) WarnCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.WarnContext(ctx, msg, withCorrelation(ctx, attrs)...)
}

func (l *correlatedLogger) ErrorCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.ErrorContext(ctx, msg, withCorrelation(ctx, attrs)...)
}

func (l *correlatedLogger) DebugCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.DebugContext(ctx, msg, withCorrelation(ctx, attrs)...)
}

func (l *correlatedLogger) With(attrs ...any) Logger {
	return &correlatedLogger{base: l.base.With(attrs...)}
}
