package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logSpanProcessor writes every ended span to the structured log. Failed
// spans are logged at warn level, the rest at debug.
type logSpanProcessor struct {
	logger *slog.Logger
}

func newLogSpanProcessor(logger *slog.Logger) *logSpanProcessor {
	return &logSpanProcessor{logger: logger.With("component", "tracing")}
}

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	level := slog.LevelDebug
	if s.Status().Code == codes.Error {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("span", s.Name()),
		slog.String("trace_id", s.SpanContext().TraceID().String()),
		slog.String("span_id", s.SpanContext().SpanID().String()),
		slog.Duration("duration", s.EndTime().Sub(s.StartTime())),
		slog.String("status", s.Status().Code.String()),
	}
	if desc := s.Status().Description; desc != "" {
		attrs = append(attrs, slog.String("status_description", desc))
	}
	for _, kv := range s.Attributes() {
		attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
	}
	p.logger.LogAttrs(context.Background(), level, "span ended", attrs...)
}

func (p *logSpanProcessor) Shutdown(context.Context) error { return nil }

func (p *logSpanProcessor) ForceFlush(context.Context) error { return nil }

var _ sdktrace.SpanProcessor = (*logSpanProcessor)(nil)
