package observability

import (
	"context"
	"log/slog"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogSpanExporter exports completed spans through the structured logger at
// debug level. It keeps trace visibility in single-binary deployments
// without requiring a collector.
type LogSpanExporter struct {
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
}

// NewLogSpanExporter creates an exporter writing to logger.
func NewLogSpanExporter(logger *slog.Logger) *LogSpanExporter {
	return &LogSpanExporter{logger: logger}
}

// ExportSpans logs one line per completed span.
func (e *LogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return nil
	}

	for _, span := range spans {
		attrs := []any{
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
			slog.Duration("duration", span.EndTime().Sub(span.StartTime())),
			slog.String("status", span.Status().Code.String()),
		}
		for _, kv := range span.Attributes() {
			attrs = append(attrs, slog.Any(string(kv.Key), kv.Value.AsInterface()))
		}
		e.logger.Debug("span "+span.Name(), attrs...)
	}
	return nil
}

// Shutdown stops the exporter; later exports are dropped.
func (e *LogSpanExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return nil
}
