package ingest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Runner is the ingest contract consumed by the CLI.
type Runner interface {
	Ingest(ctx context.Context, data []byte) (*Result, error)
}

// TracedIngester wraps a Runner with OpenTelemetry tracing and metrics.
// Each ingest produces a span named "intelgraph.ingest" carrying the
// committed version and entity counts.
type TracedIngester struct {
	inner    Runner
	tracer   trace.Tracer
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewTracedIngester wraps inner with tracing and metrics instruments.
func NewTracedIngester(inner Runner, tracer trace.Tracer, meter metric.Meter) (*TracedIngester, error) {
	requests, err := meter.Int64Counter("intelgraph.ingest.requests",
		metric.WithDescription("Completed ingest requests"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("intelgraph.ingest.duration_ms",
		metric.WithDescription("Ingest latency in milliseconds"))
	if err != nil {
		return nil, err
	}
	return &TracedIngester{inner: inner, tracer: tracer, requests: requests, latency: latency}, nil
}

// Ingest delegates to the inner runner inside a span.
func (t *TracedIngester) Ingest(ctx context.Context, data []byte) (*Result, error) {
	ctx, span := t.tracer.Start(ctx, "intelgraph.ingest")
	defer span.End()

	span.SetAttributes(attribute.Int("intelgraph.ingest.bundle_bytes", len(data)))

	start := time.Now()
	result, err := t.inner.Ingest(ctx, data)
	elapsed := time.Since(start)

	t.latency.Record(ctx, float64(elapsed.Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("intelgraph.ingest.version", result.Version),
		attribute.String("intelgraph.ingest.job_id", result.JobID),
		attribute.Int("intelgraph.ingest.entities", result.EntityCount),
		attribute.Int("intelgraph.ingest.relationships", result.RelationshipCount),
	)
	span.SetStatus(codes.Ok, "")
	t.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	return result, nil
}
