package search

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Searcher is the retrieval contract consumed by the RAG assembler and the
// CLI.
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) (*Response, error)
}

// TracedSearcher wraps a Searcher with OpenTelemetry tracing and metrics.
// Each request produces a span named "intelgraph.search" carrying the
// corpus version, limit, degraded flag, and result count.
type TracedSearcher struct {
	inner    Searcher
	tracer   trace.Tracer
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewTracedSearcher wraps inner with tracing and metrics instruments.
func NewTracedSearcher(inner Searcher, tracer trace.Tracer, meter metric.Meter) (*TracedSearcher, error) {
	requests, err := meter.Int64Counter("intelgraph.search.requests",
		metric.WithDescription("Completed search requests"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("intelgraph.search.duration_ms",
		metric.WithDescription("Search request latency in milliseconds"))
	if err != nil {
		return nil, err
	}
	return &TracedSearcher{inner: inner, tracer: tracer, requests: requests, latency: latency}, nil
}

// Search delegates to the inner searcher inside a span.
func (s *TracedSearcher) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	ctx, span := s.tracer.Start(ctx, "intelgraph.search")
	defer span.End()

	span.SetAttributes(
		attribute.Int("intelgraph.search.limit", opts.Limit),
		attribute.Bool("intelgraph.search.filtered", opts.Filter != ""),
	)

	start := time.Now()
	resp, err := s.inner.Search(ctx, query, opts)
	elapsed := time.Since(start)

	s.latency.Record(ctx, float64(elapsed.Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("intelgraph.search.version", resp.Version),
		attribute.Bool("intelgraph.search.degraded", resp.Degraded),
		attribute.Int("intelgraph.search.results", len(resp.Results)),
	)
	span.SetStatus(codes.Ok, "")

	outcome := "ok"
	if resp.Degraded {
		outcome = "degraded"
	}
	s.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return resp, nil
}
