// Package observability wires the OpenTelemetry providers: a tracer
// provider exporting completed spans through the structured logger and a
// meter provider collecting the engine's instruments.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// Config controls telemetry collection.
type Config struct {
	// Enabled turns span and metric collection on. When false the
	// providers are no-ops and nothing is exported.
	Enabled bool `yaml:"enabled"`

	// ServiceName tags exported spans and metrics.
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns the default telemetry configuration.
func DefaultConfig() Config {
	return Config{Enabled: true, ServiceName: "intelgraph"}
}

// Validate checks the Config for structural problems.
func (c *Config) Validate() error {
	if c.Enabled && c.ServiceName == "" {
		return types.NewError(types.INVALID_CONFIG, "tracing service name cannot be empty")
	}
	return nil
}

// Telemetry holds the configured providers and their shutdown hook.
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	shutdown       []func(context.Context) error
}

// Init builds the tracer and meter providers and installs them as the
// process globals. Spans are exported through logger at debug level;
// metrics accumulate in a manual reader until collected. A disabled
// config yields no-op providers.
func Init(ctx context.Context, logger *slog.Logger, cfg Config) (*Telemetry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !cfg.Enabled {
		t := &Telemetry{
			tracerProvider: tracenoop.NewTracerProvider(),
			meterProvider:  metricnoop.NewMeterProvider(),
		}
		otel.SetTracerProvider(t.tracerProvider)
		otel.SetMeterProvider(t.meterProvider)
		return t, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)),
	)
	if err != nil {
		logger.Warn("failed to create resource, using default", "error", err)
		res = resource.Default()
	}

	exporter := NewLogSpanExporter(logger)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Telemetry{
		tracerProvider: tp,
		meterProvider:  mp,
		shutdown:       []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}

// Tracer returns a named tracer from the configured provider.
func (t *Telemetry) Tracer(name string) trace.Tracer {
	return t.tracerProvider.Tracer(name)
}

// Meter returns a named meter from the configured provider.
func (t *Telemetry) Meter(name string) metric.Meter {
	return t.meterProvider.Meter(name)
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}
