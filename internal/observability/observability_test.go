package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "text")

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")

	logger.Info("structured", "key", "value")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "structured", record["msg"])
	assert.Equal(t, "value", record["key"])
}

func TestNewLoggerUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "shout", "text")

	logger.Debug("hidden")
	logger.Info("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestInitTracesThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "text")
	ctx := context.Background()

	tel, err := Init(ctx, logger, DefaultConfig())
	require.NoError(t, err)

	tracer := tel.Tracer("test")
	_, span := tracer.Start(ctx, "unit.operation")
	span.SetAttributes(attribute.String("corpus.version", "17.0"))
	span.End()

	require.NoError(t, tel.Shutdown(ctx))

	out := buf.String()
	assert.Contains(t, out, "unit.operation")
	assert.Contains(t, out, "corpus.version")
}

func TestMeterProviderProvidesInstruments(t *testing.T) {
	tel, err := Init(context.Background(), NewLogger(&strings.Builder{}, "info", "text"), DefaultConfig())
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	meter := tel.Meter("test")
	counter, err := meter.Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}

func TestInitDisabledExportsNothing(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "text")
	ctx := context.Background()

	tel, err := Init(ctx, logger, Config{Enabled: false})
	require.NoError(t, err)

	_, span := tel.Tracer("test").Start(ctx, "unit.operation")
	span.End()
	require.NoError(t, tel.Shutdown(ctx))

	assert.NotContains(t, buf.String(), "unit.operation")
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Enabled: true}
	require.Error(t, cfg.Validate())

	cfg.ServiceName = "intelgraph"
	require.NoError(t, cfg.Validate())

	disabled := Config{Enabled: false}
	require.NoError(t, disabled.Validate())
}

func TestLogSpanExporterShutdownDropsSpans(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogSpanExporter(NewLogger(&buf, "debug", "text"))

	require.NoError(t, e.Shutdown(context.Background()))
	require.NoError(t, e.ExportSpans(context.Background(), nil))
	assert.Empty(t, buf.String())
}
