package observability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracingDisabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := InitTracing(context.Background(), DefaultTracingConfig())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInitTracingToFile(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Exporter = "file"
	cfg.OutputPath = filepath.Join(t.TempDir(), "spans.json")

	shutdown, err := InitTracing(context.Background(), cfg)
	require.NoError(t, err)

	_, span := Tracer("test").Start(context.Background(), "pipeline.run")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	body, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pipeline.run")
	assert.Contains(t, string(body), "edgar-etl")
}

func TestInitTracingFileRequiresPath(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Exporter = "file"

	_, err := InitTracing(context.Background(), cfg)
	require.Error(t, err)
}
