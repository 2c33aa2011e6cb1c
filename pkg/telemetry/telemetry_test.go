package telemetry

import (
	"context"
	"testing"

	"github.com/smallbiznis/meterflow/internal/config"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func TestNewTracerProviderDisabled(t *testing.T) {
	cfg := config.Config{AppName: "meterflow-test"}

	tp, err := NewTracerProvider(nil, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.Same(t, tp, otel.GetTracerProvider())

	// Spans are still usable, they just have nowhere to go.
	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewTracerProviderRejectsUnknownExporter(t *testing.T) {
	cfg := config.Config{
		AppName: "meterflow-test",
		Tracing: config.TracingConfig{Enabled: true, Exporter: "carrier-pigeon"},
	}

	_, err := NewTracerProvider(nil, cfg, zap.NewNop())
	require.Error(t, err)
}
