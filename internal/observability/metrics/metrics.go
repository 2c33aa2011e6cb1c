// Package metrics exposes OTel instruments for the metering pipeline.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/meterflow/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	ingestAccepted     metric.Int64Counter
	ingestDeduplicated metric.Int64Counter
	aggregations       metric.Int64Counter
	thresholdCrossings metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Metrics.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.Metrics.Exporter, cfg.Metrics.Endpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.Metrics.Endpoint),
			zap.String("protocol", cfg.Metrics.Exporter),
		)
	}

	return provider, nil
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case "grpc", "":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported metrics exporter %q", protocol)
	}
}

// New configures the domain metrics instruments.
func New(cfg config.Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "meterflow"
	}
	meter := provider.Meter(name)

	ingestAccepted, err := meter.Int64Counter("meterflow_ingest_accepted_total")
	if err != nil {
		return nil, err
	}
	ingestDeduplicated, err := meter.Int64Counter("meterflow_ingest_deduplicated_total")
	if err != nil {
		return nil, err
	}
	aggregations, err := meter.Int64Counter("meterflow_aggregations_total")
	if err != nil {
		return nil, err
	}
	thresholdCrossings, err := meter.Int64Counter("meterflow_threshold_crossings_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("meterflow_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ingestAccepted:     ingestAccepted,
		ingestDeduplicated: ingestDeduplicated,
		aggregations:       aggregations,
		thresholdCrossings: thresholdCrossings,
		rateLimitDenied:    rateLimitDenied,
	}, nil
}

// RecordIngestAccepted increments accepted event counts.
func (m *Metrics) RecordIngestAccepted(ctx context.Context, meterCode string) {
	if m == nil {
		return
	}
	m.ingestAccepted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("meter_code", strings.TrimSpace(meterCode)),
	))
}

// RecordIngestDeduplicated increments idempotency-hit counts.
func (m *Metrics) RecordIngestDeduplicated(ctx context.Context, meterCode string) {
	if m == nil {
		return
	}
	m.ingestDeduplicated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("meter_code", strings.TrimSpace(meterCode)),
	))
}

// RecordAggregation increments aggregation call counts per type and backend.
func (m *Metrics) RecordAggregation(ctx context.Context, aggregationType, backend string) {
	if m == nil {
		return
	}
	m.aggregations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("aggregation", strings.TrimSpace(aggregationType)),
		attribute.String("backend", strings.TrimSpace(backend)),
	))
}

// RecordThresholdCrossing increments crossing counts.
func (m *Metrics) RecordThresholdCrossing(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	m.thresholdCrossings.Add(ctx, 1, metric.WithAttributes(
		attribute.String("currency", strings.TrimSpace(currency)),
	))
}

// RecordRateLimitDenied increments rate limit denial counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, orgID string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
	))
}
