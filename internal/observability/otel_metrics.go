package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures OTLP metric export. Prometheus scraping is
// independent of it.
type MetricsConfig struct {
	Enabled        bool
	Endpoint       string
	ExporterType   ExporterType
	ServiceName    string
	ServiceVersion string
	Insecure       bool
	Headers        map[string]string
	ExportInterval time.Duration
}

// MeterProvider records reasoning and semantic cache activity as OTel
// instruments. A nil *MeterProvider records nothing.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider

	reasonings metric.Int64Counter
	confidence metric.Float64Histogram
	stores     metric.Int64Counter
	removals   metric.Int64Counter
}

// InitMetrics installs a periodic OTLP exporter as the global meter
// provider. When disabled the instruments come from the global provider,
// which is a no-op unless something else installed one.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*MeterProvider, error) {
	if !cfg.Enabled {
		return NewMeterProvider(otel.Meter(TracerName))
	}

	exporter, err := newMetricExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}
	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = time.Minute
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)

	mp, err := NewMeterProvider(provider.Meter(TracerName))
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	mp.provider = provider
	return mp, nil
}

// NewMeterProvider creates the instruments on meter. Its Shutdown is a
// no-op; whoever owns meter's provider flushes it.
func NewMeterProvider(meter metric.Meter) (*MeterProvider, error) {
	mp := &MeterProvider{}
	var err error
	if mp.reasonings, err = meter.Int64Counter("reasoncache.reasoning.requests",
		metric.WithDescription("Computed reasoning results"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if mp.confidence, err = meter.Float64Histogram("reasoncache.reasoning.confidence",
		metric.WithDescription("Confidence of computed reasoning results"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1),
	); err != nil {
		return nil, err
	}
	if mp.stores, err = meter.Int64Counter("reasoncache.semantic_cache.stores",
		metric.WithDescription("Semantic cache stores"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, err
	}
	if mp.removals, err = meter.Int64Counter("reasoncache.semantic_cache.removals",
		metric.WithDescription("Semantic cache entries removed, by reason"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, err
	}
	return mp, nil
}

// RecordReasoning records one computed (not cached) reasoning result.
func (m *MeterProvider) RecordReasoning(ctx context.Context, strategy, layer string, confidence float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("reasoning.strategy", strategy),
		attribute.String("reasoning.layer", layer),
	)
	m.reasonings.Add(ctx, 1, attrs)
	m.confidence.Record(ctx, confidence, attrs)
}

func (m *MeterProvider) RecordCacheStore(ctx context.Context) {
	if m == nil {
		return
	}
	m.stores.Add(ctx, 1)
}

// RecordCacheRemovals records n entries removed for reason.
func (m *MeterProvider) RecordCacheRemovals(ctx context.Context, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.removals.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

// Shutdown flushes pending metrics. It is a no-op when export is disabled.
func (m *MeterProvider) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func newMetricExporter(ctx context.Context, cfg MetricsConfig) (sdkmetric.Exporter, error) {
	if cfg.ExporterType == ExporterHTTP {
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.Headers))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}
