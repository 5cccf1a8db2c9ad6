package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of reasoncache spans.
const TracerName = "github.com/blueberrycongee/reasoncache"

// TracingConfig contains configuration for OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool
	Endpoint       string // OTLP endpoint, e.g. "localhost:4317"
	ExporterType   ExporterType
	ServiceName    string
	ServiceVersion string
	SampleRate     float64 // 0.0 to 1.0, applied to root spans
	Insecure       bool
	Headers        map[string]string
}

// TracerProvider owns the SDK provider when tracing is enabled.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing installs an OTLP-exporting tracer provider as the global
// provider. When tracing is disabled the global (no-op by default) tracer
// is returned and nothing is exported.
func InitTracing(ctx context.Context, cfg TracingConfig) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if cfg.ExporterType == ExporterHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// newSampler samples root spans at rate and follows the parent otherwise,
// so a cross-layer call and its per-layer spans are kept or dropped together.
func newSampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

// Tracer returns the tracer instance.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Shutdown flushes pending spans. It is a no-op when tracing is disabled.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// ReasoningSpanAttributes contains common attributes for reasoning spans.
type ReasoningSpanAttributes struct {
	Strategy string
	Layer    string
	Depth    int
	Layers   []string
}

// StartReasoningSpan starts a span for a reasoning call with standard attributes.
func StartReasoningSpan(ctx context.Context, tracer trace.Tracer, operation string, attrs ReasoningSpanAttributes) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	kv := []attribute.KeyValue{attribute.String("reasoning.strategy", attrs.Strategy)}
	if attrs.Layer != "" {
		kv = append(kv, attribute.String("reasoning.layer", attrs.Layer))
	}
	if attrs.Depth > 0 {
		kv = append(kv, attribute.Int("reasoning.depth", attrs.Depth))
	}
	if len(attrs.Layers) > 0 {
		kv = append(kv, attribute.StringSlice("reasoning.layers", attrs.Layers))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		kv = append(kv, attribute.String("request.id", id))
	}
	return tracer.Start(ctx, operation, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(kv...))
}

// RecordReasoningResult records result attributes on a span.
func RecordReasoningResult(span trace.Span, reasoningID string, confidence float64, fromCache bool) {
	span.SetAttributes(
		attribute.String("reasoning.id", reasoningID),
		attribute.Float64("reasoning.confidence", confidence),
		attribute.Bool("reasoning.from_cache", fromCache),
	)
}

// RecordError records err on span and marks the span failed.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
