package observability

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// LogsConfig configures OTLP log export.
type LogsConfig struct {
	Enabled        bool
	Endpoint       string
	ExporterType   ExporterType
	ServiceName    string
	ServiceVersion string
	Insecure       bool
	Headers        map[string]string
}

// LoggerProvider exports slog records over OTLP. Records carry the trace
// and span of their context.
type LoggerProvider struct {
	provider *sdklog.LoggerProvider
}

// InitLogs installs a batching OTLP exporter as the global logger provider.
// It returns nil when disabled; a nil *LoggerProvider has no Handler.
func InitLogs(ctx context.Context, cfg LogsConfig) (*LoggerProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	exporter, err := newLogExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}
	lp := newLoggerProvider(res, sdklog.NewBatchProcessor(exporter))
	global.SetLoggerProvider(lp.provider)
	return lp, nil
}

func newLoggerProvider(res *resource.Resource, processor sdklog.Processor) *LoggerProvider {
	return &LoggerProvider{provider: sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(processor),
	)}
}

// Handler returns a slog.Handler exporting records at or above level, or
// nil when p is nil. Pass it as LoggerConfig.Export.
func (p *LoggerProvider) Handler(level slog.Leveler) slog.Handler {
	if p == nil {
		return nil
	}
	return &otelHandler{logger: p.provider.Logger(TracerName), level: level}
}

// Shutdown flushes pending records.
func (p *LoggerProvider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}

func newLogExporter(ctx context.Context, cfg LogsConfig) (sdklog.Exporter, error) {
	if cfg.ExporterType == ExporterHTTP {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
		}
		return otlploghttp.New(ctx, opts...)
	}
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(cfg.Headers))
	}
	return otlploggrpc.New(ctx, opts...)
}

// otelHandler turns slog records into OTel log records. Groups flatten
// into dotted attribute keys.
type otelHandler struct {
	logger log.Logger
	level  slog.Leveler
	prefix string
	attrs  []log.KeyValue
}

func (h *otelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *otelHandler) Handle(ctx context.Context, rec slog.Record) error {
	var r log.Record
	r.SetTimestamp(rec.Time)
	r.SetObservedTimestamp(time.Now())
	r.SetSeverity(severity(rec.Level))
	r.SetSeverityText(rec.Level.String())
	r.SetBody(log.StringValue(rec.Message))
	r.AddAttributes(h.attrs...)
	rec.Attrs(func(a slog.Attr) bool {
		r.AddAttributes(h.keyValue(a))
		return true
	})
	h.logger.Emit(ctx, r)
	return nil
}

func (h *otelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		out.attrs = append(out.attrs, h.keyValue(a))
	}
	return &out
}

func (h *otelHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	out.prefix = h.prefix + name + "."
	return &out
}

func (h *otelHandler) keyValue(a slog.Attr) log.KeyValue {
	return log.KeyValue{Key: h.prefix + a.Key, Value: logValue(a.Value)}
}

// severity maps slog levels onto OTel severities; both space their
// named levels four apart.
func severity(level slog.Level) log.Severity {
	s := int(level) + int(log.SeverityInfo)
	if s < int(log.SeverityTrace1) {
		return log.SeverityTrace1
	}
	return log.Severity(s)
}

func logValue(v slog.Value) log.Value {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return log.StringValue(v.String())
	case slog.KindInt64:
		return log.Int64Value(v.Int64())
	case slog.KindUint64:
		return log.Int64Value(int64(v.Uint64()))
	case slog.KindFloat64:
		return log.Float64Value(v.Float64())
	case slog.KindBool:
		return log.BoolValue(v.Bool())
	case slog.KindDuration:
		return log.StringValue(v.Duration().String())
	case slog.KindTime:
		return log.StringValue(v.Time().Format(time.RFC3339Nano))
	case slog.KindGroup:
		group := v.Group()
		kvs := make([]log.KeyValue, 0, len(group))
		for _, a := range group {
			kvs = append(kvs, log.KeyValue{Key: a.Key, Value: logValue(a.Value)})
		}
		return log.MapValue(kvs...)
	default:
		return log.StringValue(fmt.Sprint(v.Any()))
	}
}
