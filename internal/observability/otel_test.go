package observability

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

func TestParseExporterType(t *testing.T) {
	tests := map[string]ExporterType{
		"":       ExporterGRPC,
		"grpc":   ExporterGRPC,
		" HTTP ": ExporterHTTP,
	}
	for in, want := range tests {
		got, err := ParseExporterType(in)
		if err != nil || got != want {
			t.Errorf("ParseExporterType(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseExporterType("zipkin"); err == nil {
		t.Error("expected an error for an unknown exporter")
	}
}

func TestInitTracing_HTTPExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, err := InitTracing(context.Background(), TracingConfig{
		Enabled:      true,
		Endpoint:     "127.0.0.1:4318",
		ExporterType: ExporterHTTP,
		ServiceName:  "reasoncache-test",
		SampleRate:   1,
		Insecure:     true,
		Headers:      map[string]string{"x-team": "search"},
	})
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestInitMetrics_DisabledIsSafe(t *testing.T) {
	mp, err := InitMetrics(context.Background(), MetricsConfig{})
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	mp.RecordReasoning(context.Background(), "deductive", "concrete", 0.5)
	if err := mp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}

	var nilProvider *MeterProvider
	nilProvider.RecordCacheStore(context.Background())
}

func TestMeterProvider_Records(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	mp, err := NewMeterProvider(provider.Meter("test"))
	if err != nil {
		t.Fatalf("newMeterProvider failed: %v", err)
	}
	mp.RecordReasoning(ctx, "deductive", "concrete", 0.8)
	mp.RecordReasoning(ctx, "deductive", "concrete", 0.6)
	mp.RecordCacheStore(ctx)
	mp.RecordCacheRemovals(ctx, "evict", 3)
	mp.RecordCacheRemovals(ctx, "expire", 0)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	byName := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}

	sums := map[string]int64{
		"reasoncache.reasoning.requests":      2,
		"reasoncache.semantic_cache.stores":   1,
		"reasoncache.semantic_cache.removals": 3,
	}
	for name, want := range sums {
		sum, ok := byName[name].Data.(metricdata.Sum[int64])
		if !ok || len(sum.DataPoints) != 1 {
			t.Errorf("%s: unexpected data %#v", name, byName[name].Data)
			continue
		}
		if got := sum.DataPoints[0].Value; got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}

	hist, ok := byName["reasoncache.reasoning.confidence"].Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("confidence: unexpected data %#v", byName["reasoncache.reasoning.confidence"].Data)
	}
	if hist.DataPoints[0].Count != 2 {
		t.Errorf("confidence count = %d, want 2", hist.DataPoints[0].Count)
	}
}

type exportedRecord struct {
	body     string
	severity log.Severity
	attrs    map[string]log.Value
}

type recordingExporter struct {
	mu      sync.Mutex
	records []exportedRecord
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range records {
		r := &records[i]
		out := exportedRecord{body: r.Body().AsString(), severity: r.Severity(), attrs: map[string]log.Value{}}
		r.WalkAttributes(func(kv log.KeyValue) bool {
			out.attrs[kv.Key] = kv.Value
			return true
		})
		e.records = append(e.records, out)
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestLoggerProvider_ExportsRedactedRecords(t *testing.T) {
	exp := &recordingExporter{}
	lp := newLoggerProvider(resource.Empty(), sdklog.NewSimpleProcessor(exp))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	logger := NewLogger(LoggerConfig{
		Level:  slog.LevelInfo,
		Output: io.Discard,
		Export: lp.Handler(slog.LevelInfo),
	}, NewRedactor())

	ctx := ContextWithRequestID(context.Background(), "req-7")
	logger.With("component", "semantic cache").WithGroup("call").
		WarnContext(ctx, "embedding failed", "api_key", "sk-live-123", "attempts", 3)
	logger.Debug("not exported")

	exp.mu.Lock()
	defer exp.mu.Unlock()
	if len(exp.records) != 1 {
		t.Fatalf("exported %d records, want 1", len(exp.records))
	}
	rec := exp.records[0]
	if rec.body != "embedding failed" || rec.severity != log.SeverityWarn {
		t.Errorf("record = %q at %v", rec.body, rec.severity)
	}
	if got := rec.attrs["component"].AsString(); got != "semantic cache" {
		t.Errorf("component = %q", got)
	}
	if got := rec.attrs["call.api_key"].AsString(); got != redacted {
		t.Errorf("api_key = %q, want redacted", got)
	}
	if got := rec.attrs["call.attempts"].AsInt64(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if got := rec.attrs["call.request_id"].AsString(); got != "req-7" {
		t.Errorf("request_id = %q, want req-7", got)
	}
}

func TestSeverity(t *testing.T) {
	tests := map[slog.Level]log.Severity{
		slog.LevelDebug: log.SeverityDebug,
		slog.LevelInfo:  log.SeverityInfo,
		slog.LevelWarn:  log.SeverityWarn,
		slog.LevelError: log.SeverityError,
		slog.Level(-20): log.SeverityTrace1,
	}
	for level, want := range tests {
		if got := severity(level); got != want {
			t.Errorf("severity(%v) = %v, want %v", level, got, want)
		}
	}
}

func TestInitLogs_Disabled(t *testing.T) {
	lp, err := InitLogs(context.Background(), LogsConfig{})
	if err != nil || lp != nil {
		t.Fatalf("InitLogs = %v, %v; want nil, nil", lp, err)
	}
	if lp.Handler(slog.LevelInfo) != nil {
		t.Error("a disabled provider has no handler")
	}
	if err := lp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
