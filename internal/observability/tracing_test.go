package observability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func recordingTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return recorder, provider
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestInitTracing_Disabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	if tp.Tracer() == nil {
		t.Error("expected a tracer even when disabled")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on disabled provider: %v", err)
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 1, want: "AlwaysOnSampler"},
		{rate: 2, want: "AlwaysOnSampler"},
		{rate: 0, want: "AlwaysOffSampler"},
		{rate: 0.25, want: "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := newSampler(tt.rate).Description()
		if !strings.HasPrefix(desc, "ParentBased{root:"+tt.want) {
			t.Errorf("newSampler(%v) = %s, want parent-based %s", tt.rate, desc, tt.want)
		}
	}
}

func TestStartReasoningSpan(t *testing.T) {
	recorder, provider := recordingTracer(t)

	ctx := ContextWithRequestID(context.Background(), "req-9")
	_, span := StartReasoningSpan(ctx, provider.Tracer("test"), "reasoncache.reason_across_layers", ReasoningSpanAttributes{
		Strategy: "deductive",
		Layers:   []string{"raw", "abstract"},
	})
	RecordReasoningResult(span, "r-1", 0.8, true)
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	got := attrMap(ended[0].Attributes())
	if got["reasoning.strategy"].AsString() != "deductive" {
		t.Errorf("strategy = %v", got["reasoning.strategy"])
	}
	if layers := got["reasoning.layers"].AsStringSlice(); len(layers) != 2 || layers[1] != "abstract" {
		t.Errorf("layers = %v", layers)
	}
	if _, ok := got["reasoning.layer"]; ok {
		t.Error("empty layer should not be recorded")
	}
	if _, ok := got["reasoning.depth"]; ok {
		t.Error("zero depth should not be recorded")
	}
	if got["request.id"].AsString() != "req-9" {
		t.Errorf("request.id = %v", got["request.id"])
	}
	if got["reasoning.confidence"].AsFloat64() != 0.8 || !got["reasoning.from_cache"].AsBool() {
		t.Errorf("result attributes = %v", got)
	}
}

func TestStartReasoningSpan_NilTracer(t *testing.T) {
	_, span := StartReasoningSpan(context.Background(), nil, "reasoncache.reason", ReasoningSpanAttributes{Strategy: "causal"})
	defer span.End()
	if span == nil {
		t.Error("expected non-nil span")
	}
}

func TestRecordError(t *testing.T) {
	recorder, provider := recordingTracer(t)
	_, span := provider.Tracer("test").Start(context.Background(), "reasoncache.reason")
	RecordError(span, errors.New("layer \"nope\" is not available"))
	span.End()

	s := recorder.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", s.Status())
	}
	if len(s.Events()) != 1 || s.Events()[0].Name != "exception" {
		t.Errorf("events = %v, want one exception event", s.Events())
	}
}

func TestTracerProvider_ShutdownWithoutSDK(t *testing.T) {
	tp := &TracerProvider{tracer: noop.NewTracerProvider().Tracer("test")}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown should not error without an SDK provider: %v", err)
	}
}
