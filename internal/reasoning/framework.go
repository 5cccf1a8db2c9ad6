package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/blueberrycongee/reasoncache/internal/cache"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic"
	"github.com/blueberrycongee/reasoncache/internal/events"
	"github.com/blueberrycongee/reasoncache/internal/layers"
	"github.com/blueberrycongee/reasoncache/internal/metrics"
	"github.com/blueberrycongee/reasoncache/internal/observability"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// LayerProcessor is the part of the layer manager the framework borrows.
// The framework never closes it.
type LayerProcessor interface {
	AvailableLayers() []string
	HasLayer(name string) bool
	CurrentLayer() string
	ProcessDataAtLayer(ctx context.Context, data any, layer string) (*layers.ProcessedRecord, error)
}

// SemanticWriter receives fresh results for cross-session reuse.
type SemanticWriter interface {
	Store(ctx context.Context, key string, value any, opts semantic.StoreOptions) (*semantic.Entry, error)
}

// Timer is the performance monitor capability.
type Timer interface {
	StartTimer(label string) string
	EndTimer(id string) time.Duration
}

// Bus is the notification capability. Subscriptions made through
// Framework.On are removed by Dispose.
type Bus interface {
	events.Emitter
	Subscribe(event string, handler events.Handler) func()
}

// ReasonOptions selects how a single Reason call runs.
// Zero values mean: current strategy, current layer, depth 1, cache used.
type ReasonOptions struct {
	Strategy  Strategy `json:"strategy,omitempty"`
	Layer     string   `json:"layer,omitempty"`
	Depth     int      `json:"depth,omitempty"`
	SkipCache bool     `json:"skip_cache,omitempty"`
	// InputID labels the input in events. Defaults to the input's "id"
	// field, then to a prefix of its hash.
	InputID string `json:"input_id,omitempty"`
}

// CrossLayerOptions selects how ReasonAcrossLayers runs.
type CrossLayerOptions struct {
	Strategy Strategy `json:"strategy,omitempty"`
	// Layers defaults to every enabled layer.
	Layers []string `json:"layers,omitempty"`
	// MaxDepth is checked against the configured maximum. Each layer is
	// still reasoned at depth 1.
	MaxDepth  int    `json:"max_depth,omitempty"`
	SkipCache bool   `json:"skip_cache,omitempty"`
	InputID   string `json:"input_id,omitempty"`
}

// Framework coordinates strategy selection, the reasoning cache, traces and
// cross-layer integration. It is safe for concurrent use.
type Framework struct {
	cfg      Config
	appliers map[Strategy]Applier
	keys     *cache.KeyGenerator
	results  *cache.TTLCache[*Result]
	flight   singleflight.Group

	bus      Bus
	semantic SemanticWriter
	timer    Timer
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time

	mu           sync.RWMutex
	layers       LayerProcessor
	strategy     Strategy
	cacheEnabled bool
	traceEnabled bool
	disposed     bool
	unsubscribe  []func()

	traceMu sync.RWMutex
	traces  map[string]*Trace
}

// Option configures a Framework.
type Option func(*Framework)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Framework) { f.logger = logger }
}

// WithBus sets the notification bus. A private bus is created otherwise.
func WithBus(b Bus) Option {
	return func(f *Framework) { f.bus = b }
}

// WithApplier overrides the applier for one strategy.
func WithApplier(s Strategy, a Applier) Option {
	return func(f *Framework) { f.appliers[s] = a }
}

// WithSemanticCache attaches the cache used when Config.SemanticCacheWrite is on.
func WithSemanticCache(w SemanticWriter) Option {
	return func(f *Framework) { f.semantic = w }
}

// WithTimer attaches a performance monitor.
func WithTimer(t Timer) Option {
	return func(f *Framework) { f.timer = t }
}

// WithTracer sets the OpenTelemetry tracer. The global tracer is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(f *Framework) { f.tracer = t }
}

// New creates a framework over a borrowed layer processor.
// Invalid configuration or a missing layer processor is fatal.
func New(cfg Config, lp LayerProcessor, opts ...Option) (*Framework, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lp == nil {
		return nil, errors.NewInvalidConfigError("reasoning framework requires a layer processor")
	}

	f := &Framework{
		cfg:          cfg,
		appliers:     DefaultAppliers(),
		keys:         cache.NewKeyGenerator(""),
		layers:       lp,
		strategy:     cfg.DefaultStrategy,
		cacheEnabled: cfg.CacheEnabled,
		traceEnabled: cfg.TraceEnabled,
		traces:       make(map[string]*Trace),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.bus == nil {
		f.bus = events.NewBus(f.logger)
	}
	for _, s := range cfg.EnabledStrategies {
		if f.appliers[s] == nil {
			return nil, errors.NewInvalidConfigError("no applier registered for strategy %q", s)
		}
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	f.results = cache.NewTTLCache[*Result](cache.TTLConfig{DefaultTTL: ttl})

	return f, nil
}

// state returns a consistent snapshot of the mutable settings.
func (f *Framework) state() (LayerProcessor, Strategy, bool, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.disposed {
		return nil, "", false, false, errors.NewDisposedError("reasoning framework")
	}
	return f.layers, f.strategy, f.cacheEnabled, f.traceEnabled, nil
}

type call struct {
	input    any
	inputID  string
	key      string
	strategy Strategy
	layer    string
	depth    int
	opts     ReasonOptions
	useCache bool
	traced   bool
	lp       LayerProcessor
}

// Reason applies a strategy to input processed at one layer.
func (f *Framework) Reason(ctx context.Context, input any, opts ReasonOptions) (*Result, error) {
	c, err := f.prepare(input, opts)
	if err != nil {
		f.fail("reason", err)
		return nil, err
	}

	ctx, span := observability.StartReasoningSpan(ctx, f.tracer, "reasoncache.reason", observability.ReasoningSpanAttributes{
		Strategy: string(c.strategy),
		Layer:    c.layer,
		Depth:    c.depth,
	})
	defer span.End()

	if c.useCache {
		if cached, _, ok := f.results.Get(c.key); ok {
			metrics.ReasoningRequests.WithLabelValues(string(c.strategy), c.layer, "hit").Inc()
			out := cached.Clone()
			out.FromCache = true
			observability.RecordReasoningResult(span, out.ReasoningID, out.Confidence, true)
			return out, nil
		}
	}

	var res *Result
	if f.cfg.SingleFlight && c.useCache {
		v, err, _ := f.flight.Do(c.key, func() (any, error) {
			return f.compute(context.WithoutCancel(ctx), c)
		})
		if err != nil {
			observability.RecordError(span, err)
			f.fail("reason", err)
			return nil, err
		}
		res = v.(*Result).Clone()
	} else {
		res, err = f.compute(ctx, c)
		if err != nil {
			observability.RecordError(span, err)
			f.fail("reason", err)
			return nil, err
		}
	}

	observability.RecordReasoningResult(span, res.ReasoningID, res.Confidence, false)
	return res, nil
}

// prepare validates a call. Validation failures have no side effects.
func (f *Framework) prepare(input any, opts ReasonOptions) (*call, error) {
	lp, current, cacheEnabled, traced, err := f.state()
	if err != nil {
		return nil, err
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = current
	}
	if !f.cfg.enabled(strategy) {
		return nil, errors.NewUnsupportedStrategyError(string(strategy))
	}

	layer := opts.Layer
	if layer == "" {
		layer = lp.CurrentLayer()
	}
	if !lp.HasLayer(layer) {
		return nil, errors.NewInvalidLayerError(layer)
	}

	depth := opts.Depth
	if depth == 0 {
		depth = 1
	}
	if depth < 0 {
		return nil, errors.NewInvalidArgumentError("reasoning depth must be positive, got %d", depth)
	}
	if depth > f.cfg.MaxReasoningDepth {
		return nil, errors.NewDepthExceededError(depth, f.cfg.MaxReasoningDepth)
	}

	hash, err := f.keys.HashInput(input)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("input is not serializable: %v", err)
	}

	return &call{
		input:    input,
		inputID:  inputID(input, opts.InputID, hash),
		key:      f.keys.ReasoningKey(cache.ReasoningKeyParams{InputHash: hash, Strategy: string(strategy), Layer: layer, Depth: depth}),
		strategy: strategy,
		layer:    layer,
		depth:    depth,
		opts:     opts,
		useCache: cacheEnabled && !opts.SkipCache,
		traced:   traced,
		lp:       lp,
	}, nil
}

// compute runs the miss path: process, apply, record, cache, notify.
func (f *Framework) compute(ctx context.Context, c *call) (*Result, error) {
	var timerID string
	if f.timer != nil {
		timerID = f.timer.StartTimer("reason")
		defer f.timer.EndTimer(timerID)
	}

	var tr *Trace
	if c.traced {
		tr = f.openTrace(c.input, c.opts)
		f.step(tr, TraceStep{Action: "start", Strategy: c.strategy, Layer: c.layer, Depth: c.depth})
	}

	record, err := c.lp.ProcessDataAtLayer(ctx, c.input, c.layer)
	if err != nil {
		f.logger.Error("layer processing failed", "layer", c.layer, "strategy", c.strategy, "error", err)
		return nil, errors.Wrap("reason", err)
	}
	f.step(tr, TraceStep{
		Action:  "process",
		Layer:   c.layer,
		Details: map[string]any{"from_cache": record.FromCache, "features": len(record.Features)},
	})

	applier := f.appliers[c.strategy]
	outcome, err := applier.Apply(ctx, record, c.depth)
	if err != nil {
		f.logger.Error("strategy application failed", "strategy", c.strategy, "layer", c.layer, "error", err)
		return nil, errors.Wrap("reason", err)
	}
	if outcome == nil {
		return nil, errors.NewInternalError(fmt.Sprintf("strategy %s returned no outcome", c.strategy), nil)
	}

	confidence := clamp01(outcome.Confidence)
	if confidence != outcome.Confidence {
		f.logger.Warn("strategy confidence out of range, clamped",
			"strategy", c.strategy, "confidence", outcome.Confidence)
	}

	res := &Result{
		ReasoningID:   uuid.NewString(),
		InputID:       c.inputID,
		Strategy:      c.strategy,
		Layer:         c.layer,
		Depth:         c.depth,
		Conclusion:    outcome.Conclusion,
		Confidence:    confidence,
		LowConfidence: confidence < f.cfg.ConfidenceThreshold,
		Timestamp:     f.now(),
		Explanation:   outcome.Explanation.Clone(),
	}
	if tr != nil {
		res.TraceID = tr.ID
		f.step(tr, TraceStep{Action: "finish", Strategy: c.strategy, Layer: c.layer, Depth: c.depth, Confidence: &confidence})
		f.closeTrace(tr, res.Clone(), nil)
	}

	if c.useCache {
		f.results.Set(c.key, res.Clone(), 0)
		metrics.ReasoningCacheEntries.Set(float64(f.results.Len()))
	}
	f.writeSemantic(ctx, c, res)

	cacheLabel := "miss"
	if !c.useCache {
		cacheLabel = "skip"
	}
	metrics.ReasoningRequests.WithLabelValues(string(c.strategy), c.layer, cacheLabel).Inc()
	metrics.ReasoningConfidence.WithLabelValues(string(c.strategy)).Observe(confidence)

	f.bus.Emit(events.ReasoningCompleted, CompletedPayload{
		InputID:     c.inputID,
		Strategy:    c.strategy,
		Layer:       c.layer,
		Depth:       c.depth,
		ReasoningID: res.ReasoningID,
		Confidence:  confidence,
	})
	return res, nil
}

// writeSemantic stores res in the semantic cache. Failures are logged only.
func (f *Framework) writeSemantic(ctx context.Context, c *call, res *Result) {
	if !f.cfg.SemanticCacheWrite || f.semantic == nil {
		return
	}
	opts := semantic.StoreOptions{
		Context: map[string]any{
			"strategy": string(c.strategy),
			"layer":    c.layer,
			"depth":    c.depth,
			"input_id": c.inputID,
		},
		Text: inputText(c.input),
	}
	if _, err := f.semantic.Store(ctx, c.key, res.Clone(), opts); err != nil {
		f.logger.Warn("semantic cache write failed", "key", c.key, "error", err)
	}
}

func (f *Framework) fail(op string, err error) {
	metrics.RecordFailure(errors.TypeOf(err))
	f.logger.Debug("reasoning call failed", "op", op, "error", err)
}

// SetCurrentStrategy changes the default strategy.
func (f *Framework) SetCurrentStrategy(s Strategy) error {
	if !f.cfg.enabled(s) {
		return errors.NewUnsupportedStrategyError(string(s))
	}
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return errors.NewDisposedError("reasoning framework")
	}
	previous := f.strategy
	f.strategy = s
	f.mu.Unlock()

	f.bus.Emit(events.StrategyChanged, StrategyChangedPayload{Previous: previous, New: s})
	return nil
}

// CurrentStrategy returns the default strategy.
func (f *Framework) CurrentStrategy() Strategy {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.strategy
}

// EnabledStrategies returns the configured strategies.
func (f *Framework) EnabledStrategies() []Strategy {
	return append([]Strategy(nil), f.cfg.EnabledStrategies...)
}

// SetCacheEnabled toggles the reasoning cache. Existing entries are kept.
func (f *Framework) SetCacheEnabled(enabled bool) {
	f.mu.Lock()
	f.cacheEnabled = enabled
	f.mu.Unlock()
}

// CacheEnabled reports whether the reasoning cache is used.
func (f *Framework) CacheEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cacheEnabled
}

// ClearCache drops every cached result.
func (f *Framework) ClearCache() {
	f.results.Flush()
	metrics.ReasoningCacheEntries.Set(0)
}

// CacheStats drops expired results and returns reasoning cache statistics.
func (f *Framework) CacheStats() cache.Stats {
	f.results.Purge()
	stats := f.results.Stats()
	metrics.ReasoningCacheEntries.Set(float64(stats.Entries))
	return stats
}

// SetTraceEnabled toggles tracing for later calls.
func (f *Framework) SetTraceEnabled(enabled bool) {
	f.mu.Lock()
	f.traceEnabled = enabled
	f.mu.Unlock()
}

// TraceEnabled reports whether calls are traced.
func (f *Framework) TraceEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.traceEnabled
}

// On subscribes handler to event on the framework bus. The subscription
// ends at Dispose or when the returned function is called.
func (f *Framework) On(event string, handler events.Handler) func() {
	unsub := f.bus.Subscribe(event, handler)
	f.mu.Lock()
	f.unsubscribe = append(f.unsubscribe, unsub)
	f.mu.Unlock()
	return unsub
}

// Dispose clears the cache and traces, drops the layer processor reference
// and detaches subscriptions made through On. It is idempotent.
func (f *Framework) Dispose() {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	f.disposed = true
	f.layers = nil
	unsub := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
	f.ClearCache()
	f.ClearTraces()
	f.logger.Debug("reasoning framework disposed")
}

func inputID(input any, explicit, hash string) string {
	if explicit != "" {
		return explicit
	}
	if m, ok := input.(map[string]any); ok {
		switch id := m["id"].(type) {
		case string:
			if id != "" {
				return id
			}
		case float64, int, int64:
			return fmt.Sprint(id)
		}
	}
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// inputText returns the text used for semantic embedding.
func inputText(input any) string {
	m, ok := input.(map[string]any)
	if !ok {
		return ""
	}
	for _, k := range []string{"text", "query", "content", "statement"} {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
