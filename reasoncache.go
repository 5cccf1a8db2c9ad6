// Package reasoncache provides hierarchical reasoning over abstraction layers
// with a multi-path semantic result cache, as a Go library.
//
// Basic usage:
//
//	engine, err := reasoncache.New(ctx,
//	    reasoncache.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close(ctx)
//
//	res, err := engine.Reason(ctx, map[string]any{"text": "..."}, reasoncache.ReasonOptions{
//	    Strategy: reasoncache.Causal,
//	})
package reasoncache

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/blueberrycongee/reasoncache/internal/api"
	"github.com/blueberrycongee/reasoncache/internal/auth"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic/embedding"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic/snapshot"
	"github.com/blueberrycongee/reasoncache/internal/config"
	"github.com/blueberrycongee/reasoncache/internal/events"
	"github.com/blueberrycongee/reasoncache/internal/healthcheck"
	"github.com/blueberrycongee/reasoncache/internal/layers"
	"github.com/blueberrycongee/reasoncache/internal/mcpserver"
	"github.com/blueberrycongee/reasoncache/internal/metrics"
	"github.com/blueberrycongee/reasoncache/internal/observability"
	"github.com/blueberrycongee/reasoncache/internal/reasoning"
	"github.com/blueberrycongee/reasoncache/internal/secret"
	"github.com/blueberrycongee/reasoncache/internal/security"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Version is the current version of reasoncache.
const Version = "0.1.0"

// Re-exported types so library users need no internal imports.
type (
	Strategy           = reasoning.Strategy
	ReasonOptions      = reasoning.ReasonOptions
	CrossLayerOptions  = reasoning.CrossLayerOptions
	Result             = reasoning.Result
	HierarchicalResult = reasoning.HierarchicalResult
	Trace              = reasoning.Trace
	Applier            = reasoning.Applier
	Principal          = security.Principal
	Config             = config.Config
)

// Strategies.
const (
	Deductive      = reasoning.Deductive
	Inductive      = reasoning.Inductive
	Abductive      = reasoning.Abductive
	Analogical     = reasoning.Analogical
	Causal         = reasoning.Causal
	Counterfactual = reasoning.Counterfactual
	Probabilistic  = reasoning.Probabilistic
)

// Engine assembles the event bus, layer manager, reasoning framework,
// semantic cache and security manager. It owns every component it created
// and releases them in Close.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	bus       *events.Bus
	secrets   *secret.Manager
	security  *security.Manager
	authn     *auth.Authenticator
	layers    *layers.Manager
	framework *reasoning.Framework
	semantic  *semantic.Cache
	snapshots snapshot.Store
	ownsStore bool
	monitor   *observability.Monitor
	prober    *healthcheck.Prober

	configs   api.ConfigController
	closeOnce sync.Once
	closeErr  error
}

// New builds an Engine from the default configuration adjusted by opts.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	return build(ctx, o)
}

// NewFromConfig builds an Engine from cfg.
func NewFromConfig(ctx context.Context, cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.NewInvalidConfigError("config is required")
	}
	return New(ctx, append([]Option{WithConfig(cfg)}, opts...)...)
}

func build(ctx context.Context, o *options) (e *Engine, err error) {
	cfg := o.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("config warning", "code", w.Code, "message", w.Message)
	}

	e = &Engine{
		cfg:     cfg,
		logger:  logger,
		bus:     events.NewBus(logger),
		monitor: observability.NewMonitor(metrics.ObserveDuration),
		configs: o.configs,
	}
	if o.meters != nil {
		e.recordMetrics(o.meters)
	}
	// Release whatever was built when a later step fails.
	defer func() {
		if err != nil {
			_ = e.Close(context.Background())
			e = nil
		}
	}()

	resolver := o.resolver
	if resolver == nil {
		e.secrets, err = secret.NewManagerFromOptions(secret.Options{
			Vault:    cfg.Secrets.Vault,
			CacheTTL: cfg.Secrets.CacheTTL,
			Logger:   logger,
		})
		if err != nil {
			return nil, errors.NewInvalidConfigError("secrets: %v", err)
		}
		resolver = e.secrets
	}
	e.security, err = security.New(ctx, cfg.Security, resolver, logger)
	if err != nil {
		return nil, err
	}
	authOpts := []auth.Option{auth.WithLogger(logger)}
	if o.verifier != nil {
		authOpts = append(authOpts, auth.WithVerifier(o.verifier))
	}
	e.authn, err = auth.New(ctx, cfg.Auth, resolver, authOpts...)
	if err != nil {
		return nil, err
	}

	layerOpts := []layers.Option{layers.WithLogger(logger), layers.WithEmitter(e.bus)}
	if e.security.EncryptionEnabled() {
		layerOpts = append(layerOpts, layers.WithEncryptor(e.security))
	}
	e.layers, err = layers.New(cfg.Layers, layerOpts...)
	if err != nil {
		return nil, err
	}

	if cfg.SemanticCache.Enabled {
		if err := e.buildSemanticCache(ctx, o); err != nil {
			return nil, err
		}
	}

	fwOpts := []reasoning.Option{
		reasoning.WithLogger(logger),
		reasoning.WithBus(e.bus),
		reasoning.WithTimer(e.monitor),
	}
	if o.tracer != nil {
		fwOpts = append(fwOpts, reasoning.WithTracer(o.tracer))
	}
	if e.semantic != nil {
		fwOpts = append(fwOpts, reasoning.WithSemanticCache(e.semantic))
	}
	for s, a := range o.appliers {
		fwOpts = append(fwOpts, reasoning.WithApplier(s, a))
	}
	e.framework, err = reasoning.New(cfg.Reasoning, e.layers, fwOpts...)
	if err != nil {
		return nil, err
	}

	e.prober = healthcheck.NewProber(cfg.Health, logger, e.checks()...)
	logger.Info("reasoncache engine ready",
		"layers", e.layers.AvailableLayers(),
		"semantic_cache", e.semantic != nil,
		"encryption", e.security.EncryptionEnabled(),
	)
	return e, nil
}

func (e *Engine) buildSemanticCache(ctx context.Context, o *options) error {
	sc := e.cfg.SemanticCache
	cacheOpts := []semantic.Option{
		semantic.WithLogger(e.logger),
		semantic.WithEmitter(e.bus),
	}
	if o.source != nil {
		cacheOpts = append(cacheOpts, semantic.WithConfigSource(o.source))
	}

	embedder := o.embedder
	if embedder == nil && sc.EnableVectorSimilarity {
		var err error
		if embedder, err = embedding.New(sc.Embedding, e.logger); err != nil {
			return errors.NewInvalidConfigError("embedding: %v", err)
		}
	}
	if embedder != nil {
		cacheOpts = append(cacheOpts, semantic.WithEmbedder(embedder))
	}

	store := o.snapshots
	if store == nil && sc.EnableOfflineSupport {
		var err error
		if store, err = snapshot.New(ctx, sc.Snapshot, e.logger); err != nil {
			return errors.NewInvalidConfigError("snapshot: %v", err)
		}
		e.ownsStore = true
	}
	if store != nil {
		e.snapshots = store
		cacheOpts = append(cacheOpts, semantic.WithSnapshotStore(store))
	}

	e.semantic = semantic.New(sc.Config, cacheOpts...)
	return e.semantic.Initialize(ctx)
}

// recordMetrics feeds bus events into mp. Subscriptions end when the
// engine closes.
func (e *Engine) recordMetrics(mp *observability.MeterProvider) {
	ctx := context.Background()
	e.bus.Subscribe(events.ReasoningCompleted, func(_ string, p any) {
		if c, ok := p.(reasoning.CompletedPayload); ok {
			mp.RecordReasoning(ctx, string(c.Strategy), c.Layer, c.Confidence)
		}
	})
	e.bus.Subscribe(events.CacheStored, func(string, any) { mp.RecordCacheStore(ctx) })
	removed := func(_ string, p any) {
		if r, ok := p.(semantic.RemovedPayload); ok {
			mp.RecordCacheRemovals(ctx, r.Reason, len(r.Keys))
		}
	}
	e.bus.Subscribe(events.CacheEvicted, removed)
	e.bus.Subscribe(events.CacheInvalidated, removed)
}

func (e *Engine) checks() []healthcheck.Check {
	var checks []healthcheck.Check
	if e.semantic != nil {
		checks = append(checks, healthcheck.Check{
			Name: "semantic_cache",
			Fn: func(context.Context) error {
				if !e.semantic.Stats().Initialized {
					return errors.NewNotInitializedError("semantic cache")
				}
				return nil
			},
		})
	}
	if p, ok := e.snapshots.(snapshot.Pinger); ok {
		checks = append(checks, healthcheck.Check{Name: "snapshot_" + e.snapshots.Name(), Fn: p.Ping})
	}
	return checks
}

// Reason runs a single-layer reasoning call.
func (e *Engine) Reason(ctx context.Context, input any, opts ReasonOptions) (*Result, error) {
	return e.framework.Reason(ctx, input, opts)
}

// ReasonAcrossLayers reasons at several layers and integrates the results.
func (e *Engine) ReasonAcrossLayers(ctx context.Context, input any, opts CrossLayerOptions) (*HierarchicalResult, error) {
	return e.framework.ReasonAcrossLayers(ctx, input, opts)
}

// Trace returns a recorded trace, or nil.
func (e *Engine) Trace(id string) *Trace {
	return e.framework.Trace(id)
}

// On subscribes to an engine event. The returned function unsubscribes.
func (e *Engine) On(event string, handler func(event string, payload any)) func() {
	return e.bus.Subscribe(event, handler)
}

// Framework returns the reasoning framework.
func (e *Engine) Framework() *reasoning.Framework { return e.framework }

// Layers returns the abstraction layer manager.
func (e *Engine) Layers() *layers.Manager { return e.layers }

// SemanticCache returns the semantic cache, or nil when disabled.
func (e *Engine) SemanticCache() *semantic.Cache { return e.semantic }

// Security returns the security manager.
func (e *Engine) Security() *security.Manager { return e.security }

// Authenticator returns the HTTP authenticator.
func (e *Engine) Authenticator() *auth.Authenticator { return e.authn }

// Prober returns the readiness prober. Start it to enable periodic checks.
func (e *Engine) Prober() *healthcheck.Prober { return e.prober }

// ApplyConfig applies the hot-reloadable settings of cfg: reasoning cache
// and trace toggles and the current strategy. Other changes need a restart.
func (e *Engine) ApplyConfig(cfg *Config) {
	e.framework.SetCacheEnabled(cfg.Reasoning.CacheEnabled)
	e.framework.SetTraceEnabled(cfg.Reasoning.TraceEnabled)
	if err := e.framework.SetCurrentStrategy(cfg.Reasoning.DefaultStrategy); err != nil {
		e.logger.Warn("config reload kept current strategy", "error", err)
	}
	e.logger.Info("engine config applied",
		"cache_enabled", cfg.Reasoning.CacheEnabled,
		"trace_enabled", cfg.Reasoning.TraceEnabled,
		"strategy", e.framework.CurrentStrategy(),
	)
}

// Handler returns the HTTP API behind the authentication middleware. The
// semantic cache endpoints answer 503 when the cache is disabled.
func (e *Engine) Handler() http.Handler {
	opts := []api.Option{api.WithReadiness(e.prober)}
	if e.cfg.Server.MaxBodyBytes > 0 {
		opts = append(opts, api.WithMaxBodySize(e.cfg.Server.MaxBodyBytes))
	}
	if e.cfg.Security.Enabled {
		opts = append(opts, api.WithAuthorizer(e.security))
	}
	if e.configs != nil {
		opts = append(opts, api.WithConfigController(e.configs))
	}

	var sc api.SemanticCache
	if e.semantic != nil {
		sc = e.semantic
	}
	h := api.NewHandler(e.framework, sc, e.logger, opts...)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return observability.RequestIDMiddleware(e.authn.Middleware(mux))
}

// MCPServer returns an MCP server exposing the engine's operations. When
// security is enabled every tool call is authorized as p.
func (e *Engine) MCPServer(p Principal) *mcpserver.Server {
	opts := []mcpserver.Option{mcpserver.WithLogger(e.logger)}
	if e.cfg.Security.Enabled {
		opts = append(opts, mcpserver.WithAuthorizer(e.security, p))
	}
	var sc mcpserver.SemanticCache
	if e.semantic != nil {
		sc = e.semantic
	}
	return mcpserver.New(e.framework, sc, opts...)
}

// Close disposes the framework, shuts down the semantic cache (writing a
// final snapshot when offline support is on) and releases owned stores
// and secret providers. It is safe to call more than once.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		var errs []error
		if e.framework != nil {
			e.framework.Dispose()
		}
		if e.semantic != nil {
			if err := e.semantic.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if e.snapshots != nil && e.ownsStore {
			if err := e.snapshots.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if e.layers != nil {
			if err := e.layers.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if e.secrets != nil {
			if err := e.secrets.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		e.bus.Reset()
		if len(errs) > 0 {
			e.closeErr = errors.NewInternalError("close engine", stderrors.Join(errs...))
		}
	})
	return e.closeErr
}
