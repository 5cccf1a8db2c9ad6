package reasoncache

import (
	"log/slog"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/reasoncache/internal/api"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic/embedding"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic/snapshot"
	"github.com/blueberrycongee/reasoncache/internal/config"
	"github.com/blueberrycongee/reasoncache/internal/observability"
	"github.com/blueberrycongee/reasoncache/internal/reasoning"
	"github.com/blueberrycongee/reasoncache/internal/security"
)

type options struct {
	cfg       *config.Config
	logger    *slog.Logger
	source    semantic.ConfigSource
	configs   api.ConfigController
	embedder  embedding.Embedder
	snapshots snapshot.Store
	resolver  security.KeyResolver
	tracer    trace.Tracer
	meters    *observability.MeterProvider
	verifier  *oidc.IDTokenVerifier
	appliers  map[reasoning.Strategy]reasoning.Applier
}

// Option configures an Engine.
type Option func(*options)

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConfigManager uses m's current configuration, reads semantic cache
// settings through it and exposes it to the admin endpoints.
func WithConfigManager(m *config.Manager) Option {
	return func(o *options) {
		o.cfg = m.Get()
		o.source = m
		o.configs = m
	}
}

// WithEmbedder overrides the embedder built from configuration.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithSnapshotStore overrides the snapshot store built from configuration.
// The caller keeps ownership and closes it.
func WithSnapshotStore(s snapshot.Store) Option {
	return func(o *options) { o.snapshots = s }
}

// WithKeyResolver resolves the encryption key reference instead of the
// env and vault providers built from configuration.
func WithKeyResolver(r security.KeyResolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithOIDCVerifier verifies ID tokens with v instead of discovering the
// configured issuer.
func WithOIDCVerifier(v *oidc.IDTokenVerifier) Option {
	return func(o *options) { o.verifier = v }
}

// WithTracer records a span per reasoning call.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMeterProvider mirrors reasoning and semantic cache events into OTel
// instruments.
func WithMeterProvider(mp *observability.MeterProvider) Option {
	return func(o *options) { o.meters = mp }
}

// WithApplier replaces the built-in implementation of a strategy.
func WithApplier(s Strategy, a Applier) Option {
	return func(o *options) {
		if o.appliers == nil {
			o.appliers = make(map[reasoning.Strategy]reasoning.Applier)
		}
		o.appliers[s] = a
	}
}
