// Package api exposes reasoning and semantic cache operations over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/reasoncache/internal/auth"
	"github.com/blueberrycongee/reasoncache/internal/cache"
	"github.com/blueberrycongee/reasoncache/internal/cache/semantic"
	"github.com/blueberrycongee/reasoncache/internal/config"
	"github.com/blueberrycongee/reasoncache/internal/httputil"
	"github.com/blueberrycongee/reasoncache/internal/reasoning"
	"github.com/blueberrycongee/reasoncache/internal/security"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Principal headers, read when no authentication middleware has stored a
// principal in the request context.
const (
	HeaderUserID = auth.HeaderUserID
	HeaderRole   = auth.HeaderRole
)

// Reasoner runs reasoning requests. *reasoning.Framework satisfies it.
type Reasoner interface {
	Reason(ctx context.Context, input any, opts reasoning.ReasonOptions) (*reasoning.Result, error)
	ReasonAcrossLayers(ctx context.Context, input any, opts reasoning.CrossLayerOptions) (*reasoning.HierarchicalResult, error)
	Trace(id string) *reasoning.Trace
	CacheStats() cache.Stats
}

// SemanticCache is the subset of *semantic.Cache the API uses.
type SemanticCache interface {
	Store(ctx context.Context, key string, value any, opts semantic.StoreOptions) (*semantic.Entry, error)
	Retrieve(ctx context.Context, key string, opts semantic.RetrieveOptions) (*semantic.Entry, error)
	Invalidate(ctx context.Context, opts semantic.InvalidateOptions) (int, error)
	Stats() semantic.Stats
}

// Authorizer decides whether a principal may run an operation.
// *security.Manager satisfies it.
type Authorizer interface {
	Authorize(p security.Principal, operation string) error
	AuditLog(filter security.AuditFilter) []security.AuditEntry
	Audit(p security.Principal, action string, details map[string]any)
}

// ConfigController reports and reloads the running configuration.
// *config.Manager satisfies it.
type ConfigController interface {
	Status() config.Status
	Reload() error
}

// ReadinessChecker reports whether dependencies are healthy.
type ReadinessChecker interface {
	Ready() bool
	Results() map[string]string
}

// Handler serves the HTTP API.
type Handler struct {
	reasoner    Reasoner
	cache       SemanticCache
	authz       Authorizer
	configs     ConfigController
	readiness   ReadinessChecker
	logger      *slog.Logger
	maxBodySize int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuthorizer enables per-operation access checks.
func WithAuthorizer(a Authorizer) Option {
	return func(h *Handler) { h.authz = a }
}

// WithConfigController enables the config admin endpoints.
func WithConfigController(c ConfigController) Option {
	return func(h *Handler) { h.configs = c }
}

// WithReadiness makes /health/ready report c.
func WithReadiness(c ReadinessChecker) Option {
	return func(h *Handler) { h.readiness = c }
}

// WithMaxBodySize caps request bodies.
func WithMaxBodySize(n int64) Option {
	return func(h *Handler) { h.maxBodySize = n }
}

// NewHandler creates a Handler. cache may be nil when the semantic cache
// is disabled; its endpoints then answer 503.
func NewHandler(reasoner Reasoner, sc SemanticCache, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		reasoner:    reasoner,
		cache:       sc,
		logger:      logger,
		maxBodySize: httputil.DefaultMaxRequestBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// authorize checks the caller against operation and writes the error
// response on denial.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, operation string) bool {
	if h.authz == nil {
		return true
	}
	p := principalFrom(r)
	if err := h.authz.Authorize(p, operation); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

// audit records a completed action for the request's principal.
func (h *Handler) audit(r *http.Request, action string, details map[string]any) {
	if h.authz != nil {
		h.authz.Audit(principalFrom(r), action, details)
	}
}

func principalFrom(r *http.Request) security.Principal {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return p
	}
	return security.Principal{
		UserID: r.Header.Get(HeaderUserID),
		Role:   r.Header.Get(HeaderRole),
	}
}

// decode reads a JSON body into dst. An empty body leaves dst unchanged.
func (h *Handler) decode(r *http.Request, dst any) error {
	defer r.Body.Close()
	body, err := httputil.ReadLimitedBody(r.Body, h.maxBodySize)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			return errors.NewInvalidArgumentError("request body exceeds %d bytes", h.maxBodySize)
		}
		return errors.NewInvalidArgumentError("failed to read request body")
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.NewInvalidArgumentError("invalid JSON: %v", err)
	}
	return nil
}

// HealthLive handles GET /health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /health/ready.
func (h *Handler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	if h.readiness == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !h.readiness.Ready() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, map[string]any{"status": status, "checks": h.readiness.Results()})
}
