package api

import (
	"net/http"

	"github.com/blueberrycongee/reasoncache/internal/metrics"
)

// RouteInfo describes an API route.
type RouteInfo struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type route struct {
	RouteInfo
	handler http.HandlerFunc
}

func (h *Handler) routes() []route {
	return []route{
		{RouteInfo{"POST", "/v1/reason", "Reason over one layer", "reasoning"}, h.Reason},
		{RouteInfo{"POST", "/v1/reason/layers", "Reason across layers and integrate", "reasoning"}, h.ReasonAcrossLayers},
		{RouteInfo{"GET", "/v1/traces/{id}", "Get a reasoning trace", "reasoning"}, h.GetTrace},
		{RouteInfo{"POST", "/v1/cache/store", "Store a semantic cache entry", "cache"}, h.CacheStore},
		{RouteInfo{"POST", "/v1/cache/retrieve", "Retrieve by key, context or text", "cache"}, h.CacheRetrieve},
		{RouteInfo{"POST", "/v1/cache/invalidate", "Invalidate cache entries", "cache"}, h.CacheInvalidate},
		{RouteInfo{"GET", "/v1/cache/stats", "Cache statistics", "cache"}, h.CacheStats},
		{RouteInfo{"GET", "/v1/admin/config", "Loaded config status", "admin"}, h.GetConfigStatus},
		{RouteInfo{"POST", "/v1/admin/config/reload", "Reload config from disk", "admin"}, h.ReloadConfig},
		{RouteInfo{"GET", "/v1/admin/audit", "Query the audit trail", "admin"}, h.GetAuditLog},
		{RouteInfo{"GET", "/health/live", "Liveness probe", "health"}, h.HealthLive},
		{RouteInfo{"GET", "/health/ready", "Readiness probe", "health"}, h.HealthReady},
	}
}

// RegisterRoutes registers all API routes on mux, each instrumented with
// request metrics.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	for _, rt := range h.routes() {
		mux.Handle(rt.Method+" "+rt.Path, metrics.Middleware(rt.Path, rt.handler))
	}
}

// GetRoutes returns the registered routes for documentation.
func (h *Handler) GetRoutes() []RouteInfo {
	rts := h.routes()
	out := make([]RouteInfo, len(rts))
	for i, rt := range rts {
		out[i] = rt.RouteInfo
	}
	return out
}
