package api

import (
	"net/http"
	"time"

	"github.com/blueberrycongee/reasoncache/internal/cache/semantic"
	"github.com/blueberrycongee/reasoncache/internal/security"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// StoreRequest is the body of POST /v1/cache/store.
type StoreRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	// TTL is a Go duration string such as "90s". "-1s" never expires.
	TTL              string                    `json:"ttl,omitempty"`
	Context          map[string]any            `json:"context,omitempty"`
	ConsistencyLevel semantic.ConsistencyLevel `json:"consistency_level,omitempty"`
	Priority         int                       `json:"priority,omitempty"`
	Text             string                    `json:"text,omitempty"`
}

// RetrieveRequest is the body of POST /v1/cache/retrieve.
type RetrieveRequest struct {
	Key     string         `json:"key"`
	Context map[string]any `json:"context,omitempty"`
	Text    string         `json:"text,omitempty"`
}

// RetrieveResponse reports a lookup. Entry is nil on a miss.
type RetrieveResponse struct {
	Hit   bool            `json:"hit"`
	Entry *semantic.Entry `json:"entry,omitempty"`
}

// InvalidateRequest is the body of POST /v1/cache/invalidate.
type InvalidateRequest struct {
	Key     string         `json:"key,omitempty"`
	Context map[string]any `json:"context,omitempty"`
	All     bool           `json:"all,omitempty"`
}

// StatsResponse combines semantic and reasoning cache counters.
type StatsResponse struct {
	Semantic  *semantic.Stats `json:"semantic,omitempty"`
	Reasoning any             `json:"reasoning"`
}

func (h *Handler) requireCache(w http.ResponseWriter, r *http.Request) bool {
	if h.cache == nil {
		h.writeError(w, r, errors.NewNotInitializedError("semantic cache"))
		return false
	}
	return true
}

// CacheStore handles POST /v1/cache/store.
func (h *Handler) CacheStore(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, security.OpCacheStore) || !h.requireCache(w, r) {
		return
	}
	var req StoreRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	opts := semantic.StoreOptions{
		Context:          req.Context,
		ConsistencyLevel: req.ConsistencyLevel,
		Priority:         req.Priority,
		Text:             req.Text,
	}
	if req.TTL != "" {
		ttl, err := time.ParseDuration(req.TTL)
		if err != nil {
			h.writeError(w, r, errors.NewInvalidArgumentError("invalid ttl %q", req.TTL))
			return
		}
		opts.TTL = ttl
	}

	entry, err := h.cache.Store(r.Context(), req.Key, req.Value, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

// CacheRetrieve handles POST /v1/cache/retrieve.
func (h *Handler) CacheRetrieve(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, security.OpCacheRetrieve) || !h.requireCache(w, r) {
		return
	}
	var req RetrieveRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	entry, err := h.cache.Retrieve(r.Context(), req.Key, semantic.RetrieveOptions{
		Context: req.Context,
		Text:    req.Text,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RetrieveResponse{Hit: entry != nil, Entry: entry})
}

// CacheInvalidate handles POST /v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, security.OpCacheInvalidate) || !h.requireCache(w, r) {
		return
	}
	var req InvalidateRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.All && !h.authorize(w, r, security.OpCacheClear) {
		return
	}

	n, err := h.cache.Invalidate(r.Context(), semantic.InvalidateOptions{
		Key:     req.Key,
		Context: req.Context,
		All:     req.All,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.audit(r, auditCacheInvalidated, map[string]any{"removed": n, "all": req.All})
	h.writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// CacheStats handles GET /v1/cache/stats. It works without a semantic
// cache and then reports only the reasoning cache.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, security.OpCacheStats) {
		return
	}
	resp := StatsResponse{Reasoning: h.reasoner.CacheStats()}
	if h.cache != nil {
		s := h.cache.Stats()
		resp.Semantic = &s
	}
	h.writeJSON(w, http.StatusOK, resp)
}
