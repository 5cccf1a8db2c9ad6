package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/reasoncache/internal/cache/semantic"
	"github.com/blueberrycongee/reasoncache/internal/config"
	"github.com/blueberrycongee/reasoncache/internal/layers"
	"github.com/blueberrycongee/reasoncache/internal/reasoning"
	"github.com/blueberrycongee/reasoncache/internal/security"
)

type testEnv struct {
	mux       *http.ServeMux
	framework *reasoning.Framework
	cache     *semantic.Cache
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	lm, err := layers.New(layers.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lm.Close() })

	rcfg := reasoning.DefaultConfig()
	rcfg.TraceEnabled = true
	fw, err := reasoning.New(rcfg, lm)
	require.NoError(t, err)
	t.Cleanup(fw.Dispose)

	scfg := semantic.DefaultConfig()
	scfg.EnableVectorSimilarity = false
	sc := semantic.New(scfg, semantic.WithLogger(discardLogger()))
	require.NoError(t, sc.Initialize(context.Background()))
	t.Cleanup(func() { _ = sc.Shutdown(context.Background()) })

	h := NewHandler(fw, sc, discardLogger(), opts...)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &testEnv{mux: mux, framework: fw, cache: sc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var question = map[string]any{
	"id":   "q-1",
	"text": "The pump failed because the valve closed, so pressure dropped.",
}

func TestReason(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/reason", map[string]any{
		"input":    question,
		"strategy": "causal",
		"layer":    "conceptual",
		"depth":    2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[reasoning.Result](t, rec)
	assert.Equal(t, reasoning.Causal, res.Strategy)
	assert.Equal(t, "conceptual", res.Layer)
	assert.Equal(t, 2, res.Depth)
	assert.NotEmpty(t, res.ReasoningID)
	assert.False(t, res.FromCache)

	again := decodeBody[reasoning.Result](t, env.do(t, http.MethodPost, "/v1/reason", map[string]any{
		"input":    question,
		"strategy": "causal",
		"layer":    "conceptual",
		"depth":    2,
	}))
	assert.True(t, again.FromCache)
	assert.Equal(t, res.ReasoningID, again.ReasoningID)
}

func TestReason_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name     string
		body     any
		wantCode int
		wantType string
	}{
		{"missing input", map[string]any{}, http.StatusBadRequest, "invalid_argument"},
		{"bad json", "{not json", http.StatusBadRequest, "invalid_argument"},
		{"unknown strategy", map[string]any{"input": question, "strategy": "quantum"}, http.StatusBadRequest, "unsupported_strategy"},
		{"unknown layer", map[string]any{"input": question, "layer": "astral"}, http.StatusBadRequest, "invalid_layer"},
		{"too deep", map[string]any{"input": question, "depth": 99}, http.StatusBadRequest, "depth_exceeded"},
		{"array input", map[string]any{"input": []any{1, 2}}, http.StatusBadRequest, "invalid_argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/reason", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantType, resp.Error.Type)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
	assert.Zero(t, env.framework.CacheStats().Entries)
}

func TestReasonAcrossLayers(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/reason/layers", map[string]any{
		"input":  question,
		"layers": []string{"syntactic", "abstract"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[reasoning.HierarchicalResult](t, rec)
	assert.Equal(t, []string{"syntactic", "abstract"}, res.Conclusion.LayerOrder)
	assert.Len(t, res.Conclusion.LayerConclusions, 2)
	assert.Contains(t, []string{"syntactic", "abstract"}, res.Conclusion.PrimaryLayer)

	rec = env.do(t, http.MethodPost, "/v1/reason/layers", map[string]any{
		"input":  question,
		"layers": []string{"syntactic", "astral"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTrace(t *testing.T) {
	env := newTestEnv(t)

	res := decodeBody[reasoning.Result](t, env.do(t, http.MethodPost, "/v1/reason", map[string]any{"input": question}))
	require.NotEmpty(t, res.TraceID)

	rec := env.do(t, http.MethodGet, "/v1/traces/"+res.TraceID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tr := decodeBody[reasoning.Trace](t, rec)
	assert.Equal(t, res.TraceID, tr.ID)
	assert.NotEmpty(t, tr.Steps)

	rec = env.do(t, http.MethodGet, "/v1/traces/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[ErrorResponse](t, rec).Error.Type)
}

func TestCacheEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/cache/store", map[string]any{
		"key":     "k1",
		"value":   map[string]any{"answer": 42},
		"ttl":     "1m",
		"context": map[string]any{"domain": "physics", "lang": "en"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	stored := decodeBody[semantic.Entry](t, rec)
	assert.Equal(t, "k1", stored.Key)
	assert.Equal(t, time.Minute, stored.TTL)

	t.Run("by key", func(t *testing.T) {
		resp := decodeBody[RetrieveResponse](t, env.do(t, http.MethodPost, "/v1/cache/retrieve", map[string]any{"key": "k1"}))
		require.True(t, resp.Hit)
		assert.Equal(t, semantic.MatchKey, resp.Entry.MatchedBy)
		assert.Equal(t, map[string]any{"answer": float64(42)}, resp.Entry.Result)
	})

	t.Run("by context", func(t *testing.T) {
		resp := decodeBody[RetrieveResponse](t, env.do(t, http.MethodPost, "/v1/cache/retrieve", map[string]any{
			"key":     "other",
			"context": map[string]any{"domain": "physics"},
		}))
		require.True(t, resp.Hit)
		assert.Equal(t, semantic.MatchContext, resp.Entry.MatchedBy)
	})

	t.Run("miss", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/cache/retrieve", map[string]any{"key": "absent"})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody[RetrieveResponse](t, rec)
		assert.False(t, resp.Hit)
		assert.Nil(t, resp.Entry)
	})

	stats := decodeBody[StatsResponse](t, env.do(t, http.MethodGet, "/v1/cache/stats", nil))
	require.NotNil(t, stats.Semantic)
	assert.Equal(t, 1, stats.Semantic.Entries)
	assert.Equal(t, int64(2), stats.Semantic.Hits)
	assert.Equal(t, int64(1), stats.Semantic.Misses)

	rec = env.do(t, http.MethodPost, "/v1/cache/invalidate", map[string]any{"key": "k1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"removed": 1}, decodeBody[map[string]int](t, rec))

	rec = env.do(t, http.MethodPost, "/v1/cache/invalidate", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheStore_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/cache/store", map[string]any{"key": "k", "value": 1, "ttl": "soon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/cache/store", map[string]any{"value": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheEndpoints_NoSemanticCache(t *testing.T) {
	lm, err := layers.New(layers.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lm.Close() })
	fw, err := reasoning.New(reasoning.DefaultConfig(), lm)
	require.NoError(t, err)
	t.Cleanup(fw.Dispose)

	mux := http.NewServeMux()
	NewHandler(fw, nil, discardLogger()).RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/v1/cache/retrieve", strings.NewReader(`{"key":"k"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[StatsResponse](t, rec)
	assert.Nil(t, stats.Semantic)
}

func TestRequestBodyLimit(t *testing.T) {
	env := newTestEnv(t, WithMaxBodySize(16))
	rec := env.do(t, http.MethodPost, "/v1/reason", map[string]any{"input": question})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error.Message, "exceeds")
}

func TestAuthorization(t *testing.T) {
	sec, err := security.New(context.Background(), security.DefaultConfig(), nil, discardLogger())
	require.NoError(t, err)
	sec.SetUserPermission(security.OpReason, "mallory", false)
	env := newTestEnv(t, WithAuthorizer(sec))

	store := map[string]any{"key": "k", "value": 1}
	rec := env.do(t, http.MethodPost, "/v1/cache/store", store, HeaderUserID, "vic", HeaderRole, security.RoleViewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "unauthorized", decodeBody[ErrorResponse](t, rec).Error.Type)

	rec = env.do(t, http.MethodPost, "/v1/cache/store", store, HeaderUserID, "ed", HeaderRole, security.RoleEditor)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/reason", map[string]any{"input": question}, HeaderUserID, "mallory", HeaderRole, security.RoleAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/cache/invalidate", map[string]any{"all": true}, HeaderUserID, "ed", HeaderRole, security.RoleEditor)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// cache_clear alone does not open the admin routes.
	sec.SetUserPermission(security.OpCacheClear, "ed", true)
	rec = env.do(t, http.MethodGet, "/v1/admin/config", nil, HeaderUserID, "ed", HeaderRole, security.RoleEditor)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, http.MethodPost, "/v1/cache/invalidate", map[string]any{"all": true}, HeaderUserID, "ed", HeaderRole, security.RoleEditor)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/admin/audit?user_id=ed&action=cache_invalidated", nil, HeaderUserID, "root", HeaderRole, security.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	invalidated := decodeBody[map[string][]security.AuditEntry](t, rec)["entries"]
	require.Len(t, invalidated, 1)
	assert.True(t, invalidated[0].Allowed)
	assert.Equal(t, security.RoleEditor, invalidated[0].Role)
	assert.Equal(t, float64(1), invalidated[0].Details["removed"])

	rec = env.do(t, http.MethodGet, "/v1/admin/audit?user_id=vic", nil, HeaderUserID, "root", HeaderRole, security.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decodeBody[map[string][]security.AuditEntry](t, rec)
	require.Len(t, audit["entries"], 1)
	assert.Equal(t, security.OpCacheStore, audit["entries"][0].Action)
	assert.False(t, audit["entries"][0].Allowed)

	rec = env.do(t, http.MethodGet, "/v1/admin/audit?limit=x", nil, HeaderRole, security.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeConfigs struct {
	status  config.Status
	reloads int
	err     error
}

func (f *fakeConfigs) Status() config.Status { return f.status }

func (f *fakeConfigs) Reload() error {
	if f.err != nil {
		return f.err
	}
	f.reloads++
	f.status.Checksum = "after"
	f.status.ReloadCount++
	return nil
}

func TestConfigEndpoints(t *testing.T) {
	configs := &fakeConfigs{status: config.Status{Path: "reasoncache.yaml", Checksum: "before"}}
	env := newTestEnv(t, WithConfigController(configs))

	rec := env.do(t, http.MethodGet, "/v1/admin/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "before", decodeBody[config.Status](t, rec).Checksum)

	rec = env.do(t, http.MethodPost, "/v1/admin/config/reload", map[string]any{"expected_checksum": "stale"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, configs.reloads)

	rec = env.do(t, http.MethodPost, "/v1/admin/config/reload", map[string]any{"expected_checksum": "before"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ReloadConfigResponse](t, rec)
	assert.Equal(t, "before", resp.Previous.Checksum)
	assert.Equal(t, "after", resp.Current.Checksum)

	configs.err = assert.AnError
	rec = env.do(t, http.MethodPost, "/v1/admin/config/reload", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeReadiness struct {
	ready   bool
	results map[string]string
}

func (f fakeReadiness) Ready() bool                { return f.ready }
func (f fakeReadiness) Results() map[string]string { return f.results }

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/ready", nil).Code)

	env = newTestEnv(t, WithReadiness(fakeReadiness{results: map[string]string{"snapshot": "dial tcp: refused"}}))
	rec := env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "refused")
}

func TestGetRoutes(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	routes := h.GetRoutes()
	require.NotEmpty(t, routes)
	seen := make(map[string]bool)
	for _, r := range routes {
		key := r.Method + " " + r.Path
		assert.False(t, seen[key], "duplicate route %s", key)
		seen[key] = true
	}
	assert.True(t, seen["POST /v1/reason"])
	assert.True(t, seen["GET /v1/cache/stats"])
}
