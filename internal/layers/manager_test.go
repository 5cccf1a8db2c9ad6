package layers

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/reasoncache/internal/events"
	"github.com/blueberrycongee/reasoncache/internal/security"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

type countingProcessor struct {
	calls atomic.Int64
}

func (p *countingProcessor) Process(ctx context.Context, l Layer, data map[string]any) (map[string]float64, error) {
	p.calls.Add(1)
	return FeatureProcessor{}.Process(ctx, l, data)
}

type recordingEmitter struct {
	events []string
	last   map[string]any
}

func (r *recordingEmitter) Emit(event string, payload any) {
	r.events = append(r.events, event)
	if r.last == nil {
		r.last = make(map[string]any)
	}
	r.last[event] = payload
}

type fakeEncryptor struct {
	fail bool
}

func (f fakeEncryptor) Encrypt(_ context.Context, plain []byte) (*security.Envelope, error) {
	if f.fail {
		return nil, fmt.Errorf("key unavailable")
	}
	return &security.Envelope{Algorithm: "test", KeyID: "k1", Ciphertext: append([]byte("sealed:"), plain...)}, nil
}

func (f fakeEncryptor) Decrypt(_ context.Context, env *security.Envelope) ([]byte, error) {
	return []byte(strings.TrimPrefix(string(env.Ciphertext), "sealed:")), nil
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *countingProcessor) {
	t.Helper()
	proc := &countingProcessor{}
	all := []Option{}
	for _, l := range BuiltinLayers() {
		all = append(all, WithProcessor(l.Name, proc))
	}
	all = append(all, opts...)
	m, err := New(DefaultConfig(), all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, proc
}

func TestNew_ConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no layers", func(c *Config) { c.Enabled = nil }},
		{"unknown layer", func(c *Config) { c.Enabled = append(c.Enabled, "quantum") }},
		{"duplicate layer", func(c *Config) { c.Enabled = []string{Raw, Raw}; c.Default = Raw }},
		{"default not enabled", func(c *Config) { c.Enabled = []string{Raw}; c.Default = Semantic }},
		{"negative ttl", func(c *Config) { c.CacheTTL = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
		})
	}
}

func TestManager_AvailableLayersOrderedByLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = []string{Abstract, Raw, Semantic}
	m, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{Raw, Semantic, Abstract}, m.AvailableLayers())
	assert.True(t, m.HasLayer(Raw))
	assert.False(t, m.HasLayer(Syntactic))

	l, ok := m.Layer(Abstract)
	require.True(t, ok)
	assert.Equal(t, 4, l.Level)
}

func TestManager_CustomLayer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = append(cfg.Enabled, "domain")
	m, err := New(cfg, WithLayer(Layer{Name: "domain", Level: 5}, nil))
	require.NoError(t, err)

	assert.Equal(t, "domain", m.AvailableLayers()[5])
	res, err := m.ProcessDataAtLayer(context.Background(), map[string]any{"text": "a b"}, "domain")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Level)
}

func TestManager_SetCurrentLayer(t *testing.T) {
	rec := &recordingEmitter{}
	m, _ := newTestManager(t, WithEmitter(rec))
	assert.Equal(t, Semantic, m.CurrentLayer())

	require.NoError(t, m.SetCurrentLayer(Raw))
	assert.Equal(t, Raw, m.CurrentLayer())
	assert.Equal(t, LayerChangedPayload{Previous: Semantic, New: Raw}, rec.last[events.LayerChanged])

	err := m.SetCurrentLayer("nonexistent")
	assert.True(t, errors.Is(err, errors.ErrInvalidLayer))
	assert.Equal(t, Raw, m.CurrentLayer())
	assert.Len(t, rec.events, 1)
}

func TestManager_ProcessData_CachesResult(t *testing.T) {
	rec := &recordingEmitter{}
	m, proc := newTestManager(t, WithEmitter(rec))
	ctx := context.Background()
	data := map[string]any{"id": "r1", "text": "The sky is blue because of scattering."}

	first, err := m.ProcessData(ctx, data)
	require.NoError(t, err)
	assert.True(t, first.Processed)
	assert.False(t, first.FromCache)
	assert.Equal(t, Semantic, first.Layer)
	assert.Equal(t, int64(1), proc.calls.Load())

	second, err := m.ProcessData(ctx, data)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Features, second.Features)
	assert.Equal(t, int64(1), proc.calls.Load(), "cache hit must not reprocess")
	assert.Equal(t, []string{events.DataProcessed}, rec.events, "cache hit must not emit")

	stats := m.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Entries)
}

func TestManager_ProcessData_IdentityKey(t *testing.T) {
	m, proc := newTestManager(t)
	ctx := context.Background()

	_, err := m.ProcessData(ctx, map[string]any{"id": 7, "text": "one"})
	require.NoError(t, err)
	res, err := m.ProcessData(ctx, map[string]any{"id": 7, "text": "two"})
	require.NoError(t, err)

	assert.True(t, res.FromCache, "records with the same id share a cache slot")
	assert.Equal(t, int64(1), proc.calls.Load())
}

func TestManager_ProcessData_CachedCopiesAreIsolated(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	data := map[string]any{"text": "hello"}

	first, err := m.ProcessData(ctx, data)
	require.NoError(t, err)
	first.Data["text"] = "mutated"
	first.Features[FeatureFields] = 99

	second, err := m.ProcessData(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, "hello", second.Data["text"])
	assert.Equal(t, float64(1), second.Features[FeatureFields])
}

func TestManager_ProcessData_CacheExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheTTL = 20 * time.Millisecond
	proc := &countingProcessor{}
	m, err := New(cfg, WithProcessor(Semantic, proc))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.ProcessData(ctx, map[string]any{"text": "x"})
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	res, err := m.ProcessData(ctx, map[string]any{"text": "x"})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, int64(2), proc.calls.Load())
}

func TestManager_ProcessData_CacheDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheEnabled = false
	proc := &countingProcessor{}
	m, err := New(cfg, WithProcessor(Semantic, proc))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := m.ProcessData(context.Background(), map[string]any{"text": "x"})
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	}
	assert.Equal(t, int64(3), proc.calls.Load())
	assert.Equal(t, 0, m.CacheStats().Entries)
}

func TestManager_ProcessDataAtLayer_InvalidInput(t *testing.T) {
	m, proc := newTestManager(t)
	ctx := context.Background()

	t.Run("unknown layer", func(t *testing.T) {
		_, err := m.ProcessDataAtLayer(ctx, map[string]any{"a": 1}, "nonexistent")
		assert.True(t, errors.Is(err, errors.ErrInvalidLayer))
	})

	for _, bad := range []any{nil, []any{1, 2}, "text", 42, true} {
		t.Run(fmt.Sprintf("%T", bad), func(t *testing.T) {
			_, err := m.ProcessDataAtLayer(ctx, bad, Raw)
			assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
		})
	}

	t.Run("struct is accepted", func(t *testing.T) {
		type doc struct {
			Text string `json:"text"`
		}
		res, err := m.ProcessDataAtLayer(ctx, doc{Text: "hi"}, Raw)
		require.NoError(t, err)
		assert.Equal(t, "hi", res.Data["text"])
	})

	assert.Equal(t, 1, m.CacheStats().Entries, "only the accepted struct is cached")
	assert.Equal(t, int64(1), proc.calls.Load())
}

func TestManager_ProcessDataThroughLayers(t *testing.T) {
	m, proc := newTestManager(t)
	ctx := context.Background()
	data := map[string]any{"text": "If it rains the ground is wet."}

	results, err := m.ProcessDataThroughLayers(ctx, data, []string{Abstract, Raw, Semantic})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, Abstract, results[0].Layer)
	assert.Equal(t, Raw, results[1].Layer)
	assert.Equal(t, Semantic, results[2].Layer)
	assert.Greater(t, len(results[0].Features), len(results[1].Features))

	t.Run("invalid layer fails fast", func(t *testing.T) {
		before := proc.calls.Load()
		_, err := m.ProcessDataThroughLayers(ctx, map[string]any{"text": "new"}, []string{Raw, "bogus"})
		assert.True(t, errors.Is(err, errors.ErrInvalidLayer))
		assert.Equal(t, before, proc.calls.Load(), "no layer may be processed")
	})
}

func TestManager_ProcessorError(t *testing.T) {
	failing := ProcessorFunc(func(context.Context, Layer, map[string]any) (map[string]float64, error) {
		return nil, fmt.Errorf("boom")
	})
	m, err := New(DefaultConfig(), WithProcessor(Semantic, failing))
	require.NoError(t, err)

	_, err = m.ProcessData(context.Background(), map[string]any{"a": 1})
	require.Error(t, err)
	assert.Equal(t, errors.TypeInternalError, errors.TypeOf(err))
	assert.Equal(t, 0, m.CacheStats().Entries)
}

func TestManager_SensitiveRecords(t *testing.T) {
	ctx := context.Background()
	data := map[string]any{"id": "p1", "sensitive": true, "ssn": "123-45-6789", "text": "private note"}

	t.Run("sealed with encryptor", func(t *testing.T) {
		m, _ := newTestManager(t, WithEncryptor(fakeEncryptor{}))
		res, err := m.ProcessData(ctx, data)
		require.NoError(t, err)

		assert.True(t, res.Sensitive)
		require.NotNil(t, res.Envelope)
		assert.Equal(t, map[string]any{"id": "p1"}, res.Data)
		assert.NotEmpty(t, res.Features, "features are computed before sealing")

		opened, err := m.OpenRecord(ctx, res)
		require.NoError(t, err)
		assert.Equal(t, "123-45-6789", opened["ssn"])
	})

	t.Run("encryption failure is soft", func(t *testing.T) {
		m, _ := newTestManager(t, WithEncryptor(fakeEncryptor{fail: true}))
		res, err := m.ProcessData(ctx, data)
		require.NoError(t, err)
		assert.True(t, res.Sensitive)
		assert.Nil(t, res.Envelope)
		assert.Equal(t, "123-45-6789", res.Data["ssn"])
	})

	t.Run("no encryptor", func(t *testing.T) {
		m, _ := newTestManager(t)
		res, err := m.ProcessData(ctx, data)
		require.NoError(t, err)
		assert.Nil(t, res.Envelope)

		opened, err := m.OpenRecord(ctx, res)
		require.NoError(t, err)
		assert.Equal(t, "private note", opened["text"])
	})
}

func TestManager_ClearCache(t *testing.T) {
	m, proc := newTestManager(t)
	ctx := context.Background()

	_, err := m.ProcessData(ctx, map[string]any{"a": 1})
	require.NoError(t, err)
	m.ClearCache()
	assert.Equal(t, 0, m.CacheStats().Entries)

	res, err := m.ProcessData(ctx, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, int64(2), proc.calls.Load())
}

func TestManager_Close(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.ProcessData(context.Background(), map[string]any{"a": 1})
	assert.True(t, errors.Is(err, errors.ErrDisposed))
	_, err = m.ProcessDataThroughLayers(context.Background(), map[string]any{"a": 1}, []string{Raw})
	assert.True(t, errors.Is(err, errors.ErrDisposed))
}
