package secret

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/reasoncache/internal/secret/env"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Get(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) Close() error {
	return m.Called().Error(0)
}

func TestManager_Get(t *testing.T) {
	ctx := context.Background()
	p := new(mockProvider)
	p.On("Get", ctx, "secret/data/reasoncache#encryption_key").Return("k3y", nil)

	m := NewManager()
	m.Register("vault", p)

	t.Run("routes by scheme", func(t *testing.T) {
		val, err := m.Get(ctx, "vault://secret/data/reasoncache#encryption_key")
		require.NoError(t, err)
		assert.Equal(t, "k3y", val)
	})

	t.Run("literal value", func(t *testing.T) {
		val, err := m.Get(ctx, "plain-key")
		require.NoError(t, err)
		assert.Equal(t, "plain-key", val)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := m.Get(ctx, "aws://thing")
		assert.Error(t, err)
	})

	p.AssertExpectations(t)
}

func TestManager_Close(t *testing.T) {
	ok := new(mockProvider)
	ok.On("Close").Return(nil)
	bad := new(mockProvider)
	bad.On("Close").Return(errors.New("boom"))

	m := NewManager()
	m.Register("a", ok)
	m.Register("b", bad)

	err := m.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: boom")
	assert.Equal(t, []string{"a", "b"}, m.Schemes())
}

func TestNewManagerFromOptions_EnvOnly(t *testing.T) {
	t.Setenv("REASONCACHE_TEST_KEY", "from-env")

	m, err := NewManagerFromOptions(Options{CacheTTL: time.Minute})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, []string{"env"}, m.Schemes())

	val, err := m.Get(context.Background(), "env://REASONCACHE_TEST_KEY")
	require.NoError(t, err)
	assert.Equal(t, "from-env", val)
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()
	inner := new(mockProvider)
	inner.On("Get", ctx, "k").Return("v", nil).Once()
	inner.On("Get", ctx, "missing").Return("", errors.New("not found")).Twice()

	p := NewCachedProvider(inner, time.Minute)

	for i := 0; i < 3; i++ {
		val, err := p.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", val)
	}

	// Errors are not cached
	_, err := p.Get(ctx, "missing")
	assert.Error(t, err)
	_, err = p.Get(ctx, "missing")
	assert.Error(t, err)

	inner.AssertExpectations(t)

	inner.On("Get", ctx, "k").Return("v2", nil).Once()
	p.Invalidate("k")
	val, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", val)
}

type slowProvider struct {
	calls   atomic.Int64
	release chan struct{}
}

func (p *slowProvider) Get(_ context.Context, path string) (string, error) {
	p.calls.Add(1)
	<-p.release
	return "value-of-" + path, nil
}

func (p *slowProvider) Close() error { return nil }

func TestCachedProvider_ConcurrentLookupsShareOneCall(t *testing.T) {
	inner := &slowProvider{release: make(chan struct{})}
	p := NewCachedProvider(inner, time.Minute)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = p.Get(context.Background(), "vault-key")
		}(i)
	}
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.LessOrEqual(t, inner.calls.Load(), int64(len(results)))
	for _, r := range results {
		assert.Equal(t, "value-of-vault-key", r)
	}

	before := inner.calls.Load()
	_, err := p.Get(context.Background(), "vault-key")
	require.NoError(t, err)
	assert.Equal(t, before, inner.calls.Load(), "later reads come from the cache")
}

func TestEnvProvider(t *testing.T) {
	vars := map[string]string{"SET": "  abc  ", "BLANK": "   "}
	p := env.NewWithLookup(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	})

	v, err := p.Get(context.Background(), "SET")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	for _, name := range []string{"BLANK", "UNSET", ""} {
		_, err := p.Get(context.Background(), name)
		assert.Error(t, err, name)
	}
}

func TestManager_RegisterReplacesAndCloses(t *testing.T) {
	old := new(mockProvider)
	old.On("Close").Return(nil).Once()
	next := new(mockProvider)
	next.On("Get", mock.Anything, "X").Return("new", nil)

	m := NewManager()
	m.Register("env", old)
	m.Register("env", next)

	val, err := m.Get(context.Background(), "env://X")
	require.NoError(t, err)
	assert.Equal(t, "new", val)
	old.AssertExpectations(t)
}

func TestManager_GetWrapsProviderErrors(t *testing.T) {
	cause := errors.New("permission denied")
	p := new(mockProvider)
	p.On("Get", mock.Anything, "kv/app#key").Return("", cause)

	m := NewManager()
	m.Register("vault", p)

	_, err := m.Get(context.Background(), "vault://kv/app#key")
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "vault://kv/app#key")
}
