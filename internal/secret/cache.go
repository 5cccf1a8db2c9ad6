package secret

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// CachedProvider memoizes resolved secrets for a fixed TTL. Concurrent
// lookups of one path share a single call to the inner provider and
// failures are never cached.
type CachedProvider struct {
	inner  Provider
	values *cache.Cache
	group  singleflight.Group
}

// NewCachedProvider wraps inner. Expired values are dropped on read; no
// janitor goroutine is started.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner:  inner,
		values: cache.New(ttl, 0),
	}
}

// Get implements Provider.
func (p *CachedProvider) Get(ctx context.Context, path string) (string, error) {
	if v, ok := p.values.Get(path); ok {
		return v.(string), nil
	}
	v, err, _ := p.group.Do(path, func() (any, error) {
		s, err := p.inner.Get(ctx, path)
		if err != nil {
			return "", err
		}
		p.values.SetDefault(path, s)
		return s, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate forgets path so the next Get reaches the inner provider.
func (p *CachedProvider) Invalidate(path string) {
	p.values.Delete(path)
}

// Close drops every cached value and closes the inner provider.
func (p *CachedProvider) Close() error {
	p.values.Flush()
	return p.inner.Close()
}
