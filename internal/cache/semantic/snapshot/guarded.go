package snapshot

import (
	"context"

	"github.com/blueberrycongee/reasoncache/internal/resilience"
)

// GuardedStore puts a circuit breaker in front of a remote backend so an
// outage fails snapshot writes fast instead of holding up the cache.
type GuardedStore struct {
	inner   Store
	breaker *resilience.Breaker
}

// NewGuardedStore wraps inner with b.
func NewGuardedStore(inner Store, b *resilience.Breaker) *GuardedStore {
	return &GuardedStore{inner: inner, breaker: b}
}

func (g *GuardedStore) Name() string { return g.inner.Name() }

// Unwrap returns the guarded store.
func (g *GuardedStore) Unwrap() Store { return g.inner }

func (g *GuardedStore) Save(ctx context.Context, data []byte) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.inner.Save(ctx, data)
	})
}

func (g *GuardedStore) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = g.inner.Load(ctx)
		return err
	})
	return data, err
}

// Ping bypasses the breaker so health checks see the backend itself.
func (g *GuardedStore) Ping(ctx context.Context) error {
	if p, ok := g.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (g *GuardedStore) Close() error { return g.inner.Close() }
