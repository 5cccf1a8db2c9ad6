package cache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TTLCache is a typed key/value cache whose entries expire a fixed time
// after they were stored. It is safe for concurrent use.
//
// Expiry always follows the wall clock (go-cache calls time.Now), so a
// clock injected elsewhere does not move entries toward expiry.
type TTLCache[V any] struct {
	items *gocache.Cache
	ttl   time.Duration

	hits, misses, sets atomic.Int64
}

// NewTTLCache returns an empty cache. Without a CleanupInterval expired
// entries are only dropped when read or by Purge.
func NewTTLCache[V any](cfg TTLConfig) *TTLCache[V] {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TTLCache[V]{
		items: gocache.New(ttl, max(cfg.CleanupInterval, 0)),
		ttl:   ttl,
	}
}

// Get returns the live value for key along with when it expires.
func (c *TTLCache[V]) Get(key string) (value V, expiresAt time.Time, ok bool) {
	raw, exp, found := c.items.GetWithExpiration(key)
	if found {
		value, ok = raw.(V)
	}
	if !ok {
		c.misses.Add(1)
		c.items.Delete(key)
		return value, time.Time{}, false
	}
	c.hits.Add(1)
	return value, exp, true
}

// Set stores value for ttl, or for the default TTL when ttl is not
// positive, and reports when the entry expires.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.items.Set(key, value, ttl)
	c.sets.Add(1)
	return time.Now().Add(ttl)
}

func (c *TTLCache[V]) Delete(key string) { c.items.Delete(key) }

// Flush drops every entry. Counters are kept.
func (c *TTLCache[V]) Flush() { c.items.Flush() }

// Purge drops expired entries now.
func (c *TTLCache[V]) Purge() { c.items.DeleteExpired() }

// Len counts live entries.
func (c *TTLCache[V]) Len() int { return len(c.items.Items()) }

// Stats snapshots the counters.
func (c *TTLCache[V]) Stats() Stats {
	s := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Entries: c.Len(),
	}
	if lookups := s.Hits + s.Misses; lookups > 0 {
		s.HitRate = float64(s.Hits) / float64(lookups)
	}
	return s
}
