package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_BasicOperations(t *testing.T) {
	c := NewTTLCache[string](TTLConfig{DefaultTTL: time.Minute})

	t.Run("set and get", func(t *testing.T) {
		expiresAt := c.Set("key1", "value1", 0)
		assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, time.Second)

		val, gotExpiry, ok := c.Get("key1")
		require.True(t, ok)
		assert.Equal(t, "value1", val)
		assert.WithinDuration(t, expiresAt, gotExpiry, 10*time.Millisecond)
	})

	t.Run("get non-existent key", func(t *testing.T) {
		val, _, ok := c.Get("missing")
		assert.False(t, ok)
		assert.Empty(t, val)
	})

	t.Run("delete", func(t *testing.T) {
		c.Set("key2", "value2", 0)
		c.Delete("key2")
		_, _, ok := c.Get("key2")
		assert.False(t, ok)
	})

	t.Run("flush", func(t *testing.T) {
		c.Set("key3", "value3", 0)
		c.Flush()
		assert.Equal(t, 0, c.Len())
	})
}

func TestTTLCache_LazyExpiry(t *testing.T) {
	c := NewTTLCache[int](TTLConfig{DefaultTTL: time.Hour})

	c.Set("short", 1, 50*time.Millisecond)
	_, _, ok := c.Get("short")
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	_, _, ok = c.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_Stats(t *testing.T) {
	c := NewTTLCache[int](DefaultTTLConfig())

	_, _, _ = c.Get("k")
	c.Set("k", 1, 0)
	_, _, _ = c.Get("k")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.Entries)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestTTLCache_Purge(t *testing.T) {
	c := NewTTLCache[string](TTLConfig{DefaultTTL: time.Hour})
	c.Set("stale", "a", 20*time.Millisecond)
	c.Set("fresh", "b", 0)

	time.Sleep(40 * time.Millisecond)
	c.Purge()

	assert.Equal(t, 1, c.Len())
	_, _, ok := c.Get("fresh")
	assert.True(t, ok)
}
