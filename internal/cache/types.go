// Package cache provides the TTL caches and key derivation used by the layer
// manager and the reasoning framework. The semantic cache lives in the
// semantic subpackage.
package cache

import "time"

// Stats holds cache statistics for monitoring.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

// TTLConfig holds configuration for TTLCache.
type TTLConfig struct {
	DefaultTTL time.Duration // Default TTL (default: 1 hour)

	// CleanupInterval enables a background sweep. Zero disables it, leaving
	// expiry purely lazy: an expired entry is dropped when it is next read.
	CleanupInterval time.Duration
}

// DefaultTTLConfig returns sensible defaults.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		DefaultTTL: time.Hour,
	}
}
