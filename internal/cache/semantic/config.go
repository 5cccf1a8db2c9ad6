package semantic

import (
	"strconv"
	"time"

	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// EvictionStrategy selects which entries go first when the cache is full.
type EvictionStrategy string

const (
	EvictLRU      EvictionStrategy = "LRU"      // least recently accessed
	EvictLFU      EvictionStrategy = "LFU"      // fewest accesses
	EvictSize     EvictionStrategy = "SIZE"     // largest entries
	EvictPriority EvictionStrategy = "PRIORITY" // lowest priority
	EvictTime     EvictionStrategy = "TIME"     // oldest entries
)

// Valid reports whether s is a known strategy.
func (s EvictionStrategy) Valid() bool {
	switch s {
	case EvictLRU, EvictLFU, EvictSize, EvictPriority, EvictTime:
		return true
	}
	return false
}

// ConsistencyLevel is recorded on each entry. It does not change how the
// local cache behaves.
type ConsistencyLevel string

const (
	ConsistencyStrong   ConsistencyLevel = "STRONG"
	ConsistencyEventual ConsistencyLevel = "EVENTUAL"
	ConsistencySession  ConsistencyLevel = "SESSION"
	ConsistencyWeak     ConsistencyLevel = "WEAK"
)

// Valid reports whether l is a known level.
func (l ConsistencyLevel) Valid() bool {
	switch l {
	case ConsistencyStrong, ConsistencyEventual, ConsistencySession, ConsistencyWeak:
		return true
	}
	return false
}

// Config holds semantic cache settings.
type Config struct {
	MaxSize                 int              `yaml:"max_size"`
	DefaultTTL              time.Duration    `yaml:"default_ttl"`
	ExpirationStrategy      EvictionStrategy `yaml:"expiration_strategy"`
	DefaultConsistencyLevel ConsistencyLevel `yaml:"default_consistency_level"`

	EnableVectorSimilarity bool `yaml:"vector_similarity"`
	EnableContextAwareness bool `yaml:"context_awareness"`
	EnableOfflineSupport   bool `yaml:"offline_support"`

	// SimilarityThreshold is the minimum cosine similarity for a vector hit.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// ExpirationInterval is the period of the background expiry sweep.
	ExpirationInterval time.Duration `yaml:"expiration_interval"`

	// PersistInterval is the minimum gap between asynchronous snapshots.
	PersistInterval time.Duration `yaml:"persist_interval"`
}

// DefaultConfig returns the default semantic cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:                 1000,
		DefaultTTL:              time.Hour,
		ExpirationStrategy:      EvictLRU,
		DefaultConsistencyLevel: ConsistencyEventual,
		EnableVectorSimilarity:  true,
		EnableContextAwareness:  true,
		EnableOfflineSupport:    false,
		SimilarityThreshold:     0.85,
		ExpirationInterval:      time.Minute,
		PersistInterval:         5 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return errors.NewInvalidConfigError("semantic_cache.max_size must be positive, got %d", c.MaxSize)
	}
	if c.DefaultTTL < 0 {
		return errors.NewInvalidConfigError("semantic_cache.default_ttl cannot be negative")
	}
	if !c.ExpirationStrategy.Valid() {
		return errors.NewInvalidConfigError("unsupported semantic_cache.expiration_strategy: %s", c.ExpirationStrategy)
	}
	if !c.DefaultConsistencyLevel.Valid() {
		return errors.NewInvalidConfigError("unsupported semantic_cache.default_consistency_level: %s", c.DefaultConsistencyLevel)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return errors.NewInvalidConfigError("semantic_cache.similarity_threshold must be between 0 and 1")
	}
	if c.ExpirationInterval <= 0 {
		return errors.NewInvalidConfigError("semantic_cache.expiration_interval must be positive")
	}
	if c.PersistInterval < 0 {
		return errors.NewInvalidConfigError("semantic_cache.persist_interval cannot be negative")
	}
	return nil
}

// ConfigSource resolves settings by dotted path, returning def when the
// path is unset. config.Manager satisfies it.
type ConfigSource interface {
	Value(path string, def any) any
}

const sourcePrefix = "semantic_cache."

// overlay reads every setting from src, keeping c's value for anything
// missing or malformed.
func (c Config) overlay(src ConfigSource) Config {
	if src == nil {
		return c
	}
	get := func(name string, def any) any { return src.Value(sourcePrefix+name, def) }

	c.MaxSize = intValue(get("max_size", c.MaxSize), c.MaxSize)
	c.DefaultTTL = durationValue(get("default_ttl", c.DefaultTTL), c.DefaultTTL)
	c.ExpirationStrategy = EvictionStrategy(stringValue(get("expiration_strategy", string(c.ExpirationStrategy)), string(c.ExpirationStrategy)))
	c.DefaultConsistencyLevel = ConsistencyLevel(stringValue(get("default_consistency_level", string(c.DefaultConsistencyLevel)), string(c.DefaultConsistencyLevel)))
	c.EnableVectorSimilarity = boolValue(get("vector_similarity", c.EnableVectorSimilarity), c.EnableVectorSimilarity)
	c.EnableContextAwareness = boolValue(get("context_awareness", c.EnableContextAwareness), c.EnableContextAwareness)
	c.EnableOfflineSupport = boolValue(get("offline_support", c.EnableOfflineSupport), c.EnableOfflineSupport)
	c.SimilarityThreshold = floatValue(get("similarity_threshold", c.SimilarityThreshold), c.SimilarityThreshold)
	c.ExpirationInterval = durationValue(get("expiration_interval", c.ExpirationInterval), c.ExpirationInterval)
	c.PersistInterval = durationValue(get("persist_interval", c.PersistInterval), c.PersistInterval)
	return c
}

func intValue(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case uint64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return def
}

func floatValue(v any, def float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return def
}

func boolValue(v any, def bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return def
}

func stringValue(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// durationValue accepts time.Duration, Go duration strings ("1m30s") and
// integer nanoseconds, matching how durations round-trip through YAML.
func durationValue(v any, def time.Duration) time.Duration {
	switch t := v.(type) {
	case time.Duration:
		return t
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
	case int:
		return time.Duration(t)
	case int64:
		return time.Duration(t)
	}
	return def
}
