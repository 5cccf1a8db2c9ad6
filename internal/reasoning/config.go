// Package reasoning implements strategy-based reasoning over layer-processed
// records, a per-call result cache, execution traces and cross-layer
// integration.
package reasoning

import (
	"time"

	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Strategy names an inference mode.
type Strategy string

// Supported strategies.
const (
	Deductive      Strategy = "deductive"
	Inductive      Strategy = "inductive"
	Abductive      Strategy = "abductive"
	Analogical     Strategy = "analogical"
	Causal         Strategy = "causal"
	Counterfactual Strategy = "counterfactual"
	Probabilistic  Strategy = "probabilistic"
)

// AllStrategies returns every supported strategy in a stable order.
func AllStrategies() []Strategy {
	return []Strategy{Deductive, Inductive, Abductive, Analogical, Causal, Counterfactual, Probabilistic}
}

// Known reports whether s is a supported strategy.
func (s Strategy) Known() bool {
	for _, k := range AllStrategies() {
		if s == k {
			return true
		}
	}
	return false
}

// Config holds framework settings.
type Config struct {
	EnabledStrategies   []Strategy    `yaml:"enabled_strategies"`
	DefaultStrategy     Strategy      `yaml:"default_strategy"`
	MaxReasoningDepth   int           `yaml:"max_reasoning_depth"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	CacheEnabled        bool          `yaml:"cache_enabled"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	TraceEnabled        bool          `yaml:"trace_enabled"`

	// SingleFlight makes concurrent identical cache misses share one
	// computation. When off, duplicates compute and the last write wins.
	SingleFlight bool `yaml:"single_flight"`

	// SemanticCacheWrite also stores every fresh result in the semantic
	// cache, keyed by the reasoning cache key, for cross-session reuse.
	SemanticCacheWrite bool `yaml:"semantic_cache_write"`
}

// DefaultConfig returns the default framework configuration.
func DefaultConfig() Config {
	return Config{
		EnabledStrategies:   AllStrategies(),
		DefaultStrategy:     Deductive,
		MaxReasoningDepth:   5,
		ConfidenceThreshold: 0.7,
		CacheEnabled:        true,
		CacheTTL:            time.Hour,
	}
}

// Validate checks the configuration. Every failure is an invalid_config error.
func (c *Config) Validate() error {
	if c.MaxReasoningDepth <= 0 {
		return errors.NewInvalidConfigError("reasoning.max_reasoning_depth must be positive, got %d", c.MaxReasoningDepth)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.NewInvalidConfigError("reasoning.confidence_threshold must be between 0 and 1, got %v", c.ConfidenceThreshold)
	}
	if c.CacheTTL < 0 {
		return errors.NewInvalidConfigError("reasoning.cache_ttl cannot be negative")
	}
	if len(c.EnabledStrategies) == 0 {
		return errors.NewInvalidConfigError("at least one reasoning strategy must be enabled")
	}
	defaultEnabled := false
	for _, s := range c.EnabledStrategies {
		if !s.Known() {
			return errors.NewInvalidConfigError("unknown reasoning strategy %q", s)
		}
		if s == c.DefaultStrategy {
			defaultEnabled = true
		}
	}
	if !defaultEnabled {
		return errors.NewInvalidConfigError("default strategy %q is not enabled", c.DefaultStrategy)
	}
	return nil
}

func (c *Config) enabled(s Strategy) bool {
	for _, e := range c.EnabledStrategies {
		if e == s {
			return true
		}
	}
	return false
}
