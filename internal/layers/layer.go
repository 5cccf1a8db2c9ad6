// Package layers implements the abstraction layer pipeline: an ordered set of
// named layers, per-layer processing of structured records and a TTL cache
// of processed results.
package layers

import (
	"time"

	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Built-in layer names, lowest level first.
const (
	Raw        = "raw"
	Syntactic  = "syntactic"
	Semantic   = "semantic"
	Conceptual = "conceptual"
	Abstract   = "abstract"
)

// Layer is a named processing stage. Layers are immutable once configured.
type Layer struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// BuiltinLayers returns the built-in layers ordered by level.
func BuiltinLayers() []Layer {
	return []Layer{
		{Name: Raw, Level: 0},
		{Name: Syntactic, Level: 1},
		{Name: Semantic, Level: 2},
		{Name: Conceptual, Level: 3},
		{Name: Abstract, Level: 4},
	}
}

// Config holds layer manager settings.
type Config struct {
	Enabled      []string      `yaml:"enabled"`
	Default      string        `yaml:"default"`
	CacheEnabled bool          `yaml:"cache_enabled"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig enables every built-in layer with semantic as the default.
func DefaultConfig() Config {
	return Config{
		Enabled:      []string{Raw, Syntactic, Semantic, Conceptual, Abstract},
		Default:      Semantic,
		CacheEnabled: true,
		CacheTTL:     time.Hour,
	}
}

// Validate checks the configuration against the built-in layers.
func (c *Config) Validate() error {
	known := make(map[string]Layer)
	for _, l := range BuiltinLayers() {
		known[l.Name] = l
	}
	return c.validate(known)
}

func (c *Config) validate(known map[string]Layer) error {
	if len(c.Enabled) == 0 {
		return errors.NewInvalidConfigError("at least one layer must be enabled")
	}
	seen := make(map[string]bool, len(c.Enabled))
	for _, name := range c.Enabled {
		if _, ok := known[name]; !ok {
			return errors.NewInvalidConfigError("unknown layer %q", name)
		}
		if seen[name] {
			return errors.NewInvalidConfigError("layer %q enabled twice", name)
		}
		seen[name] = true
	}
	if !seen[c.Default] {
		return errors.NewInvalidConfigError("default layer %q is not enabled", c.Default)
	}
	if c.CacheTTL < 0 {
		return errors.NewInvalidConfigError("layers.cache_ttl cannot be negative")
	}
	return nil
}
