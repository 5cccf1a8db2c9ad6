package config

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// View is a generic, YAML-keyed tree of a Config used for dotted-path lookups.
type View map[string]any

// NewView renders cfg into its YAML tree.
func NewView(cfg *Config) (View, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return View(out), nil
}

// Lookup returns the value at a dotted path such as "semantic_cache.max_size".
// Sequence elements are addressed by index ("layers.enabled.0").
// def is returned when any segment is missing.
func (v View) Lookup(path string, def any) any {
	if v == nil || path == "" {
		return def
	}

	var cur any = map[string]any(v)
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return def
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return def
			}
			cur = node[idx]
		default:
			return def
		}
	}
	if cur == nil {
		return def
	}
	return cur
}

// Lookup is a convenience for one-off lookups on a Config.
func (c *Config) Lookup(path string, def any) any {
	view, err := NewView(c)
	if err != nil {
		return def
	}
	return view.Lookup(path, def)
}
