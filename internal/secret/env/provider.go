// Package env resolves env:// secret references from the process environment.
package env

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider reads secrets from environment variables.
type Provider struct {
	lookup func(string) (string, bool)
}

// New returns a provider over os.LookupEnv.
func New() *Provider {
	return NewWithLookup(os.LookupEnv)
}

// NewWithLookup returns a provider over lookup.
func NewWithLookup(lookup func(string) (string, bool)) *Provider {
	return &Provider{lookup: lookup}
}

// Get returns the trimmed value of the variable named path. Unset and
// blank variables are errors so a missing key never becomes an empty one.
func (p *Provider) Get(_ context.Context, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("env reference has no variable name")
	}
	if val, ok := p.lookup(path); ok {
		if val = strings.TrimSpace(val); val != "" {
			return val, nil
		}
	}
	return "", fmt.Errorf("environment variable %q is not set", path)
}

// Close implements secret.Provider.
func (p *Provider) Close() error { return nil }
