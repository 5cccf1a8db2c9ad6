// Package secret resolves key references used by the security manager.
//
// A reference is either a literal value or a URI whose scheme selects a
// provider, e.g. "env://REASONCACHE_ENCRYPTION_KEY" or
// "vault://secret/data/reasoncache#encryption_key".
package secret

import "context"

// Provider defines the interface for retrieving secrets from various sources.
type Provider interface {
	// Get retrieves the secret value for the scheme-less path.
	Get(ctx context.Context, path string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}
