// Package auth authenticates HTTP callers and maps them to a security
// principal. Bearer tokens are verified as HMAC-signed JWTs or as OIDC ID
// tokens; requests without a token may carry trusted identity headers.
package auth

import (
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Identity headers read when TrustHeaders is set.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

// Config holds authentication settings.
type Config struct {
	// JWTSecret verifies HS256/HS384/HS512 bearer tokens. It is a secret
	// reference (env://, vault://) or a literal.
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`

	OIDC OIDCConfig `yaml:"oidc"`

	// TrustHeaders accepts X-User-ID and X-User-Role on requests without a
	// bearer token. Turn it off when the API is reachable without a
	// gateway that sets these headers.
	TrustHeaders bool `yaml:"trust_headers"`
}

// OIDCConfig configures ID token verification against an identity provider.
type OIDCConfig struct {
	IssuerURL string `yaml:"issuer_url"`
	ClientID  string `yaml:"client_id"`
	// RoleGroups maps a "groups" claim value to a role. The first group of
	// the token that has a mapping wins.
	RoleGroups map[string]string `yaml:"role_groups"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{TrustHeaders: true}
}

// TokensEnabled reports whether bearer tokens can be verified.
func (c Config) TokensEnabled() bool {
	return c.JWTSecret != "" || c.OIDC.IssuerURL != ""
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.OIDC.IssuerURL != "" && c.OIDC.ClientID == "" {
		return errors.NewInvalidConfigError("auth.oidc.client_id is required when auth.oidc.issuer_url is set")
	}
	return nil
}
