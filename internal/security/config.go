// Package security provides record encryption and operation-level access
// control with an audit trail.
package security

import (
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Operations checked by IsAuthorized.
const (
	OpReason             = "reason"
	OpReasonAcrossLayers = "reason_across_layers"
	OpTraceRead          = "trace_read"
	OpCacheStore         = "cache_store"
	OpCacheRetrieve      = "cache_retrieve"
	OpCacheInvalidate    = "cache_invalidate"
	OpCacheStats         = "cache_stats"
	OpCacheClear         = "cache_clear"
	OpAdmin              = "admin"
)

// Built-in roles.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Config holds security settings.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// EncryptionKey is a secret reference (env://, vault://) or a literal.
	// The resolved value is 32 raw bytes, 64 hex characters or "base64:<data>".
	EncryptionKey string `yaml:"encryption_key"`

	// AuditLogSize bounds the in-memory audit trail. Zero disables auditing.
	AuditLogSize int `yaml:"audit_log_size"`

	// DefaultRole applies to principals that carry no role.
	DefaultRole string `yaml:"default_role"`

	// Operations maps operation -> role -> allowed. Entries extend the defaults.
	Operations map[string]map[string]bool `yaml:"operations"`

	// Users maps user id -> operation -> allowed. These override role grants.
	Users map[string]map[string]bool `yaml:"users"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		AuditLogSize: 1000,
		DefaultRole:  RoleViewer,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Enabled && c.EncryptionKey == "" {
		return errors.NewInvalidConfigError("security.encryption_key is required when security is enabled")
	}
	if c.AuditLogSize < 0 {
		return errors.NewInvalidConfigError("security.audit_log_size cannot be negative")
	}
	return nil
}

// defaultOperations grants read-style operations to every role, writes to
// editors and destructive operations to admins only.
func defaultOperations() map[string]map[string]bool {
	all := map[string]bool{RoleAdmin: true, RoleEditor: true, RoleViewer: true}
	write := map[string]bool{RoleAdmin: true, RoleEditor: true, RoleViewer: false}
	admin := map[string]bool{RoleAdmin: true, RoleEditor: false, RoleViewer: false}

	return map[string]map[string]bool{
		OpReason:             copyGrants(all),
		OpReasonAcrossLayers: copyGrants(all),
		OpTraceRead:          copyGrants(all),
		OpCacheRetrieve:      copyGrants(all),
		OpCacheStats:         copyGrants(all),
		OpCacheStore:         copyGrants(write),
		OpCacheInvalidate:    copyGrants(write),
		OpCacheClear:         copyGrants(admin),
		OpAdmin:              copyGrants(admin),
	}
}

func copyGrants(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
