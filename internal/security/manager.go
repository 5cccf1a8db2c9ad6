package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// KeyResolver resolves secret references. *secret.Manager satisfies it.
type KeyResolver interface {
	Get(ctx context.Context, ref string) (string, error)
}

// Principal identifies the caller of an operation.
type Principal struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Manager implements Encryptor and role-based access control.
type Manager struct {
	sealer *sealer
	logger *slog.Logger
	audit  *auditLog

	defaultRole string

	mu         sync.RWMutex
	operations map[string]map[string]bool
	users      map[string]map[string]bool
}

// New creates a Manager. When cfg.Enabled the encryption key is resolved
// through resolver; resolver may be nil for literal keys.
func New(ctx context.Context, cfg Config, resolver KeyResolver, logger *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		logger:      logger,
		audit:       newAuditLog(cfg.AuditLogSize),
		defaultRole: cfg.DefaultRole,
		operations:  defaultOperations(),
		users:       make(map[string]map[string]bool),
	}
	if m.defaultRole == "" {
		m.defaultRole = RoleViewer
	}
	for op, grants := range cfg.Operations {
		if m.operations[op] == nil {
			m.operations[op] = make(map[string]bool)
		}
		for role, allowed := range grants {
			m.operations[op][role] = allowed
		}
	}
	for user, grants := range cfg.Users {
		m.users[user] = copyGrants(grants)
	}

	if cfg.Enabled {
		raw := cfg.EncryptionKey
		if resolver != nil {
			resolved, err := resolver.Get(ctx, cfg.EncryptionKey)
			if err != nil {
				return nil, errors.NewInvalidConfigError("resolve encryption key: %v", err)
			}
			raw = resolved
		}
		key, err := parseKey(raw)
		if err != nil {
			return nil, errors.NewInvalidConfigError("%v", err)
		}
		s, err := newSealer(key)
		if err != nil {
			return nil, errors.NewInvalidConfigError("init cipher: %v", err)
		}
		m.sealer = s
	}

	return m, nil
}

// EncryptionEnabled reports whether a key is loaded.
func (m *Manager) EncryptionEnabled() bool {
	return m.sealer != nil
}

// Encrypt seals plaintext into an Envelope.
func (m *Manager) Encrypt(_ context.Context, plaintext []byte) (*Envelope, error) {
	if m.sealer == nil {
		return nil, errors.NewNotInitializedError("encryption")
	}
	return m.sealer.seal(plaintext)
}

// Decrypt opens an Envelope produced by Encrypt.
func (m *Manager) Decrypt(_ context.Context, env *Envelope) ([]byte, error) {
	if m.sealer == nil {
		return nil, errors.NewNotInitializedError("encryption")
	}
	plain, err := m.sealer.open(env)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("%v", err)
	}
	return plain, nil
}

// IsAuthorized checks whether p may perform operation. User overrides win
// over role grants; anything not granted is denied. Every decision is audited.
func (m *Manager) IsAuthorized(p Principal, operation string) bool {
	role := p.Role
	if role == "" {
		role = m.defaultRole
	}

	allowed := m.decide(p.UserID, role, operation)
	m.audit.add(AuditEntry{
		Timestamp: time.Now(),
		UserID:    p.UserID,
		Role:      role,
		Action:    operation,
		Allowed:   allowed,
	})
	if !allowed {
		m.logger.Debug("access denied", "user_id", p.UserID, "role", role, "operation", operation)
	}
	return allowed
}

// Authorize is IsAuthorized returning a typed error on denial.
func (m *Manager) Authorize(p Principal, operation string) error {
	if m.IsAuthorized(p, operation) {
		return nil
	}
	return errors.NewUnauthorizedError(p.UserID, operation)
}

func (m *Manager) decide(userID, role, operation string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if userID != "" {
		if grants, ok := m.users[userID]; ok {
			if allowed, ok := grants[operation]; ok {
				return allowed
			}
		}
	}
	if grants, ok := m.operations[operation]; ok {
		return grants[role]
	}
	return false
}

// SetOperationPermission grants or revokes an operation for a role.
func (m *Manager) SetOperationPermission(operation, role string, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.operations[operation] == nil {
		m.operations[operation] = make(map[string]bool)
	}
	m.operations[operation][role] = allowed
}

// SetUserPermission sets a per-user override for an operation.
func (m *Manager) SetUserPermission(operation, userID string, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.users[userID] == nil {
		m.users[userID] = make(map[string]bool)
	}
	m.users[userID][operation] = allowed
}

// Audit appends an entry to the audit trail.
func (m *Manager) Audit(p Principal, action string, details map[string]any) {
	m.audit.add(AuditEntry{
		Timestamp: time.Now(),
		UserID:    p.UserID,
		Role:      p.Role,
		Action:    action,
		Allowed:   true,
		Details:   details,
	})
}

// AuditLog returns matching audit entries, oldest first.
func (m *Manager) AuditLog(filter AuditFilter) []AuditEntry {
	return m.audit.list(filter)
}
