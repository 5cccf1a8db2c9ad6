package secret

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/blueberrycongee/reasoncache/internal/secret/env"
	"github.com/blueberrycongee/reasoncache/internal/secret/vault"
)

const schemeSep = "://"

// Manager resolves references by dispatching on their scheme. It satisfies
// security.KeyResolver.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewManager() *Manager {
	return &Manager{providers: make(map[string]Provider)}
}

// Options selects the providers built by NewManagerFromOptions.
type Options struct {
	// Vault registers the vault scheme when Vault.Address is set.
	Vault vault.Config
	// CacheTTL, when positive, caches every provider's answers.
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// NewManagerFromOptions registers env and, when configured, vault.
func NewManagerFromOptions(opts Options) (*Manager, error) {
	cached := func(p Provider) Provider {
		if opts.CacheTTL > 0 {
			return NewCachedProvider(p, opts.CacheTTL)
		}
		return p
	}

	m := NewManager()
	m.Register("env", cached(env.New()))
	if opts.Vault.Address == "" {
		return m, nil
	}

	vc := opts.Vault
	if vc.Logger == nil {
		vc.Logger = opts.Logger
	}
	vp, err := vault.New(vc)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("secret manager: %w", err)
	}
	m.Register("vault", cached(vp))
	return m, nil
}

// Register installs p for scheme, closing any provider it replaces.
func (m *Manager) Register(scheme string, p Provider) {
	m.mu.Lock()
	old := m.providers[scheme]
	m.providers[scheme] = p
	m.mu.Unlock()
	if old != nil && old != p {
		_ = old.Close()
	}
}

// Schemes lists the registered schemes, sorted.
func (m *Manager) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.providers))
	for s := range m.providers {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Get resolves ref. A ref without "scheme://" is a literal and comes back
// unchanged.
func (m *Manager) Get(ctx context.Context, ref string) (string, error) {
	scheme, path, isRef := strings.Cut(ref, schemeSep)
	if !isRef {
		return ref, nil
	}

	m.mu.RLock()
	p := m.providers[scheme]
	m.mu.RUnlock()
	if p == nil {
		return "", fmt.Errorf("secret %s%s...: no provider for scheme %q", scheme, schemeSep, scheme)
	}

	v, err := p.Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("secret %s%s%s: %w", scheme, schemeSep, path, err)
	}
	return v, nil
}

// Close closes every provider, in scheme order, and joins their errors.
func (m *Manager) Close() error {
	var errs []error
	for _, scheme := range m.Schemes() {
		m.mu.RLock()
		p := m.providers[scheme]
		m.mu.RUnlock()
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", scheme, err))
		}
	}
	return errors.Join(errs...)
}
