// Package vault resolves secret references against HashiCorp Vault.
//
// A reference has the form "mount/path[#field][?version=N]". The field
// defaults to DefaultKey. KV v2 responses are unwrapped transparently and a
// version is only meaningful for KV v2 mounts.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// DefaultKey is the field read when a reference names none.
const DefaultKey = "value"

// Auth methods understood by New.
const (
	AuthToken   = "token"
	AuthAppRole = "approle"
	AuthCert    = "cert"
)

// Config describes how to reach and log in to Vault.
type Config struct {
	Address    string        `yaml:"address"`
	Namespace  string        `yaml:"namespace"`
	Timeout    time.Duration `yaml:"timeout"`
	AuthMethod string        `yaml:"auth_method"`
	Token      string        `yaml:"token"`
	RoleID     string        `yaml:"role_id"`
	SecretID   string        `yaml:"secret_id"`
	CACert     string        `yaml:"ca_cert"`
	ClientCert string        `yaml:"client_cert"`
	ClientKey  string        `yaml:"client_key"`

	Logger *slog.Logger `yaml:"-"`
}

// method picks the auth method, inferring it from the credentials present.
func (c Config) method() string {
	switch {
	case c.AuthMethod != "":
		return c.AuthMethod
	case c.Token != "":
		return AuthToken
	case c.RoleID != "":
		return AuthAppRole
	}
	return ""
}

// Provider reads secrets with a logged-in client and keeps its token alive.
type Provider struct {
	client *vault.Client
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New builds a client for cfg and logs in. Renewable logins are renewed in
// the background until Close.
func New(cfg Config) (*Provider, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{client: client, logger: logger.With("component", "vault"), cancel: cancel}

	auth, err := p.login(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	if auth != nil && auth.Renewable {
		p.wg.Add(1)
		go p.renew(ctx, auth)
	}
	return p, nil
}

func newClient(cfg Config) (*vault.Client, error) {
	vc := vault.DefaultConfig()
	if cfg.Address != "" {
		vc.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		vc.Timeout = cfg.Timeout
	}
	if cfg.CACert != "" || cfg.ClientCert != "" || cfg.ClientKey != "" {
		err := vc.ConfigureTLS(&vault.TLSConfig{
			CACert:     cfg.CACert,
			ClientCert: cfg.ClientCert,
			ClientKey:  cfg.ClientKey,
		})
		if err != nil {
			return nil, fmt.Errorf("vault tls: %w", err)
		}
	}

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	return client, nil
}

// login sets the client token. A static token has no auth block to renew.
func (p *Provider) login(ctx context.Context, cfg Config) (*vault.SecretAuth, error) {
	var (
		path string
		body map[string]interface{}
	)
	switch m := cfg.method(); m {
	case AuthToken:
		if cfg.Token == "" {
			return nil, fmt.Errorf("vault %s auth: no token configured", m)
		}
		p.client.SetToken(cfg.Token)
		return nil, nil
	case AuthAppRole:
		path = "auth/approle/login"
		body = map[string]interface{}{"role_id": cfg.RoleID, "secret_id": cfg.SecretID}
	case AuthCert:
		path = "auth/cert/login"
	case "":
		return nil, fmt.Errorf("vault: no credentials configured")
	default:
		return nil, fmt.Errorf("vault: unsupported auth method %q", m)
	}

	resp, err := p.client.Logical().WriteWithContext(ctx, path, body)
	if err != nil {
		return nil, fmt.Errorf("vault %s login: %w", cfg.method(), err)
	}
	if resp == nil || resp.Auth == nil || resp.Auth.ClientToken == "" {
		return nil, fmt.Errorf("vault %s login: response carried no token", cfg.method())
	}
	p.client.SetToken(resp.Auth.ClientToken)
	return resp.Auth, nil
}

type ref struct {
	path    string
	field   string
	version string
}

func parseRef(s string) (ref, error) {
	r := ref{field: DefaultKey}
	if base, query, ok := strings.Cut(s, "?"); ok {
		s = base
		v, found := strings.CutPrefix(query, "version=")
		if !found {
			return r, fmt.Errorf("vault reference %q: unsupported query %q", s, query)
		}
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			return r, fmt.Errorf("vault reference %q: version must be a positive integer", s)
		}
		r.version = v
	}
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		s, r.field = s[:i], s[i+1:]
	}
	r.path = strings.Trim(s, "/")
	if r.path == "" || r.field == "" {
		return r, fmt.Errorf("vault reference %q: empty path or field", s)
	}
	return r, nil
}

// Get reads one field of the secret at reference.
func (p *Provider) Get(ctx context.Context, reference string) (string, error) {
	r, err := parseRef(reference)
	if err != nil {
		return "", err
	}

	var params map[string][]string
	if r.version != "" {
		params = map[string][]string{"version": {r.version}}
	}
	sec, err := p.client.Logical().ReadWithDataWithContext(ctx, r.path, params)
	if err != nil {
		return "", fmt.Errorf("vault read %s: %w", r.path, err)
	}
	if sec == nil || len(sec.Data) == 0 {
		return "", fmt.Errorf("vault read %s: no secret at path", r.path)
	}
	return field(sec.Data, r)
}

// field extracts r.field, looking inside the KV v2 "data" envelope when
// the response has one.
func field(data map[string]interface{}, r ref) (string, error) {
	if inner, ok := data["data"].(map[string]interface{}); ok {
		if _, hasMeta := data["metadata"]; hasMeta {
			data = inner
		}
	}
	v, ok := data[r.field]
	if !ok || v == nil {
		return "", fmt.Errorf("vault read %s: field %q not present", r.path, r.field)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

func (p *Provider) renew(ctx context.Context, auth *vault.SecretAuth) {
	defer p.wg.Done()

	w, err := p.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret: &vault.Secret{Auth: auth},
	})
	if err != nil {
		p.logger.Error("token renewal disabled", "error", err)
		return
	}
	go w.Start()
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				p.logger.Warn("token renewal ended", "error", err)
			}
			return
		case <-w.RenewCh():
			p.logger.Debug("token renewed")
		}
	}
}

// Close stops token renewal. It is safe to call more than once.
func (p *Provider) Close() error {
	p.once.Do(p.cancel)
	p.wg.Wait()
	return nil
}
