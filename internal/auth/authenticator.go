package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/blueberrycongee/reasoncache/internal/security"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Claims are the claims of a token signed with the shared secret.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Authenticator resolves the principal of an HTTP request.
type Authenticator struct {
	cfg      Config
	secret   []byte
	verifier *oidc.IDTokenVerifier
	logger   *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) { a.logger = logger }
}

// WithVerifier uses v for ID tokens instead of discovering the provider
// named by the OIDC issuer URL.
func WithVerifier(v *oidc.IDTokenVerifier) Option {
	return func(a *Authenticator) { a.verifier = v }
}

// New builds an Authenticator. The JWT secret reference is resolved with
// resolver; a nil resolver takes it literally. OIDC discovery contacts the
// issuer, so ctx bounds it.
func New(ctx context.Context, cfg Config, resolver security.KeyResolver, opts ...Option) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Authenticator{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.JWTSecret != "" {
		secret := cfg.JWTSecret
		if resolver != nil {
			var err error
			if secret, err = resolver.Get(ctx, cfg.JWTSecret); err != nil {
				return nil, errors.NewInvalidConfigError("resolve auth.jwt_secret: %v", err)
			}
		}
		if secret == "" {
			return nil, errors.NewInvalidConfigError("auth.jwt_secret resolved to an empty value")
		}
		a.secret = []byte(secret)
	}

	if cfg.OIDC.IssuerURL != "" && a.verifier == nil {
		provider, err := oidc.NewProvider(ctx, cfg.OIDC.IssuerURL)
		if err != nil {
			return nil, errors.NewInvalidConfigError("oidc discovery for %s: %v", cfg.OIDC.IssuerURL, err)
		}
		a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.OIDC.ClientID})
	}
	return a, nil
}

// Authenticate returns the principal of r. Requests without a bearer
// token get the header identity when headers are trusted and the anonymous
// principal otherwise.
func (a *Authenticator) Authenticate(r *http.Request) (security.Principal, error) {
	raw, ok := bearerToken(r)
	if !ok {
		if a.cfg.TrustHeaders {
			return security.Principal{
				UserID: r.Header.Get(HeaderUserID),
				Role:   r.Header.Get(HeaderRole),
			}, nil
		}
		return security.Principal{}, nil
	}
	if a.secret == nil && a.verifier == nil {
		return security.Principal{}, errors.NewUnauthenticatedError("bearer tokens are not accepted")
	}

	var lastErr error
	if a.secret != nil {
		p, err := a.verifyHMAC(raw)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	if a.verifier != nil {
		p, err := a.verifyIDToken(r.Context(), raw)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return security.Principal{}, &errors.Error{
		Type:    errors.TypeUnauthenticated,
		Message: "invalid bearer token",
		Err:     lastErr,
	}
}

func (a *Authenticator) verifyHMAC(raw string) (security.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return security.Principal{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return security.Principal{}, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return security.Principal{}, fmt.Errorf("token has no subject")
	}
	return security.Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

func (a *Authenticator) verifyIDToken(ctx context.Context, raw string) (security.Principal, error) {
	idToken, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return security.Principal{}, err
	}
	var claims struct {
		Email  string   `json:"email"`
		Groups []string `json:"groups"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return security.Principal{}, fmt.Errorf("parse id token claims: %w", err)
	}

	p := security.Principal{UserID: claims.Email}
	if p.UserID == "" {
		p.UserID = idToken.Subject
	}
	for _, group := range claims.Groups {
		if role, ok := a.cfg.OIDC.RoleGroups[group]; ok {
			p.Role = role
			break
		}
	}
	return p, nil
}

// IssueToken signs a token for userID and role with the shared secret.
func (a *Authenticator) IssueToken(userID, role string, ttl time.Duration) (string, error) {
	if a.secret == nil {
		return "", errors.NewNotInitializedError("auth.jwt_secret")
	}
	if userID == "" {
		return "", errors.NewInvalidArgumentError("user id is required")
	}
	if ttl <= 0 {
		return "", errors.NewInvalidArgumentError("token ttl must be positive, got %s", ttl)
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	if a.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{a.cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}
