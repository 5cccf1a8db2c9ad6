package auth

import (
	"context"

	"github.com/blueberrycongee/reasoncache/internal/security"
)

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p security.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by the middleware.
func PrincipalFrom(ctx context.Context) (security.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(security.Principal)
	return p, ok
}
