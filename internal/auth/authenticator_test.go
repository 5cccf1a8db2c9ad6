package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/reasoncache/internal/security"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

const testSecret = "correct-horse-battery-staple"

type mapResolver map[string]string

func (m mapResolver) Get(_ context.Context, ref string) (string, error) {
	if v, ok := m[ref]; ok {
		return v, nil
	}
	return ref, nil
}

func newRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestAuthenticate_Headers(t *testing.T) {
	r := newRequest("")
	r.Header.Set(HeaderUserID, "alice")
	r.Header.Set(HeaderRole, "editor")

	trusting, err := New(context.Background(), DefaultConfig(), nil)
	require.NoError(t, err)
	p, err := trusting.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, security.Principal{UserID: "alice", Role: "editor"}, p)

	strict, err := New(context.Background(), Config{JWTSecret: testSecret}, nil)
	require.NoError(t, err)
	p, err = strict.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, security.Principal{}, p, "headers are ignored when not trusted")
}

func TestAuthenticate_HMAC(t *testing.T) {
	cfg := Config{JWTSecret: "env://JWT", Issuer: "reasoncache", Audience: "api"}
	a, err := New(context.Background(), cfg, mapResolver{"env://JWT": testSecret})
	require.NoError(t, err)

	token, err := a.IssueToken("bob", "editor", time.Minute)
	require.NoError(t, err)
	p, err := a.Authenticate(newRequest(token))
	require.NoError(t, err)
	assert.Equal(t, security.Principal{UserID: "bob", Role: "editor"}, p)

	valid := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "bob",
			Issuer:    "reasoncache",
			Audience:  jwt.ClaimStrings{"api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}
	}
	tests := []struct {
		name  string
		token func() string
	}{
		{name: "wrong secret", token: func() string {
			return sign(t, jwt.SigningMethodHS256, []byte("other"), Claims{RegisteredClaims: valid()})
		}},
		{name: "expired", token: func() string {
			c := valid()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return sign(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{RegisteredClaims: c})
		}},
		{name: "no expiry", token: func() string {
			c := valid()
			c.ExpiresAt = nil
			return sign(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{RegisteredClaims: c})
		}},
		{name: "wrong issuer", token: func() string {
			c := valid()
			c.Issuer = "someone-else"
			return sign(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{RegisteredClaims: c})
		}},
		{name: "wrong audience", token: func() string {
			c := valid()
			c.Audience = jwt.ClaimStrings{"admin-console"}
			return sign(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{RegisteredClaims: c})
		}},
		{name: "no subject", token: func() string {
			c := valid()
			c.Subject = ""
			return sign(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{RegisteredClaims: c})
		}},
		{name: "unsigned", token: func() string {
			return sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, Claims{RegisteredClaims: valid()})
		}},
		{name: "garbage", token: func() string { return "not.a.token" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(newRequest(tt.token()))
			require.Error(t, err)
			assert.Equal(t, errors.TypeUnauthenticated, errors.TypeOf(err))
		})
	}
}

func TestAuthenticate_BearerWithoutVerifier(t *testing.T) {
	a, err := New(context.Background(), DefaultConfig(), nil)
	require.NoError(t, err)
	_, err = a.Authenticate(newRequest("abc.def.ghi"))
	assert.Equal(t, errors.TypeUnauthenticated, errors.TypeOf(err))
}

func TestAuthenticate_OIDC(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	const issuer = "https://idp.example.com"
	verifier := oidc.NewVerifier(issuer,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}},
		&oidc.Config{ClientID: "reasoncache"},
	)
	cfg := Config{
		OIDC: OIDCConfig{
			IssuerURL:  issuer,
			ClientID:   "reasoncache",
			RoleGroups: map[string]string{"rc-admins": security.RoleAdmin, "rc-editors": security.RoleEditor},
		},
	}
	a, err := New(context.Background(), cfg, nil, WithVerifier(verifier))
	require.NoError(t, err)

	token := sign(t, jwt.SigningMethodRS256, key, jwt.MapClaims{
		"iss":    issuer,
		"aud":    "reasoncache",
		"sub":    "u-123",
		"email":  "carol@example.com",
		"groups": []string{"staff", "rc-editors", "rc-admins"},
		"exp":    time.Now().Add(time.Minute).Unix(),
	})
	p, err := a.Authenticate(newRequest(token))
	require.NoError(t, err)
	assert.Equal(t, security.Principal{UserID: "carol@example.com", Role: security.RoleEditor}, p)

	noEmail := sign(t, jwt.SigningMethodRS256, key, jwt.MapClaims{
		"iss": issuer,
		"aud": "reasoncache",
		"sub": "u-456",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	p, err = a.Authenticate(newRequest(noEmail))
	require.NoError(t, err)
	assert.Equal(t, security.Principal{UserID: "u-456"}, p)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := sign(t, jwt.SigningMethodRS256, other, jwt.MapClaims{
		"iss": issuer,
		"aud": "reasoncache",
		"sub": "u-123",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	_, err = a.Authenticate(newRequest(forged))
	assert.Equal(t, errors.TypeUnauthenticated, errors.TypeOf(err))
}

func TestIssueToken_Errors(t *testing.T) {
	a, err := New(context.Background(), DefaultConfig(), nil)
	require.NoError(t, err)
	_, err = a.IssueToken("bob", "", time.Minute)
	assert.Equal(t, errors.TypeNotInitialized, errors.TypeOf(err))

	a, err = New(context.Background(), Config{JWTSecret: testSecret}, nil)
	require.NoError(t, err)
	_, err = a.IssueToken("", "", time.Minute)
	assert.Equal(t, errors.TypeInvalidArgument, errors.TypeOf(err))
	_, err = a.IssueToken("bob", "", 0)
	assert.Equal(t, errors.TypeInvalidArgument, errors.TypeOf(err))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), Config{OIDC: OIDCConfig{IssuerURL: "https://idp.example.com"}}, nil)
	assert.Equal(t, errors.TypeInvalidConfig, errors.TypeOf(err))
}

func TestMiddleware(t *testing.T) {
	a, err := New(context.Background(), Config{JWTSecret: testSecret, TrustHeaders: true}, nil)
	require.NoError(t, err)

	var seen security.Principal
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := a.IssueToken("dave", "admin", time.Minute)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(token))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, security.Principal{UserID: "dave", Role: "admin"}, seen)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("bogus"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	assert.Contains(t, rec.Body.String(), `"unauthenticated"`)
}
