package auth

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// Middleware authenticates each request and stores the principal in its
// context. Failed authentication ends the request with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r)
		if err != nil {
			a.logger.Debug("authentication failed", "path", r.URL.Path, "error", err)
			writeUnauthenticated(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func writeUnauthenticated(w http.ResponseWriter, err error) {
	msg := "unauthenticated"
	var e *errors.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="reasoncache"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"message": msg,
			"type":    errors.TypeUnauthenticated,
		},
	})
}
