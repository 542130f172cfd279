package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/juanclpzq/digital-library/pkg/jwtx"
	"github.com/juanclpzq/digital-library/pkg/slogx"
)

// Verifier validates a bearer token and returns its claims.
type Verifier interface {
	Verify(token string) (jwtx.Claims, error)
}

// AuthnMiddleware rejects requests without a valid bearer token and puts the
// verified claims into the request context.
func AuthnMiddleware(v Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				msg := "token verification failed"
				if errors.Is(err, jwtx.ErrExpired) {
					msg = "token expired"
				}
				slogx.FromContext(r.Context()).Debug("bearer rejected", "err", err)
				writeBearerError(w, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithAuth(r.Context(), claims)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return raw, raw != ""
}

// RFC 6750 challenge plus the shelf failure envelope.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, desc)
}
