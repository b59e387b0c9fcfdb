package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// CookieName is the session cookie carrying the JWT, shared with the web
// client.
const CookieName = "jwtToken"

type contextKey struct{}

// ClaimsFromContext returns the verified claims attached by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok
}

// WithClaims attaches verified claims to a context (exposed for tests).
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// TokenFromRequest extracts a credential from an HTTP request:
// Authorization bearer header first, then the session cookie. When
// allowQuery is true a "token" query parameter is also accepted, which
// browser WebSocket clients need since they cannot set headers.
func TokenFromRequest(r *http.Request, allowQuery bool) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if allowQuery {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return ""
}

// RequireAuth verifies the request credential and attaches the claims to
// the request context. Requests without a valid credential get a 401 and
// never reach the handler.
func (v *Verifier) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r, false)
		if token == "" {
			writeAuthError(w, "Not authenticated")
			return
		}

		claims, err := v.Verify(token)
		if err != nil {
			writeAuthError(w, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{
		"errors": {"auth": msg},
	})
}
