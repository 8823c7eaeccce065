// middleware.go

// Bearer token authentication middleware. Stateless: verification never touches the store.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/MGallo-Code/weddingkityaari/internal/httpx"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext retrieves the verified token claims.
// Returns nil and false if neither RequireAuth nor OptionalAuth attached any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

// WithClaims returns ctx carrying c. Exposed for handler tests.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// bearerToken extracts the token from "Authorization: Bearer <token>"; empty if absent.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth rejects requests without a valid bearer token:
// 401 when the token is missing, 403 when it fails verification.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.LogWarn(r, "require auth failed", "reason", "missing_token")
			httpx.Unauthorized(w, "access token required")
			return
		}
		claims, err := h.Tokens.Verify(token)
		if err != nil {
			httpx.LogWarn(r, "require auth failed", "reason", "invalid_token")
			httpx.Forbidden(w, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// OptionalAuth attaches claims when a valid token is present and never rejects.
func (h *AuthHandler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r); token != "" {
			if claims, err := h.Tokens.Verify(token); err == nil {
				r = r.WithContext(WithClaims(r.Context(), claims))
			} else {
				httpx.LogDebug(r, "optional auth ignored token", "reason", "invalid_token")
			}
		}
		next.ServeHTTP(w, r)
	})
}
