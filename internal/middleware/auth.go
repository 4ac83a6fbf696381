package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kubesec-bank/webbank/internal/auth"
	"github.com/kubesec-bank/webbank/internal/models"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const (
	claimsContextKey contextKey = "claims"
	tokenContextKey  contextKey = "token"
)

// TokenCookie is the cookie consulted when no Authorization header is sent.
const TokenCookie = "token"

// Authenticator validates a raw access token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// AdminChecker reports whether a principal holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, p models.Principal) (bool, error)
}

// JWTAuth returns middleware that validates the bearer token (header or
// cookie) and injects the parsed claims into the request context.
func JWTAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := extractToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := authn.Authenticate(r.Context(), tokenStr)
			switch {
			case errors.Is(err, models.ErrStoreUnavailable):
				writeError(w, http.StatusServiceUnavailable, models.ErrStoreUnavailable.Error())
				return
			case err != nil:
				writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			ctx = context.WithValue(ctx, tokenContextKey, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers whose principal is not an administrator. It
// must run after JWTAuth.
func RequireAdmin(checker AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			admin, err := checker.IsAdmin(r.Context(), claims.Principal)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, models.ErrStoreUnavailable.Error())
				return
			}
			if !admin {
				writeError(w, http.StatusForbidden, models.ErrForbidden.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

// GetToken returns the raw token the request was authenticated with.
func GetToken(ctx context.Context) string {
	if v, ok := ctx.Value(tokenContextKey).(string); ok {
		return v
	}
	return ""
}

func extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", errors.New("invalid authorization format")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errors.New("missing authorization header")
}
