package middleware

import (
	"context"
	"net/http"
	"strings"

	"talk2me/internal/observability"
	"talk2me/internal/security"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// AccessTokenParser validates an access token and returns its claims.
type AccessTokenParser interface {
	ParseAccess(token string) (*security.Claims, error)
}

// Auth requires a valid bearer access token and stores its claims in the
// request context.
func Auth(parser AccessTokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized", CodeUnauthorized)
				return
			}

			claims, err := parser.ParseAccess(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", CodeUnauthorized)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = observability.WithUsername(ctx, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func GetClaims(ctx context.Context) (*security.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*security.Claims)
	return claims, ok
}

func WithClaims(ctx context.Context, claims *security.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}
