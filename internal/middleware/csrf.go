package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"talk2me/internal/security"
)

// CSRFTokenSource returns the token the request is expected to echo back.
type CSRFTokenSource func(r *http.Request) (string, bool)

// CSRF validates tokens on state-changing requests.
//
// Token sources (checked in order):
//   - Form field: csrf_token
//   - Header: X-CSRF-Token
//   - Header: X-XSRF-Token
func CSRF(expected CSRFTokenSource, tm *security.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			want, ok := expected(r)
			if !ok {
				logCSRFFailure(r, "no token issued")
				writeError(w, http.StatusForbidden, "Forbidden", CodeForbidden)
				return
			}

			submitted := extractCSRFToken(r)
			if submitted == "" {
				logCSRFFailure(r, "missing token")
				writeError(w, http.StatusForbidden, "Forbidden", CodeForbidden)
				return
			}

			if err := tm.Verify(want, submitted); err != nil {
				logCSRFFailure(r, "invalid token")
				writeError(w, http.StatusForbidden, "Forbidden", CodeForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CookieTokenSource reads the expected token from the named cookie.
func CookieTokenSource(name string) CSRFTokenSource {
	return func(r *http.Request) (string, bool) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return "", false
		}
		return c.Value, true
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isExemptPath(path string) bool {
	for _, prefix := range []string{"/health", "/metrics", "/ws/"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func extractCSRFToken(r *http.Request) string {
	if token := r.FormValue("csrf_token"); token != "" {
		return token
	}
	if token := r.Header.Get("X-CSRF-Token"); token != "" {
		return token
	}
	return r.Header.Get("X-XSRF-Token")
}

func logCSRFFailure(r *http.Request, reason string) {
	slog.Warn("CSRF validation failed",
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.RequestURI),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
