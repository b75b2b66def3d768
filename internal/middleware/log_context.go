package middleware

import (
	"net/http"

	"talk2me/internal/observability"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// LogContext copies chi's request ID into the context read by
// observability.FromContext. It must run after chimiddleware.RequestID.
func LogContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
