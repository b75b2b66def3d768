package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultCORSOrigins is used when no origins are configured, and when a
// wildcard is combined with credentials.
var DefaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:8080"}

// CORSConfig mirrors the CORS_* settings.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins:   slices.Clone(DefaultCORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   DefaultExposedHeaders(),
		AllowCredentials: true,
		MaxAge:           time.Hour,
	}
}

func DefaultExposedHeaders() []string {
	return []string{
		"Authorization",
		"Content-Type",
		"X-Requested-With",
		"accept",
		"Origin",
		"Access-Control-Request-Method",
		"Access-Control-Request-Headers",
	}
}

// Normalize fills empty lists with defaults. Browsers reject a wildcard
// origin on credentialed responses, so "*" with credentials falls back to
// the default origins.
func (c CORSConfig) Normalize() CORSConfig {
	def := DefaultCORSConfig()
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = def.AllowedOrigins
	}
	if c.AllowCredentials && slices.Contains(c.AllowedOrigins, "*") {
		c.AllowedOrigins = def.AllowedOrigins
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = def.AllowedMethods
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = def.AllowedHeaders
	}
	if c.ExposedHeaders == nil {
		c.ExposedHeaders = def.ExposedHeaders
	}
	if c.MaxAge < 0 {
		c.MaxAge = 0
	}
	return c
}

// CORS answers preflight requests itself and decorates actual requests from
// allowed origins. A preflight from an unknown origin is rejected with 403.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	cfg = cfg.Normalize()
	wildcard := slices.Contains(cfg.AllowedOrigins, "*")
	methods := strings.Join(cfg.AllowedMethods, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")

			allowed := wildcard || slices.Contains(cfg.AllowedOrigins, origin)
			if !allowed {
				if preflight {
					writeError(w, http.StatusForbidden, "Invalid CORS request", CodeCORSRejected)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}

			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", methods)
			if slices.Contains(cfg.AllowedHeaders, "*") {
				if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
					h.Set("Access-Control-Allow-Headers", requested)
				}
			} else {
				h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
			}
			h.Set("Access-Control-Max-Age", maxAge)
			w.WriteHeader(http.StatusOK)
		})
	}
}

// ParseList splits a comma-separated setting, trimming blanks.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
