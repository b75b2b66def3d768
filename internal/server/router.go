// Package server assembles the auth backend's HTTP routes.
package server

import (
	"context"
	"net/http"

	"talk2me/api"
	"talk2me/internal/config"
	"talk2me/internal/handler"
	"talk2me/internal/middleware"
	"talk2me/internal/service"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Config *config.Config
	Auth   *service.AuthService
	Tokens middleware.AccessTokenParser
	DB     handler.Pinger
	// Broker is nil when event publishing is disabled.
	Broker handler.BrokerStatus
}

// NewRouter builds the backend handler. ctx bounds background work such as
// the rate limiter's cleanup loop.
func NewRouter(ctx context.Context, deps Deps) http.Handler {
	cfg := deps.Config
	authHandler := handler.NewAuthHandler(deps.Auth)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.LogContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(deps.DB, deps.Broker))
	r.Handle("/metrics", promhttp.Handler())

	credentialLimiter := middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)

	mountAPI := func(r chi.Router) {
		r.Use(middleware.OpenAPIValidator(middleware.OpenAPIValidatorConfig{
			Enabled:  cfg.OpenAPIValidation,
			Spec:     api.OpenAPISpec,
			BasePath: cfg.APIPrefix(),
		}))

		r.Group(func(r chi.Router) {
			r.Use(credentialLimiter.Middleware())
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/refresh", authHandler.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.Tokens))
			r.Post("/auth/verification", authHandler.Verify)
		})
	}

	if prefix := cfg.APIPrefix(); prefix != "" {
		r.Route(prefix, mountAPI)
	} else {
		r.Group(mountAPI)
	}

	return r
}
