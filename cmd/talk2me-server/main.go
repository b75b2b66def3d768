package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talk2me/internal/config"
	"talk2me/internal/domain"
	"talk2me/internal/handler"
	"talk2me/internal/messaging"
	"talk2me/internal/observability"
	"talk2me/internal/repository/postgres"
	"talk2me/internal/security"
	"talk2me/internal/server"
	"talk2me/internal/service"
)

func main() {
	observability.InitLogger(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "json"))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("starting talk2me auth server",
		slog.String("environment", cfg.Environment),
		slog.String("api_prefix", cfg.APIPrefix()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := config.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgresql")

	if err := postgres.Migrate(ctx, db); err != nil {
		slog.Error("failed to apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	userRepo := postgres.NewUserRepository(db)
	tokenRepo, err := postgres.NewRefreshTokenRepository(db)
	if err != nil {
		slog.Error("failed to prepare refresh token statements", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer tokenRepo.Close()

	var (
		events domain.EventPublisher = messaging.NopPublisher{}
		broker handler.BrokerStatus
	)
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL, 6, time.Second)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		events, broker = rmq, rmq
		slog.Info("auth events published to rabbitmq", slog.String("exchange", messaging.AuthEventsExchange))
	} else {
		slog.Info("RABBITMQ_URL not set, auth events disabled")
	}

	issuer := security.NewJWTIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := service.NewAuthService(userRepo, tokenRepo, issuer, events)

	go startTokenCleanup(ctx, authService)
	slog.Info("refresh token cleanup task started")

	router := server.NewRouter(ctx, server.Deps{
		Config: cfg,
		Auth:   authService,
		Tokens: issuer,
		DB:     db,
		Broker: broker,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("auth server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()

	slog.Info("server stopped gracefully")
}

// startTokenCleanup deletes expired refresh token records hourly
func startTokenCleanup(ctx context.Context, authService *service.AuthService) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping refresh token cleanup task")
			return
		case <-ticker.C:
			count, err := authService.CleanupExpiredTokens(ctx)
			if err != nil {
				slog.Error("failed to cleanup expired refresh tokens", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				slog.Info("cleaned up expired refresh tokens", slog.Int64("count", count))
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
