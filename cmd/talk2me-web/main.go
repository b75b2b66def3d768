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
	"talk2me/internal/messaging"
	"talk2me/internal/observability"
	"talk2me/internal/session"
	"talk2me/internal/web"
	"talk2me/internal/websocket"
)

func main() {
	observability.InitLogger(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "text"))

	cfg, err := config.LoadClient()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, closeStorage, err := session.OpenStorage(ctx, cfg.RedisURL, func() (session.Storage, error) {
		return session.NewMemoryStorage(), nil
	})
	if err != nil {
		slog.Error("failed to open session storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStorage()

	manager := session.NewManager(session.Config{
		BaseURL:         cfg.APIURL,
		Storage:         storage,
		RefreshInterval: cfg.RefreshInterval,
		HTTPTimeout:     cfg.HTTPTimeout,
	})
	defer manager.StopAutoRefresh()

	// a session restored from Redis keeps refreshing
	if manager.IsAuthenticated(ctx) {
		manager.StartAutoRefresh()
	}

	hub := websocket.NewHub()
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("websocket hub stopped", slog.String("error", err.Error()))
		}
	}()

	srv, err := web.New(web.Config{
		Manager:       manager,
		Hub:           hub,
		SecureCookies: getEnv("TALK2ME_SECURE_COOKIES", "false") == "true",
	})
	if err != nil {
		slog.Error("failed to build web server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	unsubscribe := srv.Start()
	defer unsubscribe()

	if cfg.RabbitMQURL != "" {
		rmq, err := messaging.NewRabbitMQWithRetry(ctx, cfg.RabbitMQURL, 6, time.Second)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		consumer := messaging.NewEventConsumer(rmq, "#", srv.RelayEvent)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("failed to start auth event consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("relaying backend auth events", slog.String("exchange", messaging.AuthEventsExchange))
	}

	httpSrv := &http.Server{
		Addr:         cfg.WebAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("web companion listening",
			slog.String("addr", cfg.WebAddr),
			slog.String("api_url", cfg.APIURL))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down web companion")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	slog.Info("web companion stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
