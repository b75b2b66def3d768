//go:build e2e

// Package e2e drives the auth server, the session client and the web
// companion together against real PostgreSQL and RabbitMQ containers.
package e2e

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"talk2me/internal/config"
	"talk2me/internal/domain"
	"talk2me/internal/messaging"
	"talk2me/internal/middleware"
	"talk2me/internal/repository/postgres"
	"talk2me/internal/security"
	"talk2me/internal/server"
	"talk2me/internal/service"
	"talk2me/internal/session"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const apiPrefix = "/talk2me/api/v1"

var (
	testDB      *sql.DB
	rmq         *messaging.RabbitMQ
	backend     *httptest.Server
	apiURL      string
	testContext context.Context
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	testContext = ctx

	cleanup, err := setupTestEnvironment(ctx)
	if err != nil {
		log.Fatalf("failed to setup test environment: %v", err)
	}

	code := m.Run()

	cleanup()
	cancel()

	os.Exit(code)
}

// setupTestEnvironment starts PostgreSQL, RabbitMQ and the auth server
func setupTestEnvironment(ctx context.Context) (func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	pgCleanup, connStr, err := startPostgres(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start PostgreSQL: %w", err)
	}
	cleanups = append(cleanups, pgCleanup)

	testDB, err = config.NewPostgresConnection(ctx, connStr)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanups = append(cleanups, func() { testDB.Close() })

	if err := postgres.Migrate(ctx, testDB); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	rmqCleanup, rmqURL, err := startRabbitMQ(ctx)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to start RabbitMQ: %w", err)
	}
	cleanups = append(cleanups, rmqCleanup)

	rmqCtx, rmqCancel := context.WithTimeout(ctx, 30*time.Second)
	rmq, err = messaging.NewRabbitMQWithRetry(rmqCtx, rmqURL, 6, time.Second)
	rmqCancel()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	cleanups = append(cleanups, func() { rmq.Close() })

	serverCleanup, err := setupAuthServer(testDB, rmq)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to setup auth server: %w", err)
	}
	cleanups = append(cleanups, serverCleanup)

	return cleanup, nil
}

// streamContainerLogs starts a goroutine that streams container logs to stdout with a prefix
func streamContainerLogs(ctx context.Context, container testcontainers.Container, prefix string) {
	go func() {
		reader, err := container.Logs(ctx)
		if err != nil {
			log.Printf("[%s] failed to get logs: %v", prefix, err)
			return
		}
		defer reader.Close()

		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			log.Printf("[%s] %s", prefix, scanner.Text())
		}

		if err := scanner.Err(); err != nil && err != io.EOF {
			log.Printf("[%s] log reader error: %v", prefix, err)
		}
	}()
}

func startPostgres(ctx context.Context) (func(), string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "talk2me",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}
	if os.Getenv("E2E_CONTAINER_LOGS") != "" {
		streamContainerLogs(ctx, container, "PostgreSQL")
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/talk2me?sslmode=disable", host, port.Port())
	return func() { container.Terminate(ctx) }, connStr, nil
}

func startRabbitMQ(ctx context.Context) (func(), string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.12-management-alpine",
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "guest",
			"RABBITMQ_DEFAULT_PASS": "guest",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Server startup complete"),
			wait.ForListeningPort("5672/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}
	if os.Getenv("E2E_CONTAINER_LOGS") != "" {
		streamContainerLogs(ctx, container, "RabbitMQ")
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}
	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		container.Terminate(ctx)
		return nil, "", err
	}

	url := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
	return func() { container.Terminate(ctx) }, url, nil
}

// setupAuthServer wires the production router over the containers.
func setupAuthServer(db *sql.DB, rmq *messaging.RabbitMQ) (func(), error) {
	cfg := &config.Config{
		ContextPath:       "/talk2me",
		APIBasePath:       "/api/v1",
		JWTSecret:         "e2e-secret-that-is-long-enough-for-hs256",
		AccessTokenTTL:    30 * time.Minute,
		RefreshTokenTTL:   24 * time.Hour,
		Environment:       "test",
		OpenAPIValidation: true,
		RateLimitRPS:      1000,
		RateLimitBurst:    1000,
		CORS:              middleware.DefaultCORSConfig(),
	}

	tokenRepo, err := postgres.NewRefreshTokenRepository(db)
	if err != nil {
		return nil, err
	}

	issuer := security.NewJWTIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := service.NewAuthService(postgres.NewUserRepository(db), tokenRepo, issuer, rmq)

	ctx, cancel := context.WithCancel(context.Background())
	backend = httptest.NewServer(server.NewRouter(ctx, server.Deps{
		Config: cfg,
		Auth:   authService,
		Tokens: issuer,
		DB:     db,
		Broker: rmq,
	}))
	apiURL = backend.URL + apiPrefix

	return func() {
		backend.Close()
		cancel()
		tokenRepo.Close()
	}, nil
}

// newManager builds a client session against the running server.
func newManager(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(session.Config{
		BaseURL:         apiURL,
		RefreshInterval: time.Hour,
		HTTPTimeout:     10 * time.Second,
	})
	t.Cleanup(m.StopAutoRefresh)
	return m
}

func uniqueUsername(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d@test.com", prefix, time.Now().UnixNano())
}

// eventRecorder collects auth events from a RabbitMQ consumer.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func startEventRecorder(t *testing.T, bindingKey string) *eventRecorder {
	t.Helper()

	rec := &eventRecorder{}
	ctx, cancel := context.WithCancel(testContext)
	t.Cleanup(cancel)

	consumer := messaging.NewEventConsumer(rmq, bindingKey, func(_ context.Context, e *domain.AuthEvent) {
		rec.mu.Lock()
		rec.events = append(rec.events, *e)
		rec.mu.Unlock()
	})
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	return rec
}

// forUser returns the event types seen for username, in arrival order.
func (r *eventRecorder) forUser(username string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, e := range r.events {
		if e.Username == username {
			types = append(types, e.Type)
		}
	}
	return types
}
