package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"talk2me/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AuthEventsExchange is a durable topic exchange; routing keys are the
// domain event types.
const AuthEventsExchange = "auth.events"

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials up to attempts times, doubling the delay
// between tries, so the server can start before the broker is ready.
func NewRabbitMQWithRetry(ctx context.Context, url string, attempts int, delay time.Duration) (*RabbitMQ, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}
		lastErr = err

		if i == attempts {
			break
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", i),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("rabbitmq unavailable after %d attempts: %w", attempts, lastErr)
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		AuthEventsExchange, // name
		"topic",            // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", AuthEventsExchange, err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// PublishAuthEvent implements domain.EventPublisher.
func (r *RabbitMQ) PublishAuthEvent(ctx context.Context, event *domain.AuthEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.channel.PublishWithContext(
		ctx,
		AuthEventsExchange,
		event.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Type:         event.Type,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("published auth event",
		slog.String("type", event.Type),
		slog.String("username", event.Username))
	return nil
}

// Channel opens an additional channel on the shared connection.
func (r *RabbitMQ) Channel() (*amqp.Channel, error) {
	return r.conn.Channel()
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// NopPublisher discards events. It stands in when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishAuthEvent(context.Context, *domain.AuthEvent) error {
	return nil
}
