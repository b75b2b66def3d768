package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"talk2me/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventHandler receives decoded auth events on the consumer goroutine.
type EventHandler func(ctx context.Context, event *domain.AuthEvent)

// EventConsumer binds a private, auto-deleted queue to the auth events
// exchange and dispatches each event to a handler.
type EventConsumer struct {
	rmq        *RabbitMQ
	bindingKey string
	handler    EventHandler
}

// NewEventConsumer creates a consumer. An empty bindingKey receives all
// events.
func NewEventConsumer(rmq *RabbitMQ, bindingKey string, handler EventHandler) *EventConsumer {
	if bindingKey == "" {
		bindingKey = "#"
	}
	return &EventConsumer{
		rmq:        rmq,
		bindingKey: bindingKey,
		handler:    handler,
	}
}

// Start declares the queue and begins consuming. Consumption stops when ctx
// is done or the channel closes.
func (c *EventConsumer) Start(ctx context.Context) error {
	ch, err := c.rmq.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	queue, err := ch.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(queue.Name, c.bindingKey, AuthEventsExchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming auth events",
		slog.String("queue", queue.Name),
		slog.String("binding_key", c.bindingKey))

	go c.loop(ctx, ch, msgs)
	return nil
}

func (c *EventConsumer) loop(ctx context.Context, ch *amqp.Channel, msgs <-chan amqp.Delivery) {
	defer ch.Close()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping auth event consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("auth event consumer channel closed")
				return
			}

			event, err := decodeEvent(msg.Body)
			if err != nil {
				slog.Error("dropping malformed auth event",
					slog.String("error", err.Error()),
					slog.Int("body_size", len(msg.Body)))
				continue
			}

			c.handler(ctx, event)
		}
	}
}

func decodeEvent(body []byte) (*domain.AuthEvent, error) {
	var event domain.AuthEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("event has no type")
	}
	return &event, nil
}
