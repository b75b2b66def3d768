package domain

import (
	"context"
	"time"
)

// Auth event types, also used as AMQP routing keys.
const (
	EventUserRegistered = "user.registered"
	EventUserLoggedIn   = "user.logged_in"
	EventTokenRefreshed = "token.refreshed"
)

// AuthEvent is emitted after a successful authentication operation.
type AuthEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers auth events. Delivery failures must not fail the
// operation that produced the event.
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, event *AuthEvent) error
}
