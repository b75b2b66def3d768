package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrInvalidToken         = errors.New("invalid token")
)

// RefreshToken is the server-side record of an issued refresh token. ID is
// the token's jti claim; a token is usable while it is neither revoked nor
// expired.
type RefreshToken struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// RefreshTokenRepository defines the interface for refresh token data access
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetActive(ctx context.Context, id string) (*RefreshToken, error)
	// Rotate revokes oldID and stores next atomically. It fails with
	// ErrRefreshTokenNotFound if oldID is no longer active.
	Rotate(ctx context.Context, oldID string, next *RefreshToken) error
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}
