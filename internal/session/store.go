// Package session owns a client's authenticated session: the persisted
// tokens and profile, change notifications, the authentication operations
// against the backend and the auto-refresh timer.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Storage keys. They match what earlier clients wrote, so existing sessions
// keep working.
const (
	KeyAccessToken  = "auth_token"
	KeyRefreshToken = "refresh_token"
	KeyUserInfo     = "user_info"
)

// UserProfile is the user descriptor kept alongside the tokens.
type UserProfile struct {
	Username string `json:"username"`
	ID       int64  `json:"id,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Store reads and writes the session entries. It never notifies; that is the
// Manager's job.
type Store struct {
	storage Storage
}

func NewStore(storage Storage) *Store {
	return &Store{storage: storage}
}

// Save writes each provided field. An empty token or nil profile leaves the
// stored value unchanged.
func (s *Store) Save(ctx context.Context, accessToken, refreshToken string, profile *UserProfile) error {
	if accessToken != "" {
		if err := s.storage.Set(ctx, KeyAccessToken, accessToken); err != nil {
			return fmt.Errorf("failed to save access token: %w", err)
		}
	}
	if refreshToken != "" {
		if err := s.storage.Set(ctx, KeyRefreshToken, refreshToken); err != nil {
			return fmt.Errorf("failed to save refresh token: %w", err)
		}
	}
	if profile != nil {
		if err := s.UpdateUserProfile(ctx, profile); err != nil {
			return err
		}
	}
	return nil
}

// IsAuthenticated reports whether a non-empty access token is stored.
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	return s.Token(ctx) != ""
}

func (s *Store) Token(ctx context.Context) string {
	return s.read(ctx, KeyAccessToken)
}

func (s *Store) RefreshToken(ctx context.Context) string {
	return s.read(ctx, KeyRefreshToken)
}

// UserProfile returns nil when no profile is stored or it fails to decode.
func (s *Store) UserProfile(ctx context.Context) *UserProfile {
	raw := s.read(ctx, KeyUserInfo)
	if raw == "" {
		return nil
	}

	var p UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		slog.Warn("discarding malformed stored profile", slog.String("error", err.Error()))
		return nil
	}
	return &p
}

// UpdateUserProfile replaces the stored profile wholesale.
func (s *Store) UpdateUserProfile(ctx context.Context, profile *UserProfile) error {
	if profile == nil {
		return s.ClearUserProfile(ctx)
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := s.storage.Set(ctx, KeyUserInfo, string(data)); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *Store) ClearUserProfile(ctx context.Context) error {
	if err := s.storage.Delete(ctx, KeyUserInfo); err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	return nil
}

// Clear removes tokens and profile in one storage call.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyUserInfo); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// read treats a storage failure as an absent entry.
func (s *Store) read(ctx context.Context, key string) string {
	v, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		slog.Warn("failed to read session entry",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return ""
	}
	if !ok {
		return ""
	}
	return v
}
