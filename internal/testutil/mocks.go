// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the talk2me packages.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"talk2me/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
)

// MockUserRepository implements domain.UserRepository for testing
type MockUserRepository struct {
	mu     sync.RWMutex
	nextID int64

	// Function overrides - set these to customize behavior
	CreateFunc           func(ctx context.Context, user *domain.User) error
	GetByIDFunc          func(ctx context.Context, id int64) (*domain.User, error)
	GetByUsernameFunc    func(ctx context.Context, username string) (*domain.User, error)
	ExistsByUsernameFunc func(ctx context.Context, username string) (bool, error)

	// In-memory storage for simple tests
	Users map[int64]*domain.User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[int64]*domain.User),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Users == nil {
		m.Users = make(map[int64]*domain.User)
	}

	for _, u := range m.Users {
		if u.Username == user.Username {
			return domain.ErrUsernameExists
		}
		if user.Email != "" && u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}

	if user.ID == 0 {
		m.nextID++
		user.ID = m.nextID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
		user.UpdatedAt = user.CreatedAt
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if m.ExistsByUsernameFunc != nil {
		return m.ExistsByUsernameFunc(ctx, username)
	}
	_, err := m.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

// MockRefreshTokenRepository implements domain.RefreshTokenRepository for testing
type MockRefreshTokenRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc        func(ctx context.Context, token *domain.RefreshToken) error
	RotateFunc        func(ctx context.Context, oldID string, next *domain.RefreshToken) error
	DeleteExpiredFunc func(ctx context.Context) (int64, error)

	// In-memory storage
	Tokens map[string]*domain.RefreshToken
}

func NewMockRefreshTokenRepository() *MockRefreshTokenRepository {
	return &MockRefreshTokenRepository{
		Tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *MockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Tokens == nil {
		m.Tokens = make(map[string]*domain.RefreshToken)
	}
	token.CreatedAt = time.Now()
	m.Tokens[token.ID] = token
	return nil
}

func (m *MockRefreshTokenRepository) GetActive(ctx context.Context, id string) (*domain.RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.Tokens[id]
	if !ok || token.RevokedAt != nil || !token.ExpiresAt.After(time.Now()) {
		return nil, domain.ErrRefreshTokenNotFound
	}
	return token, nil
}

func (m *MockRefreshTokenRepository) Rotate(ctx context.Context, oldID string, next *domain.RefreshToken) error {
	if m.RotateFunc != nil {
		return m.RotateFunc(ctx, oldID, next)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	old, ok := m.Tokens[oldID]
	if !ok || old.RevokedAt != nil || !old.ExpiresAt.After(now) {
		return domain.ErrRefreshTokenNotFound
	}
	old.RevokedAt = &now
	next.CreatedAt = now
	m.Tokens[next.ID] = next
	return nil
}

func (m *MockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	now := time.Now()
	for _, token := range m.Tokens {
		if token.UserID == userID && token.RevokedAt == nil {
			token.RevokedAt = &now
			count++
		}
	}
	return count, nil
}

func (m *MockRefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	now := time.Now()
	for id, token := range m.Tokens {
		if !token.ExpiresAt.After(now) {
			delete(m.Tokens, id)
			count++
		}
	}
	return count, nil
}

// MockEventPublisher implements domain.EventPublisher and records events
type MockEventPublisher struct {
	mu sync.RWMutex

	PublishFunc func(ctx context.Context, event *domain.AuthEvent) error

	Events []*domain.AuthEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishAuthEvent(ctx context.Context, event *domain.AuthEvent) error {
	m.mu.Lock()
	m.Events = append(m.Events, event)
	m.mu.Unlock()

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, event)
	}
	return nil
}

// EventTypes returns the recorded event types in publish order
func (m *MockEventPublisher) EventTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]string, 0, len(m.Events))
	for _, e := range m.Events {
		types = append(types, e.Type)
	}
	return types
}
