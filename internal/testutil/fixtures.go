package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"talk2me/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

// Counter for generating unique usernames
var idCounter atomic.Int64

// TestPassword is the plaintext behind users built with WithPassword defaults.
const TestPassword = "secret123"

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	Username     string
	Email        string
	PasswordHash string
	Disabled     bool
}

// NewTestUser creates an enabled user whose password hash is empty unless
// WithPassword is given. ID is left for the repository to assign.
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{
		Username: fmt.Sprintf("testuser%d", idCounter.Add(1)),
	}

	for _, opt := range opts {
		opt(o)
	}

	return &domain.User{
		Username:     o.Username,
		Email:        o.Email,
		PasswordHash: o.PasswordHash,
		Enabled:      !o.Disabled,
	}
}

func WithUsername(username string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Username = username
	}
}

func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Email = email
	}
}

// WithPassword stores a low-cost bcrypt hash of password.
func WithPassword(t *testing.T, password string) func(*UserOptions) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return func(o *UserOptions) {
		o.PasswordHash = string(hash)
	}
}

func WithDisabled() func(*UserOptions) {
	return func(o *UserOptions) {
		o.Disabled = true
	}
}
