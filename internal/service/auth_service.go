package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"talk2me/internal/domain"
	"talk2me/internal/observability"
	"talk2me/internal/security"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

const defaultHashCost = 12

// TokenIssuer signs and validates the access/refresh token pair.
type TokenIssuer interface {
	IssueAccess(userID int64, username string) (*security.IssuedToken, error)
	IssueRefresh(userID int64, username string) (*security.IssuedToken, error)
	ParseRefresh(token string) (*security.Claims, error)
	AccessTTL() time.Duration
}

// AuthResult is what login and refresh hand back to the transport layer.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	User         *domain.User
}

type AuthService struct {
	userRepo  domain.UserRepository
	tokenRepo domain.RefreshTokenRepository
	tokens    TokenIssuer
	events    domain.EventPublisher
	hashCost  int
}

func NewAuthService(
	userRepo domain.UserRepository,
	tokenRepo domain.RefreshTokenRepository,
	tokens TokenIssuer,
	events domain.EventPublisher,
) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		tokens:    tokens,
		events:    events,
		hashCost:  defaultHashCost,
	}
}

// Register creates an enabled account. Email may be empty.
func (s *AuthService) Register(ctx context.Context, username, password, email string) (*domain.User, error) {
	user, err := s.register(ctx, username, password, email)
	recordOperation("register", err)
	return user, err
}

func (s *AuthService) register(ctx context.Context, username, password, email string) (*domain.User, error) {
	if err := validateRegistration(username, password, email); err != nil {
		return nil, err
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrUsernameExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Enabled:      true,
	}

	// A concurrent registration can still win the race; the unique
	// constraint reports it as ErrUsernameExists.
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventUserRegistered, user)
	return user, nil
}

func validateRegistration(username, password, email string) error {
	if len(username) < 3 || len(username) > 50 {
		return fmt.Errorf("%w: username must be between 3 and 50 characters", domain.ErrInvalidInput)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: username may only contain letters, digits and underscores", domain.ErrInvalidInput)
	}
	if len(password) < 6 || len(password) > 100 {
		return fmt.Errorf("%w: password must be between 6 and 100 characters", domain.ErrInvalidInput)
	}
	if email != "" && (len(email) > 100 || !emailRegex.MatchString(email)) {
		return fmt.Errorf("%w: email is not valid", domain.ErrInvalidInput)
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	result, err := s.login(ctx, username, password)
	recordOperation("login", err)
	return result, err
}

func (s *AuthService) login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(user.PasswordHash), []byte(password),
	); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.Enabled {
		return nil, domain.ErrAccountDisabled
	}

	access, refresh, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.tokenRepo.Create(ctx, &domain.RefreshToken{
		ID:        refresh.ID,
		UserID:    user.ID,
		ExpiresAt: refresh.ExpiresAt,
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventUserLoggedIn, user)
	return s.result(access, refresh, user), nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked; presenting it again fails with ErrInvalidToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	result, err := s.refresh(ctx, refreshToken)
	recordOperation("refresh", err)
	return result, err
}

func (s *AuthService) refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !user.Enabled {
		return nil, domain.ErrAccountDisabled
	}

	access, refresh, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	err = s.tokenRepo.Rotate(ctx, claims.ID, &domain.RefreshToken{
		ID:        refresh.ID,
		UserID:    user.ID,
		ExpiresAt: refresh.ExpiresAt,
	})
	if errors.Is(err, domain.ErrRefreshTokenNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventTokenRefreshed, user)
	return s.result(access, refresh, user), nil
}

// Verify resolves the subject of an already validated access token.
func (s *AuthService) Verify(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		err = domain.ErrInvalidToken
	}
	if err == nil && !user.Enabled {
		err = domain.ErrAccountDisabled
	}
	recordOperation("verify", err)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CleanupExpiredTokens removes refresh token records past their expiry.
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokenRepo.DeleteExpired(ctx)
}

func (s *AuthService) issuePair(user *domain.User) (*security.IssuedToken, *security.IssuedToken, error) {
	access, err := s.tokens.IssueAccess(user.ID, user.Username)
	if err != nil {
		return nil, nil, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID, user.Username)
	if err != nil {
		return nil, nil, err
	}
	return access, refresh, nil
}

func (s *AuthService) result(access, refresh *security.IssuedToken, user *domain.User) *AuthResult {
	return &AuthResult{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		ExpiresIn:    s.tokens.AccessTTL(),
		User:         user,
	}
}

func (s *AuthService) publish(ctx context.Context, eventType string, user *domain.User) {
	if s.events == nil {
		return
	}

	event := &domain.AuthEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     user.ID,
		Username:   user.Username,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.PublishAuthEvent(ctx, event); err != nil {
		observability.FromContext(ctx).Warn("failed to publish auth event",
			slog.String("type", eventType),
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
	}
}

func recordOperation(operation string, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidInput):
		result = "invalid_input"
	case errors.Is(err, domain.ErrUsernameExists), errors.Is(err, domain.ErrEmailExists):
		result = "conflict"
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrInvalidToken):
		result = "rejected"
	case errors.Is(err, domain.ErrAccountDisabled):
		result = "disabled"
	default:
		result = "error"
	}
	observability.AuthOperationsTotal.WithLabelValues(operation, result).Inc()
}
