package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"talk2me/internal/apiclient"
	"talk2me/internal/observability"
)

// Backend endpoints, relative to the API base URL.
const (
	EndpointLogin        = "/auth/login"
	EndpointRegister     = "/auth/register"
	EndpointRefresh      = "/auth/refresh"
	EndpointVerification = "/auth/verification"
)

// Config wires a Manager. Storage defaults to a MemoryStorage.
type Config struct {
	BaseURL         string
	Storage         Storage
	RefreshInterval time.Duration
	HTTPTimeout     time.Duration
	HTTPClient      *http.Client
}

// Manager is the single owner of one client's session. Build one per process
// and pass it by reference. The web companion shares its Manager with the one
// browser that signed in through it.
type Manager struct {
	store     *Store
	notifier  *Notifier
	gateway   *apiclient.Client
	refresher *Refresher
}

func NewManager(cfg Config) *Manager {
	storage := cfg.Storage
	if storage == nil {
		storage = NewMemoryStorage()
	}

	m := &Manager{
		store:    NewStore(storage),
		notifier: NewNotifier(),
	}

	var opts []apiclient.Option
	if cfg.HTTPClient != nil {
		opts = append(opts, apiclient.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.HTTPTimeout > 0 {
		opts = append(opts, apiclient.WithTimeout(cfg.HTTPTimeout))
	}

	m.gateway = apiclient.New(cfg.BaseURL, m.store, m.handleUnauthorized, opts...)
	m.refresher = NewRefresher(cfg.RefreshInterval, func(ctx context.Context) error {
		_, err := m.RefreshToken(ctx)
		return err
	})

	return m
}

// LoginResponse is the part of the login body the session cares about. The
// profile comes from User; a bare Username is accepted when User is absent.
type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *UserProfile `json:"user"`
	Username     string       `json:"username"`
}

// Profile merges the two optional profile fields.
func (r LoginResponse) Profile() *UserProfile {
	if r.User != nil {
		return r.User
	}
	if r.Username != "" {
		return &UserProfile{Username: r.Username}
	}
	return nil
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// Login authenticates and persists whatever credentials the response carries,
// then announces the authenticated state once.
func (m *Manager) Login(ctx context.Context, username, password string) (json.RawMessage, error) {
	raw, err := m.gateway.Request(ctx, EndpointLogin, http.MethodPost, map[string]string{
		"username": username,
		"password": password,
	}, false)
	if err != nil {
		slog.Warn("login failed",
			slog.String("username", username),
			slog.String("error", err.Error()))
		return nil, err
	}

	// fields missing from the body are skipped, so a body that is not an
	// object persists nothing
	var resp LoginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		slog.Warn("login response carries no credentials", slog.String("error", err.Error()))
		resp = LoginResponse{}
	}

	profile := resp.Profile()
	if err := m.store.Save(ctx, resp.AccessToken, resp.RefreshToken, profile); err != nil {
		return nil, err
	}

	if profile == nil {
		profile = m.store.UserProfile(ctx)
	}
	m.publish(true, profile)

	slog.Info("logged in", slog.String("username", username))
	return raw, nil
}

// Register creates an account. It never logs the caller in.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (json.RawMessage, error) {
	return m.gateway.Request(ctx, EndpointRegister, http.MethodPost, req, false)
}

// RefreshToken exchanges the stored refresh token for new tokens. Any failure
// logs the session out before the error is returned.
func (m *Manager) RefreshToken(ctx context.Context) (json.RawMessage, error) {
	refreshToken := m.store.RefreshToken(ctx)
	if refreshToken == "" {
		observability.ClientTokenRefreshTotal.WithLabelValues("no_refresh_token").Inc()
		m.forceLogout(ctx)
		return nil, apiclient.NewNoRefreshTokenError()
	}

	raw, err := m.gateway.Request(ctx, EndpointRefresh, http.MethodPost, map[string]string{
		"refresh_token": refreshToken,
	}, false)
	if err != nil {
		observability.ClientTokenRefreshTotal.WithLabelValues("failure").Inc()
		m.forceLogout(ctx)
		return nil, err
	}

	var resp refreshResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		observability.ClientTokenRefreshTotal.WithLabelValues("failure").Inc()
		m.forceLogout(ctx)
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	if err := m.store.Save(ctx, resp.AccessToken, resp.RefreshToken, nil); err != nil {
		observability.ClientTokenRefreshTotal.WithLabelValues("failure").Inc()
		m.forceLogout(ctx)
		return nil, err
	}

	observability.ClientTokenRefreshTotal.WithLabelValues("success").Inc()
	slog.Debug("token refreshed")
	return raw, nil
}

// VerifyAuth asks the backend to confirm the current access token. Failures
// are returned as-is; a 401 still clears the session through the gateway.
func (m *Manager) VerifyAuth(ctx context.Context) (json.RawMessage, error) {
	return m.gateway.Request(ctx, EndpointVerification, http.MethodPost, nil, true)
}

// Logout clears the session and announces the unauthenticated state. Calling
// it while logged out repeats the same announcement.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	m.publish(false, nil)
	return nil
}

func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	return m.store.IsAuthenticated(ctx)
}

func (m *Manager) Token(ctx context.Context) string {
	return m.store.Token(ctx)
}

func (m *Manager) UserProfile(ctx context.Context) *UserProfile {
	return m.store.UserProfile(ctx)
}

// UpdateUserProfile replaces the stored profile. It does not notify.
func (m *Manager) UpdateUserProfile(ctx context.Context, profile *UserProfile) error {
	return m.store.UpdateUserProfile(ctx, profile)
}

func (m *Manager) ClearUserProfile(ctx context.Context) error {
	return m.store.ClearUserProfile(ctx)
}

// Subscribe registers fn for every future AuthChange.
func (m *Manager) Subscribe(fn func(AuthChange)) func() {
	return m.notifier.Subscribe(fn)
}

func (m *Manager) StartAutoRefresh() {
	m.refresher.Start()
}

func (m *Manager) StopAutoRefresh() {
	m.refresher.Stop()
}

// AutoRefreshPending reports whether a scheduled refresh is waiting to fire.
func (m *Manager) AutoRefreshPending() bool {
	return m.refresher.Pending()
}

// Gateway exposes the request gateway for callers that need endpoints the
// Manager does not wrap.
func (m *Manager) Gateway() *apiclient.Client {
	return m.gateway
}

func (m *Manager) handleUnauthorized(ctx context.Context) {
	slog.Warn("received 401, clearing session")
	m.forceLogout(ctx)
}

func (m *Manager) forceLogout(ctx context.Context) {
	if err := m.Logout(ctx); err != nil {
		slog.Error("failed to clear session", slog.String("error", err.Error()))
	}
}

func (m *Manager) publish(isAuthenticated bool, profile *UserProfile) {
	state := "unauthenticated"
	if isAuthenticated {
		state = "authenticated"
	}
	observability.ClientAuthChangesTotal.WithLabelValues(state).Inc()
	m.notifier.Publish(isAuthenticated, profile)
}
