//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"talk2me/internal/apiclient"
	"talk2me/internal/domain"
	"talk2me/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T, m *session.Manager, username string) {
	t.Helper()
	_, err := m.Register(context.Background(), session.RegisterRequest{
		Username: username,
		Password: "password123",
		Email:    uniqueEmail(username),
	})
	require.NoError(t, err)
}

func TestAuth_RegisterLoginVerify(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	username := uniqueUsername("flow")

	var changes []session.AuthChange
	m.Subscribe(func(c session.AuthChange) { changes = append(changes, c) })

	register(t, m, username)
	assert.False(t, m.IsAuthenticated(ctx), "register must not log in")

	_, err := m.Login(ctx, username, "password123")
	require.NoError(t, err)

	assert.True(t, m.IsAuthenticated(ctx))
	profile := m.UserProfile(ctx)
	require.NotNil(t, profile)
	assert.Equal(t, username, profile.Username)
	assert.NotZero(t, profile.ID)

	raw, err := m.VerifyAuth(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Token is valid")

	require.Len(t, changes, 1)
	assert.True(t, changes[0].IsAuthenticated)
}

func TestAuth_DuplicateUsername(t *testing.T) {
	m := newManager(t)
	username := uniqueUsername("dup")
	register(t, m, username)

	_, err := m.Register(context.Background(), session.RegisterRequest{Username: username, Password: "password123"})

	apiErr, ok := apiclient.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "Username is already taken!", apiErr.Message)
}

func TestAuth_ValidationRejectedBeforeService(t *testing.T) {
	m := newManager(t)

	_, err := m.Register(context.Background(), session.RegisterRequest{Username: "ab", Password: "password123"})

	apiErr, ok := apiclient.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestAuth_InvalidCredentialsClearSession(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	username := uniqueUsername("badpw")
	register(t, m, username)

	_, err := m.Login(ctx, username, "wrong-password")
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
	assert.False(t, m.IsAuthenticated(ctx))
}

func TestAuth_RefreshRotatesTokens(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	username := uniqueUsername("refresh")
	register(t, m, username)

	_, err := m.Login(ctx, username, "password123")
	require.NoError(t, err)
	before := m.Token(ctx)

	// issued-at has second resolution
	time.Sleep(1100 * time.Millisecond)

	_, err = m.RefreshToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, m.Token(ctx))
	assert.Equal(t, username, m.UserProfile(ctx).Username)

	_, err = m.VerifyAuth(ctx)
	assert.NoError(t, err)
}

func TestAuth_RefreshTokenReplayRejected(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	username := uniqueUsername("replay")
	register(t, m, username)

	raw, err := m.Login(ctx, username, "password123")
	require.NoError(t, err)
	var login session.LoginResponse
	require.NoError(t, json.Unmarshal(raw, &login))

	_, err = m.RefreshToken(ctx)
	require.NoError(t, err)

	// a second client replaying the rotated refresh token is refused
	attacker := newManager(t)
	_, err = attacker.Gateway().Request(ctx, session.EndpointRefresh, http.MethodPost,
		map[string]string{"refresh_token": login.RefreshToken}, false)
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)

	assert.True(t, m.IsAuthenticated(ctx))
}

func TestAuth_VerifyWithoutTokenLogsOut(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	_, err := m.VerifyAuth(ctx)
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
	assert.False(t, m.IsAuthenticated(ctx))
}

func TestAuth_EventsPublished(t *testing.T) {
	ctx := context.Background()
	rec := startEventRecorder(t, "#")
	m := newManager(t)
	username := uniqueUsername("events")

	register(t, m, username)
	_, err := m.Login(ctx, username, "password123")
	require.NoError(t, err)
	_, err = m.RefreshToken(ctx)
	require.NoError(t, err)

	want := []string{domain.EventUserRegistered, domain.EventUserLoggedIn, domain.EventTokenRefreshed}
	require.Eventually(t, func() bool { return len(rec.forUser(username)) == len(want) }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, want, rec.forUser(username))
}

func TestAuth_EventBindingFilter(t *testing.T) {
	ctx := context.Background()
	rec := startEventRecorder(t, "user.*")
	m := newManager(t)
	username := uniqueUsername("filter")

	register(t, m, username)
	_, err := m.Login(ctx, username, "password123")
	require.NoError(t, err)
	_, err = m.RefreshToken(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.forUser(username)) == 2 }, 5*time.Second, 50*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.NotContains(t, rec.forUser(username), domain.EventTokenRefreshed)
}

func TestHealth_Ready(t *testing.T) {
	resp, err := http.Get(backend.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
