//go:build integration
// +build integration

package session_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"talk2me/internal/session"
	"talk2me/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) (string, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections"),
			wait.ForListeningPort("6379/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port()), cleanup
}

func TestRedisStorage_SharedSession(t *testing.T) {
	url, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	api := testutil.NewFakeAuthAPI(t)

	first, err := session.NewRedisStorage(ctx, url, "")
	require.NoError(t, err)
	defer first.Close()

	second, err := session.NewRedisStorage(ctx, url, "")
	require.NoError(t, err)
	defer second.Close()

	cli := session.NewManager(session.Config{BaseURL: api.URL(), Storage: first})
	web := session.NewManager(session.Config{BaseURL: api.URL(), Storage: second})

	t.Run("login_visible_to_other_process", func(t *testing.T) {
		_, err := cli.Login(ctx, "alice", "secret")
		require.NoError(t, err)

		assert.True(t, web.IsAuthenticated(ctx))
		assert.Equal(t, "AT1", web.Token(ctx))
		assert.Equal(t, "alice", web.UserProfile(ctx).Username)
	})

	t.Run("refresh_visible_to_other_process", func(t *testing.T) {
		_, err := web.RefreshToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "AT2", cli.Token(ctx))
	})

	t.Run("logout_clears_all_keys", func(t *testing.T) {
		require.NoError(t, cli.Logout(ctx))
		assert.False(t, web.IsAuthenticated(ctx))
		assert.Nil(t, web.UserProfile(ctx))
	})
}

func TestRedisStorage_PrefixIsolation(t *testing.T) {
	url, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()

	a, err := session.NewRedisStorage(ctx, url, "a:")
	require.NoError(t, err)
	defer a.Close()

	b, err := session.NewRedisStorage(ctx, url, "b:")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Set(ctx, session.KeyAccessToken, "AT1"))

	_, ok, err := b.Get(ctx, session.KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisStorage_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := session.NewRedisStorage(ctx, "redis://127.0.0.1:1/0", "")
	assert.Error(t, err)
}
