//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"talk2me/internal/domain"
	"talk2me/internal/messaging"
	"talk2me/internal/web"
	"talk2me/internal/websocket"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readUntil(t *testing.T, conn *gorillaws.Conn, msgType string) wsMessage {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg wsMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

// TestWeb_LoginRelaysBackendActivity signs in through the web companion and
// expects the backend's login event back on the browser socket.
func TestWeb_LoginRelaysBackendActivity(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext)
	defer cancel()

	username := uniqueUsername("web")
	m := newManager(t)
	register(t, m, username)

	hub := websocket.NewHub()
	go hub.Run(ctx)

	srv, err := web.New(web.Config{Manager: m, Hub: hub})
	require.NoError(t, err)
	defer srv.Start()()

	consumer := messaging.NewEventConsumer(rmq, domain.EventUserLoggedIn, srv.RelayEvent)
	require.NoError(t, consumer.Start(ctx))

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(ts.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()

	u, _ := url.Parse(ts.URL)
	cookie := func(name string) string {
		for _, c := range jar.Cookies(u) {
			if c.Name == name {
				return c.Value
			}
		}
		return ""
	}
	token := cookie(web.CSRFCookieName)
	require.NotEmpty(t, token)

	login := func() {
		resp, err := client.PostForm(ts.URL+"/login", url.Values{
			"csrf_token": {token},
			"username":   {username},
			"password":   {"password123"},
		})
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/user", resp.Header.Get("Location"))
	}
	login()

	owner := cookie(web.OwnerCookieName)
	require.NotEmpty(t, owner)

	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/auth",
		http.Header{"Cookie": {web.OwnerCookieName + "=" + owner}})
	require.NoError(t, err)
	defer conn.Close()

	initial := readUntil(t, conn, websocket.TypeAuthChange)
	assert.Contains(t, string(initial.Payload), `"isAuthenticated":true`)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 20*time.Millisecond)

	// signing in again from the same browser emits a fresh backend event
	login()

	activity := readUntil(t, conn, websocket.TypeActivity)
	var event domain.AuthEvent
	require.NoError(t, json.Unmarshal(activity.Payload, &event))
	assert.Equal(t, domain.EventUserLoggedIn, event.Type)
	assert.Equal(t, username, event.Username)
}
