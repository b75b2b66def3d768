package web

import (
	"context"
	"crypto/hmac"
	"net/http"
	"sync"

	"talk2me/internal/session"
)

// OwnerCookieName binds the process session to the browser that signed in.
const OwnerCookieName = "talk2me_owner"

// owner remembers which browser signed in. Only that browser sees the
// session; everyone else is treated as signed out.
type owner struct {
	mu    sync.RWMutex
	token string
}

func (o *owner) current() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.token
}

func (o *owner) is(token string) bool {
	if token == "" {
		return false
	}
	current := o.current()
	return current != "" && hmac.Equal([]byte(current), []byte(token))
}

func (o *owner) claim(token string) {
	o.mu.Lock()
	o.token = token
	o.mu.Unlock()
}

func (o *owner) release() {
	o.claim("")
}

type ownerKey struct{}

// identifyOwner marks requests carrying the owner cookie.
func (s *Server) identifyOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(OwnerCookieName); err == nil && s.owner.is(c.Value) {
			token = c.Value
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, token)))
	})
}

func ownerToken(ctx context.Context) string {
	token, _ := ctx.Value(ownerKey{}).(string)
	return token
}

// browserSession is the process session as seen by one request.
type browserSession struct {
	manager *session.Manager
	owner   *owner
}

func (b browserSession) owns(ctx context.Context) bool {
	return b.owner.is(ownerToken(ctx))
}

func (b browserSession) IsAuthenticated(ctx context.Context) bool {
	return b.owns(ctx) && b.manager.IsAuthenticated(ctx)
}

func (b browserSession) UserProfile(ctx context.Context) *session.UserProfile {
	if !b.owns(ctx) {
		return nil
	}
	return b.manager.UserProfile(ctx)
}

func (s *Server) setOwnerCookie(w http.ResponseWriter, token string) {
	c := &http.Cookie{
		Name:     OwnerCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}
