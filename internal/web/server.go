// Package web is the browser companion: server-rendered pages on top of one
// session.Manager, with auth changes pushed to open tabs over a websocket.
// The session belongs to the browser that signed in through the companion;
// other browsers see it as signed out until that browser logs out.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"talk2me/internal/domain"
	"talk2me/internal/guard"
	"talk2me/internal/handler"
	"talk2me/internal/middleware"
	"talk2me/internal/security"
	"talk2me/internal/session"
	"talk2me/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CSRFCookieName holds the double-submit token.
const CSRFCookieName = "talk2me_csrf"

type Config struct {
	Manager *session.Manager
	Hub     *websocket.Hub
	// SecureCookies marks the CSRF cookie Secure. Enable behind HTTPS.
	SecureCookies bool
	// AllowedOrigins may open /ws/auth in addition to the page's own host.
	AllowedOrigins []string
}

type Server struct {
	manager       *session.Manager
	browser       browserSession
	owner         *owner
	loginMu       sync.Mutex
	hub           *websocket.Hub
	guard         *guard.Guard
	csrf          *security.TokenManager
	pages         pages
	upgrader      gorillaws.Upgrader
	secureCookies bool
}

func New(cfg Config) (*Server, error) {
	p, err := parsePages()
	if err != nil {
		return nil, err
	}

	o := &owner{}
	browser := browserSession{manager: cfg.Manager, owner: o}
	s := &Server{
		manager:       cfg.Manager,
		browser:       browser,
		owner:         o,
		hub:           cfg.Hub,
		guard:         guard.New(browser),
		csrf:          security.NewTokenManager(),
		pages:         p,
		secureCookies: cfg.SecureCookies,
	}
	s.upgrader = gorillaws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
	}
	return s, nil
}

// Start forwards every AuthChange to the owning browser's tabs. When the
// session ends it stops the auto-refresh scheduler and releases ownership.
// The returned function unsubscribes.
func (s *Server) Start() func() {
	return s.manager.Subscribe(func(change session.AuthChange) {
		audience := s.owner.current()
		if !change.IsAuthenticated {
			s.manager.StopAutoRefresh()
			s.owner.release()
		}
		s.hub.BroadcastTo(audience, websocket.TypeAuthChange, change)
	})
}

// RelayEvent pushes a backend auth event to browsers when it concerns the
// signed-in user.
func (s *Server) RelayEvent(ctx context.Context, event *domain.AuthEvent) {
	profile := s.manager.UserProfile(ctx)
	if profile == nil || profile.Username != event.Username {
		return
	}
	s.hub.BroadcastTo(s.owner.current(), websocket.TypeActivity, event)
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.LogContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics())
	r.Use(s.identifyOwner)

	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/auth", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.issueCSRFCookie)
		r.Use(middleware.CSRF(middleware.CookieTokenSource(CSRFCookieName), s.csrf))

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, guard.DefaultLoginPath, http.StatusFound)
		})
		r.Get("/login", s.loginPage)
		r.Post("/login", s.loginSubmit)
		r.Get("/register", s.registerPage)
		r.Post("/register", s.registerSubmit)
		r.Get("/home", s.homePage)
		r.Post("/logout", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(s.guard.RequireAuth)
			r.Get("/user", s.userPage)
			r.Post("/user/verify", s.verify)
		})
	})

	return r
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.browser.IsAuthenticated(r.Context()) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := websocket.NewClient(s.hub, conn, r.RemoteAddr).ForAudience(ownerToken(r.Context()))
	state := session.AuthChange{
		IsAuthenticated: true,
		UserInfo:        s.manager.UserProfile(r.Context()),
	}
	if err := client.Enqueue(websocket.TypeAuthChange, state); err != nil {
		slog.Error("failed to queue initial auth state", slog.String("error", err.Error()))
	}

	s.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
}

// checkOrigin accepts same-host upgrades and any listed origin.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, origin) {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
