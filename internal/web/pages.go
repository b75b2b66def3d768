package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"talk2me/internal/apiclient"
	"talk2me/internal/guard"
	"talk2me/internal/session"
)

const (
	msgUnexpected        = "Something went wrong. Please try again."
	msgSignedInElsewhere = "Another browser is signed in. Log out there first."
)

type pageData struct {
	Title         string
	CSRFToken     string
	Authenticated bool
	User          *session.UserProfile
	Error         string
	Flash         string
	Redirect      string
	Username      string
	Email         string
	AutoRefresh   bool
}

func (s *Server) newPageData(r *http.Request, title string) pageData {
	return pageData{
		Title:         title,
		CSRFToken:     csrfToken(r),
		Authenticated: s.browser.IsAuthenticated(r.Context()),
		User:          s.browser.UserProfile(r.Context()),
	}
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.render(w, name, data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", name),
			slog.String("error", err.Error()))
	}
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	redirect := r.URL.Query().Get(guard.RedirectParam)
	if s.browser.IsAuthenticated(r.Context()) {
		http.Redirect(w, r, SafeRedirect(redirect, DefaultAfterLogin), http.StatusFound)
		return
	}

	data := s.newPageData(r, "Log in")
	data.Redirect = redirect
	if r.URL.Query().Get("registered") != "" {
		data.Flash = "Account created. Please log in."
	}
	s.render(w, http.StatusOK, "login", data)
}

func (s *Server) loginSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	redirect := r.FormValue("redirect")

	fail := func(status int, message string) {
		data := s.newPageData(r, "Log in")
		data.Redirect = redirect
		data.Username = username
		data.Error = message
		s.render(w, status, "login", data)
	}

	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	if s.owner.current() != "" && !s.browser.owns(ctx) && s.manager.IsAuthenticated(ctx) {
		slog.Warn("login refused, session owned by another browser", slog.String("username", username))
		fail(http.StatusConflict, msgSignedInElsewhere)
		return
	}

	token := ownerToken(ctx)
	if token == "" {
		generated, err := s.csrf.Generate()
		if err != nil {
			slog.Error("failed to generate owner token", slog.String("error", err.Error()))
			fail(http.StatusInternalServerError, msgUnexpected)
			return
		}
		token = generated
	}

	if _, err := s.manager.Login(ctx, username, password); err != nil {
		fail(errorStatus(err), errorMessage(err))
		return
	}

	if s.manager.IsAuthenticated(ctx) {
		s.owner.claim(token)
		s.setOwnerCookie(w, token)
	}
	s.manager.StartAutoRefresh()
	http.Redirect(w, r, SafeRedirect(redirect, DefaultAfterLogin), http.StatusSeeOther)
}

func (s *Server) registerPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "register", s.newPageData(r, "Register"))
}

func (s *Server) registerSubmit(w http.ResponseWriter, r *http.Request) {
	req := session.RegisterRequest{
		Username: strings.TrimSpace(r.FormValue("username")),
		Password: r.FormValue("password"),
		Email:    strings.TrimSpace(r.FormValue("email")),
	}

	if _, err := s.manager.Register(r.Context(), req); err != nil {
		data := s.newPageData(r, "Register")
		data.Username = req.Username
		data.Email = req.Email
		data.Error = errorMessage(err)
		s.render(w, errorStatus(err), "register", data)
		return
	}

	http.Redirect(w, r, guard.DefaultLoginPath+"?registered=1", http.StatusSeeOther)
}

func (s *Server) homePage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "home", s.newPageData(r, "Home"))
}

func (s *Server) userPage(w http.ResponseWriter, r *http.Request) {
	data := s.newPageData(r, "Account")
	data.AutoRefresh = s.manager.AutoRefreshPending()
	s.render(w, http.StatusOK, "user", data)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	_, err := s.manager.VerifyAuth(r.Context())
	if errors.Is(err, apiclient.ErrUnauthorized) {
		// the gateway has already cleared the session
		http.Redirect(w, r, s.guard.LoginURL("/user"), http.StatusSeeOther)
		return
	}

	data := s.newPageData(r, "Account")
	data.AutoRefresh = s.manager.AutoRefreshPending()
	if err != nil {
		data.Error = errorMessage(err)
		s.render(w, errorStatus(err), "user", data)
		return
	}
	data.Flash = "Session verified."
	s.render(w, http.StatusOK, "user", data)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if s.browser.owns(r.Context()) {
		s.manager.StopAutoRefresh()
		if err := s.manager.Logout(r.Context()); err != nil {
			slog.Error("logout failed", slog.String("error", err.Error()))
		}
		s.owner.release()
	}
	s.setOwnerCookie(w, "")
	http.Redirect(w, r, guard.DefaultLoginPath, http.StatusSeeOther)
}

func errorMessage(err error) string {
	if apiErr, ok := apiclient.AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return msgUnexpected
}

// errorStatus picks the status for a page re-rendered after a failed backend
// call.
func errorStatus(err error) int {
	apiErr, ok := apiclient.AsAPIError(err)
	switch {
	case !ok:
		return http.StatusInternalServerError
	case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return apiErr.StatusCode
	default:
		return http.StatusBadGateway
	}
}
