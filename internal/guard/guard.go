// Package guard decides, per navigation, whether a destination may be entered
// or the visitor must be sent to the login page first.
package guard

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

// DefaultLoginPath is where unauthenticated visitors are sent.
const DefaultLoginPath = "/login"

// RedirectParam carries the originally requested path to the login page.
const RedirectParam = "redirect"

// Authenticator is the synchronous session check the guard relies on.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
}

// RouteMeta is attached to a route record.
type RouteMeta struct {
	RequiresAuth bool
}

// Destination is a navigation target: its full path (with query) and the
// metadata of every route record it matched, outermost first.
type Destination struct {
	FullPath string
	Matched  []RouteMeta
}

// RequiresAuth is true if any matched record requires authentication.
func (d Destination) RequiresAuth() bool {
	for _, m := range d.Matched {
		if m.RequiresAuth {
			return true
		}
	}
	return false
}

type Outcome int

const (
	PermitNavigation Outcome = iota
	RedirectToLogin
)

func (o Outcome) String() string {
	if o == RedirectToLogin {
		return "redirect_to_login"
	}
	return "permit"
}

// Decision is the result of one evaluation. RedirectTo is set only for
// RedirectToLogin.
type Decision struct {
	Outcome    Outcome
	RedirectTo string
}

type Option func(*Guard)

// WithLoginPath overrides DefaultLoginPath.
func WithLoginPath(path string) Option {
	return func(g *Guard) {
		g.loginPath = path
	}
}

type Guard struct {
	auth      Authenticator
	loginPath string
}

func New(auth Authenticator, opts ...Option) *Guard {
	g := &Guard{auth: auth, loginPath: DefaultLoginPath}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate runs once per navigation attempt and does no I/O beyond the
// authenticator check.
func (g *Guard) Evaluate(ctx context.Context, dest Destination) Decision {
	if !dest.RequiresAuth() {
		return Decision{Outcome: PermitNavigation}
	}
	if g.auth.IsAuthenticated(ctx) {
		return Decision{Outcome: PermitNavigation}
	}
	return Decision{Outcome: RedirectToLogin, RedirectTo: g.LoginURL(dest.FullPath)}
}

// LoginURL builds the login location carrying fullPath as the redirect param.
func (g *Guard) LoginURL(fullPath string) string {
	if fullPath == "" {
		return g.loginPath
	}
	q := url.Values{}
	q.Set(RedirectParam, fullPath)
	return g.loginPath + "?" + q.Encode()
}

type metaKey struct{}

// Meta records m as a matched route record for every request passing through.
// Nest it with chi's Group/Route to build up the matched list.
func Meta(m RouteMeta) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			matched, _ := r.Context().Value(metaKey{}).([]RouteMeta)
			next.ServeHTTP(w, r.WithContext(WithMatched(r.Context(), append(matched[:len(matched):len(matched)], m))))
		})
	}
}

// WithMatched stores the matched route records on ctx.
func WithMatched(ctx context.Context, matched []RouteMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, matched)
}

// Matched returns the route records collected by Meta.
func Matched(ctx context.Context) []RouteMeta {
	matched, _ := ctx.Value(metaKey{}).([]RouteMeta)
	return matched
}

// Middleware evaluates each request against the records collected by Meta and
// answers 302 to the login page when the guard refuses it.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dest := Destination{
			FullPath: r.URL.RequestURI(),
			Matched:  Matched(r.Context()),
		}

		decision := g.Evaluate(r.Context(), dest)
		if decision.Outcome == RedirectToLogin {
			slog.Debug("guard redirecting to login", slog.String("path", dest.FullPath))
			http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAuth is shorthand for Meta(RouteMeta{RequiresAuth: true}) followed
// by the guard.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return Meta(RouteMeta{RequiresAuth: true})(g.Middleware(next))
}
