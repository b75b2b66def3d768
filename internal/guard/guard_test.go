package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	authenticated bool
	calls         int
}

func (f *fakeAuth) IsAuthenticated(ctx context.Context) bool {
	f.calls++
	return f.authenticated
}

func TestGuard_Evaluate(t *testing.T) {
	tests := []struct {
		name          string
		authenticated bool
		matched       []RouteMeta
		wantOutcome   Outcome
		wantAuthCalls int
	}{
		{"public_route", false, []RouteMeta{{}}, PermitNavigation, 0},
		{"no_matched_records", false, nil, PermitNavigation, 0},
		{"protected_authenticated", true, []RouteMeta{{RequiresAuth: true}}, PermitNavigation, 1},
		{"protected_anonymous", false, []RouteMeta{{RequiresAuth: true}}, RedirectToLogin, 1},
		{"protected_parent_record", false, []RouteMeta{{RequiresAuth: true}, {}}, RedirectToLogin, 1},
		{"protected_child_record", false, []RouteMeta{{}, {RequiresAuth: true}}, RedirectToLogin, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuth{authenticated: tt.authenticated}
			g := New(auth)

			decision := g.Evaluate(context.Background(), Destination{FullPath: "/user", Matched: tt.matched})

			assert.Equal(t, tt.wantOutcome, decision.Outcome)
			assert.Equal(t, tt.wantAuthCalls, auth.calls)
			if tt.wantOutcome == PermitNavigation {
				assert.Empty(t, decision.RedirectTo)
			}
		})
	}
}

func TestGuard_RedirectCarriesOriginalPath(t *testing.T) {
	g := New(&fakeAuth{})

	decision := g.Evaluate(context.Background(), Destination{
		FullPath: "/user?tab=profile",
		Matched:  []RouteMeta{{RequiresAuth: true}},
	})
	require.Equal(t, RedirectToLogin, decision.Outcome)

	u, err := url.Parse(decision.RedirectTo)
	require.NoError(t, err)
	assert.Equal(t, "/login", u.Path)
	assert.Equal(t, "/user?tab=profile", u.Query().Get(RedirectParam))
}

func TestGuard_CustomLoginPath(t *testing.T) {
	g := New(&fakeAuth{}, WithLoginPath("/signin"))
	assert.Equal(t, "/signin?redirect=%2Fuser", g.LoginURL("/user"))
	assert.Equal(t, "/signin", g.LoginURL(""))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "permit", PermitNavigation.String())
	assert.Equal(t, "redirect_to_login", RedirectToLogin.String())
}

func newRouter(g *Guard) chi.Router {
	r := chi.NewRouter()
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	r.Get("/home", ok)
	r.With(g.RequireAuth).Get("/user", ok)
	r.Route("/account", func(r chi.Router) {
		r.Use(Meta(RouteMeta{RequiresAuth: true}))
		r.With(Meta(RouteMeta{}), g.Middleware).Get("/settings", ok)
	})
	return r
}

func TestGuard_Middleware(t *testing.T) {
	tests := []struct {
		name          string
		authenticated bool
		path          string
		wantStatus    int
		wantLocation  string
	}{
		{"public_anonymous", false, "/home", http.StatusOK, ""},
		{"protected_authenticated", true, "/user", http.StatusOK, ""},
		{"protected_anonymous", false, "/user", http.StatusFound, "/login?redirect=%2Fuser"},
		{"nested_anonymous", false, "/account/settings?x=1", http.StatusFound, "/login?redirect=%2Faccount%2Fsettings%3Fx%3D1"},
		{"nested_authenticated", true, "/account/settings", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(New(&fakeAuth{authenticated: tt.authenticated}))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
		})
	}
}

func TestMeta_DoesNotShareBackingArray(t *testing.T) {
	base := make([]RouteMeta, 1, 4)
	ctx := WithMatched(context.Background(), base)

	var first, second []RouteMeta
	capture := func(dst *[]RouteMeta) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*dst = Matched(r.Context())
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	Meta(RouteMeta{RequiresAuth: true})(capture(&first)).ServeHTTP(httptest.NewRecorder(), req)
	Meta(RouteMeta{})(capture(&second)).ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.True(t, first[1].RequiresAuth)
	assert.False(t, second[1].RequiresAuth)
}
