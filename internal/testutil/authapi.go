package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RecordedRequest captures what the fake backend received.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	Body          map[string]any
}

// FakeAuthAPI is an httptest backend speaking the auth endpoints. Override
// any handler field to script a response; unset handlers use the defaults
// (alice / AT1 / RT1 on login, AT2 / RT2 on refresh, 200 on verification).
type FakeAuthAPI struct {
	Server *httptest.Server

	LoginFunc    http.HandlerFunc
	RegisterFunc http.HandlerFunc
	RefreshFunc  http.HandlerFunc
	VerifyFunc   http.HandlerFunc

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewFakeAuthAPI starts the server and closes it when the test ends.
func NewFakeAuthAPI(t *testing.T) *FakeAuthAPI {
	t.Helper()

	f := &FakeAuthAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", f.dispatch(func() http.HandlerFunc { return f.LoginFunc }, defaultLogin))
	mux.HandleFunc("/auth/register", f.dispatch(func() http.HandlerFunc { return f.RegisterFunc }, defaultRegister))
	mux.HandleFunc("/auth/refresh", f.dispatch(func() http.HandlerFunc { return f.RefreshFunc }, defaultRefresh))
	mux.HandleFunc("/auth/verification", f.dispatch(func() http.HandlerFunc { return f.VerifyFunc }, defaultVerify))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeAuthAPI) URL() string {
	return f.Server.URL
}

// Requests returns a copy of everything received so far.
func (f *FakeAuthAPI) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// Calls counts requests to path.
func (f *FakeAuthAPI) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (f *FakeAuthAPI) dispatch(override func() http.HandlerFunc, fallback http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rec := RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}

		f.mu.Lock()
		f.requests = append(f.requests, rec)
		h := override()
		f.mu.Unlock()

		if h == nil {
			h = fallback
		}
		h(w, r)
	}
}

// RespondJSON writes v with the given status.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RespondStatus returns a handler that answers with status and body.
func RespondStatus(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if body == nil {
			w.WriteHeader(status)
			return
		}
		RespondJSON(w, status, body)
	}
}

func defaultLogin(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]any{
		"access_token":  "AT1",
		"refresh_token": "RT1",
		"user":          map[string]any{"username": "alice"},
	})
}

func defaultRegister(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
	})
}

func defaultRefresh(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]any{
		"access_token":  "AT2",
		"refresh_token": "RT2",
	})
}

func defaultVerify(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		RespondJSON(w, http.StatusUnauthorized, map[string]any{
			"message":   "Missing token",
			"errorCode": "UNAUTHORIZED",
		})
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"message": "Token is valid"})
}
