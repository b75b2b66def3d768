package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"talk2me/api"
	"talk2me/internal/testutil"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPISpecIsValid(t *testing.T) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(api.OpenAPISpec)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(loader.Context))

	assert.Equal(t, "Talk2Me Auth API", doc.Info.Title)

	for _, path := range []string{"/auth/register", "/auth/login", "/auth/refresh", "/auth/verification"} {
		item := doc.Paths.Find(path)
		require.NotNil(t, item, "path %s", path)
		op := item.GetOperation(http.MethodPost)
		require.NotNil(t, op, "POST %s", path)
		assert.NotEmpty(t, op.OperationID)
	}

	verification := doc.Paths.Find("/auth/verification").Post
	require.NotNil(t, verification.Security)
	assert.Contains(t, (*verification.Security)[0], "bearerAuth")
}

func newValidatedHandler(basePath string) http.Handler {
	return OpenAPIValidator(OpenAPIValidatorConfig{
		Enabled:   true,
		Spec:      api.OpenAPISpec,
		BasePath:  basePath,
		SkipPaths: []string{"/health"},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestOpenAPIValidator_Requests(t *testing.T) {
	handler := newValidatedHandler("/talk2me/api/v1")

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"valid register", http.MethodPost, "/talk2me/api/v1/auth/register", `{"username":"alice","password":"secret1"}`, http.StatusOK},
		{"short username", http.MethodPost, "/talk2me/api/v1/auth/register", `{"username":"al","password":"secret1"}`, http.StatusBadRequest},
		{"missing password", http.MethodPost, "/talk2me/api/v1/auth/login", `{"username":"alice"}`, http.StatusBadRequest},
		{"valid refresh", http.MethodPost, "/talk2me/api/v1/auth/refresh", `{"refresh_token":"x"}`, http.StatusOK},
		{"undocumented route passes through", http.MethodGet, "/talk2me/api/v1/auth/unknown", "", http.StatusOK},
		{"skipped path", http.MethodGet, "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusBadRequest {
				testutil.AssertJSONContains(t, w, "errorCode", CodeValidationFailed)
			}
		})
	}
}

func TestOpenAPIValidator_BasePathOverride(t *testing.T) {
	handler := newValidatedHandler("/custom/v2")

	req := httptest.NewRequest(http.MethodPost, "/custom/v2/auth/register", strings.NewReader(`{"username":"al","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	testutil.AssertErrorCode(t, w, http.StatusBadRequest, CodeValidationFailed)
}

func TestOpenAPIValidator_BodyStillReadableDownstream(t *testing.T) {
	var got string
	handler := OpenAPIValidator(OpenAPIValidatorConfig{Enabled: true, Spec: api.OpenAPISpec})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			got = string(b)
		}))

	body := `{"refresh_token":"abc"}`
	req := httptest.NewRequest(http.MethodPost, "/talk2me/api/v1/auth/refresh", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, body, got)
}

func TestOpenAPIValidator_DisabledOrBroken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for name, cfg := range map[string]OpenAPIValidatorConfig{
		"disabled":     {Enabled: false, Spec: api.OpenAPISpec},
		"invalid spec": {Enabled: true, Spec: []byte("not: [valid")},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/talk2me/api/v1/auth/register", strings.NewReader(`{}`))
			w := httptest.NewRecorder()
			OpenAPIValidator(cfg)(next).ServeHTTP(w, req)
			assert.Equal(t, http.StatusNoContent, w.Code)
		})
	}
}

func TestShouldSkipPath(t *testing.T) {
	skip := []string{"/health", "/metrics"}
	assert.True(t, shouldSkipPath("/health/ready", skip))
	assert.True(t, shouldSkipPath("/metrics", skip))
	assert.False(t, shouldSkipPath("/talk2me/api/v1/auth/login", skip))
}
