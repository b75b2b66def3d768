// Package apiclient is the HTTP gateway to the talk2me auth backend. It builds
// JSON requests, attaches bearer credentials, and folds every failure into a
// single *APIError value.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"talk2me/internal/observability"
)

// DefaultTimeout bounds a single request; there is no other timeout layer.
const DefaultTimeout = 10 * time.Second

// TokenSource supplies the current access token, or "" when there is none.
type TokenSource interface {
	Token(ctx context.Context) string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying transport client. A cookie jar is
// installed if the client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client sends requests to the backend rooted at baseURL.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized func(ctx context.Context)
}

// New creates a gateway. onUnauthorized runs whenever a response carries
// status 401, before the error is returned to the caller.
func New(baseURL string, tokens TokenSource, onUnauthorized func(ctx context.Context), opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		tokens:         tokens,
		onUnauthorized: onUnauthorized,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Jar == nil {
		// cookiejar.New only fails on a broken PublicSuffixList, and we pass none
		jar, _ := cookiejar.New(nil)
		c.httpClient.Jar = jar
	}

	return c
}

// BaseURL returns the root every endpoint is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// errorBody holds the fields the backend uses to describe a failure.
type errorBody struct {
	Message   string `json:"message"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// Request sends body (JSON-encoded, omitted when nil) to endpoint and returns
// the decoded response body. A success response that is not valid JSON is
// replaced by {"message": <status text>}.
func (c *Client) Request(ctx context.Context, endpoint, method string, body any, requireAuth bool) (json.RawMessage, error) {
	url := c.baseURL + endpoint

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if requireAuth && c.tokens != nil {
		if token := c.tokens.Token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	slog.Debug("api request",
		slog.String("method", method),
		slog.String("url", url),
		slog.Bool("auth", requireAuth))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("api request failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		observability.ClientAPIRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, NewNetworkError()
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn("failed to read api response",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		observability.ClientAPIRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, NewNetworkError()
	}

	structured := isStructured(raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observability.ClientAPIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		var eb errorBody
		if structured {
			_ = json.Unmarshal(raw, &eb)
		}
		return nil, c.statusError(ctx, resp.StatusCode, eb)
	}

	observability.ClientAPIRequestsTotal.WithLabelValues(endpoint, "ok").Inc()

	if !structured {
		fallback, _ := json.Marshal(map[string]string{
			"message": http.StatusText(resp.StatusCode),
		})
		return fallback, nil
	}

	return json.RawMessage(raw), nil
}

// statusError maps a non-success status to an APIError. On 401 the
// unauthorized hook runs first so stale tokens never outlive the rejection.
func (c *Client) statusError(ctx context.Context, status int, eb errorBody) *APIError {
	message := eb.Message
	if message == "" {
		message = eb.Error
	}

	switch status {
	case http.StatusUnauthorized:
		if c.onUnauthorized != nil {
			c.onUnauthorized(ctx)
		}
		if message == "" {
			message = MsgSessionExpired
		}
	case http.StatusForbidden:
		if message == "" {
			message = MsgForbidden
		}
	case http.StatusNotFound:
		if message == "" {
			message = MsgNotFound
		}
	case http.StatusInternalServerError:
		if message == "" {
			message = MsgServerError
		}
	default:
		if message == "" {
			message = fmt.Sprintf("request failed: %d", status)
		}
	}

	return &APIError{
		Message:    message,
		StatusCode: status,
		Code:       eb.ErrorCode,
	}
}

func isStructured(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && json.Valid(trimmed)
}
