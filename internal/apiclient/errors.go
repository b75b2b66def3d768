package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable codes produced on the client side. Server-supplied codes
// are passed through untouched.
const (
	CodeNetworkError   = "NETWORK_ERROR"
	CodeNoRefreshToken = "NO_REFRESH_TOKEN"
)

// Fallback messages used when the server does not supply one.
const (
	MsgSessionExpired = "session expired, please log in again"
	MsgForbidden      = "you do not have permission to perform this action"
	MsgNotFound       = "the requested resource does not exist"
	MsgServerError    = "internal server error, please try again later"
	MsgNetworkError   = "network error, please check your connection"
	MsgNoRefreshToken = "no refresh token available"
)

// Kind classifies an APIError.
type Kind int

const (
	KindGenericHTTP Kind = iota
	KindNetwork
	KindAuthorization
	KindForbidden
	KindNotFound
	KindServer
	KindNoRefreshToken
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthorization:
		return "authorization"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server"
	case KindNoRefreshToken:
		return "no_refresh_token"
	default:
		return "http"
	}
}

// Sentinels for errors.Is matching against an *APIError's kind.
var (
	ErrNetwork        = errors.New("network error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrServer         = errors.New("server error")
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrHTTP           = errors.New("http error")
)

// APIError is the single error value surfaced by the gateway and the session
// operations built on it. StatusCode is zero when no response was received.
type APIError struct {
	Message    string
	StatusCode int
	Code       string
}

// NewNetworkError wraps a transport failure.
func NewNetworkError() *APIError {
	return &APIError{Message: MsgNetworkError, Code: CodeNetworkError}
}

// NewNoRefreshTokenError is returned when a refresh is attempted with nothing stored.
func NewNoRefreshTokenError() *APIError {
	return &APIError{Message: MsgNoRefreshToken, Code: CodeNoRefreshToken}
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return "api error: " + e.Message
}

// Kind derives the taxonomy entry from the status and code.
func (e *APIError) Kind() Kind {
	switch e.Code {
	case CodeNetworkError:
		return KindNetwork
	case CodeNoRefreshToken:
		return KindNoRefreshToken
	}
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return KindAuthorization
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusInternalServerError:
		return KindServer
	}
	return KindGenericHTTP
}

// Is lets callers match with errors.Is(err, apiclient.ErrUnauthorized).
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind() == KindNetwork
	case ErrUnauthorized:
		return e.Kind() == KindAuthorization
	case ErrForbidden:
		return e.Kind() == KindForbidden
	case ErrNotFound:
		return e.Kind() == KindNotFound
	case ErrServer:
		return e.Kind() == KindServer
	case ErrNoRefreshToken:
		return e.Kind() == KindNoRefreshToken
	case ErrHTTP:
		return e.Kind() == KindGenericHTTP
	}
	return false
}

// AsAPIError unwraps err into an *APIError if it holds one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
