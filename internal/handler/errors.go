package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"talk2me/internal/domain"
	"talk2me/internal/middleware"
	"talk2me/internal/observability"
)

// Error codes returned in the errorCode field.
const (
	CodeUsernameTaken       = "USERNAME_TAKEN"
	CodeEmailTaken          = "EMAIL_TAKEN"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeAccountDisabled     = "ACCOUNT_DISABLED"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeInternalError       = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Message: message, ErrorCode: code})
}

// writeServiceError maps an auth service error onto a status and code.
// tokenCode is the code used for ErrInvalidToken, which differs between the
// refresh and verification endpoints.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, tokenCode string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, validationMessage(err), middleware.CodeValidationFailed)
	case errors.Is(err, domain.ErrUsernameExists):
		writeError(w, http.StatusConflict, "Username is already taken!", CodeUsernameTaken)
	case errors.Is(err, domain.ErrEmailExists):
		writeError(w, http.StatusConflict, "Email is already in use!", CodeEmailTaken)
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid username or password", CodeInvalidCredentials)
	case errors.Is(err, domain.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, "Account is disabled", CodeAccountDisabled)
	case errors.Is(err, domain.ErrInvalidToken):
		message := "Invalid or expired token"
		if tokenCode == CodeInvalidRefreshToken {
			message = "Invalid or expired refresh token"
		}
		writeError(w, http.StatusUnauthorized, message, tokenCode)
	default:
		observability.FromContext(r.Context()).Error("auth request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal server error", CodeInternalError)
	}
}

// validationMessage strips the sentinel prefix from a wrapped
// ErrInvalidInput so clients see only the field message.
func validationMessage(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, domain.ErrInvalidInput.Error()+": "); ok {
		return rest
	}
	return msg
}
