package security

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

var ErrInvalidCSRFToken = errors.New("invalid CSRF token")

// TokenManager generates CSRF tokens for the web companion's forms. The
// browser holds the token in a cookie and echoes it in the form body.
type TokenManager struct{}

func NewTokenManager() *TokenManager {
	return &TokenManager{}
}

// Generate returns 32 random bytes as a 64-character hex string.
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}

// Verify compares in constant time. An empty expected token never matches.
func (tm *TokenManager) Verify(expected, submitted string) error {
	if expected == "" || !hmac.Equal([]byte(expected), []byte(submitted)) {
		return ErrInvalidCSRFToken
	}
	return nil
}
