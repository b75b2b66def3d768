package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"talk2me/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	Issuer          = "talk2me"
	AudienceAccess  = "talk2me:access"
	AudienceRefresh = "talk2me:refresh"
)

// Claims are the registered claims plus the username, so handlers can answer
// without a user lookup.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// UserID returns the numeric subject.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", domain.ErrInvalidToken)
	}
	return id, nil
}

// IssuedToken is a signed JWT together with the claims the caller needs to
// persist or report.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// JWTIssuer signs and parses HS256 access and refresh tokens. The two kinds
// are told apart by audience.
type JWTIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewJWTIssuer(secret string, accessTTL, refreshTTL time.Duration) *JWTIssuer {
	return &JWTIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL is reported to clients as expires_in.
func (j *JWTIssuer) AccessTTL() time.Duration {
	return j.accessTTL
}

func (j *JWTIssuer) IssueAccess(userID int64, username string) (*IssuedToken, error) {
	return j.issue(userID, username, AudienceAccess, j.accessTTL)
}

func (j *JWTIssuer) IssueRefresh(userID int64, username string) (*IssuedToken, error) {
	return j.issue(userID, username, AudienceRefresh, j.refreshTTL)
}

func (j *JWTIssuer) ParseAccess(token string) (*Claims, error) {
	return j.parse(token, AudienceAccess)
}

func (j *JWTIssuer) ParseRefresh(token string) (*Claims, error) {
	return j.parse(token, AudienceRefresh)
}

func (j *JWTIssuer) issue(userID int64, username, audience string, ttl time.Duration) (*IssuedToken, error) {
	now := j.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{audience},
		},
		Username: username,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &IssuedToken{Token: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (j *JWTIssuer) parse(tokenStr, audience string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, errors.Join(domain.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}
