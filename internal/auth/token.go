// token.go -- Signed identity tokens (HS256 JWT, 7-day lifetime).
//
// Tokens are the whole session: nothing is stored server-side and logout is
// client-side deletion. Expiry is the only invalidation.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the lifetime of every issued token.
const TokenTTL = 7 * 24 * time.Hour

// ErrInvalidToken covers bad signatures, wrong algorithms, malformed input and expiry.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the identity snapshot carried in a token. Email and Name are for
// display only; authorization decisions use UserID.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// UserUUID parses UserID.
func (c *Claims) UserUUID() (uuid.UUID, error) {
	return uuid.FromString(c.UserID)
}

// TokenService issues and verifies tokens with a server-held secret.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService returns a service signing with secret.
// now may be nil (time.Now); tests pass a fake clock.
func NewTokenService(secret []byte, now func() time.Time) *TokenService {
	if now == nil {
		now = time.Now
	}
	return &TokenService{secret: secret, now: now}
}

// Issue signs a token for user valid for TokenTTL. Returns the token and its expiry.
func (s *TokenService) Issue(userID uuid.UUID, email, name string) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(TokenTTL)
	claims := Claims{
		UserID: userID.String(),
		Email:  email,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm and expiry against the service clock (no leeway).
// Every failure is reported as ErrInvalidToken.
func (s *TokenService) Verify(token string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserUUID(); err != nil {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
