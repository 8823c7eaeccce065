package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// fakeClock is a settable time source for token and service tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestTokenService(t *testing.T) {
	secret := []byte("test-secret-at-least-32-bytes-long!!")
	userID := uuid.Must(uuid.NewV7())

	t.Run("issue then verify round trip", func(t *testing.T) {
		clock := newFakeClock()
		ts := NewTokenService(secret, clock.Now)

		token, exp, err := ts.Issue(userID, "priya@example.com", "Priya")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if want := clock.Now().Add(TokenTTL); !exp.Equal(want) {
			t.Errorf("expiry: expected %v, got %v", want, exp)
		}

		claims, err := ts.Verify(token)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if claims.UserID != userID.String() || claims.Email != "priya@example.com" || claims.Name != "Priya" {
			t.Errorf("claims mismatch: %+v", claims)
		}
		if got, _ := claims.UserUUID(); got != userID {
			t.Errorf("UserUUID: expected %s, got %s", userID, got)
		}
	})

	t.Run("valid just before expiry, rejected at expiry", func(t *testing.T) {
		clock := newFakeClock()
		ts := NewTokenService(secret, clock.Now)
		token, _, err := ts.Issue(userID, "a@example.com", "A")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}

		clock.Advance(TokenTTL - time.Second)
		if _, err := ts.Verify(token); err != nil {
			t.Fatalf("expected valid token one second before expiry, got %v", err)
		}

		clock.Advance(time.Second)
		if _, err := ts.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken at expiry, got %v", err)
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		token, _, _ := NewTokenService([]byte("other-secret"), nil).Issue(userID, "a@example.com", "A")
		if _, err := NewTokenService(secret, nil).Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("alg none rejected", func(t *testing.T) {
		claims := Claims{
			UserID: userID.String(),
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("signing none token: %v", err)
		}
		if _, err := NewTokenService(secret, nil).Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("missing exp rejected", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: userID.String()}).SignedString(secret)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		if _, err := NewTokenService(secret, nil).Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("non-uuid user id rejected", func(t *testing.T) {
		claims := Claims{
			UserID: "12345",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		if _, err := NewTokenService(secret, nil).Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("garbage rejected", func(t *testing.T) {
		if _, err := NewTokenService(secret, nil).Verify("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}
