// service.go -- Identity operations: register, login, profile, OAuth linking.
//
// Handlers translate HTTP to these calls and map the sentinel errors back to
// status codes. Nothing here knows about requests or JSON.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MGallo-Code/weddingkityaari/internal/oauth"
	"github.com/MGallo-Code/weddingkityaari/internal/store"
	"github.com/gofrs/uuid/v5"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrWeakPassword       = errors.New("password too weak")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrRateLimited        = errors.New("too many attempts")
	ErrLinkFailed         = errors.New("oauth link failed")
	ErrEmailNotVerified   = errors.New("oauth email not verified")
)

// ValidationError carries a client-facing message. Unwraps to ErrValidation or ErrWeakPassword.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(msg string) error { return &ValidationError{Message: msg, Err: ErrValidation} }

// Store is the subset of store.Backend identity operations need.
type Store interface {
	CheckHealth(ctx context.Context) error
	CreateUser(ctx context.Context, u *store.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	GetUserByOAuthID(ctx context.Context, oauthID string) (*store.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	LinkOAuthIdentity(ctx context.Context, id uuid.UUID, oauthID, picture string, at time.Time) error
	UpdateProfile(ctx context.Context, id uuid.UUID, upd store.ProfileUpdate) (*store.User, error)
}

// RateLimiter counts login attempts. store.RedisRateLimiter or store.NoopRateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, policy store.RateLimit) error
	Reset(ctx context.Context, key string) error
	CheckHealth(ctx context.Context) error
}

// Identity implements the account operations over a Store.
type Identity struct {
	PS         Store
	RL         RateLimiter
	LoginLimit store.RateLimit
	Now        func() time.Time // nil means time.Now
}

func (s *Identity) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Register validates input, hashes the password and creates a local account.
// Validation runs before any store access.
func (s *Identity) Register(ctx context.Context, email, password, name string) (*store.User, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return nil, invalid("all fields are required")
	}
	if msg := ValidateEmail(email); msg != "" {
		return nil, invalid(msg)
	}
	if msg := ValidatePassword(password); msg != "" {
		return nil, &ValidationError{Message: msg, Err: ErrWeakPassword}
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating user id: %w", err)
	}
	now := s.now()
	u := &store.User{
		ID:          id,
		Email:       email,
		Name:        name,
		Credentials: store.LocalCredentials{Hash: hash},
		CreatedAt:   now,
		LastLogin:   now,
	}
	if err := s.PS.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks email + password. Unknown email, passwordless account and wrong
// password all return ErrInvalidCredentials after the same amount of bcrypt work.
func (s *Identity) Login(ctx context.Context, email, password string) (*store.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalid("email and password are required")
	}

	limitKey := "login:" + email
	if err := s.RL.Allow(ctx, limitKey, s.LoginLimit); err != nil {
		if errors.Is(err, store.ErrRateLimitExceeded) {
			return nil, ErrRateLimited
		}
		// Limiter outage must not lock everyone out.
		slog.Warn("login rate limiter unavailable", "error", err)
	}

	u, err := s.PS.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		VerifyPassword(password, dummyPasswordHash)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	hash, ok := u.Credentials.PasswordHash()
	if !ok {
		VerifyPassword(password, dummyPasswordHash)
		return nil, ErrInvalidCredentials
	}
	match, err := VerifyPassword(password, hash)
	if err != nil {
		slog.Error("stored password hash unreadable", "user_id", u.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.PS.TouchLastLogin(ctx, u.ID, now); err != nil {
		return nil, err
	}
	u.LastLogin = now
	if err := s.RL.Reset(ctx, limitKey); err != nil {
		slog.Warn("failed to reset login rate limit", "error", err)
	}
	return u, nil
}

// Profile returns the current record for id. store.ErrNotFound if it vanished.
func (s *Identity) Profile(ctx context.Context, id uuid.UUID) (*store.User, error) {
	return s.PS.GetUserByID(ctx, id)
}

// UpdateProfile applies the whitelisted fields in upd. Name may not be blanked
// and budget may not go negative.
func (s *Identity) UpdateProfile(ctx context.Context, id uuid.UUID, upd store.ProfileUpdate) (*store.User, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, invalid("name cannot be empty")
		}
		upd.Name = &trimmed
	}
	if upd.Budget != nil && *upd.Budget < 0 {
		return nil, invalid("budget must be zero or greater")
	}
	return s.PS.UpdateProfile(ctx, id, upd)
}

// LinkOAuth resolves a provider profile to an account: existing OAuth
// identity, then same-email account (linked, password kept), then a new
// OAuth-only account. Linking to an existing email requires the provider to
// report the email verified. A lost uniqueness race is retried once.
func (s *Identity) LinkOAuth(ctx context.Context, p *oauth.Profile) (*store.User, error) {
	u, err := s.linkOAuth(ctx, p)
	if errors.Is(err, store.ErrDuplicateEmail) || errors.Is(err, store.ErrDuplicateOAuthID) {
		u, err = s.linkOAuth(ctx, p)
	}
	if errors.Is(err, ErrEmailNotVerified) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLinkFailed, err)
	}
	return u, nil
}

func (s *Identity) linkOAuth(ctx context.Context, p *oauth.Profile) (*store.User, error) {
	now := s.now()
	email := NormalizeEmail(p.Email)
	if p.ProviderID == "" || email == "" {
		return nil, fmt.Errorf("provider profile missing id or email")
	}

	u, err := s.PS.GetUserByOAuthID(ctx, p.ProviderID)
	if err == nil {
		if err := s.PS.TouchLastLogin(ctx, u.ID, now); err != nil {
			return nil, err
		}
		u.LastLogin = now
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up oauth user: %w", err)
	}

	u, err = s.PS.GetUserByEmail(ctx, email)
	if err == nil {
		if !p.EmailVerified {
			return nil, ErrEmailNotVerified
		}
		if err := s.PS.LinkOAuthIdentity(ctx, u.ID, p.ProviderID, p.PictureURL, now); err != nil {
			return nil, err
		}
		u.Credentials = store.LinkCredentials(u.Credentials, p.ProviderID)
		if p.PictureURL != "" {
			u.Profile.ProfilePicture = p.PictureURL
		}
		u.LastLogin = now
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up user by email: %w", err)
	}

	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating user id: %w", err)
	}
	u = &store.User{
		ID:          id,
		Email:       email,
		Name:        name,
		Credentials: store.OAuthCredentials{ProviderID: p.ProviderID},
		Profile:     store.Profile{ProfilePicture: p.PictureURL},
		CreatedAt:   now,
		LastLogin:   now,
	}
	if err := s.PS.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
