// models.go -- Shared domain types for the store package.
// Used by every backend (Postgres, Mongo, SQLite) and the Redis rate limiter.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrNotFound is returned when a user or chat history record does not exist.
// Backends translate their driver-specific "no rows" errors into this.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by CreateUser when the email is already taken.
var ErrDuplicateEmail = errors.New("duplicate email")

// ErrDuplicateOAuthID is returned when another user already owns the OAuth identity.
var ErrDuplicateOAuthID = errors.New("duplicate oauth id")

// ErrCorruptRecord is returned when a stored row cannot be mapped to a valid Credentials variant
// (oauth user without a provider id, local user without a password hash).
var ErrCorruptRecord = errors.New("corrupt user record")

// ErrRateLimitExceeded is returned by Allow when the caller is locked out.
// Callers use errors.Is to distinguish rate limit rejections from Redis failures.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrCacheDisabled is returned by NoopRateLimiter.CheckHealth when Redis is not configured.
// Callers use errors.Is to distinguish "not configured" from a real infrastructure failure.
var ErrCacheDisabled = errors.New("cache disabled")

// AuthProvider is the persisted authProvider value.
type AuthProvider string

const (
	ProviderLocal AuthProvider = "local"
	ProviderOAuth AuthProvider = "oauth"
)

// Credentials is the sealed union of the ways a user can authenticate.
// Exactly one of LocalCredentials, OAuthCredentials or LinkedCredentials.
type Credentials interface {
	// Provider reports the persisted authProvider for this variant.
	Provider() AuthProvider
	// PasswordHash returns the stored hash, ok=false when the account has no password.
	PasswordHash() (string, bool)
	// OAuthID returns the provider subject, ok=false for local-only accounts.
	OAuthID() (string, bool)

	sealed()
}

// LocalCredentials is an email + password account.
type LocalCredentials struct {
	Hash string
}

// OAuthCredentials is an account created through an OAuth provider; it has no password.
type OAuthCredentials struct {
	ProviderID string
}

// LinkedCredentials is a local account that later acquired an OAuth identity.
// The password keeps working.
type LinkedCredentials struct {
	Hash       string
	ProviderID string
}

func (LocalCredentials) Provider() AuthProvider { return ProviderLocal }
func (c LocalCredentials) PasswordHash() (string, bool) { return c.Hash, true }
func (LocalCredentials) OAuthID() (string, bool) { return "", false }
func (LocalCredentials) sealed() {}
func (OAuthCredentials) Provider() AuthProvider { return ProviderOAuth }
func (OAuthCredentials) PasswordHash() (string, bool) { return "", false }
func (c OAuthCredentials) OAuthID() (string, bool) { return c.ProviderID, true }
func (OAuthCredentials) sealed() {}
func (LinkedCredentials) Provider() AuthProvider { return ProviderOAuth }
func (c LinkedCredentials) PasswordHash() (string, bool) { return c.Hash, true }
func (c LinkedCredentials) OAuthID() (string, bool) { return c.ProviderID, true }
func (LinkedCredentials) sealed() {}

// LinkCredentials attaches providerID to c. Local accounts keep their password.
func LinkCredentials(c Credentials, providerID string) Credentials {
	if hash, ok := c.PasswordHash(); ok {
		return LinkedCredentials{Hash: hash, ProviderID: providerID}
	}
	return OAuthCredentials{ProviderID: providerID}
}

// credentialsFromColumns rebuilds the union from nullable storage columns.
func credentialsFromColumns(provider string, hash, oauthID *string) (Credentials, error) {
	switch AuthProvider(provider) {
	case ProviderLocal:
		if hash == nil || *hash == "" {
			return nil, fmt.Errorf("%w: local user without password hash", ErrCorruptRecord)
		}
		if oauthID != nil && *oauthID != "" {
			return nil, fmt.Errorf("%w: local user with oauth id", ErrCorruptRecord)
		}
		return LocalCredentials{Hash: *hash}, nil
	case ProviderOAuth:
		if oauthID == nil || *oauthID == "" {
			return nil, fmt.Errorf("%w: oauth user without provider id", ErrCorruptRecord)
		}
		if hash != nil && *hash != "" {
			return LinkedCredentials{Hash: *hash, ProviderID: *oauthID}, nil
		}
		return OAuthCredentials{ProviderID: *oauthID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown auth provider %q", ErrCorruptRecord, provider)
	}
}

// credentialColumns is the inverse of credentialsFromColumns.
// Nil pointers map to NULL / absent fields.
func credentialColumns(c Credentials) (provider string, hash, oauthID *string) {
	if h, ok := c.PasswordHash(); ok {
		hash = &h
	}
	if id, ok := c.OAuthID(); ok {
		oauthID = &id
	}
	return string(c.Provider()), hash, oauthID
}

// Profile holds the user-editable fields. Zero values mean "not set".
type Profile struct {
	ProfilePicture string
	PartnerName    string
	WeddingDate    *time.Time
	Budget         float64
	Location       string
	PhoneNumber    string
}

// User is one account in the identity store.
type User struct {
	ID          uuid.UUID
	Email       string // lowercased, trimmed
	Name        string
	Credentials Credentials
	Profile     Profile
	CreatedAt   time.Time
	LastLogin   time.Time
}

// ProfileUpdate is a partial update over the whitelisted profile fields.
// Nil pointers leave the stored value untouched.
type ProfileUpdate struct {
	Name             *string
	PartnerName      *string
	WeddingDate      *time.Time
	ClearWeddingDate bool
	Budget           *float64
	Location         *string
	PhoneNumber      *string
}

// Apply writes the non-nil fields of p onto u.
func (p ProfileUpdate) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.PartnerName != nil {
		u.Profile.PartnerName = *p.PartnerName
	}
	if p.ClearWeddingDate {
		u.Profile.WeddingDate = nil
	} else if p.WeddingDate != nil {
		d := *p.WeddingDate
		u.Profile.WeddingDate = &d
	}
	if p.Budget != nil {
		u.Profile.Budget = *p.Budget
	}
	if p.Location != nil {
		u.Profile.Location = *p.Location
	}
	if p.PhoneNumber != nil {
		u.Profile.PhoneNumber = *p.PhoneNumber
	}
}

// Sender is the author of a chat message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one entry in a chat transcript, in conversation order.
type Message struct {
	Content   string    `json:"content" bson:"content"`
	Sender    Sender    `json:"sender" bson:"sender"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// ChatHistory is the single record kept per (user, mode).
type ChatHistory struct {
	UserID      uuid.UUID
	Mode        string
	Messages    []Message
	LastUpdated time.Time
}

// RateLimit defines the policy for a rate-limited action.
// All three fields required, zero values disable the respective behaviour.
type RateLimit struct {
	MaxAttempts int           // attempts allowed within Window before lockout
	Window      time.Duration // rolling window for attempt counting
	LockoutTTL  time.Duration // how long to block after MaxAttempts is hit
}

// withTimeout bounds a single store call. d <= 0 leaves ctx untouched.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
