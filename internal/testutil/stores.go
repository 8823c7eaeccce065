// stores.go
//
// Shared mock implementations of auth.Store, auth.RateLimiter and chat.Store.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MGallo-Code/weddingkityaari/internal/store"
	"github.com/gofrs/uuid/v5"
)

// MockStore implements the store.Backend method set in memory.

// Always stateful...Users and Chats are maps, like a real store, with the same
// uniqueness rules (email, oauth id). Use *Err fields to inject errors for specific operations.
type MockStore struct {
	// Error injection...zero value means no error
	HealthErr          error
	CreateUserErr      error
	GetUserErr         error
	TouchLastLoginErr  error
	LinkOAuthErr       error
	UpdateProfileErr   error
	GetChatHistoryErr  error
	SaveChatHistoryErr error

	Users map[uuid.UUID]*store.User
	Chats map[string]*store.ChatHistory // keyed by userID + "/" + mode

	// Calls counts every store call; lets tests assert "store untouched".
	Calls int

	mu sync.Mutex
}

// NewMockStore returns a MockStore seeded with the given users.
func NewMockStore(users ...*store.User) *MockStore {
	ms := &MockStore{
		Users: make(map[uuid.UUID]*store.User),
		Chats: make(map[string]*store.ChatHistory),
	}
	for _, u := range users {
		ms.Users[u.ID] = u
	}
	return ms
}

func chatKey(userID uuid.UUID, mode string) string { return userID.String() + "/" + mode }

// copyUser keeps callers from mutating stored records through returned pointers.
func copyUser(u *store.User) *store.User {
	c := *u
	if u.Profile.WeddingDate != nil {
		d := *u.Profile.WeddingDate
		c.Profile.WeddingDate = &d
	}
	return &c
}

func (m *MockStore) CheckHealth(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	return m.HealthErr
}

func (m *MockStore) Close() error { return nil }

func (m *MockStore) CreateUser(_ context.Context, u *store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.CreateUserErr != nil {
		return m.CreateUserErr
	}
	newID, hasOAuth := u.Credentials.OAuthID()
	for _, existing := range m.Users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrDuplicateEmail
		}
		if id, ok := existing.Credentials.OAuthID(); ok && hasOAuth && id == newID {
			return store.ErrDuplicateOAuthID
		}
	}
	m.Users[u.ID] = copyUser(u)
	return nil
}

func (m *MockStore) find(match func(*store.User) bool) (*store.User, error) {
	m.Calls++
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	for _, u := range m.Users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) GetUserByID(_ context.Context, id uuid.UUID) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *store.User) bool { return u.ID == id })
}

func (m *MockStore) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *store.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *MockStore) GetUserByOAuthID(_ context.Context, oauthID string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *store.User) bool {
		id, ok := u.Credentials.OAuthID()
		return ok && id == oauthID
	})
}

func (m *MockStore) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.TouchLastLoginErr != nil {
		return m.TouchLastLoginErr
	}
	u, ok := m.Users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastLogin = at
	return nil
}

func (m *MockStore) LinkOAuthIdentity(_ context.Context, id uuid.UUID, oauthID, picture string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.LinkOAuthErr != nil {
		return m.LinkOAuthErr
	}
	u, ok := m.Users[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, other := range m.Users {
		if oid, ok := other.Credentials.OAuthID(); ok && oid == oauthID && other.ID != id {
			return store.ErrDuplicateOAuthID
		}
	}
	u.Credentials = store.LinkCredentials(u.Credentials, oauthID)
	if picture != "" {
		u.Profile.ProfilePicture = picture
	}
	u.LastLogin = at
	return nil
}

func (m *MockStore) UpdateProfile(_ context.Context, id uuid.UUID, upd store.ProfileUpdate) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.UpdateProfileErr != nil {
		return nil, m.UpdateProfileErr
	}
	u, ok := m.Users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	upd.Apply(u)
	return copyUser(u), nil
}

func (m *MockStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if _, ok := m.Users[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.Users, id)
	prefix := id.String() + "/"
	for k := range m.Chats {
		if strings.HasPrefix(k, prefix) {
			delete(m.Chats, k)
		}
	}
	return nil
}

func (m *MockStore) GetChatHistory(_ context.Context, userID uuid.UUID, mode string) (*store.ChatHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.GetChatHistoryErr != nil {
		return nil, m.GetChatHistoryErr
	}
	h, ok := m.Chats[chatKey(userID, mode)]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *h
	c.Messages = append([]store.Message(nil), h.Messages...)
	return &c, nil
}

func (m *MockStore) SaveChatHistory(_ context.Context, userID uuid.UUID, mode string, messages []store.Message, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.SaveChatHistoryErr != nil {
		return m.SaveChatHistoryErr
	}
	m.Chats[chatKey(userID, mode)] = &store.ChatHistory{
		UserID:      userID,
		Mode:        mode,
		Messages:    append([]store.Message(nil), messages...),
		LastUpdated: at,
	}
	return nil
}

// CallCount returns Calls under the lock.
func (m *MockStore) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// MockRateLimiter implements auth.RateLimiter.
// Counts attempts per key; blocks once a key exceeds the policy's MaxAttempts.
type MockRateLimiter struct {
	AllowErr  error // returned by every Allow when set (infra failure or forced lockout)
	HealthErr error

	Attempts map[string]int
	mu       sync.Mutex
}

func (m *MockRateLimiter) Allow(_ context.Context, key string, policy store.RateLimit) error {
	if m.AllowErr != nil {
		return m.AllowErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Attempts == nil {
		m.Attempts = make(map[string]int)
	}
	m.Attempts[key]++
	if policy.MaxAttempts > 0 && m.Attempts[key] > policy.MaxAttempts {
		return store.ErrRateLimitExceeded
	}
	return nil
}

func (m *MockRateLimiter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Attempts, key)
	return nil
}

func (m *MockRateLimiter) CheckHealth(context.Context) error { return m.HealthErr }
