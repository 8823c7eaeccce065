// Package client is a Go client for the WeddingKiTyaari API.
//
// It keeps the bearer token and a snapshot of the signed-in user in a Cache,
// restores them on startup and verifies them against the server, and persists
// chat histories per mode with a local fallback when the server is unreachable
// or the caller is anonymous.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNotAuthenticated is returned by operations that need a token when none is held.
var ErrNotAuthenticated = errors.New("not authenticated")

// APIError is a non-2xx response. Message is the server's {"message"} field.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// OAuthError reports a failed Google sign-in, as carried back on the callback URL.
type OAuthError struct {
	Code string // oauth_failed, email_not_verified, missing_data, invalid_data
}

func (e *OAuthError) Error() string { return "oauth sign-in failed: " + e.Code }

// User is the sanitized account the server returns.
type User struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	Name           string  `json:"name"`
	PartnerName    string  `json:"partnerName"`
	WeddingDate    *string `json:"weddingDate"`
	Budget         float64 `json:"budget"`
	Location       string  `json:"location"`
	PhoneNumber    string  `json:"phoneNumber"`
	ProfilePicture string  `json:"profilePicture"`
	AuthProvider   string  `json:"authProvider"`
}

// ProfileUpdate sends only the non-nil fields. An empty WeddingDate clears it.
type ProfileUpdate struct {
	Name        *string  `json:"name,omitempty"`
	PartnerName *string  `json:"partnerName,omitempty"`
	WeddingDate *string  `json:"weddingDate,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
	Location    *string  `json:"location,omitempty"`
	PhoneNumber *string  `json:"phoneNumber,omitempty"`
}

// Mode is one assistant persona.
type Mode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Reply is the assistant's answer to Ask.
type Reply struct {
	Reply     string `json:"reply"`
	Mode      string `json:"mode"`
	Timestamp string `json:"timestamp"`
}

// Client talks to one API server. Safe for concurrent use.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Cache   Cache
	Log     *slog.Logger

	local *LocalHistory

	mu    sync.RWMutex
	token string
	user  *User
}

// New returns a Client for baseURL storing its session in cache.
func New(baseURL string, cache Cache) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 60 * time.Second},
		Cache:   cache,
		Log:     slog.Default(),
		local:   &LocalHistory{Cache: cache},
	}
}

// Token returns the current bearer token, "" when signed out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// User returns a copy of the signed-in user, nil when signed out.
func (c *Client) User() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// Authenticated reports whether a token is held. It does not contact the server.
func (c *Client) Authenticated() bool { return c.Token() != "" }

// History returns the chat history store for the current session:
// remote then local when signed in, local only when anonymous.
func (c *Client) History() HistoryStore {
	if !c.Authenticated() {
		return c.local
	}
	return &FallbackHistory{
		Tiers: []HistoryStore{&RemoteHistory{c: c}, c.local},
		Log:   c.Log,
	}
}

type authResponse struct {
	Message string `json:"message"`
	User    User   `json:"user"`
	Token   string `json:"token"`
}

// Register creates a local account and signs in.
func (c *Client) Register(ctx context.Context, email, password, name string) (*User, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password, "name": name}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", body, &resp); err != nil {
		return nil, err
	}
	c.setSession(ctx, resp.Token, &resp.User)
	return c.User(), nil
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, err
	}
	c.setSession(ctx, resp.Token, &resp.User)
	return c.User(), nil
}

// Logout forgets the token, the user snapshot and every locally cached chat.
// Server-side records are kept. The server call is best effort.
func (c *Client) Logout(ctx context.Context) error {
	if c.Authenticated() {
		if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
			c.Log.Debug("logout request failed", "error", err)
		}
	}
	c.mu.Lock()
	c.token, c.user = "", nil
	c.mu.Unlock()
	return c.Cache.Delete(ctx, KeyToken, KeyCurrentUser, KeyChatHistories)
}

// Restore loads a saved session from the cache and verifies it with the server.
// Returns false when there was nothing to restore or the server rejected it.
func (c *Client) Restore(ctx context.Context) (bool, error) {
	token, err := c.Cache.Get(ctx, KeyToken)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cached token: %w", err)
	}
	raw, err := c.Cache.Get(ctx, KeyCurrentUser)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cached user: %w", err)
	}

	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		c.Log.Warn("cached user is corrupt, signing out", "error", err)
		return false, c.Logout(ctx)
	}
	c.mu.Lock()
	c.token, c.user = token, &u
	c.mu.Unlock()

	return c.VerifySession(ctx)
}

// VerifySession re-fetches the profile with the held token. A 401, 403 or 404
// signs the client out and returns false. Any other failure, transport or
// server side, keeps the session and is returned.
func (c *Client) VerifySession(ctx context.Context) (bool, error) {
	if !c.Authenticated() {
		return false, nil
	}
	u, err := c.Profile(ctx)
	var apiErr *APIError
	if errors.As(err, &apiErr) && sessionRejected(apiErr.Status) {
		c.Log.Info("session rejected by server, signing out", "status", apiErr.Status)
		return false, c.Logout(ctx)
	}
	if err != nil {
		return false, err
	}
	c.setUser(ctx, u)
	return true, nil
}

func sessionRejected(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// Profile fetches the signed-in user from the server.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	if !c.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	var u User
	if err := c.do(ctx, http.MethodGet, "/api/auth/profile", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile sends upd and refreshes the cached user from the response.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*User, error) {
	if !c.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	var resp struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/auth/profile", upd, &resp); err != nil {
		return nil, err
	}
	c.setUser(ctx, &resp.User)
	return c.User(), nil
}

// GoogleSignInURL is where a browser starts Google sign-in.
func (c *Client) GoogleSignInURL() string {
	return c.BaseURL + "/api/auth/google"
}

// CompleteOAuth finishes Google sign-in from the front-end callback URL
// (.../auth/callback?token=..&user=..) or the error redirect (...?error=..).
func (c *Client) CompleteOAuth(ctx context.Context, callbackURL string) (*User, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, &OAuthError{Code: "invalid_data"}
	}
	q := u.Query()
	if code := q.Get("error"); code != "" {
		return nil, &OAuthError{Code: code}
	}
	token, rawUser := q.Get("token"), q.Get("user")
	if token == "" || rawUser == "" {
		return nil, &OAuthError{Code: "missing_data"}
	}
	var user User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, &OAuthError{Code: "invalid_data"}
	}
	c.setSession(ctx, token, &user)
	return c.User(), nil
}

// Ask sends message to the assistant in mode, with history as context.
// Works signed out; a held token personalizes the reply.
func (c *Client) Ask(ctx context.Context, mode, message string, history []Message) (*Reply, error) {
	body := struct {
		Message string    `json:"message"`
		Mode    string    `json:"mode,omitempty"`
		History []Message `json:"history,omitempty"`
	}{message, mode, history}
	var reply Reply
	if err := c.do(ctx, http.MethodPost, "/api/ai/chat", body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Modes lists the assistant personas.
func (c *Client) Modes(ctx context.Context) ([]Mode, error) {
	var modes []Mode
	if err := c.do(ctx, http.MethodGet, "/api/ai/modes", nil, &modes); err != nil {
		return nil, err
	}
	return modes, nil
}

// setSession stores token + user in memory and in the cache. Cache failures are logged only.
func (c *Client) setSession(ctx context.Context, token string, u *User) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	if err := c.Cache.Set(ctx, KeyToken, token); err != nil {
		c.Log.Warn("caching token failed", "error", err)
	}
	c.setUser(ctx, u)
}

func (c *Client) setUser(ctx context.Context, u *User) {
	cp := *u
	c.mu.Lock()
	c.user = &cp
	c.mu.Unlock()
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := c.Cache.Set(ctx, KeyCurrentUser, string(data)); err != nil {
		c.Log.Warn("caching user failed", "error", err)
	}
}

// do sends a JSON request and decodes a JSON response into out (when non-nil).
// Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg struct {
			Message string `json:"message"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&msg)
		if msg.Message == "" {
			msg.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
