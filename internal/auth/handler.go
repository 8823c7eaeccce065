// handler.go -- HTTP handlers for /api/auth/* endpoints.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MGallo-Code/weddingkityaari/internal/httpx"
	"github.com/MGallo-Code/weddingkityaari/internal/oauth"
	"github.com/MGallo-Code/weddingkityaari/internal/store"
)

// AuthHandler holds dependencies for all /api/auth/* handlers and middleware.
type AuthHandler struct {
	ID     *Identity
	Tokens *TokenService

	// Google is nil when OAuth is not configured; its routes answer 501.
	Google       oauth.Provider
	FrontendURL  string
	CookieSecure bool

	StartedAt time.Time
	Version   string
}

// UserResponse is the sanitized user shape every endpoint returns. Never carries a password hash.
type UserResponse struct {
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

// dateLayout is the wire format for weddingDate.
const dateLayout = "2006-01-02"

// NewUserResponse sanitizes u.
func NewUserResponse(u *store.User) UserResponse {
	resp := UserResponse{
		ID:             u.ID.String(),
		Email:          u.Email,
		Name:           u.Name,
		PartnerName:    u.Profile.PartnerName,
		Budget:         u.Profile.Budget,
		Location:       u.Profile.Location,
		PhoneNumber:    u.Profile.PhoneNumber,
		ProfilePicture: u.Profile.ProfilePicture,
		AuthProvider:   string(u.Credentials.Provider()),
	}
	if u.Profile.WeddingDate != nil {
		d := u.Profile.WeddingDate.Format(dateLayout)
		resp.WeddingDate = &d
	}
	return resp
}

type authResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
	Token   string       `json:"token"`
}

// Register handles POST /api/auth/register.
// 201 with user + token, 400 for validation errors and duplicate emails.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httpx.LogWarn(r, "failed to decode register input", "error", err)
		httpx.BadRequest(w, "error decoding request body")
		return
	}

	u, err := h.ID.Register(r.Context(), input.Email, input.Password, input.Name)
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}

	token, _, err := h.Tokens.Issue(u.ID, u.Email, u.Name)
	if err != nil {
		httpx.InternalServerError(w, r, err)
		return
	}
	httpx.LogInfo(r, "user registered", "user_id", u.ID)
	httpx.JSON(w, http.StatusCreated, authResponse{"user registered successfully", NewUserResponse(u), token})
}

// Login handles POST /api/auth/login.
// 200 with user + token; 401 with one message for every credential failure.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httpx.LogWarn(r, "failed to decode login input", "error", err)
		httpx.BadRequest(w, "error decoding request body")
		return
	}

	u, err := h.ID.Login(r.Context(), input.Email, input.Password)
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}

	token, _, err := h.Tokens.Issue(u.ID, u.Email, u.Name)
	if err != nil {
		httpx.InternalServerError(w, r, err)
		return
	}
	httpx.LogInfo(r, "user logged in", "user_id", u.ID)
	httpx.JSON(w, http.StatusOK, authResponse{"login successful", NewUserResponse(u), token})
}

// Logout handles POST /api/auth/logout. Tokens are stateless, so this only
// acknowledges; the client discards its copy.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, ok := ClaimsFromContext(r.Context()); ok {
		httpx.LogInfo(r, "user logged out", "user_id", c.UserID)
	}
	httpx.OK(w, "logged out successfully")
}

// GetProfile handles GET /api/auth/profile.
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "access token required")
		return
	}
	id, _ := claims.UserUUID()

	u, err := h.ID.Profile(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewUserResponse(u))
}

// UpdateProfile handles PUT /api/auth/profile. Only the whitelisted profile
// fields are read; email, password and unknown keys are ignored.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "access token required")
		return
	}
	id, _ := claims.UserUUID()

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		httpx.LogWarn(r, "failed to decode profile input", "error", err)
		httpx.BadRequest(w, "error decoding request body")
		return
	}
	upd, err := parseProfileUpdate(raw)
	if err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}

	u, err := h.ID.UpdateProfile(r.Context(), id, upd)
	if err != nil {
		h.writeError(w, r, "update profile", err)
		return
	}
	httpx.LogInfo(r, "profile updated", "user_id", u.ID)
	httpx.JSON(w, http.StatusOK, struct {
		Message string       `json:"message"`
		User    UserResponse `json:"user"`
	}{"profile updated successfully", NewUserResponse(u)})
}

// parseProfileUpdate decodes the whitelisted keys of raw. JSON null clears a field.
func parseProfileUpdate(raw map[string]json.RawMessage) (store.ProfileUpdate, error) {
	var upd store.ProfileUpdate

	strField := func(key string) (*string, error) {
		v, ok := raw[key]
		if !ok {
			return nil, nil
		}
		var s *string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, fmt.Errorf("%s must be a string", key)
		}
		if s == nil {
			s = new(string)
		}
		return s, nil
	}

	var err error
	if upd.Name, err = strField("name"); err != nil {
		return upd, err
	}
	if upd.PartnerName, err = strField("partnerName"); err != nil {
		return upd, err
	}
	if upd.Location, err = strField("location"); err != nil {
		return upd, err
	}
	if upd.PhoneNumber, err = strField("phoneNumber"); err != nil {
		return upd, err
	}

	if v, ok := raw["budget"]; ok {
		var b *float64
		if err := json.Unmarshal(v, &b); err != nil {
			return upd, errors.New("budget must be a number")
		}
		if b == nil {
			b = new(float64)
		}
		upd.Budget = b
	}

	if v, ok := raw["weddingDate"]; ok {
		var s *string
		if err := json.Unmarshal(v, &s); err != nil {
			return upd, errors.New("weddingDate must be a date string")
		}
		if s == nil || *s == "" {
			upd.ClearWeddingDate = true
		} else {
			d, err := parseWeddingDate(*s)
			if err != nil {
				return upd, err
			}
			upd.WeddingDate = &d
		}
	}
	return upd, nil
}

// parseWeddingDate accepts YYYY-MM-DD or RFC 3339 and keeps only the calendar date.
func parseWeddingDate(s string) (time.Time, error) {
	if d, err := time.Parse(dateLayout, s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("weddingDate must be YYYY-MM-DD or an RFC 3339 timestamp")
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// writeError maps Identity errors to responses. Anything unrecognized is a 500 (or 504 on timeout).
func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.BadRequest(w, verr.Message)
	case errors.Is(err, store.ErrDuplicateEmail):
		httpx.LogWarn(r, op+" failed", "reason", "duplicate_email")
		httpx.BadRequest(w, "user already exists with this email")
	case errors.Is(err, ErrInvalidCredentials):
		httpx.LogWarn(r, op+" failed", "reason", "invalid_credentials")
		httpx.Unauthorized(w, "invalid email or password")
	case errors.Is(err, ErrRateLimited):
		httpx.LogWarn(r, op+" failed", "reason", "rate_limited")
		httpx.TooManyRequests(w)
	case errors.Is(err, store.ErrNotFound):
		httpx.NotFound(w, "user not found")
	default:
		httpx.StoreError(w, r, fmt.Errorf("%s: %w", op, err))
	}
}
