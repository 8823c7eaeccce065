// handler.go -- POST /api/ai/chat and GET /api/ai/modes.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MGallo-Code/weddingkityaari/internal/auth"
	"github.com/MGallo-Code/weddingkityaari/internal/httpx"
	"github.com/MGallo-Code/weddingkityaari/internal/store"
	"github.com/gofrs/uuid/v5"
)

// UserLookup loads the profile used for personalization.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error)
}

// Handler serves the assistant endpoints.
type Handler struct {
	AI      Completer // nil when GEMINI_API_KEY is unset; chat answers 501
	Users   UserLookup
	Timeout time.Duration    // bound on one completion, 0 means none
	Now     func() time.Time // nil means time.Now
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// Modes handles GET /api/ai/modes.
func (h *Handler) Modes(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Personas)
}

// Chat handles POST /api/ai/chat. Works anonymously; with a valid token the
// reply is personalized from the caller's profile.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Message string          `json:"message"`
		Mode    string          `json:"mode"`
		History []store.Message `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httpx.LogWarn(r, "failed to decode ai chat input", "error", err)
		httpx.BadRequest(w, "error decoding request body")
		return
	}
	if strings.TrimSpace(input.Message) == "" {
		httpx.BadRequest(w, "message is required")
		return
	}
	if input.Mode == "" {
		input.Mode = DefaultMode
	}
	persona, ok := LookupPersona(input.Mode)
	if !ok {
		httpx.BadRequest(w, "unknown assistant mode")
		return
	}
	if h.AI == nil {
		httpx.NotImplemented(w, "ai assistant is not configured")
		return
	}

	now := h.now()
	system := SystemPrompt(persona, h.currentUser(r), now)

	ctx := r.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	reply, err := h.AI.Complete(ctx, system, input.History, input.Message)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			httpx.LogWarn(r, "ai completion timed out", "mode", persona.ID)
			httpx.GatewayTimeout(w)
			return
		}
		httpx.LogError(r, "ai completion failed", "error", err, "mode", persona.ID)
		httpx.BadGateway(w, "ai service unavailable")
		return
	}

	httpx.JSON(w, http.StatusOK, struct {
		Reply     string `json:"reply"`
		Mode      string `json:"mode"`
		Timestamp string `json:"timestamp"`
	}{reply, persona.ID, now.Format(time.RFC3339)})
}

// currentUser returns the caller's profile, or nil when anonymous or unavailable.
// Personalization is best effort; a lookup failure never fails the request.
func (h *Handler) currentUser(r *http.Request) *store.User {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || h.Users == nil {
		return nil
	}
	id, err := claims.UserUUID()
	if err != nil {
		return nil
	}
	u, err := h.Users.GetUserByID(r.Context(), id)
	if err != nil {
		httpx.LogWarn(r, "ai chat: profile lookup failed", "error", err, "user_id", id)
		return nil
	}
	return u
}
