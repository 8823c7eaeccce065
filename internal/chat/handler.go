// Package chat serves per-user, per-mode chat transcripts under /api/chat/{mode}.
// Each save is a full overwrite; the last write wins.
package chat

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/MGallo-Code/weddingkityaari/internal/auth"
	"github.com/MGallo-Code/weddingkityaari/internal/httpx"
	"github.com/MGallo-Code/weddingkityaari/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed messages.schema.json
var messagesSchema []byte

// maxBodyBytes caps a single save request.
const maxBodyBytes = 4 << 20

// modePattern restricts {mode} to short slugs.
var modePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Store defines the chat persistence operations the handler needs.
// Satisfied by every store.Backend.
type Store interface {
	GetChatHistory(ctx context.Context, userID uuid.UUID, mode string) (*store.ChatHistory, error)
	SaveChatHistory(ctx context.Context, userID uuid.UUID, mode string, messages []store.Message, at time.Time) error
}

// Handler holds dependencies for the chat history endpoints.
type Handler struct {
	PS     Store
	Now    func() time.Time // nil means time.Now
	schema *gojsonschema.Schema
}

// NewHandler compiles the request schema once.
func NewHandler(ps Store, now func() time.Time) (*Handler, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(messagesSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling chat schema: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Handler{PS: ps, Now: now, schema: schema}, nil
}

// messageJSON is the wire form of one message. Timestamp is optional on input.
type messageJSON struct {
	Content   string     `json:"content"`
	Sender    string     `json:"sender"`
	Timestamp *time.Time `json:"timestamp"`
}

// requestContext pulls the authenticated user and validated mode; writes the error response when either is bad.
func requestContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.Unauthorized(w, "access token required")
		return uuid.Nil, "", false
	}
	userID, err := claims.UserUUID()
	if err != nil {
		httpx.Forbidden(w, "invalid or expired token")
		return uuid.Nil, "", false
	}
	mode := chi.URLParam(r, "mode")
	if !modePattern.MatchString(mode) {
		httpx.BadRequest(w, "invalid chat mode")
		return uuid.Nil, "", false
	}
	return userID, mode, true
}

// GetHistory handles GET /api/chat/{mode}. A mode never written returns an empty list.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, mode, ok := requestContext(w, r)
	if !ok {
		return
	}

	messages := []messageJSON{}
	hist, err := h.PS.GetChatHistory(r.Context(), userID, mode)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		httpx.StoreError(w, r, fmt.Errorf("loading chat history: %w", err))
		return
	default:
		for _, m := range hist.Messages {
			ts := m.Timestamp
			messages = append(messages, messageJSON{Content: m.Content, Sender: string(m.Sender), Timestamp: &ts})
		}
	}
	httpx.JSON(w, http.StatusOK, struct {
		Messages []messageJSON `json:"messages"`
	}{messages})
}

// SaveHistory handles POST /api/chat/{mode}: validate against the schema, then overwrite.
// Messages without a timestamp are stamped with the save time.
func (h *Handler) SaveHistory(w http.ResponseWriter, r *http.Request) {
	userID, mode, ok := requestContext(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httpx.LogWarn(r, "failed to read chat body", "error", err)
		httpx.BadRequest(w, "error reading request body")
		return
	}
	res, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		httpx.LogWarn(r, "chat body is not json", "error", err)
		httpx.BadRequest(w, "error decoding request body")
		return
	}
	if !res.Valid() {
		details := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			details = append(details, e.String())
		}
		httpx.LogWarn(r, "chat body failed schema", "errors", details)
		httpx.JSON(w, http.StatusBadRequest, struct {
			Message string   `json:"message"`
			Details []string `json:"details"`
		}{"invalid chat history", details})
		return
	}

	var input struct {
		Messages []messageJSON `json:"messages"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		httpx.BadRequest(w, "error decoding request body")
		return
	}

	now := h.Now().UTC()
	messages := make([]store.Message, len(input.Messages))
	for i, m := range input.Messages {
		messages[i] = store.Message{Content: m.Content, Sender: normalizeSender(m.Sender), Timestamp: now}
		if m.Timestamp != nil {
			messages[i].Timestamp = m.Timestamp.UTC()
		}
	}

	if err := h.PS.SaveChatHistory(r.Context(), userID, mode, messages, now); err != nil {
		httpx.StoreError(w, r, fmt.Errorf("saving chat history: %w", err))
		return
	}
	httpx.LogDebug(r, "chat history saved", "user_id", userID, "mode", mode, "count", len(messages))
	httpx.JSON(w, http.StatusOK, struct {
		Message      string `json:"message"`
		Mode         string `json:"mode"`
		MessageCount int    `json:"messageCount"`
	}{"chat processed successfully", mode, len(messages)})
}

// normalizeSender maps the legacy "ai" sender onto assistant.
func normalizeSender(s string) store.Sender {
	if s == "ai" {
		return store.SenderAssistant
	}
	return store.Sender(s)
}
