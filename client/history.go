// history.go -- per-mode chat history with remote and local tiers.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Message is one chat turn. Sender is "user" or "assistant".
type Message struct {
	Content   string     `json:"content"`
	Sender    string     `json:"sender"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// HistoryStore loads and overwrites the transcript for one mode.
// Load of a mode never saved returns an empty slice and no error.
type HistoryStore interface {
	Load(ctx context.Context, mode string) ([]Message, error)
	Save(ctx context.Context, mode string, messages []Message) error
}

// RemoteHistory reads and writes /api/chat/{mode} with the client's token.
type RemoteHistory struct {
	c *Client
}

func (h *RemoteHistory) Load(ctx context.Context, mode string) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := h.c.do(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(mode), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Messages == nil {
		return []Message{}, nil
	}
	return resp.Messages, nil
}

func (h *RemoteHistory) Save(ctx context.Context, mode string, messages []Message) error {
	if messages == nil {
		messages = []Message{}
	}
	body := struct {
		Messages []Message `json:"messages"`
	}{messages}
	return h.c.do(ctx, http.MethodPost, "/api/chat/"+url.PathEscape(mode), body, nil)
}

var errCorruptHistories = errors.New("corrupt local chat histories")

// LocalHistory keeps every mode's transcript in one JSON object under KeyChatHistories.
type LocalHistory struct {
	Cache Cache
	mu    sync.Mutex // serializes read-modify-write of the shared key
}

func (h *LocalHistory) Load(ctx context.Context, mode string) ([]Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	all, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	if msgs, ok := all[mode]; ok && msgs != nil {
		return msgs, nil
	}
	return []Message{}, nil
}

func (h *LocalHistory) Save(ctx context.Context, mode string, messages []Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	all, err := h.load(ctx)
	switch {
	case errors.Is(err, errCorruptHistories):
		// Undecodable blob would block every later save; start over.
		all = make(map[string][]Message)
	case err != nil:
		return err
	}
	all[mode] = messages
	data, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return h.Cache.Set(ctx, KeyChatHistories, string(data))
}

func (h *LocalHistory) load(ctx context.Context) (map[string][]Message, error) {
	all := make(map[string][]Message)
	raw, err := h.Cache.Get(ctx, KeyChatHistories)
	if errors.Is(err, ErrCacheMiss) {
		return all, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptHistories, err)
	}
	return all, nil
}

// FallbackHistory tries Tiers in order. Load returns the first tier that
// answers; Save stops at the first tier that accepts the write. Every tier
// failing returns all of their errors joined.
type FallbackHistory struct {
	Tiers []HistoryStore
	Log   *slog.Logger
}

func (h *FallbackHistory) Load(ctx context.Context, mode string) ([]Message, error) {
	var errs []error
	for i, tier := range h.Tiers {
		msgs, err := tier.Load(ctx, mode)
		if err == nil {
			return msgs, nil
		}
		h.logger().Warn("chat history load failed, trying next tier", "tier", i, "mode", mode, "error", err)
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

func (h *FallbackHistory) Save(ctx context.Context, mode string, messages []Message) error {
	var errs []error
	for i, tier := range h.Tiers {
		err := tier.Save(ctx, mode, messages)
		if err == nil {
			return nil
		}
		h.logger().Warn("chat history save failed, trying next tier", "tier", i, "mode", mode, "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (h *FallbackHistory) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}
