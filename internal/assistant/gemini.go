// gemini.go -- Completer backed by Google's Gemini API.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MGallo-Code/weddingkityaari/internal/store"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when GEMINI_MODEL is unset.
const DefaultGeminiModel = "gemini-2.5-flash-lite"

// maxHistory is how many prior turns are sent along with the new message.
const maxHistory = 6

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("empty reply from model")

// Completer produces one assistant reply.
type Completer interface {
	Complete(ctx context.Context, system string, history []store.Message, message string) (string, error)
}

// GeminiCompleter implements Completer with google.golang.org/genai.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter builds a Gemini API client. No request is made until Complete.
func NewGeminiCompleter(ctx context.Context, apiKey, model string) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiCompleter{client: client, model: model}, nil
}

// Complete sends the last few turns of history plus message under the system instruction.
func (g *GeminiCompleter) Complete(ctx context.Context, system string, history []store.Message, message string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, buildContents(history, message), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var out strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			out.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", ErrEmptyReply
	}
	return out.String(), nil
}

// buildContents maps stored turns onto Gemini roles, dropping empty messages and
// keeping only the most recent maxHistory.
func buildContents(history []store.Message, message string) []*genai.Content {
	filtered := make([]store.Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) != "" {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) > maxHistory {
		filtered = filtered[len(filtered)-maxHistory:]
	}

	contents := make([]*genai.Content, 0, len(filtered)+1)
	for _, m := range filtered {
		role := genai.RoleUser
		if m.Sender == store.SenderAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: message}},
	})
}
