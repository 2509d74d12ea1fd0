// Package ai proposes vocabulary entries with a chat model when no other method finds any.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrNoChoices is returned when the model responds without a completion.
var ErrNoChoices = errors.New("no choices in response")

// Suggester proposes words or phrases the user may have meant by query.
type Suggester interface {
	Suggest(ctx context.Context, query string, languages []string, n int) ([]string, error)
}

// Config configures an OpenAI-compatible chat endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAISuggester asks an OpenAI-compatible chat model for suggestions.
type OpenAISuggester struct {
	client *openai.Client
	model  string
}

// NewOpenAISuggester creates a suggester for the given endpoint.
func NewOpenAISuggester(cfg Config) (*OpenAISuggester, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ai suggester: model is required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAISuggester{client: openai.NewClientWithConfig(oc), model: cfg.Model}, nil
}

const systemPrompt = "You help users of a dictionary find the entry they are looking for. " +
	"Reply with a JSON array of strings and nothing else."

// Suggest returns up to n suggestions in the order the model ranked them.
func (s *OpenAISuggester) Suggest(ctx context.Context, query string, languages []string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	lang := "any language"
	if len(languages) > 0 {
		lang = "language code(s) " + strings.Join(languages, ", ")
	}
	prompt := fmt.Sprintf("List up to %d dictionary words or short phrases in %s that a user typing %q most likely meant, "+
		"including corrections of misspellings and close synonyms.", n, lang, query)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	out := ParseSuggestions(resp.Choices[0].Message.Content)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// ParseSuggestions reads a JSON string array, optionally inside a code fence. Output
// that is not JSON is read as one suggestion per line, with list markers removed.
func ParseSuggestions(content string) []string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var items []string
	lines := json.Unmarshal([]byte(content), &items) != nil
	if lines {
		items = strings.Split(content, "\n")
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if lines {
			it = strings.TrimLeft(it, "-*•0123456789.) ")
			it = strings.Trim(it, `"',`)
		}
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}
