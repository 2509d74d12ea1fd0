package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"json array", `["receive", "deceive"]`, []string{"receive", "deceive"}},
		{"code fence", "```json\n[\"happy\"]\n```", []string{"happy"}},
		{"numbered lines", "1. happy\n2. glad\n\n", []string{"happy", "glad"}},
		{"bullets", "- ad hoc\n* per se", []string{"ad hoc", "per se"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSuggestions(tt.content))
		})
	}
}

func TestOpenAISuggester_Suggest(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"[\"receive\",\"recipe\",\"relieve\"]"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	s, err := NewOpenAISuggester(Config{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	out, err := s.Suggest(context.Background(), "recieve", []string{"en"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"receive", "recipe"}, out)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, `"recieve"`)
	assert.Contains(t, got.Messages[1].Content, "en")
}

func TestOpenAISuggester_errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	s, err := NewOpenAISuggester(Config{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)
	_, err = s.Suggest(context.Background(), "x", nil, 3)
	assert.ErrorIs(t, err, ErrNoChoices)

	out, err := s.Suggest(context.Background(), "x", nil, 0)
	assert.NoError(t, err)
	assert.Empty(t, out)

	_, err = NewOpenAISuggester(Config{})
	assert.Error(t, err)
}
