package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopeworks/scout/pkg/config"
)

func TestOpenAIProviderGenerate(t *testing.T) {
	var gotReq openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hello"}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"total_tokens": 12},
		})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider("default", &config.LLMProviderConfig{
		Type:   "openai",
		Model:  "gpt-4o-mini",
		Host:   server.URL,
		APIKey: "test-key",
	})
	require.NoError(t, err)

	resp, err := provider.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 12, resp.Tokens)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	require.NotNil(t, gotReq.ResponseFormat)
	assert.Equal(t, "json_object", gotReq.ResponseFormat.Type)
}

func TestAnthropicSystemPromptExtraction(t *testing.T) {
	var gotReq anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "ok"}},
			"usage":   map[string]any{"input_tokens": 5, "output_tokens": 3},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider("default", &config.LLMProviderConfig{
		Type:   "anthropic",
		Model:  "claude-sonnet-4",
		Host:   server.URL,
		APIKey: "test-key",
	})
	require.NoError(t, err)

	resp, err := provider.Generate(context.Background(), Request{
		Messages: []Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 8, resp.Tokens)
	assert.Equal(t, "be terse", gotReq.System)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestNewUnknownType(t *testing.T) {
	_, err := New("x", &config.LLMProviderConfig{Type: "cohere", Model: "m"})
	assert.Error(t, err)
}

func TestBuildRegistryFreezes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	r, err := BuildRegistry(map[string]*config.LLMProviderConfig{
		"default": {Type: "openai", Model: "gpt-4o-mini", Host: server.URL, APIKey: "k"},
	})
	require.NoError(t, err)
	assert.True(t, r.Has("default"))

	assert.Panics(t, func() {
		_ = r.Register("late", NewScriptedProvider())
	})
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens("any-model", ""))
	assert.Greater(t, EstimateTokens("any-model", "some text to count"), 0)
}

func TestScriptedProvider(t *testing.T) {
	p := NewScriptedProvider("first", "second").Respond("classify", `{"ok":true}`)

	resp, err := p.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "please classify this"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, resp.Text)

	resp, err = p.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "other"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)
	assert.Equal(t, 2, p.Calls())
}
