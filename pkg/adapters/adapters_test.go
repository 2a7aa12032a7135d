package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/evidence"
	"github.com/scopeworks/scout/pkg/llms"
)

func TestSonarCall(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, jsonDecode(r, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "Summary of findings."}}],
			"search_results": [
				{"title": "Story A", "url": "https://example.com/a", "date": "2026-08-20"},
				{"title": "Story B", "url": "https://example.org/b", "date": "2026-08-21"}
			]
		}`))
	}))
	defer server.Close()

	adapter, err := NewSonarAdapter(config.SonarConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "sonar",
		Timeout: 5,
	})
	require.NoError(t, err)

	items, err := adapter.Call(context.Background(), map[string]any{
		"prompt":  "quantum computing news",
		"recency": "day",
		"domains": []any{"example.com"},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "https://example.com/a", items[0].URL)
	assert.Equal(t, "example.com", items[0].Publisher)
	assert.Equal(t, "sonar", items[0].Tool)
	assert.Equal(t, "Summary of findings.", items[0].Snippet)

	assert.Equal(t, "day", gotBody["search_recency_filter"])
	assert.Equal(t, []any{"example.com"}, gotBody["search_domain_filter"])
}

func TestSonarCitationsFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "answer"}}],
			"citations": ["https://example.com/c1", "https://example.com/c2"]
		}`))
	}))
	defer server.Close()

	adapter, err := NewSonarAdapter(config.SonarConfig{APIKey: "k", BaseURL: server.URL, Timeout: 5})
	require.NoError(t, err)

	items, err := adapter.Call(context.Background(), map[string]any{
		"prompt":      "q",
		"max_results": 1,
	})
	require.NoError(t, err)
	require.Len(t, items, 1, "max_results truncates")
	assert.Equal(t, "https://example.com/c1", items[0].URL)
}

func TestSonarMissingPromptIsPermanent(t *testing.T) {
	adapter, err := NewSonarAdapter(config.SonarConfig{APIKey: "k", BaseURL: "http://unused", Timeout: 5})
	require.NoError(t, err)

	_, err = adapter.Call(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestExaSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{
			"results": [
				{"url": "https://example.com/x", "title": "X", "publishedDate": "2026-08-01", "score": 0.91, "text": "body text"}
			]
		}`))
	}))
	defer server.Close()

	adapter, err := NewExaAdapter(config.ExaConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	require.NoError(t, err)

	items, err := adapter.Search(context.Background(), "topic", map[string]any{"max_results": 5})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0.91, items[0].Score)
	assert.Equal(t, "exa", items[0].Tool)
	assert.Equal(t, "body text", items[0].Snippet)
}

func TestExaSearchForwardsFilters(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, jsonDecode(r, &gotBody))
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	adapter, err := NewExaAdapter(config.ExaConfig{APIKey: "k", BaseURL: server.URL, Timeout: 5})
	require.NoError(t, err)

	_, err = adapter.Search(context.Background(), "topic", map[string]any{
		"domains":              []any{"example.com"},
		"exclude_domains":      []any{"spam.example"},
		"start_published_date": "2026-08-01",
		"end_published_date":   "2026-08-24",
		"type":                 "neural",
		"autoprompt":           true,
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"example.com"}, gotBody["includeDomains"])
	assert.Equal(t, []any{"spam.example"}, gotBody["excludeDomains"])
	assert.Equal(t, "2026-08-01", gotBody["startPublishedDate"])
	assert.Equal(t, "2026-08-24", gotBody["endPublishedDate"])
	assert.Equal(t, "neural", gotBody["type"])
	assert.Equal(t, true, gotBody["useAutoprompt"])
}

func TestExaAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/answer", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"answer": "42",
			"citations": [{"url": "https://example.com/ref", "title": "Ref"}]
		}`))
	}))
	defer server.Close()

	adapter, err := NewExaAdapter(config.ExaConfig{APIKey: "k", BaseURL: server.URL, Timeout: 5})
	require.NoError(t, err)

	answer, sources, err := adapter.Answer(context.Background(), "the question", nil)
	require.NoError(t, err)
	assert.Equal(t, "42", answer)
	require.Len(t, sources, 1)
	assert.Equal(t, "https://example.com/ref", sources[0].URL)
}

func TestExaContentsEmptyURLs(t *testing.T) {
	adapter, err := NewExaAdapter(config.ExaConfig{APIKey: "k", BaseURL: "http://unused", Timeout: 5})
	require.NoError(t, err)

	items, err := adapter.Contents(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestExaAuthFailureIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter, err := NewExaAdapter(config.ExaConfig{APIKey: "bad", BaseURL: server.URL, Timeout: 5})
	require.NoError(t, err)

	_, err = adapter.Search(context.Background(), "q", nil)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestFetchHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Page  Title</title>
			<script>ignore()</script></head>
			<body><h1>Heading</h1><p>Body &amp; text.</p></body></html>`))
	}))
	defer server.Close()

	adapter := NewFetchAdapter(config.FetchConfig{Timeout: 5, MaxBytes: 1 << 20})
	items, err := adapter.Call(context.Background(), map[string]any{"url": server.URL})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "Page Title", items[0].Title)
	assert.Contains(t, items[0].Snippet, "Heading")
	assert.Contains(t, items[0].Snippet, "Body & text.")
	assert.NotContains(t, items[0].Snippet, "ignore()")
	assert.Equal(t, "fetch", items[0].Tool)
}

func TestFetchSkipsFailingURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`<title>ok</title>good`))
	}))
	defer server.Close()

	adapter := NewFetchAdapter(config.FetchConfig{Timeout: 5, MaxBytes: 1 << 20})
	items, err := adapter.Call(context.Background(), map[string]any{
		"urls": []any{server.URL + "/bad", server.URL + "/good"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ok", items[0].Title)
}

func TestAnalyzerReturnsSentinel(t *testing.T) {
	providers := llms.NewRegistry()
	require.NoError(t, providers.Register("default", llms.NewScriptedProvider("synthesized text")))
	providers.Freeze()

	settings := &config.GlobalSettings{
		LLMDefaults: map[string]config.StageLLM{
			config.StageAnalyzer: {Provider: "default", Model: "m"},
		},
	}

	analyzer := NewLLMAnalyzer(providers, settings, nil)
	items, err := analyzer.Call(context.Background(), map[string]any{"prompt": "synthesize this"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, evidence.SentinelAnalysis, items[0].URL)
	assert.True(t, items[0].IsSentinel())
	assert.Equal(t, "synthesized text", items[0].Snippet)
	assert.True(t, analyzer.LLMBacked())
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	exa, err := NewExaAdapter(config.ExaConfig{APIKey: "k", BaseURL: "http://unused", Timeout: 5})
	require.NoError(t, err)
	require.NoError(t, r.Register("exa", exa))
	fetch := NewFetchAdapter(config.FetchConfig{Timeout: 5, MaxBytes: 1024})
	require.NoError(t, r.Register("fetch", fetch))
	r.Freeze()

	inv, err := r.Resolve("exa.search")
	require.NoError(t, err)
	assert.Equal(t, CapSearch, inv.Capability)

	inv, err = r.Resolve("fetch")
	require.NoError(t, err)
	assert.Equal(t, CapCall, inv.Capability)

	_, err = r.Resolve("fetch.answer")
	require.Error(t, err, "fetch has no answer capability")
	assert.True(t, IsPermanent(err))

	_, err = r.Resolve("nonexistent")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestInvocationAnswerValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"answer": "direct answer", "citations": []}`))
	}))
	defer server.Close()

	r := NewRegistry()
	exa, err := NewExaAdapter(config.ExaConfig{APIKey: "k", BaseURL: server.URL, Timeout: 5})
	require.NoError(t, err)
	require.NoError(t, r.Register("exa", exa))
	r.Freeze()

	inv, err := r.Resolve("exa.answer")
	require.NoError(t, err)

	result, err := inv.Invoke(context.Background(), map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.Equal(t, "direct answer", result.Value)
}

func TestExcerptKeepsRunesIntact(t *testing.T) {
	assert.Equal(t, "short", excerpt("short", 10))

	// The cut point lands inside the multibyte rune; it must back up to
	// the rune start rather than emit a partial encoding.
	s := "aé" // 'é' is bytes 1-2
	got := excerpt(s, 2)
	assert.Equal(t, "a...", got)
	assert.True(t, utf8.ValidString(got))

	long := strings.Repeat("日", 200)
	got = excerpt(long, 400)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("日", 133)+"...", got)
}

func jsonDecode(r *http.Request, out any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(out)
}
