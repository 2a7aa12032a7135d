package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVars() map[string]any {
	return map[string]any{
		"topic":        "AI lab news",
		"current_date": "2025-06-15",
		"count":        3,
		"companies":    []any{"OpenAI", "Anthropic", "Google"},
		"seed_results": []any{
			map[string]any{"url": "http://a/x", "title": "A"},
			map[string]any{"url": "http://b/y", "title": "B"},
		},
		"vars": map[string]any{"topic": "nested"},
	}
}

func TestRenderString(t *testing.T) {
	tests := []struct {
		name string
		tpl  string
		want string
	}{
		{
			name: "simple substitution",
			tpl:  "News about {{topic}} on {{current_date}}",
			want: "News about AI lab news on 2025-06-15",
		},
		{
			name: "dotted path",
			tpl:  "topic is {{vars.topic}}",
			want: "topic is nested",
		},
		{
			name: "indexed path",
			tpl:  "seed: {{seed_results[0].url}}",
			want: "seed: http://a/x",
		},
		{
			name: "unresolved path left verbatim",
			tpl:  "missing {{nope.deeper}} stays",
			want: "missing {{nope.deeper}} stays",
		},
		{
			name: "out of range index left verbatim",
			tpl:  "{{seed_results[9].url}}",
			want: "{{seed_results[9].url}}",
		},
		{
			name: "shortlist filter joins",
			tpl:  "top: {{companies | shortlist:2}}",
			want: "top: OpenAI, Anthropic",
		},
		{
			name: "shortlist on non-sequence unchanged",
			tpl:  "{{topic | shortlist:2}}",
			want: "AI lab news",
		},
		{
			name: "numeric value",
			tpl:  "n={{count}}",
			want: "n=3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderString(tt.tpl, testVars()))
		})
	}
}

func TestRenderInputs(t *testing.T) {
	inputs := map[string]any{
		"query":       "{{topic}} today",
		"urls":        "{{seed_results}}",
		"num_results": 5,
		"nested":      map[string]any{"q": "{{topic}}"},
	}

	out := RenderInputs(inputs, testVars())

	assert.Equal(t, "AI lab news today", out["query"])
	assert.Equal(t, 5, out["num_results"])

	// Whole-token string resolves to the underlying list, not a string.
	urls, ok := out["urls"].([]any)
	require.True(t, ok)
	assert.Len(t, urls, 2)

	nested := out["nested"].(map[string]any)
	assert.Equal(t, "AI lab news", nested["q"])
}

func TestEvalListExpr(t *testing.T) {
	list, ok := EvalListExpr("{{ companies }}", testVars())
	require.True(t, ok)
	assert.Equal(t, []any{"OpenAI", "Anthropic", "Google"}, list)

	list, ok = EvalListExpr("{{ companies | shortlist:1 }}", testVars())
	require.True(t, ok)
	assert.Equal(t, []any{"OpenAI"}, list)

	_, ok = EvalListExpr("{{ missing }}", testVars())
	assert.False(t, ok)

	_, ok = EvalListExpr("{{ topic }}", testVars())
	assert.False(t, ok, "scalar is not a sequence")
}

func TestWhen(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"topic", true},
		{"{{topic}}", true},
		{"missing", false},
		{"missing.deeper", false},
		{"!missing", true},
		{"companies", true},
		{"count", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, When(tt.expr, testVars()))
		})
	}

	vars := map[string]any{"empty": []any{}, "zero": 0, "blank": ""}
	assert.False(t, When("empty", vars))
	assert.False(t, When("zero", vars))
	assert.False(t, When("blank", vars))
}

func TestResolvePathOnStructs(t *testing.T) {
	type item struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	vars := map[string]any{
		"results": []item{{URL: "http://a/x", Title: "A"}},
	}

	got, ok := ResolvePath("results[0].url", vars)
	require.True(t, ok)
	assert.Equal(t, "http://a/x", got)

	_, ok = ResolvePath("results[0].missing", vars)
	assert.False(t, ok)
}
