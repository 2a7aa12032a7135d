package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
store:
  driver: sqlite
  dsn: scout.db
llm:
  default:
    type: openai
    model: gpt-4o-mini
    api_key: ${SCOUT_TEST_OPENAI_KEY:-test-key}
providers:
  sonar:
    api_key: sk-sonar
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM["default"].Model)
	assert.Equal(t, "test-key", cfg.LLM["default"].APIKey, "env default applied")

	// Defaults filled in.
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.perplexity.ai", cfg.Providers.Sonar.BaseURL)
	assert.Equal(t, 4, cfg.Executor.MaxFanOut)
	assert.Equal(t, 4096, cfg.LLM["default"].MaxTokens)
}

func TestParseEnvExpansion(t *testing.T) {
	t.Setenv("SCOUT_TEST_DSN", "/tmp/scout.db")
	cfg, err := Parse([]byte(`
store:
  driver: sqlite
  dsn: ${SCOUT_TEST_DSN}
llm:
  default:
    type: anthropic
    model: claude-sonnet-4
`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/scout.db", cfg.Store.DSN)
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing dsn",
			yaml: "store:\n  driver: sqlite\nllm:\n  default:\n    type: openai\n    model: m\n",
		},
		{
			name: "unknown store driver",
			yaml: "store:\n  driver: dynamo\n  dsn: x\nllm:\n  default:\n    type: openai\n    model: m\n",
		},
		{
			name: "no llm providers",
			yaml: "store:\n  driver: sqlite\n  dsn: x\n",
		},
		{
			name: "missing default llm",
			yaml: "store:\n  driver: sqlite\n  dsn: x\nllm:\n  alt:\n    type: openai\n    model: m\n",
		},
		{
			name: "unknown llm type",
			yaml: "store:\n  driver: sqlite\n  dsn: x\nllm:\n  default:\n    type: cohere\n    model: m\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSettingsStageFor(t *testing.T) {
	temp := 0.2
	s := &GlobalSettings{
		LLMDefaults: map[string]StageLLM{
			StageScopeClassifier: {Provider: "default", Model: "gpt-4o-mini"},
			StageAnalyzer:        {Provider: "default", Model: "gpt-4o", Temperature: &temp},
		},
		Overrides: map[string]StageLLM{
			"daily_news_briefing/llm_analyzer": {Provider: "fast", Model: "gpt-4o-mini"},
		},
	}

	got := s.StageFor(StageAnalyzer, "daily_news_briefing", "llm_analyzer")
	assert.Equal(t, "fast", got.Provider)

	got = s.StageFor(StageAnalyzer, "other_strategy", "llm_analyzer")
	assert.Equal(t, "default", got.Provider)
}

func TestSettingsValidate(t *testing.T) {
	s := &GlobalSettings{
		LLMDefaults: map[string]StageLLM{
			StageScopeClassifier: {Provider: "default", Model: "m"},
			StageFill:            {Provider: "default", Model: "m"},
			StageAnalyzer:        {Provider: "default", Model: "m"},
		},
		Prompts: map[string]string{
			StageScopeClassifier: "Classify: {request}",
		},
	}
	require.NoError(t, s.Validate())

	delete(s.Prompts, StageScopeClassifier)
	assert.Error(t, s.Validate())
}
