package adapters

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/evidence"
	"github.com/scopeworks/scout/pkg/llms"
)

// LLMAnalyzer is the in-pipeline synthesis tool. It sends the rendered
// prompt to an LLM and returns the completion as a single synthetic
// evidence record (url = llm_analysis_result) so that downstream steps
// and save_as handling treat it uniformly with real sources.
type LLMAnalyzer struct {
	providers *llms.Registry
	settings  *config.GlobalSettings
	logger    *slog.Logger
}

func NewLLMAnalyzer(providers *llms.Registry, settings *config.GlobalSettings, logger *slog.Logger) *LLMAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMAnalyzer{providers: providers, settings: settings, logger: logger}
}

func (a *LLMAnalyzer) Name() string { return "llm_analyzer" }

// LLMBacked marks analyzer calls as consuming the per-request LLM query
// budget.
func (a *LLMAnalyzer) LLMBacked() bool { return true }

// Call accepts: prompt (required), system_prompt, strategy_slug and
// step_use (for per-strategy model overrides), temperature, max_tokens.
func (a *LLMAnalyzer) Call(ctx context.Context, inputs map[string]any) ([]evidence.Evidence, error) {
	prompt := StringInput(inputs, "prompt", "query")
	if prompt == "" {
		return nil, NewPermanentError(a.Name(), "prompt input is required", nil)
	}

	stage := a.settings.StageFor(config.StageAnalyzer,
		StringInput(inputs, "strategy_slug"),
		StringInput(inputs, "step_use"))
	providerName := stage.Provider
	if providerName == "" {
		providerName = "default"
	}
	provider, ok := a.providers.Get(providerName)
	if !ok {
		return nil, NewPermanentError(a.Name(), fmt.Sprintf("llm provider %q is not configured", providerName), nil)
	}

	var messages []llms.Message
	if system := StringInput(inputs, "system_prompt", "system"); system != "" {
		messages = append(messages, llms.Message{Role: "system", Content: system})
	}
	messages = append(messages, llms.Message{Role: "user", Content: prompt})

	req := llms.Request{
		Messages:    messages,
		Model:       stage.Model,
		Temperature: stage.Temperature,
		MaxTokens:   stage.MaxTokens,
	}
	if t := FloatInput(inputs, "temperature"); t != nil {
		req.Temperature = t
	}
	if n := IntInput(inputs, 0, "max_tokens"); n > 0 {
		req.MaxTokens = n
	}

	resp, err := provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("[%s] generation failed: %w", a.Name(), err)
	}
	a.logger.Debug("analyzer completed", "provider", providerName, "tokens", resp.Tokens)

	return []evidence.Evidence{{
		URL:     evidence.SentinelAnalysis,
		Tool:    a.Name(),
		Snippet: resp.Text,
	}}, nil
}
