package config

import (
	"fmt"
)

// Stage names used to key LLM defaults and prompts.
const (
	StageScopeClassifier = "scope_classifier"
	StageFill            = "fill"
	StageSummarize       = "summarize"
	StageQC              = "qc"
	StageRenderer        = "renderer"
	StageAnalyzer        = "analyzer"
)

// StageLLM selects a provider/model for one pipeline stage.
type StageLLM struct {
	Provider    string   `yaml:"provider" json:"provider" mapstructure:"provider"`
	Model       string   `yaml:"model" json:"model" mapstructure:"model"`
	Temperature *float64 `yaml:"temperature" json:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens   int      `yaml:"max_tokens" json:"max_tokens,omitempty" mapstructure:"max_tokens"`
}

// GlobalSettings is the settings document loaded from the durable store at
// boot: per-stage LLM defaults, per-stage prompt templates, and optional
// per-strategy/per-step overrides keyed "strategy_slug/step_use".
type GlobalSettings struct {
	LLMDefaults map[string]StageLLM `yaml:"llm_defaults" json:"llm_defaults" mapstructure:"llm_defaults"`
	Prompts     map[string]string   `yaml:"prompts" json:"prompts" mapstructure:"prompts"`
	Overrides   map[string]StageLLM `yaml:"overrides" json:"overrides,omitempty" mapstructure:"overrides"`
}

// StageFor resolves the LLM settings for a stage, honoring a
// "strategy_slug/step_use" override when present.
func (s *GlobalSettings) StageFor(stage, strategySlug, stepUse string) StageLLM {
	if strategySlug != "" && stepUse != "" {
		if override, ok := s.Overrides[strategySlug+"/"+stepUse]; ok {
			return override
		}
	}
	return s.LLMDefaults[stage]
}

// Prompt returns the prompt template for a stage, or "" when undeclared.
func (s *GlobalSettings) Prompt(stage string) string {
	return s.Prompts[stage]
}

// Validate enforces the minimum settings surface required to serve
// requests. Called during store load; failure is boot-fatal.
func (s *GlobalSettings) Validate() error {
	if len(s.LLMDefaults) == 0 {
		return fmt.Errorf("settings: llm_defaults is empty")
	}
	required := []string{StageScopeClassifier, StageFill, StageAnalyzer}
	for _, stage := range required {
		if _, ok := s.LLMDefaults[stage]; !ok {
			return fmt.Errorf("settings: llm_defaults missing stage %q", stage)
		}
	}
	if len(s.Prompts) == 0 {
		return fmt.Errorf("settings: prompts is empty")
	}
	if _, ok := s.Prompts[StageScopeClassifier]; !ok {
		return fmt.Errorf("settings: prompts missing stage %q", StageScopeClassifier)
	}
	return nil
}
