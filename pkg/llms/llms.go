// Copyright 2025 The Scout Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llms provides the LLM provider abstraction and implementations
// for OpenAI-compatible, Anthropic and Gemini APIs.
package llms

import (
	"context"
	"fmt"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/registry"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Request is a non-streaming generation request. Zero-valued fields fall
// back to the provider's configured defaults.
type Request struct {
	Messages    []Message
	Model       string
	Temperature *float64
	MaxTokens   int

	// JSONMode asks the provider for a strict-JSON response where the
	// API supports it; otherwise the prompt must carry the instruction.
	JSONMode bool
}

// Response is the generation result.
type Response struct {
	Text   string
	Tokens int // total tokens as reported by the API, estimated if absent
}

// Provider is a single LLM backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// Registry holds the named providers built at boot.
type Registry struct {
	*registry.Registry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{Registry: registry.New[Provider]()}
}

// BuildRegistry constructs providers from configuration and freezes the
// registry. The "default" provider is required by config validation.
func BuildRegistry(llmConfigs map[string]*config.LLMProviderConfig) (*Registry, error) {
	r := NewRegistry()
	for name, cfg := range llmConfigs {
		provider, err := New(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("llm %q: %w", name, err)
		}
		if err := r.Register(name, provider); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}

// New constructs a provider from its configuration.
func New(name string, cfg *config.LLMProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config cannot be nil")
	}
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(name, cfg)
	case "anthropic":
		return NewAnthropicProvider(name, cfg)
	case "gemini":
		return NewGeminiProvider(name, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider type %q", cfg.Type)
	}
}
