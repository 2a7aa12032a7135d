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

// Package scope classifies a free-text research request into a strategy
// invocation descriptor: category, time window, depth, strategy slug,
// subtasks and extracted variables.
package scope

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kaptinlin/jsonrepair"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/llms"
	"github.com/scopeworks/scout/pkg/strategy"
	"github.com/scopeworks/scout/pkg/template"
)

const memoSize = 512

// Classification is the scope step's output.
type Classification struct {
	Category     string              `json:"category"`
	TimeWindow   strategy.TimeWindow `json:"time_window"`
	Depth        strategy.Depth      `json:"depth"`
	StrategySlug string              `json:"strategy_slug"`
	Tasks        []string            `json:"tasks"`
	Variables    map[string]any      `json:"variables"`
}

// Overrides pin parts of the classification from the caller. A full slug
// override bypasses the LLM entirely.
type Overrides struct {
	Category     string
	TimeWindow   strategy.TimeWindow
	Depth        strategy.Depth
	StrategySlug string
}

// Classifier maps requests to classifications using the configured LLM
// and the strategy index. Safe for concurrent use.
type Classifier struct {
	providers *llms.Registry
	settings  *config.GlobalSettings
	cache     *strategy.Cache
	memo      *lru.Cache[string, *Classification]
	logger    *slog.Logger
}

func NewClassifier(providers *llms.Registry, settings *config.GlobalSettings, cache *strategy.Cache, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	// lru.New only errors on non-positive size.
	memo, _ := lru.New[string, *Classification](memoSize)
	return &Classifier{
		providers: providers,
		settings:  settings,
		cache:     cache,
		memo:      memo,
		logger:    logger,
	}
}

// classifierResponse is the JSON shape the LLM must produce.
type classifierResponse struct {
	InScope      bool           `json:"in_scope"`
	Category     string         `json:"category"`
	TimeWindow   string         `json:"time_window"`
	Depth        string         `json:"depth"`
	StrategySlug string         `json:"strategy_slug"`
	Tasks        []string       `json:"tasks"`
	Variables    map[string]any `json:"variables"`
}

// Classify maps a request to a validated classification. It memoizes by
// a hash of the normalized request text; overrides bypass the memo.
func (c *Classifier) Classify(ctx context.Context, request string, overrides Overrides) (*Classification, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, fmt.Errorf("%w: empty request", ErrUnscopedRequest)
	}

	if overrides.StrategySlug != "" {
		return c.fromSlugOverride(request, overrides)
	}

	key := memoKey(request)
	if overrides == (Overrides{}) {
		if cached, ok := c.memo.Get(key); ok {
			return cached, nil
		}
	}

	result, err := c.classifyLLM(ctx, request)
	if err != nil {
		return nil, err
	}
	applyOverrides(result, overrides)

	validated, err := c.validate(request, result)
	if err != nil {
		return nil, err
	}

	if overrides == (Overrides{}) {
		c.memo.Add(key, validated)
	}
	return validated, nil
}

func (c *Classifier) fromSlugOverride(request string, overrides Overrides) (*Classification, error) {
	entry, ok := c.cache.Entry(overrides.StrategySlug)
	if !ok || !entry.Active {
		return nil, fmt.Errorf("%w: strategy %q is not available", ErrUnscopedRequest, overrides.StrategySlug)
	}
	return &Classification{
		Category:     entry.Category,
		TimeWindow:   entry.TimeWindow,
		Depth:        entry.Depth,
		StrategySlug: entry.Slug,
		Tasks:        []string{request},
		Variables:    map[string]any{"topic": request},
	}, nil
}

func (c *Classifier) classifyLLM(ctx context.Context, request string) (*classifierResponse, error) {
	stage := c.settings.StageFor(config.StageScopeClassifier, "", "")
	providerName := stage.Provider
	if providerName == "" {
		providerName = "default"
	}
	provider, ok := c.providers.Get(providerName)
	if !ok {
		return nil, fmt.Errorf("%w: llm provider %q is not configured", ErrClassificationFailed, providerName)
	}

	indexJSON, err := json.Marshal(c.cache.Index())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode strategy index", ErrClassificationFailed)
	}
	prompt := template.RenderString(c.settings.Prompt(config.StageScopeClassifier), map[string]any{
		"request":        request,
		"strategy_index": string(indexJSON),
	})

	req := llms.Request{
		Messages:    []llms.Message{{Role: "user", Content: prompt}},
		Model:       stage.Model,
		Temperature: stage.Temperature,
		MaxTokens:   stage.MaxTokens,
		JSONMode:    true,
	}

	resp, err := provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassificationFailed, err)
	}

	parsed, perr := parseResponse(resp.Text)
	if perr != nil {
		// One reinforced retry: models occasionally wrap the JSON in prose.
		req.Messages = append(req.Messages,
			llms.Message{Role: "assistant", Content: resp.Text},
			llms.Message{Role: "user", Content: "Respond with the JSON object only. No prose, no code fences."})
		resp, err = provider.Generate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClassificationFailed, err)
		}
		parsed, perr = parseResponse(resp.Text)
		if perr != nil {
			return nil, fmt.Errorf("%w: unparseable response: %v", ErrClassificationFailed, perr)
		}
	}
	return parsed, nil
}

func parseResponse(text string) (*classifierResponse, error) {
	var out classifierResponse
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return &out, nil
	}
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func applyOverrides(resp *classifierResponse, overrides Overrides) {
	if overrides.Category != "" {
		resp.Category = overrides.Category
	}
	if overrides.TimeWindow != "" {
		resp.TimeWindow = string(overrides.TimeWindow)
	}
	if overrides.Depth != "" {
		resp.Depth = string(overrides.Depth)
	}
}

// validate checks the LLM's choice against the index. An invalid or
// missing slug falls back to deterministic selection over the tuple.
func (c *Classifier) validate(request string, resp *classifierResponse) (*Classification, error) {
	if !resp.InScope {
		return nil, fmt.Errorf("%w: %q", ErrUnscopedRequest, request)
	}

	window := strategy.TimeWindow(resp.TimeWindow)
	depth := strategy.Depth(resp.Depth)

	slug := resp.StrategySlug
	if slug != "" {
		entry, ok := c.cache.Entry(slug)
		if !ok || !entry.Active ||
			entry.Category != resp.Category || entry.TimeWindow != window || entry.Depth != depth {
			c.logger.Debug("classifier slug rejected, falling back to selection",
				"slug", slug, "category", resp.Category, "window", window, "depth", depth)
			slug = ""
		}
	}
	if slug == "" {
		selected, ok := c.cache.SelectStrategy(resp.Category, window, depth)
		if !ok {
			return nil, fmt.Errorf("%w: no active strategy for (%s, %s, %s)",
				ErrUnscopedRequest, resp.Category, window, depth)
		}
		slug = selected
	}

	out := &Classification{
		Category:     resp.Category,
		TimeWindow:   window,
		Depth:        depth,
		StrategySlug: slug,
		Tasks:        resp.Tasks,
		Variables:    resp.Variables,
	}
	if len(out.Tasks) == 0 {
		out.Tasks = []string{request}
	}
	if out.Variables == nil {
		out.Variables = map[string]any{}
	}
	if _, ok := out.Variables["topic"]; !ok {
		out.Variables["topic"] = request
	}
	return out, nil
}

func memoKey(request string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(request), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
