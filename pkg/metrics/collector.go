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

// Package metrics collects per-run execution metrics: phase timings, API
// call counts, token usage and evidence diversity.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/scopeworks/scout/pkg/evidence"
)

// PhaseMetrics is one phase's timing and token usage.
type PhaseMetrics struct {
	Duration time.Duration `json:"duration_ms"`
	Tokens   int           `json:"tokens"`
}

// StrategyMetrics is the per-run metrics snapshot built at run end.
type StrategyMetrics struct {
	StrategySlug string                  `json:"strategy_slug"`
	Phases       map[string]PhaseMetrics `json:"phases"`
	APICalls     map[string]int          `json:"api_calls"`
	TotalTokens  int                     `json:"total_tokens"`

	ValidSources         int      `json:"valid_sources"`
	UniqueDomains        int      `json:"unique_domains"`
	UniquePublishers     int      `json:"unique_publishers"`
	ToolsUsed            []string `json:"tools_used"`
	SourceDiversityScore float64  `json:"source_diversity_score"`
}

// Collector accumulates metrics for a single run. One instance per
// request, but fan-out passes within the request record concurrently,
// so access is synchronized.
type Collector struct {
	mu           sync.Mutex
	strategySlug string
	phases       map[string]PhaseMetrics
	starts       map[string]time.Time
	apiCalls     map[string]int

	// now is swappable for tests.
	now func() time.Time
}

func NewCollector() *Collector {
	return &Collector{
		phases:   make(map[string]PhaseMetrics),
		starts:   make(map[string]time.Time),
		apiCalls: make(map[string]int),
		now:      time.Now,
	}
}

func (c *Collector) SetStrategySlug(slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategySlug = slug
}

func (c *Collector) StartPhase(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts[name] = c.now()
}

// EndPhase closes a phase and attributes token usage to it. Ending a
// phase that was never started records zero duration.
func (c *Collector) EndPhase(name string, tokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var duration time.Duration
	if start, ok := c.starts[name]; ok {
		duration = c.now().Sub(start)
		delete(c.starts, name)
	}
	prev := c.phases[name]
	c.phases[name] = PhaseMetrics{
		Duration: prev.Duration + duration,
		Tokens:   prev.Tokens + tokens,
	}
}

// AddTokens attributes token usage to a phase without touching its timer.
func (c *Collector) AddTokens(phase string, tokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pm := c.phases[phase]
	pm.Tokens += tokens
	c.phases[phase] = pm
}

func (c *Collector) RecordAPICall(tool string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiCalls[tool]++
}

// Build derives the final snapshot from the collected counters and the
// run's evidence set. Sentinel records are excluded from diversity.
func (c *Collector) Build(items []evidence.Evidence) *StrategyMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	domains := map[string]struct{}{}
	publishers := map[string]struct{}{}
	tools := map[string]struct{}{}
	valid := 0

	for _, ev := range items {
		if ev.IsSentinel() {
			continue
		}
		valid++
		if d := evidence.Domain(ev.URL); d != "" {
			domains[d] = struct{}{}
		}
		if ev.Publisher != "" {
			publishers[ev.Publisher] = struct{}{}
		}
		if ev.Tool != "" {
			tools[ev.Tool] = struct{}{}
		}
	}

	total := 0
	phases := make(map[string]PhaseMetrics, len(c.phases))
	for name, pm := range c.phases {
		phases[name] = pm
		total += pm.Tokens
	}
	apiCalls := make(map[string]int, len(c.apiCalls))
	for tool, n := range c.apiCalls {
		apiCalls[tool] = n
	}

	toolsUsed := make([]string, 0, len(tools))
	for tool := range tools {
		toolsUsed = append(toolsUsed, tool)
	}
	sort.Strings(toolsUsed)

	return &StrategyMetrics{
		StrategySlug:         c.strategySlug,
		Phases:               phases,
		APICalls:             apiCalls,
		TotalTokens:          total,
		ValidSources:         valid,
		UniqueDomains:        len(domains),
		UniquePublishers:     len(publishers),
		ToolsUsed:            toolsUsed,
		SourceDiversityScore: diversityScore(len(domains), valid),
	}
}

// diversityScore blends domain spread within the evidence set with an
// absolute domain count saturating at 10.
func diversityScore(uniqueDomains, validSources int) float64 {
	if validSources == 0 {
		return 0
	}
	spread := float64(uniqueDomains) / float64(validSources)
	breadth := float64(uniqueDomains) / 10
	if breadth > 1 {
		breadth = 1
	}
	return 0.5*spread + 0.5*breadth
}
