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

// Package strategy defines research strategy documents and the immutable
// boot-time cache that serves them.
package strategy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// TimeWindow bounds how far back a strategy searches.
type TimeWindow string

const (
	WindowDay   TimeWindow = "day"
	WindowWeek  TimeWindow = "week"
	WindowMonth TimeWindow = "month"
	WindowYear  TimeWindow = "year"
)

// Depth is the research thoroughness level.
type Depth string

const (
	DepthBrief         Depth = "brief"
	DepthOverview      Depth = "overview"
	DepthDeep          Depth = "deep"
	DepthComprehensive Depth = "comprehensive"
)

// Phase routes a tool step to the research or finalize pass.
type Phase string

const (
	PhaseResearch Phase = "research"
	PhaseFinalize Phase = "finalize"
)

// Meta identifies a strategy.
type Meta struct {
	Slug       string     `yaml:"slug" json:"slug" jsonschema:"required"`
	Version    int        `yaml:"version" json:"version"`
	Category   string     `yaml:"category" json:"category" jsonschema:"required"`
	TimeWindow TimeWindow `yaml:"time_window" json:"time_window" jsonschema:"enum=day,enum=week,enum=month,enum=year"`
	Depth      Depth      `yaml:"depth" json:"depth" jsonschema:"enum=brief,enum=overview,enum=deep,enum=comprehensive"`
}

// Limits bounds a strategy's resource usage. Zero means unlimited.
type Limits struct {
	MaxResults    int `yaml:"max_results" json:"max_results,omitempty"`
	MaxLLMQueries int `yaml:"max_llm_queries" json:"max_llm_queries,omitempty"`
}

// Filters holds optional per-strategy QC policy.
type Filters struct {
	Recency TimeWindow `yaml:"recency" json:"recency,omitempty"`
}

// Quorum holds the minimum-source QC policy.
type Quorum struct {
	MinSources int `yaml:"min_sources" json:"min_sources,omitempty"`
}

// Finalize declares the expected briefing structure.
type Finalize struct {
	Sections []string `yaml:"sections" json:"sections,omitempty"`
}

// Strategy is a named, versioned research recipe.
type Strategy struct {
	Meta      Meta              `yaml:"meta" json:"meta" jsonschema:"required"`
	Queries   map[string]string `yaml:"queries" json:"queries,omitempty"`
	ToolChain []ToolStep        `yaml:"tool_chain" json:"tool_chain"`
	Limits    Limits            `yaml:"limits" json:"limits,omitempty"`
	Filters   Filters           `yaml:"filters" json:"filters,omitempty"`
	Quorum    Quorum            `yaml:"quorum" json:"quorum,omitempty"`
	Finalize  Finalize          `yaml:"finalize" json:"finalize,omitempty"`
}

// ToolStep is one parameterized adapter invocation. Documents may use the
// legacy shape {name, params, loop} or the extended shape {use, inputs,
// llm_fill, save_as, foreach, when, phase}; both normalize to this struct.
type ToolStep struct {
	Use     string         `yaml:"use" json:"use" jsonschema:"required"`
	Inputs  map[string]any `yaml:"inputs" json:"inputs,omitempty"`
	LLMFill []string       `yaml:"llm_fill" json:"llm_fill,omitempty"`
	SaveAs  string         `yaml:"save_as" json:"save_as,omitempty"`
	Foreach string         `yaml:"foreach" json:"foreach,omitempty"`
	When    string         `yaml:"when" json:"when,omitempty"`
	Phase   Phase          `yaml:"phase" json:"phase,omitempty" jsonschema:"enum=research,enum=finalize"`
}

// rawStep accepts both document shapes.
type rawStep struct {
	// Legacy shape.
	Name   string         `yaml:"name" json:"name"`
	Params map[string]any `yaml:"params" json:"params"`
	Loop   string         `yaml:"loop" json:"loop"`

	// Extended shape.
	Use     string         `yaml:"use" json:"use"`
	Inputs  map[string]any `yaml:"inputs" json:"inputs"`
	LLMFill []string       `yaml:"llm_fill" json:"llm_fill"`
	SaveAs  string         `yaml:"save_as" json:"save_as"`
	Foreach string         `yaml:"foreach" json:"foreach"`
	When    string         `yaml:"when" json:"when"`
	Phase   Phase          `yaml:"phase" json:"phase"`
}

func (r rawStep) normalize() (ToolStep, error) {
	step := ToolStep{
		Use:     r.Use,
		Inputs:  r.Inputs,
		LLMFill: r.LLMFill,
		SaveAs:  r.SaveAs,
		Foreach: r.Foreach,
		When:    r.When,
		Phase:   r.Phase,
	}
	if step.Use == "" {
		// Legacy shape.
		step.Use = r.Name
		if step.Inputs == nil {
			step.Inputs = r.Params
		}
		if step.Foreach == "" {
			step.Foreach = r.Loop
		}
	}
	if step.Use == "" {
		return step, fmt.Errorf("tool step requires 'use' (or legacy 'name')")
	}
	if step.Phase == "" {
		step.Phase = PhaseResearch
	}
	return step, nil
}

// UnmarshalYAML normalizes either step shape.
func (s *ToolStep) UnmarshalYAML(node *yaml.Node) error {
	var raw rawStep
	if err := node.Decode(&raw); err != nil {
		return err
	}
	step, err := raw.normalize()
	if err != nil {
		return err
	}
	*s = step
	return nil
}

// FanOutMode selects strategy-level fan-out behavior.
type FanOutMode string

const (
	FanOutNone FanOutMode = "none"
	FanOutTask FanOutMode = "task"
	FanOutVar  FanOutMode = "var"
)

// FanOut describes strategy-level fan-out. Documents may use the scalar
// forms "none"/"task" or the object form {mode: "var", var, map_to, limit}.
type FanOut struct {
	Mode  FanOutMode `yaml:"mode" json:"mode"`
	Var   string     `yaml:"var" json:"var,omitempty"`
	MapTo string     `yaml:"map_to" json:"map_to,omitempty"`
	Limit int        `yaml:"limit" json:"limit,omitempty"`
}

// UnmarshalYAML accepts the scalar and object forms.
func (f *FanOut) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var mode string
		if err := node.Decode(&mode); err != nil {
			return err
		}
		*f = FanOut{Mode: FanOutMode(mode)}
		return nil
	}

	type plain FanOut
	var decoded plain
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*f = FanOut(decoded)
	return nil
}

// RequiredVariable names a variable the scope classifier must populate.
type RequiredVariable struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// IndexEntry is the strategy metadata served to the scope classifier and
// the selector.
type IndexEntry struct {
	Slug              string             `yaml:"slug" json:"slug"`
	Title             string             `yaml:"title" json:"title,omitempty"`
	Description       string             `yaml:"description" json:"description,omitempty"`
	Category          string             `yaml:"category" json:"category"`
	TimeWindow        TimeWindow         `yaml:"time_window" json:"time_window"`
	Depth             Depth              `yaml:"depth" json:"depth"`
	Priority          int                `yaml:"priority" json:"priority"` // lower = preferred
	Active            bool               `yaml:"active" json:"active"`
	RequiredVariables []RequiredVariable `yaml:"required_variables" json:"required_variables,omitempty"`
	FanOut            FanOut             `yaml:"fan_out" json:"fan_out"`
}
