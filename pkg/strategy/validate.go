package strategy

import (
	"fmt"
	"strings"
)

var validWindows = map[TimeWindow]bool{
	WindowDay: true, WindowWeek: true, WindowMonth: true, WindowYear: true,
}

var validDepths = map[Depth]bool{
	DepthBrief: true, DepthOverview: true, DepthDeep: true, DepthComprehensive: true,
}

// Validate enforces the strategy schema. A strategy that fails validation
// is never admitted to the cache.
func (s *Strategy) Validate() error {
	if s.Meta.Slug == "" {
		return fmt.Errorf("%w: meta.slug is required", ErrInvalidStrategy)
	}
	if strings.ContainsAny(s.Meta.Slug, " /") {
		return fmt.Errorf("%w: meta.slug %q must not contain spaces or slashes", ErrInvalidStrategy, s.Meta.Slug)
	}
	if s.Meta.Version < 1 {
		return fmt.Errorf("%w: %s: meta.version must be >= 1", ErrInvalidStrategy, s.Meta.Slug)
	}
	if s.Meta.Category == "" {
		return fmt.Errorf("%w: %s: meta.category is required", ErrInvalidStrategy, s.Meta.Slug)
	}
	if !validWindows[s.Meta.TimeWindow] {
		return fmt.Errorf("%w: %s: invalid time_window %q", ErrInvalidStrategy, s.Meta.Slug, s.Meta.TimeWindow)
	}
	if !validDepths[s.Meta.Depth] {
		return fmt.Errorf("%w: %s: invalid depth %q", ErrInvalidStrategy, s.Meta.Slug, s.Meta.Depth)
	}

	for i, step := range s.ToolChain {
		if err := step.validate(); err != nil {
			return fmt.Errorf("%w: %s: tool_chain[%d]: %v", ErrInvalidStrategy, s.Meta.Slug, i, err)
		}
	}

	if s.Limits.MaxResults < 0 {
		return fmt.Errorf("%w: %s: limits.max_results must be >= 0", ErrInvalidStrategy, s.Meta.Slug)
	}
	if s.Limits.MaxLLMQueries < 0 {
		return fmt.Errorf("%w: %s: limits.max_llm_queries must be >= 0", ErrInvalidStrategy, s.Meta.Slug)
	}
	if s.Filters.Recency != "" && !validWindows[s.Filters.Recency] {
		return fmt.Errorf("%w: %s: invalid filters.recency %q", ErrInvalidStrategy, s.Meta.Slug, s.Filters.Recency)
	}
	return nil
}

func (s ToolStep) validate() error {
	if s.Use == "" {
		return fmt.Errorf("use is required")
	}
	if parts := strings.Split(s.Use, "."); len(parts) > 2 {
		return fmt.Errorf("use %q has too many segments", s.Use)
	}
	switch s.Phase {
	case PhaseResearch, PhaseFinalize:
	default:
		return fmt.Errorf("invalid phase %q", s.Phase)
	}
	for _, key := range s.LLMFill {
		if key == "" {
			return fmt.Errorf("llm_fill entries must be non-empty")
		}
	}
	return nil
}

// validate checks an index entry against its strategy.
func (e IndexEntry) validate(strategies map[string]*Strategy) error {
	s, ok := strategies[e.Slug]
	if !ok {
		return fmt.Errorf("index entry %q references unknown strategy", e.Slug)
	}
	if e.Category != s.Meta.Category || e.TimeWindow != s.Meta.TimeWindow || e.Depth != s.Meta.Depth {
		return fmt.Errorf("index entry %q disagrees with strategy meta", e.Slug)
	}
	switch e.FanOut.Mode {
	case "", FanOutNone, FanOutTask:
	case FanOutVar:
		if e.FanOut.Var == "" || e.FanOut.MapTo == "" {
			return fmt.Errorf("index entry %q: var fan-out requires var and map_to", e.Slug)
		}
	default:
		return fmt.Errorf("index entry %q: invalid fan_out mode %q", e.Slug, e.FanOut.Mode)
	}
	return nil
}
