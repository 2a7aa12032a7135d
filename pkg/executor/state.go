package executor

import (
	"sync/atomic"
	"time"

	"github.com/scopeworks/scout/pkg/evidence"
	"github.com/scopeworks/scout/pkg/metrics"
	"github.com/scopeworks/scout/pkg/scope"
	"github.com/scopeworks/scout/pkg/strategy"
)

// Request is one research invocation.
type Request struct {
	UserRequest string
	Overrides   scope.Overrides

	// Now pins the run's notion of the current time. Zero means wall
	// clock; tests pin it for determinism.
	Now time.Time
}

// Result is the terminal execution state returned to the caller.
type Result struct {
	StrategySlug string              `json:"strategy_slug"`
	Sections     []string            `json:"sections"`
	Citations    []string            `json:"citations"`
	Registry     []Citation          `json:"citation_registry"`
	Variables    map[string]any      `json:"variables"`
	Evidence     []evidence.Evidence `json:"evidence"`
	Errors       []string            `json:"errors"`
	Limitations  []string            `json:"limitations"`

	Metrics *metrics.StrategyMetrics `json:"metrics,omitempty"`
}

// budget caps cumulative LLM calls across all phases of one request.
// Fan-out passes share it, so acquisition is atomic.
type budget struct {
	max  int64
	used atomic.Int64
}

func newBudget(max int) *budget {
	return &budget{max: int64(max)}
}

// acquire consumes one LLM call. Returns false once the cap is hit;
// max <= 0 means unlimited.
func (b *budget) acquire() bool {
	if b.max <= 0 {
		return true
	}
	for {
		current := b.used.Load()
		if current >= b.max {
			return false
		}
		if b.used.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// state is the per-request mutable execution state, fully owned by the
// executor. Research fan-out passes work on passState copies; their
// outputs merge back here in pass order.
type state struct {
	now            time.Time
	classification *scope.Classification
	strat          *strategy.Strategy
	entry          strategy.IndexEntry
	variables      map[string]any
	evidence       []evidence.Evidence
	sections       []string
	errors         []string
	limitations    []string
	budget         *budget
	collector      *metrics.Collector
}

// passState is one research pass's scoped view: its own variable bindings
// and evidence buffer.
type passState struct {
	variables map[string]any
	evidence  []evidence.Evidence
	saved     []savedVar
	sections  []string
	errors    []string
}

// savedVar preserves save_as assignment order across a pass.
type savedVar struct {
	key   string
	value any
	// accumulate marks values that merge into a list instead of
	// overwriting (foreach steps and fan-out passes).
	accumulate bool
}

func cloneVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// mergeSaved applies one pass's save_as assignments to the shared
// variables. Accumulating values append to a list; scalars overwrite.
func (s *state) mergeSaved(saved []savedVar) {
	for _, sv := range saved {
		if !sv.accumulate {
			s.variables[sv.key] = sv.value
			continue
		}
		existing, ok := s.variables[sv.key]
		if !ok {
			s.variables[sv.key] = []any{sv.value}
			continue
		}
		if list, isList := existing.([]any); isList {
			s.variables[sv.key] = append(list, sv.value)
		} else {
			s.variables[sv.key] = []any{existing, sv.value}
		}
	}
}

// addEvidence appends a step's output batch, then rescores, dedups and
// truncates the pass-local window to the strategy's result limit.
func (p *passState) addEvidence(items []evidence.Evidence, now time.Time, maxResults int) {
	if len(items) == 0 {
		return
	}
	// Only the new batch is rescored; earlier windows already carry
	// recency-adjusted scores.
	evidence.Rescore(items, now)
	merged := append(p.evidence, items...)
	merged = evidence.Dedup(merged)
	if maxResults > 0 {
		merged = evidence.Truncate(merged, maxResults)
	}
	p.evidence = merged
}
