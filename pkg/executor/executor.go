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

// Package executor advances a research request through the
// scope → fill → research → finalize state machine: strategy-level
// fan-out, templated tool-chain steps, evidence dedup and scoring,
// citation assembly and QC.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/scopeworks/scout/pkg/adapters"
	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/evidence"
	"github.com/scopeworks/scout/pkg/llms"
	"github.com/scopeworks/scout/pkg/metrics"
	"github.com/scopeworks/scout/pkg/scope"
	"github.com/scopeworks/scout/pkg/strategy"
	"github.com/scopeworks/scout/pkg/template"
)

const finalizeGrace = 30 * time.Second

// Executor runs research requests. One instance serves all requests;
// per-request state lives in the state struct.
type Executor struct {
	cache      *strategy.Cache
	adapters   *adapters.Registry
	providers  *llms.Registry
	classifier *scope.Classifier
	emitter    *metrics.Emitter
	cfg        config.ExecutorConfig
	logger     *slog.Logger
}

func New(
	cache *strategy.Cache,
	registry *adapters.Registry,
	providers *llms.Registry,
	classifier *scope.Classifier,
	emitter *metrics.Emitter,
	cfg config.ExecutorConfig,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cache:      cache,
		adapters:   registry,
		providers:  providers,
		classifier: classifier,
		emitter:    emitter,
		cfg:        cfg,
		logger:     logger,
	}
}

// Execute runs the full pipeline for one request. Request-fatal errors
// return a nil result; degraded runs return a result with populated
// Errors and Limitations.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	tracer := otel.Tracer("scout.executor")
	ctx, span := tracer.Start(ctx, "executor.execute")
	defer span.End()

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.RequestTimeout)*time.Second)
		defer cancel()
	}

	st := &state{
		now:       now,
		variables: map[string]any{},
		collector: metrics.NewCollector(),
	}

	// Scope.
	st.collector.StartPhase("scope")
	classification, err := e.classifier.Classify(ctx, req.UserRequest, req.Overrides)
	st.collector.EndPhase("scope", 0)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, scope.ErrUnscopedRequest):
			return nil, fatal(KindUnscopedRequest, "scope", "", err)
		case errors.Is(err, scope.ErrClassificationFailed):
			return nil, fatal(KindClassification, "scope", "", err)
		default:
			return nil, fatal(KindClassification, "scope", "", err)
		}
	}
	st.classification = classification
	st.collector.SetStrategySlug(classification.StrategySlug)
	span.SetAttributes(attribute.String("strategy_slug", classification.StrategySlug))

	st.strat, err = e.cache.GetStrategy(classification.StrategySlug)
	if err != nil {
		return nil, fatal(KindStrategyNotFound, "scope", "", err)
	}
	st.entry, _ = e.cache.Entry(classification.StrategySlug)
	st.budget = newBudget(st.strat.Limits.MaxLLMQueries)

	e.logger.Info("executing research request",
		"strategy", classification.StrategySlug,
		"category", classification.Category,
		"tasks", len(classification.Tasks))

	// Fill.
	st.collector.StartPhase("fill")
	e.fill(st)
	st.collector.EndPhase("fill", 0)

	// Research.
	st.collector.StartPhase("research")
	err = e.research(ctx, st)
	st.collector.EndPhase("research", 0)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Finalize. On a blown request deadline it still runs, detached, over
	// the collected evidence.
	finalizeCtx := ctx
	if ctx.Err() != nil {
		st.errors = append(st.errors, "request deadline exceeded; briefing built from partial evidence")
		var cancel context.CancelFunc
		finalizeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), finalizeGrace)
		defer cancel()
	}
	st.collector.StartPhase("finalize")
	err = e.finalize(finalizeCtx, st)
	st.collector.EndPhase("finalize", 0)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	sections, registry, citations := AssembleCitations(st.sections, st.evidence)
	st.sections = sections

	runQC(st, registry)

	m := st.collector.Build(st.evidence)
	e.emitter.RecordScores(ctx, span.SpanContext().TraceID().String(), m)

	return &Result{
		StrategySlug: st.classification.StrategySlug,
		Sections:     st.sections,
		Citations:    citations,
		Registry:     registry,
		Variables:    st.variables,
		Evidence:     st.evidence,
		Errors:       st.errors,
		Limitations:  st.limitations,
		Metrics:      m,
	}, nil
}

// fill populates the standard variables every strategy can template
// against: the classification outputs, the current date and the resolved
// date range implied by the time window.
func (e *Executor) fill(st *state) {
	for k, v := range st.classification.Variables {
		st.variables[k] = v
	}
	st.variables["user_request"] = st.classification.Tasks[0]
	if _, ok := st.variables["topic"]; !ok {
		st.variables["topic"] = st.classification.Tasks[0]
	}
	st.variables["category"] = st.classification.Category
	st.variables["time_window"] = string(st.classification.TimeWindow)
	st.variables["depth"] = string(st.classification.Depth)
	st.variables["strategy_slug"] = st.classification.StrategySlug
	st.variables["current_date"] = st.now.Format("2006-01-02")
	st.variables["current_datetime"] = st.now.Format(time.RFC3339)
	st.variables["end_date"] = st.now.Format("2006-01-02")
	st.variables["start_date"] = st.now.AddDate(0, 0, -windowDays(st.classification.TimeWindow)).Format("2006-01-02")
}

// research decides the fan-out passes, runs them concurrently with a
// bounded degree, and merges their outputs in pass order so downstream
// dedup stays deterministic.
func (e *Executor) research(ctx context.Context, st *state) error {
	passes := e.fanOutBindings(st)
	if len(passes) == 0 {
		return nil
	}

	results := make([]*passState, len(passes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxFanOut())

	for i, bindings := range passes {
		g.Go(func() error {
			pass := &passState{variables: cloneVars(st.variables)}
			for k, v := range bindings {
				pass.variables[k] = v
			}
			pass.variables["queries"] = renderQueries(st.strat.Queries, pass.variables)

			err := e.runChain(gctx, st, pass, strategy.PhaseResearch)
			results[i] = pass
			return err
		})
	}
	waitErr := g.Wait()
	if waitErr != nil && !isDeadline(waitErr) {
		return waitErr
	}

	// Merge in pass order, including partial passes cut off by the
	// deadline.
	for _, pass := range results {
		if pass == nil {
			continue
		}
		st.errors = append(st.errors, pass.errors...)
		merged := append(st.evidence, pass.evidence...)
		merged = evidence.Dedup(merged)
		if st.strat.Limits.MaxResults > 0 {
			merged = evidence.Truncate(merged, st.strat.Limits.MaxResults)
		}
		st.evidence = merged
		st.mergeSaved(pass.saved)
	}
	return nil
}

// finalize runs finalize-phase steps once over the merged state. String
// outputs become briefing sections. The pass owns its variable view, as
// research passes do; save_as values reach the shared state only through
// mergeSaved.
func (e *Executor) finalize(ctx context.Context, st *state) error {
	pass := &passState{variables: cloneVars(st.variables), evidence: st.evidence}
	pass.variables["evidence"] = st.evidence
	pass.variables["queries"] = renderQueries(st.strat.Queries, pass.variables)

	if err := e.runChain(ctx, st, pass, strategy.PhaseFinalize); err != nil {
		if !isDeadline(err) {
			return err
		}
		st.errors = append(st.errors, "deadline exceeded during finalize; briefing may be incomplete")
	}

	st.errors = append(st.errors, pass.errors...)
	st.evidence = pass.evidence
	st.mergeSaved(pass.saved)
	st.sections = append(st.sections, pass.sections...)
	return nil
}

// fanOutBindings resolves the strategy-level fan-out declaration into
// per-pass variable bindings.
func (e *Executor) fanOutBindings(st *state) []map[string]any {
	fo := st.entry.FanOut
	switch fo.Mode {
	case strategy.FanOutTask:
		passes := make([]map[string]any, 0, len(st.classification.Tasks))
		for _, task := range st.classification.Tasks {
			passes = append(passes, map[string]any{"topic": task})
		}
		if len(passes) == 0 {
			passes = append(passes, map[string]any{})
		}
		return passes

	case strategy.FanOutVar:
		items, ok := template.EvalListExpr(fo.Var, st.variables)
		if !ok {
			st.errors = append(st.errors,
				fmt.Sprintf("fan-out variable %q is not a list; running a single pass", fo.Var))
			return []map[string]any{{}}
		}
		if fo.Limit > 0 && len(items) > fo.Limit {
			items = items[:fo.Limit]
		}
		passes := make([]map[string]any, 0, len(items))
		for _, item := range items {
			passes = append(passes, map[string]any{fo.MapTo: item})
		}
		return passes

	default:
		return []map[string]any{{}}
	}
}

func renderQueries(queries map[string]string, vars map[string]any) map[string]string {
	if len(queries) == 0 {
		return nil
	}
	out := make(map[string]string, len(queries))
	for role, tpl := range queries {
		out[role] = template.RenderString(tpl, vars)
	}
	return out
}

func (e *Executor) maxFanOut() int {
	if e.cfg.MaxFanOut > 0 {
		return e.cfg.MaxFanOut
	}
	return 4
}

func windowDays(w strategy.TimeWindow) int {
	switch w {
	case strategy.WindowDay:
		return 1
	case strategy.WindowWeek:
		return 7
	case strategy.WindowMonth:
		return 31
	default:
		return 366
	}
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
