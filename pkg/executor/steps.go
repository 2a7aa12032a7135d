package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scopeworks/scout/pkg/adapters"
	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/evidence"
	"github.com/scopeworks/scout/pkg/llms"
	"github.com/scopeworks/scout/pkg/strategy"
	"github.com/scopeworks/scout/pkg/template"
)

const stepRetryBaseDelay = 500 * time.Millisecond

// stepOutput is one step iteration's result.
type stepOutput struct {
	evidence []evidence.Evidence
	value    any
	hasValue bool
	errs     []string
}

// runChain walks the tool chain in declared order, executing steps whose
// phase matches. Steps stay sequential so later steps can read earlier
// save_as artifacts; foreach iterations within a step run in parallel.
func (e *Executor) runChain(ctx context.Context, st *state, pass *passState, phase strategy.Phase) error {
	for _, step := range st.strat.ToolChain {
		if step.Phase != phase {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !template.When(step.When, pass.variables) {
			e.logger.Debug("step skipped by condition", "use", step.Use, "when", step.When)
			continue
		}

		if step.Foreach != "" {
			if err := e.runForeach(ctx, st, pass, step, phase); err != nil {
				return err
			}
			continue
		}

		out, err := e.runStep(ctx, st, step, pass.variables, phase)
		if err != nil {
			return err
		}
		e.collectOutput(st, pass, step, phase, out, false)
	}
	return nil
}

// runForeach expands a step over its list expression, running iterations
// with bounded parallelism and merging outputs in iteration order.
func (e *Executor) runForeach(ctx context.Context, st *state, pass *passState, step strategy.ToolStep, phase strategy.Phase) error {
	items, ok := template.EvalListExpr(step.Foreach, pass.variables)
	if !ok || len(items) == 0 {
		return nil
	}

	outs := make([]*stepOutput, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxFanOut())

	for i, item := range items {
		g.Go(func() error {
			vars := cloneVars(pass.variables)
			vars["item"] = item
			out, err := e.runStep(gctx, st, step, vars, phase)
			outs[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, out := range outs {
		if out == nil {
			continue
		}
		e.collectOutput(st, pass, step, phase, out, true)
	}
	return nil
}

// collectOutput applies one step iteration's output to the pass:
// evidence joins the dedup window, save_as values bind into variables,
// and finalize-phase text outputs become briefing sections.
func (e *Executor) collectOutput(st *state, pass *passState, step strategy.ToolStep, phase strategy.Phase, out *stepOutput, accumulate bool) {
	pass.errors = append(pass.errors, out.errs...)
	pass.addEvidence(out.evidence, st.now, st.strat.Limits.MaxResults)

	if phase == strategy.PhaseFinalize && out.hasValue {
		if text, ok := out.value.(string); ok && strings.TrimSpace(text) != "" {
			pass.sections = append(pass.sections, text)
		}
	}

	if step.SaveAs == "" || !out.hasValue {
		return
	}
	pass.saved = append(pass.saved, savedVar{key: step.SaveAs, value: out.value, accumulate: accumulate})
	// Later steps in this pass see the binding immediately.
	if accumulate {
		if list, ok := pass.variables[step.SaveAs].([]any); ok {
			pass.variables[step.SaveAs] = append(list, out.value)
		} else {
			pass.variables[step.SaveAs] = []any{out.value}
		}
	} else {
		pass.variables[step.SaveAs] = out.value
	}
}

// runStep executes one step iteration: llm_fill, input rendering,
// dispatch with retries, and output capture. Transient failures degrade
// to an empty output with an error entry; permanent ones are fatal.
func (e *Executor) runStep(ctx context.Context, st *state, step strategy.ToolStep, vars map[string]any, phase strategy.Phase) (*stepOutput, error) {
	out := &stepOutput{}

	inv, err := e.adapters.Resolve(step.Use)
	if err != nil {
		if errors.Is(err, adapters.ErrUnknownTool) {
			return nil, fatal(KindUnknownTool, string(phase), step.Use, err)
		}
		return nil, fatal(KindAdapterPermanent, string(phase), step.Use, err)
	}

	inputs := cloneVars(step.Inputs)
	if inputs == nil {
		inputs = map[string]any{}
	}

	for _, key := range step.LLMFill {
		if _, present := inputs[key]; present {
			continue
		}
		if !st.budget.acquire() {
			out.errs = append(out.errs, fmt.Sprintf("llm query budget exceeded; cannot fill %q for step %q", key, step.Use))
			return out, nil
		}
		value, ferr := e.llmFill(ctx, st, step, key, vars)
		if ferr != nil {
			out.errs = append(out.errs, fmt.Sprintf("llm fill of %q for step %q failed: %v", key, step.Use, ferr))
			continue
		}
		inputs[key] = value
	}

	rendered := template.RenderInputs(inputs, vars)
	if rendered == nil {
		rendered = map[string]any{}
	}

	if inv.UsesLLM() {
		if !st.budget.acquire() {
			out.errs = append(out.errs, fmt.Sprintf("llm query budget exceeded; step %q skipped", step.Use))
			return out, nil
		}
		// Per-strategy model overrides key off these.
		rendered["strategy_slug"] = st.classification.StrategySlug
		rendered["step_use"] = step.Use
	}

	result, err := e.dispatch(ctx, st, inv, step, phase, rendered)
	if err != nil {
		var fe *FatalError
		if errors.As(err, &fe) {
			return nil, err
		}
		if isDeadline(err) {
			return out, err
		}
		out.errs = append(out.errs, fmt.Sprintf("step %q failed after retries: %v; output treated as empty", step.Use, err))
		return out, nil
	}

	out.evidence = result.Evidence
	out.value = result.Value
	out.hasValue = result.Value != nil
	return out, nil
}

// dispatch invokes the adapter with bounded executor-level retries on
// transient failures. The HTTP client retries rate limits underneath.
func (e *Executor) dispatch(ctx context.Context, st *state, inv *adapters.Invocation, step strategy.ToolStep, phase strategy.Phase, inputs map[string]any) (*adapters.Result, error) {
	delay := stepRetryBaseDelay
	attempts := e.cfg.StepRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		st.collector.RecordAPICall(inv.Adapter.Name())
		result, err := inv.Invoke(ctx, inputs)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if adapters.IsPermanent(err) {
			return nil, fatal(KindAdapterPermanent, string(phase), step.Use, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("transient step failure, retrying",
			"use", step.Use, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// llmFill asks the fill-stage LLM for a missing input value.
func (e *Executor) llmFill(ctx context.Context, st *state, step strategy.ToolStep, key string, vars map[string]any) (string, error) {
	settings := e.cache.Settings()
	stage := settings.StageFor(config.StageFill, st.classification.StrategySlug, step.Use)
	providerName := stage.Provider
	if providerName == "" {
		providerName = "default"
	}
	provider, ok := e.providers.Get(providerName)
	if !ok {
		return "", fmt.Errorf("llm provider %q is not configured", providerName)
	}

	fillVars := cloneVars(vars)
	fillVars["key"] = key
	fillVars["use"] = step.Use
	prompt := template.RenderString(settings.Prompt(config.StageFill), fillVars)
	if prompt == "" {
		prompt = fmt.Sprintf("Provide a concise value for the input %q of tool %q. Research request: %s. Respond with the value only.",
			key, step.Use, template.Stringify(vars["user_request"]))
	}

	st.collector.RecordAPICall("llm_fill")
	resp, err := provider.Generate(ctx, llms.Request{
		Messages:    []llms.Message{{Role: "user", Content: prompt}},
		Model:       stage.Model,
		Temperature: stage.Temperature,
		MaxTokens:   stage.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	st.collector.AddTokens("research", resp.Tokens)
	return strings.TrimSpace(resp.Text), nil
}
