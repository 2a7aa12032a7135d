package executor

import (
	"fmt"
)

// Kind classifies request-fatal executor errors for callers.
type Kind string

const (
	KindUnknownTool      Kind = "unknown_tool"
	KindAdapterPermanent Kind = "adapter_permanent"
	KindUnscopedRequest  Kind = "unscoped_request"
	KindClassification   Kind = "llm_classification_failed"
	KindStrategyNotFound Kind = "strategy_not_found"
)

// FatalError is a request-fatal failure carrying the kind and the phase
// and step in which it arose. No partial result accompanies it.
type FatalError struct {
	Kind  Kind
	Phase string
	Step  string
	Err   error
}

func (e *FatalError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s in phase %s at step %q: %v", e.Kind, e.Phase, e.Step, e.Err)
	}
	return fmt.Sprintf("%s in phase %s: %v", e.Kind, e.Phase, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(kind Kind, phase, step string, err error) *FatalError {
	return &FatalError{Kind: kind, Phase: phase, Step: step, Err: err}
}
