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

// Package adapters wraps external search and analysis providers behind a
// uniform capability set. A strategy step's "use" selector names an adapter
// and optionally a capability: "exa.contents" dispatches to the contents
// capability of the adapter registered as "exa".
package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scopeworks/scout/pkg/evidence"
	"github.com/scopeworks/scout/pkg/registry"
)

// Capability names one callable surface of an adapter.
type Capability string

const (
	CapCall        Capability = "call"
	CapSearch      Capability = "search"
	CapContents    Capability = "contents"
	CapFindSimilar Capability = "find_similar"
	CapAnswer      Capability = "answer"
)

// Adapter is the minimum surface every tool implements. Adapters must
// ignore unknown inputs so strategies can evolve without code changes,
// and must be safe for concurrent use.
type Adapter interface {
	Name() string
	Call(ctx context.Context, inputs map[string]any) ([]evidence.Evidence, error)
}

// Searcher runs a query search.
type Searcher interface {
	Search(ctx context.Context, query string, inputs map[string]any) ([]evidence.Evidence, error)
}

// ContentsFetcher retrieves page text for URLs.
type ContentsFetcher interface {
	Contents(ctx context.Context, urls []string, inputs map[string]any) ([]evidence.Evidence, error)
}

// SimilarFinder returns a ranked neighbor set for a seed URL.
type SimilarFinder interface {
	FindSimilar(ctx context.Context, url string, inputs map[string]any) ([]evidence.Evidence, error)
}

// Answerer produces a direct text answer plus its sources.
type Answerer interface {
	Answer(ctx context.Context, query string, inputs map[string]any) (string, []evidence.Evidence, error)
}

// LLMBacked marks adapters whose calls consume the LLM query budget.
type LLMBacked interface {
	LLMBacked() bool
}

// Result is one step invocation's output. Value carries the raw output
// for save_as; for evidence-producing capabilities it is the evidence
// slice itself, for answer/analyzer capabilities the synthesized text.
type Result struct {
	Evidence []evidence.Evidence
	Value    any
}

// Registry is the process-wide tool registry, frozen after boot.
type Registry struct {
	*registry.Registry[Adapter]
}

func NewRegistry() *Registry {
	return &Registry{Registry: registry.New[Adapter]()}
}

// Invocation binds an adapter to the capability a step selected.
type Invocation struct {
	Adapter    Adapter
	Capability Capability
}

// Resolve maps a step's use selector to an adapter capability. A bare name
// selects the call capability; "name.capability" selects a named one.
func (r *Registry) Resolve(use string) (*Invocation, error) {
	name, capName, found := strings.Cut(use, ".")
	cap := CapCall
	if found {
		cap = Capability(capName)
	}

	adapter, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	switch cap {
	case CapCall:
	case CapSearch:
		if _, ok := adapter.(Searcher); !ok {
			return nil, NewPermanentError(name, fmt.Sprintf("adapter does not implement capability %q", cap), nil)
		}
	case CapContents:
		if _, ok := adapter.(ContentsFetcher); !ok {
			return nil, NewPermanentError(name, fmt.Sprintf("adapter does not implement capability %q", cap), nil)
		}
	case CapFindSimilar:
		if _, ok := adapter.(SimilarFinder); !ok {
			return nil, NewPermanentError(name, fmt.Sprintf("adapter does not implement capability %q", cap), nil)
		}
	case CapAnswer:
		if _, ok := adapter.(Answerer); !ok {
			return nil, NewPermanentError(name, fmt.Sprintf("adapter does not implement capability %q", cap), nil)
		}
	default:
		return nil, NewPermanentError(name, fmt.Sprintf("unknown capability %q", cap), nil)
	}

	return &Invocation{Adapter: adapter, Capability: cap}, nil
}

// UsesLLM reports whether invoking this adapter consumes LLM budget.
func (inv *Invocation) UsesLLM() bool {
	if marker, ok := inv.Adapter.(LLMBacked); ok {
		return marker.LLMBacked()
	}
	return false
}

// Invoke executes the bound capability with rendered inputs.
func (inv *Invocation) Invoke(ctx context.Context, inputs map[string]any) (*Result, error) {
	switch inv.Capability {
	case CapSearch:
		query := StringInput(inputs, "query", "prompt", "q")
		items, err := inv.Adapter.(Searcher).Search(ctx, query, inputs)
		if err != nil {
			return nil, err
		}
		return &Result{Evidence: items, Value: items}, nil

	case CapContents:
		urls := StringListInput(inputs, "urls", "url")
		items, err := inv.Adapter.(ContentsFetcher).Contents(ctx, urls, inputs)
		if err != nil {
			return nil, err
		}
		return &Result{Evidence: items, Value: items}, nil

	case CapFindSimilar:
		url := StringInput(inputs, "url", "seed_url")
		items, err := inv.Adapter.(SimilarFinder).FindSimilar(ctx, url, inputs)
		if err != nil {
			return nil, err
		}
		return &Result{Evidence: items, Value: items}, nil

	case CapAnswer:
		query := StringInput(inputs, "query", "prompt", "q")
		answer, sources, err := inv.Adapter.(Answerer).Answer(ctx, query, inputs)
		if err != nil {
			return nil, err
		}
		return &Result{Evidence: sources, Value: answer}, nil

	default:
		items, err := inv.Adapter.Call(ctx, inputs)
		if err != nil {
			return nil, err
		}
		value := any(items)
		// The analyzer's single synthetic record reads better as text
		// when saved into a variable.
		if len(items) == 1 && items[0].IsSentinel() {
			value = items[0].Snippet
		}
		return &Result{Evidence: items, Value: value}, nil
	}
}

// ErrUnknownTool is returned when a step references an unregistered
// adapter. Fatal to the request.
var ErrUnknownTool = errors.New("unknown tool")

// PermanentError is a non-retryable adapter failure (bad request,
// credentials, unknown capability). Fatal to the request.
type PermanentError struct {
	Tool    string
	Message string
	Err     error
}

func NewPermanentError(tool, message string, err error) *PermanentError {
	return &PermanentError{Tool: tool, Message: message, Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Tool, e.Message)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is fatal to the request.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe) || errors.Is(err, ErrUnknownTool)
}
