package llms

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ScriptedProvider is a deterministic in-memory provider for tests. It
// returns canned responses either in FIFO order or matched by a substring
// of the last user message.
type ScriptedProvider struct {
	mu        sync.Mutex
	name      string
	queue     []string
	byPattern map[string]string
	calls     int
}

func NewScriptedProvider(responses ...string) *ScriptedProvider {
	return &ScriptedProvider{
		name:      "scripted",
		queue:     responses,
		byPattern: make(map[string]string),
	}
}

// Respond registers a response returned whenever the last user message
// contains pattern. Pattern matches take precedence over the FIFO queue.
func (p *ScriptedProvider) Respond(pattern, response string) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byPattern[pattern] = response
	return p
}

func (p *ScriptedProvider) Name() string { return p.name }

func (p *ScriptedProvider) Generate(_ context.Context, req Request) (*Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	var lastUser string
	for _, m := range req.Messages {
		if m.Role == "user" {
			lastUser = m.Content
		}
	}
	for pattern, response := range p.byPattern {
		if strings.Contains(lastUser, pattern) {
			return &Response{Text: response, Tokens: len(response) / 4}, nil
		}
	}

	if len(p.queue) == 0 {
		return nil, fmt.Errorf("scripted provider exhausted after %d calls", p.calls)
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	return &Response{Text: next, Tokens: len(next) / 4}, nil
}

// Calls reports how many Generate calls were made.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *ScriptedProvider) Close() error { return nil }
