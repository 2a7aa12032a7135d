// Package registry provides the generic name-keyed component registry used
// for tool adapters and LLM providers. Registries are populated during boot
// and frozen before the first request; registration after Freeze is a
// programmer error and panics.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// ErrImmutable is the panic value raised on mutation after Freeze.
var ErrImmutable = fmt.Errorf("registry is frozen; mutation after init is a programmer error")

type Registry[T any] struct {
	mu     sync.RWMutex
	items  map[string]T
	frozen bool
}

func New[T any]() *Registry[T] {
	return &Registry[T]{
		items: make(map[string]T),
	}
}

// Register admits an item. It fails when the name is empty or already bound,
// and panics when the registry has been frozen.
func (r *Registry[T]) Register(name string, item T) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		panic(ErrImmutable)
	}
	if _, exists := r.items[name]; exists {
		return fmt.Errorf("item with name '%s' already registered", name)
	}

	r.items[name] = item
	return nil
}

// Freeze marks the registry read-only for the rest of the process lifetime.
func (r *Registry[T]) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[name]
	return item, exists
}

func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.items[name]
	return exists
}

// Names returns the registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}
