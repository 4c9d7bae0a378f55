package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// AdapterRegistry is an explicit, constructor-injected registry; multiple
// independent instances never interfere.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[string]Adapter)}
}

func (r *AdapterRegistry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("core: adapter is nil")
	}
	name := strings.TrimSpace(strings.ToLower(adapter.Name()))
	if name == "" {
		return fmt.Errorf("core: adapter name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("core: adapter already registered: %s", name)
	}
	r.adapters[name] = adapter
	return nil
}

func (r *AdapterRegistry) Get(name string) (Adapter, bool) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return nil, false
	}
	r.mu.RLock()
	adapter, ok := r.adapters[name]
	r.mu.RUnlock()
	return adapter, ok
}

func (r *AdapterRegistry) List() []Adapter {
	r.mu.RLock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	adapters := make([]Adapter, 0, len(names))
	r.mu.RLock()
	for _, name := range names {
		adapters = append(adapters, r.adapters[name])
	}
	r.mu.RUnlock()
	return adapters
}
