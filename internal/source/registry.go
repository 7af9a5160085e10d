package source

import (
	"fmt"
	"slices"
	"sync"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
)

// Registry maps source discriminants to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: make(map[string]Adapter, len(adapters))}

	for _, adapter := range adapters {
		registry.Register(adapter)
	}

	return registry
}

// Register adds adapter, replacing any adapter with the same name.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[adapter.Name()] = adapter
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (Adapter, error) { //nolint:ireturn // Adapters are polymorphic.
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("source %q: %w", name, bundle.ErrUnsupportedSource)
	}

	return adapter, nil
}

// Names returns the registered discriminants in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
