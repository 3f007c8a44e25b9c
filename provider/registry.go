package provider

import (
	"fmt"
	"sort"
	"sync"
)

// KindRegistry maps operation names to request kinds
type KindRegistry struct {
	kinds map[string]*RequestKind
	mu    sync.RWMutex
}

// NewKindRegistry creates a new request kind registry
func NewKindRegistry() *KindRegistry {
	return &KindRegistry{
		kinds: make(map[string]*RequestKind),
	}
}

// Register adds request kinds to the registry, replacing any with the same name
func (r *KindRegistry) Register(kinds ...*RequestKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range kinds {
		r.kinds[k.Name] = k
	}
}

// Get retrieves a request kind by operation name
func (r *KindRegistry) Get(name string) (*RequestKind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kind, exists := r.kinds[name]
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownOperation, name)
	}

	return kind, nil
}

// Names returns the registered operation names in ascending order
func (r *KindRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// DefaultRegistry is the global default request kind registry
var DefaultRegistry = NewKindRegistry()

// Register registers request kinds with the default registry
func Register(kinds ...*RequestKind) {
	DefaultRegistry.Register(kinds...)
}

// Lookup retrieves a request kind from the default registry
func Lookup(name string) (*RequestKind, error) {
	return DefaultRegistry.Get(name)
}
