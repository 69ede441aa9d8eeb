package network

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Network from backend-specific options.
type Factory func(opts map[string]string) (Network, error)

type registration struct {
	name     string
	priority int
	factory  Factory
}

var (
	registryMu sync.Mutex
	registry   []registration
)

// Register adds a backend factory under name with the given priority.
// Higher priority wins ties when no explicit backend name is requested.
// Backends call this from their own init() so discovery happens at process
// init, before any Config is resolved.
func Register(name string, priority int, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, r := range registry {
		if r.name == name {
			panic(fmt.Sprintf("network: backend %q already registered", name))
		}
	}
	registry = append(registry, registration{name: name, priority: priority, factory: factory})
}

// Build constructs the named backend, or the highest-priority registered
// backend when name is empty.
func Build(name string, opts map[string]string) (Network, error) {
	registryMu.Lock()
	candidates := make([]registration, len(registry))
	copy(candidates, registry)
	registryMu.Unlock()

	if len(candidates) == 0 {
		return nil, fmt.Errorf("network: no backends registered")
	}

	if name == "" {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].priority > candidates[j].priority })
		return candidates[0].factory(opts)
	}
	for _, r := range candidates {
		if r.name == name {
			return r.factory(opts)
		}
	}
	return nil, fmt.Errorf("network: unknown backend %q", name)
}

// Names returns the registered backend names, highest priority first.
func Names() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	sorted := make([]registration, len(registry))
	copy(sorted, registry)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].priority > sorted[j].priority })
	names := make([]string, len(sorted))
	for i, r := range sorted {
		names[i] = r.name
	}
	return names
}
