package plugins

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps plugin names to descriptors. It is built once at startup
// and passed to the resolver and orchestrator explicitly.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// DefaultRegistry creates a registry holding every built-in plugin
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range []Descriptor{
		MessDetectorDescriptor(),
		GolangciLintDescriptor(),
		PHPUnitDescriptor(),
		ShellDescriptor(),
		DesktopNotifyDescriptor(),
	} {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a descriptor. Names must be unique and non-empty.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("plugin descriptor has no name")
	}
	if d.New == nil {
		return fmt.Errorf("plugin %s has no factory", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[d.Name]; exists {
		return fmt.Errorf("plugin %s is already registered", d.Name)
	}
	r.descriptors[d.Name] = d
	return nil
}

// Lookup returns the descriptor for name or a ConfigurationError
func (r *Registry) Lookup(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, &ConfigurationError{
			Plugin:  name,
			Message: "unknown plugin",
		}
	}
	return d, nil
}

// Names returns every registered name, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ZeroConfigPlugins returns, in name order, the plugins whose detector
// matches the checkout at buildPath
func (r *Registry) ZeroConfigPlugins(buildPath string) []string {
	var matched []string
	for _, name := range r.Names() {
		d, _ := r.Lookup(name)
		if d.ZeroConfig != nil && d.ZeroConfig(buildPath) {
			matched = append(matched, name)
		}
	}
	return matched
}
