package agent

import (
	"fmt"
	"sync"
)

// Registry maps agent names to their descriptors and implementations.
// Registration happens at startup; afterwards the registry is read-only and
// safe for unsynchronized concurrent reads (the lock guards only the
// registration phase).
type Registry struct {
	mu          sync.RWMutex
	order       []string
	descriptors map[string]Descriptor
	agents      map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		agents:      make(map[string]Agent),
	}
}

func (r *Registry) Register(desc Descriptor, impl Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if desc.Name == "" {
		return fmt.Errorf("agent descriptor needs a name")
	}
	if len(desc.Tools) == 0 {
		return fmt.Errorf("agent %q declares no tools", desc.Name)
	}
	if _, exists := r.descriptors[desc.Name]; exists {
		return fmt.Errorf("agent %q already registered", desc.Name)
	}
	r.descriptors[desc.Name] = desc
	r.agents[desc.Name] = impl
	r.order = append(r.order, desc.Name)
	return nil
}

func (r *Registry) Get(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

func (r *Registry) HasTool(agentName, tool string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[agentName]
	return ok && d.HasTool(tool)
}

// Names returns agent names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descriptors[name])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
