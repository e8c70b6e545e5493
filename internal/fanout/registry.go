package fanout

import (
	"fmt"
	"sync"
)

// Registry maps manager identities to live Manager configurations so a
// worker can reconstruct the producing manager from a job payload alone.
// Populated once at startup.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*Manager
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]*Manager)}
}

// Register adds a manager under its identity. Re-registering a different
// manager under a taken identity is an error.
func (r *Registry) Register(m *Manager) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.managers[m.Identity()]; ok && existing != m {
		return fmt.Errorf("fanout: manager identity %q already registered", m.Identity())
	}
	r.managers[m.Identity()] = m
	return nil
}

// Get resolves an identity, failing on unknown ones so a mis-routed job
// fails instead of silently dropping.
func (r *Registry) Get(identity string) (*Manager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[identity]
	if !ok {
		return nil, fmt.Errorf("fanout: unknown manager identity %q", identity)
	}
	return m, nil
}
