package router

import (
	"fmt"
	"slices"
	"sync"
)

// Registry holds routers by name.
type Registry struct {
	mu      sync.RWMutex
	routers map[string]*MappingRouter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{routers: make(map[string]*MappingRouter)}
}

// Register adds r under its name. Names must be unique.
func (g *Registry) Register(r *MappingRouter) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.routers[r.Name()]; exists {
		return fmt.Errorf("router: duplicate router %q", r.Name())
	}
	g.routers[r.Name()] = r
	return nil
}

// Get returns the router registered under name.
func (g *Registry) Get(name string) (*MappingRouter, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.routers[name]
	return r, ok
}

// Names returns the sorted router names.
func (g *Registry) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.routers))
	for name := range g.routers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
