package driver

import "sync"

// Registry maps project slugs to purpose-built drivers. Projects without a
// registered driver get the generic HTTP driver, so onboarding a new platform
// needs no code when its API follows the generic conventions.
type Registry struct {
	mu       sync.RWMutex
	drivers  map[string]Driver
	fallback Driver
}

// NewRegistry creates a registry with the given fallback driver.
func NewRegistry(fallback Driver) *Registry {
	return &Registry{
		drivers:  make(map[string]Driver),
		fallback: fallback,
	}
}

// Register binds a driver to a project slug, replacing any previous binding.
func (r *Registry) Register(slug string, d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[slug] = d
}

// Resolve returns the driver for the slug, or the fallback when none is
// registered.
func (r *Registry) Resolve(slug string) Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.drivers[slug]; ok {
		return d
	}
	return r.fallback
}
