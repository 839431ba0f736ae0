package core

import (
	"sync"

	"github.com/go-chi/chi/v5"
)

// Service is the interface every HTTP-facing module implements.
type Service interface {
	// Name returns the unique identifier for this service (e.g., "accounts").
	// It is matched against ENABLED_SERVICES and used as the route prefix.
	Name() string

	// RegisterRoutes sets up HTTP routes for this service on the provided router.
	// The router is a sub-router scoped to this service's path prefix.
	RegisterRoutes(router chi.Router)
}

// Registry holds the services mounted by the edge router.
type Registry struct {
	mu       sync.RWMutex
	services []Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a service. Registering a second service with the same name replaces the first.
func (r *Registry) Register(s Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.services {
		if existing.Name() == s.Name() {
			r.services[i] = s
			return
		}
	}
	r.services = append(r.services, s)
}

// Services returns all registered services in registration order.
func (r *Registry) Services() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Service(nil), r.services...)
}
