package unit

import (
	"fmt"
	"sync"

	"github.com/xraph/stride"
)

// Registry maps handler names to Handler implementations. It is
// populated explicitly at process start; resolving an unregistered name
// is an integration failure, fatal for that invocation and never
// retried. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler name to an implementation. Re-registering a
// name replaces the previous binding.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Resolve returns the handler for the given name, or a typed
// integration failure wrapping stride.ErrHandlerNotFound.
func (r *Registry) Resolve(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", stride.ErrHandlerNotFound, name)
	}
	return h, nil
}

// Names returns all registered handler names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
