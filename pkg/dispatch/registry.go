package dispatch

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps instance IDs to live processing-tree nodes. Tasks carry only
// the ID, so workers resolve the instance here at execution time. A registry
// is scoped to one engine; nothing in this package is process-global.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]interface{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]interface{})}
}

// NewInstanceID returns a fresh unique instance ID.
func NewInstanceID() string {
	return uuid.NewString()
}

// Register stores an instance under id, replacing any previous holder.
func (r *Registry) Register(id string, instance interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[id] = instance
}

// Deregister removes an instance.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, id)
}

// Get returns the instance registered under id.
func (r *Registry) Get(id string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	instance, ok := r.instances[id]
	return instance, ok
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}
