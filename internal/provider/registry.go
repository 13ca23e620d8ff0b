package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the configured provider clients
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
	}
}

// Register adds a client; duplicate names are rejected
func (r *Registry) Register(client Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := client.Name()
	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("provider already registered: %s", name)
	}
	r.clients[name] = client
	return nil
}

// Get returns the client for a provider name
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[name]
	if !exists {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return client, nil
}

// Names returns registered provider names in stable order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health returns health snapshots for all registered providers
func (r *Registry) Health() map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]Health, len(r.clients))
	for name, client := range r.clients {
		result[name] = client.Health()
	}
	return result
}
