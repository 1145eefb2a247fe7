package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/live"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ProviderFactory builds a live provider for one credential from the model
// configuration.
type ProviderFactory func(model ModelConfig, credential string) (live.Provider, error)

// Registry maps provider names to their constructor functions. It lets the
// composition root select the live backend ("gemini-live", "mock") from
// configuration alone. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// Register registers a provider factory under name. Subsequent calls with
// the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates a provider using the factory registered under
// model.Provider ("gemini-live" when empty). Returns
// [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) Create(model ModelConfig, credential string) (live.Provider, error) {
	name := model.Provider
	if name == "" {
		name = "gemini-live"
	}
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, name)
	}
	return factory(model, credential)
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
