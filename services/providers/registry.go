package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var (
	// ErrProviderNotFound is returned when a provider kind is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Factory builds an adapter from its configuration.
type Factory func(config ProviderConfig) (Adapter, error)

// Registry maps provider names to adapter factories. Adding a provider means
// implementing Adapter and registering its factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	if factory == nil {
		return errors.New("provider factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.factories[name] = factory
	return nil
}

// Build creates the adapter registered under config.Name.
func (r *Registry) Build(config ProviderConfig) (Adapter, error) {
	r.mu.RLock()
	factory, exists := r.factories[config.Name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, config.Name)
	}

	adapter, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider %s: %w", config.Name, err)
	}
	return adapter, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.Keys(r.factories)
	sort.Strings(names)
	return names
}

// Count returns the number of registered factories
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.factories)
}
