package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderRegistry maps terminal provider identifiers to adapter factories.
// Several bank codes may alias one adapter.
type ProviderRegistry struct {
	providers map[string]Factory
	aliases   map[string]string
	mu        sync.RWMutex
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]Factory),
		aliases:   make(map[string]string),
	}
}

// Register adds an adapter factory. Registering the same id twice panics;
// registrations happen in init and a clash is a build mistake.
func (r *ProviderRegistry) Register(id string, factory Factory, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id = normalizeID(id)
	if _, exists := r.providers[id]; exists {
		panic(fmt.Sprintf("payment provider '%s' registered twice", id))
	}
	r.providers[id] = factory

	for _, alias := range aliases {
		alias = normalizeID(alias)
		if owner, exists := r.aliases[alias]; exists && owner != id {
			panic(fmt.Sprintf("provider alias '%s' already points to '%s'", alias, owner))
		}
		r.aliases[alias] = id
	}
}

// Resolve returns the adapter id and factory for a provider identifier
func (r *ProviderRegistry) Resolve(name string) (string, Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id := normalizeID(name)
	if target, ok := r.aliases[id]; ok {
		id = target
	}

	factory, exists := r.providers[id]
	if !exists {
		return "", nil, NewError(KindProviderUnsupported, "UNKNOWN_PROVIDER",
			fmt.Sprintf("payment provider '%s' is not registered", name))
	}
	return id, factory, nil
}

// New builds the adapter for the session's terminal
func (r *ProviderRegistry) New(s *Session) (Adapter, error) {
	if s == nil || s.Terminal == nil {
		return nil, NewError(KindValidation, "NO_TERMINAL", "session has no terminal")
	}
	_, factory, err := r.Resolve(s.Terminal.Provider)
	if err != nil {
		return nil, err
	}
	return factory(s)
}

// GetProviderNames returns registered adapter ids and aliases, sorted
func (r *ProviderRegistry) GetProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers)+len(r.aliases))
	for name := range r.providers {
		names = append(names, name)
	}
	for alias := range r.aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// DefaultRegistry is filled by the adapter packages' init functions
var DefaultRegistry = NewProviderRegistry()

// Register registers an adapter with the default registry
func Register(id string, factory Factory, aliases ...string) {
	DefaultRegistry.Register(id, factory, aliases...)
}

// Resolve looks a provider identifier up in the default registry
func Resolve(name string) (string, Factory, error) {
	return DefaultRegistry.Resolve(name)
}
