package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/tartil/pkg/provider/asr"
	"github.com/MrWong99/tartil/pkg/provider/features"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// collaborator kind. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	asr      map[string]func(ProviderEntry) (asr.Provider, error)
	features map[string]func(ProviderEntry) (features.Extractor, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		asr:      make(map[string]func(ProviderEntry) (asr.Provider, error)),
		features: make(map[string]func(ProviderEntry) (features.Extractor, error)),
	}
}

// RegisterASR registers an ASR provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterASR(name string, factory func(ProviderEntry) (asr.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// RegisterFeatures registers a feature extractor factory under name.
func (r *Registry) RegisterFeatures(name string, factory func(ProviderEntry) (features.Extractor, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features[name] = factory
}

// CreateASR instantiates an ASR provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateASR(entry ProviderEntry) (asr.Provider, error) {
	r.mu.RLock()
	factory, ok := r.asr[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateFeatures instantiates a feature extractor using the factory registered under entry.Name.
func (r *Registry) CreateFeatures(entry ProviderEntry) (features.Extractor, error) {
	r.mu.RLock()
	factory, ok := r.features[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: features/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered provider names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string][]string{
		"asr":      keys(r.asr),
		"features": keys(r.features),
	}
	return out
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
