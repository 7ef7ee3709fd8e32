// Package registry provides the global connector registry. Concrete
// connectors register factories from init functions; the pipeline
// instantiates them by type name.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/connector/core"
	"github.com/ajitpratap0/comet/pkg/errors"
)

// SourceFactory creates a source connector from configuration.
type SourceFactory func(cfg *config.BaseConfig) (core.Source, error)

// DestinationFactory creates a destination connector from
// configuration.
type DestinationFactory func(cfg *config.BaseConfig) (core.Destination, error)

var (
	mu           sync.RWMutex
	sources      = make(map[string]SourceFactory)
	destinations = make(map[string]DestinationFactory)
)

// RegisterSource registers a source factory under a type name.
// Panics on duplicate registration; registration happens from init
// functions where a duplicate is a programming error.
func RegisterSource(name string, factory SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := sources[name]; exists {
		panic(fmt.Sprintf("source %q registered twice", name))
	}
	sources[name] = factory
}

// RegisterDestination registers a destination factory.
func RegisterDestination(name string, factory DestinationFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := destinations[name]; exists {
		panic(fmt.Sprintf("destination %q registered twice", name))
	}
	destinations[name] = factory
}

// NewSource instantiates a registered source.
func NewSource(name string, cfg *config.BaseConfig) (core.Source, error) {
	mu.RLock()
	factory, ok := sources[name]
	mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.ErrorTypeConfig,
			fmt.Sprintf("unknown source type %q", name)).
			WithDetail("available", SourceNames())
	}
	return factory(cfg)
}

// NewDestination instantiates a registered destination.
func NewDestination(name string, cfg *config.BaseConfig) (core.Destination, error) {
	mu.RLock()
	factory, ok := destinations[name]
	mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.ErrorTypeConfig,
			fmt.Sprintf("unknown destination type %q", name)).
			WithDetail("available", DestinationNames())
	}
	return factory(cfg)
}

// SourceNames returns registered source type names, sorted.
func SourceNames() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DestinationNames returns registered destination type names, sorted.
func DestinationNames() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(destinations))
	for name := range destinations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
