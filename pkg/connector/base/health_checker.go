package base

import (
	"context"
	"fmt"
	"sync"

	"github.com/ajitpratap0/comet/pkg/errors"
)

// HealthProbe checks one aspect of connector health.
type HealthProbe func(ctx context.Context) error

// HealthChecker runs a set of named probes.
type HealthChecker struct {
	name string

	mu     sync.RWMutex
	probes map[string]HealthProbe
}

// NewHealthChecker creates a checker with no probes registered.
func NewHealthChecker(name string) *HealthChecker {
	return &HealthChecker{
		name:   name,
		probes: make(map[string]HealthProbe),
	}
}

// Register adds a probe under a name, replacing any existing one.
func (h *HealthChecker) Register(name string, probe HealthProbe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = probe
}

// Check runs all probes and returns the first failure.
func (h *HealthChecker) Check(ctx context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeHealth,
				fmt.Sprintf("health probe %q failed for %s", name, h.name))
		}
	}

	return nil
}
