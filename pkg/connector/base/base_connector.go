// Package base provides common scaffolding embedded by concrete
// connectors: lifecycle plumbing, retry policy, health checking and
// progress reporting.
package base

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/connector/core"
	"github.com/ajitpratap0/comet/pkg/errors"
	"github.com/ajitpratap0/comet/pkg/logger"
	"github.com/ajitpratap0/comet/pkg/metrics"
)

// BaseConnector provides the common state and lifecycle behavior for
// sources and destinations. Concrete connectors embed it and override
// what they need.
type BaseConnector struct {
	name    string
	version string

	Config    *config.BaseConfig
	Logger    *zap.Logger
	Collector *metrics.Collector

	retry  *RetryPolicy
	health *HealthChecker

	stateMu sync.RWMutex
	state   *core.State

	initialized bool
}

// NewBaseConnector creates the scaffolding for a named connector.
func NewBaseConnector(name, version string) *BaseConnector {
	return &BaseConnector{
		name:    name,
		version: version,
		state:   core.NewState(),
	}
}

// Initialize stores the configuration and wires logging, metrics,
// retries and health checking from it.
func (b *BaseConnector) Initialize(_ context.Context, cfg *config.BaseConfig) error {
	if cfg == nil {
		return errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}

	b.Config = cfg
	b.Logger = logger.Get().With(zap.String("connector", b.name))
	b.Collector = metrics.NewCollector(b.name)
	b.retry = NewRetryPolicy(cfg.Reliability.RetryAttempts, cfg.Reliability.RetryDelay)

	if cfg.Reliability.HealthCheck {
		b.health = NewHealthChecker(b.name)
	}

	b.initialized = true
	return nil
}

// Name returns the connector name.
func (b *BaseConnector) Name() string { return b.name }

// Version returns the connector version.
func (b *BaseConnector) Version() string { return b.version }

// Initialized reports whether Initialize has run.
func (b *BaseConnector) Initialized() bool { return b.initialized }

// Retry returns the configured retry policy.
func (b *BaseConnector) Retry() *RetryPolicy { return b.retry }

// Health runs the registered health probes.
func (b *BaseConnector) Health(ctx context.Context) error {
	if !b.initialized {
		return errors.New(errors.ErrorTypeHealth, "connector not initialized")
	}
	if b.health == nil {
		return nil
	}
	return b.health.Check(ctx)
}

// RegisterHealthProbe adds a named probe run on every Health call.
func (b *BaseConnector) RegisterHealthProbe(name string, probe HealthProbe) {
	if b.health != nil {
		b.health.Register(name, probe)
	}
}

// Metrics returns a runtime metrics snapshot.
func (b *BaseConnector) Metrics() map[string]interface{} {
	if b.Collector == nil {
		return map[string]interface{}{}
	}
	return b.Collector.Snapshot()
}

// Close releases resources. The base implementation only flushes logs.
func (b *BaseConnector) Close(_ context.Context) error {
	if b.Logger != nil {
		_ = b.Logger.Sync()
	}
	return nil
}

// GetState returns a copy of the extraction state.
func (b *BaseConnector) GetState() *core.State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()

	out := core.NewState()
	out.UpdatedAt = b.state.UpdatedAt
	for k, v := range b.state.Cursors {
		out.Cursors[k] = v
	}
	return out
}

// SetState restores extraction state from a previous run.
func (b *BaseConnector) SetState(state *core.State) error {
	if state == nil {
		return errors.New(errors.ErrorTypeValidation, "state is required")
	}

	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.state = state
	return nil
}

// AdvanceCursor raises the stored cursor for a resource.
func (b *BaseConnector) AdvanceCursor(resource string, t time.Time) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.state.Advance(resource, t)
}
