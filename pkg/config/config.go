// Package config provides the unified configuration system for Comet.
// It defines a single BaseConfig structure that all connectors use,
// organized into logical sections:
//   - Extraction: incremental window bounds and reporting granularity
//   - Performance: batch sizes, buffers
//   - Timeouts: per-request and connection timeouts
//   - Reliability: retry logic, rate limiting, circuit breakers
//   - Security: authentication type and credentials
//   - Observability: logging and metrics
//
// Example usage:
//
//	cfg := config.NewBaseConfig("customerio", "source")
//	cfg.Extraction.StartDate = "2024-01-01T00:00:00Z"
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// BaseConfig is the single unified configuration structure that all
// connectors use.
type BaseConfig struct {
	// Name identifies the connector instance
	Name string `yaml:"name" json:"name"`
	// Type specifies the connector type (e.g. "customerio", "jsonl")
	Type string `yaml:"type" json:"type"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version"`

	// Extraction bounds the incremental window for this run
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`

	// Performance settings control throughput and resource usage
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Timeouts define various timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Reliability settings for error handling and resilience
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Security configuration for authentication and credentials
	Security SecurityConfig `yaml:"security" json:"security"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ExtractionConfig bounds the incremental extraction window for one
// run. Dates are RFC 3339 strings; an empty StartDate means the unix
// epoch (full backfill) and an empty EndDate means unbounded above.
type ExtractionConfig struct {
	// StartDate is the inclusive lower bound of the window
	StartDate string `yaml:"start_date" json:"start_date"`
	// EndDate is the inclusive upper bound of the window
	EndDate string `yaml:"end_date" json:"end_date"`
	// Period is the reporting granularity for metrics resources
	// (e.g. "DAY", "HOUR"); connectors choose a default when empty
	Period string `yaml:"period" json:"period"`
	// Breakdown is the dimension metrics resources are sliced by
	// (e.g. "ad_squad"). Fixed per connector instance, not per call.
	Breakdown string `yaml:"breakdown" json:"breakdown"`
	// BaseURL overrides the connector's default API endpoint,
	// typically to select a regional host
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// PerformanceConfig contains performance-related settings.
type PerformanceConfig struct {
	// BatchSize controls the page size requested from remote APIs
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// BufferSize sets the size of the record stream channel buffer
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`
}

// TimeoutConfig contains timeout-related settings.
type TimeoutConfig struct {
	// Request timeout for individual HTTP round-trips
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection"`
	// Idle timeout before closing inactive connections
	Idle time.Duration `yaml:"idle" json:"idle"`
}

// ReliabilityConfig contains reliability and error handling settings.
type ReliabilityConfig struct {
	// RetryAttempts sets maximum retry attempts for transient failures
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// CircuitBreaker enables circuit breaker protection
	CircuitBreaker bool `yaml:"circuit_breaker" json:"circuit_breaker"`
	// RateLimitPerSec limits API requests per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// HealthCheck enables periodic health checks
	HealthCheck bool `yaml:"health_check" json:"health_check"`
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	// AuthType specifies the authentication method (api_key, oauth2)
	AuthType string `yaml:"auth_type" json:"auth_type"`
	// Credentials stores authentication credentials; use ${ENV_VAR}
	// substitution in config files rather than literal secrets
	Credentials map[string]string `yaml:"credentials" json:"credentials"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// EnableMetrics activates prometheus metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewBaseConfig creates a configuration with sensible defaults.
func NewBaseConfig(name, connectorType string) *BaseConfig {
	return &BaseConfig{
		Name:    name,
		Type:    connectorType,
		Version: "1.0.0",
		Performance: PerformanceConfig{
			BatchSize:  100,
			BufferSize: 1000,
		},
		Timeouts: TimeoutConfig{
			Request:    300 * time.Second,
			Connection: 30 * time.Second,
			Idle:       90 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:  3,
			RetryDelay:     time.Second,
			CircuitBreaker: true,
			HealthCheck:    true,
		},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			LogLevel:      "info",
		},
	}
}

// Validate checks the configuration and applies defaults for zero values.
func (c *BaseConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("connector name is required")
	}
	if c.Type == "" {
		return fmt.Errorf("connector type is required")
	}

	if c.Performance.BatchSize <= 0 {
		c.Performance.BatchSize = 100
	}
	if c.Performance.BufferSize <= 0 {
		c.Performance.BufferSize = 1000
	}
	if c.Timeouts.Request <= 0 {
		c.Timeouts.Request = 300 * time.Second
	}
	if c.Reliability.RetryAttempts <= 0 {
		c.Reliability.RetryAttempts = 3
	}
	if c.Reliability.RetryDelay <= 0 {
		c.Reliability.RetryDelay = time.Second
	}

	if _, err := c.Window(); err != nil {
		return err
	}

	return nil
}

// Window parses the extraction window bounds. The zero start is the
// unix epoch; a nil end pointer means unbounded above.
func (c *BaseConfig) Window() (start time.Time, err error) {
	if c.Extraction.StartDate != "" {
		start, err = time.Parse(time.RFC3339, c.Extraction.StartDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid start_date %q: %w", c.Extraction.StartDate, err)
		}
	} else {
		start = time.Unix(0, 0).UTC()
	}

	if c.Extraction.EndDate != "" {
		if _, err := time.Parse(time.RFC3339, c.Extraction.EndDate); err != nil {
			return time.Time{}, fmt.Errorf("invalid end_date %q: %w", c.Extraction.EndDate, err)
		}
	}

	return start, nil
}

// WindowEnd parses the end bound; nil means unbounded above.
func (c *BaseConfig) WindowEnd() *time.Time {
	if c.Extraction.EndDate == "" {
		return nil
	}
	end, err := time.Parse(time.RFC3339, c.Extraction.EndDate)
	if err != nil {
		return nil
	}
	return &end
}
