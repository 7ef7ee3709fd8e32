// Package metrics provides performance tracking and observability for
// Comet using Prometheus metrics. Each component creates its own
// Collector; the underlying collectors are registered once.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsExtracted counts records emitted per connector and resource.
	RecordsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comet_records_extracted_total",
		Help: "Total records extracted, by connector and resource",
	}, []string{"connector", "resource"})

	// HTTPRequests counts outbound API requests by connector and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comet_http_requests_total",
		Help: "Total outbound HTTP requests, by connector and status class",
	}, []string{"connector", "status"})

	// RateLimitRetries counts 429 retries performed by the REST client.
	RateLimitRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comet_rate_limit_retries_total",
		Help: "Total retries triggered by HTTP 429 responses",
	}, []string{"connector"})

	// ParentsSkipped counts parent records skipped during fan-out for
	// lack of a usable identifier.
	ParentsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comet_fanout_parents_skipped_total",
		Help: "Parent records skipped during fan-out (missing identifier)",
	}, []string{"connector", "resource"})

	// PageLatency tracks the latency of paginated API calls.
	PageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "comet_page_fetch_seconds",
		Help:    "Latency of individual page fetches",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"connector"})
)

// Collector provides a per-component handle onto the shared collectors.
type Collector struct {
	name      string
	startTime time.Time
}

// NewCollector creates a metrics collector for a component. The name
// parameter identifies the component in metric labels.
func NewCollector(name string) *Collector {
	return &Collector{
		name:      name,
		startTime: time.Now(),
	}
}

// Name returns the component name.
func (c *Collector) Name() string { return c.name }

// StartTime returns when the collector was created.
func (c *Collector) StartTime() time.Time { return c.startTime }

// RecordExtracted increments the extracted-record counter.
func (c *Collector) RecordExtracted(resource string) {
	RecordsExtracted.WithLabelValues(c.name, resource).Inc()
}

// RecordRequest increments the HTTP request counter.
func (c *Collector) RecordRequest(statusClass string) {
	HTTPRequests.WithLabelValues(c.name, statusClass).Inc()
}

// RecordRateLimitRetry increments the 429 retry counter.
func (c *Collector) RecordRateLimitRetry() {
	RateLimitRetries.WithLabelValues(c.name).Inc()
}

// RecordParentSkipped increments the defensive-skip counter.
func (c *Collector) RecordParentSkipped(resource string) {
	ParentsSkipped.WithLabelValues(c.name, resource).Inc()
}

// ObservePageFetch records the latency of one page fetch.
func (c *Collector) ObservePageFetch(d time.Duration) {
	PageLatency.WithLabelValues(c.name).Observe(d.Seconds())
}

// Snapshot returns a coarse summary for the connector Metrics() API.
func (c *Collector) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"component": c.name,
		"uptime":    time.Since(c.startTime).Seconds(),
	}
}
