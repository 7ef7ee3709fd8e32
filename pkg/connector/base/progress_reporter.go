package base

import (
	"time"

	"go.uber.org/zap"
)

// ProgressReporter logs extraction progress at a fixed record
// interval so long backfills stay observable.
type ProgressReporter struct {
	logger   *zap.Logger
	resource string
	interval int64

	count   int64
	started time.Time
}

// NewProgressReporter creates a reporter that logs every interval
// records.
func NewProgressReporter(logger *zap.Logger, resource string, interval int64) *ProgressReporter {
	if interval <= 0 {
		interval = 10000
	}
	return &ProgressReporter{
		logger:   logger,
		resource: resource,
		interval: interval,
		started:  time.Now(),
	}
}

// Record counts one extracted record, logging at the interval.
func (p *ProgressReporter) Record() {
	p.count++
	if p.count%p.interval == 0 {
		elapsed := time.Since(p.started).Seconds()
		rate := float64(p.count) / elapsed
		p.logger.Info("extraction progress",
			zap.String("resource", p.resource),
			zap.Int64("records", p.count),
			zap.Float64("records_per_sec", rate))
	}
}

// Count returns the total records seen.
func (p *ProgressReporter) Count() int64 { return p.count }

// Finish logs the final totals.
func (p *ProgressReporter) Finish() {
	p.logger.Info("extraction complete",
		zap.String("resource", p.resource),
		zap.Int64("records", p.count),
		zap.Duration("elapsed", time.Since(p.started)))
}
