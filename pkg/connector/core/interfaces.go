// Package core defines the connector contracts for Comet: the Source
// and Destination interfaces, the record stream type connecting them,
// and the resource catalog model.
package core

import (
	"context"
	"time"

	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/models"
)

// RecordStream carries extracted records from a source to a
// destination. Sources close both channels when the stream ends.
type RecordStream struct {
	Records chan *models.Record
	Errors  chan error
}

// NewRecordStream creates a stream with the given channel buffer size.
func NewRecordStream(bufferSize int) *RecordStream {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &RecordStream{
		Records: make(chan *models.Record, bufferSize),
		Errors:  make(chan error, 10),
	}
}

// Close closes both channels. Only the producing source may call it.
func (s *RecordStream) Close() {
	close(s.Records)
	close(s.Errors)
}

// State captures resumable extraction progress for a source. Cursors
// map resource names to the latest canonical instant observed, so the
// next run can continue where this one ended.
type State struct {
	// Cursors holds the high-water mark per resource
	Cursors map[string]time.Time `json:"cursors"`
	// UpdatedAt is when the state was last modified
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates an empty state.
func NewState() *State {
	return &State{Cursors: make(map[string]time.Time)}
}

// Advance raises the cursor for a resource if t is newer.
func (s *State) Advance(resource string, t time.Time) {
	if cur, ok := s.Cursors[resource]; !ok || t.After(cur) {
		s.Cursors[resource] = t
		s.UpdatedAt = time.Now().UTC()
	}
}

// Cursor returns the stored cursor for a resource, if any.
func (s *State) Cursor(resource string) (time.Time, bool) {
	t, ok := s.Cursors[resource]
	return t, ok
}

// Connector is the common lifecycle shared by sources and destinations.
type Connector interface {
	// Initialize prepares the connector with its configuration
	Initialize(ctx context.Context, cfg *config.BaseConfig) error

	// Health verifies the connector can reach its backing service
	Health(ctx context.Context) error

	// Metrics returns runtime metrics for observability
	Metrics() map[string]interface{}

	// Close releases resources held by the connector
	Close(ctx context.Context) error
}

// Source extracts records from an external system.
type Source interface {
	Connector

	// Discover returns the catalog of resources this source exposes
	Discover(ctx context.Context) (*Catalog, error)

	// Read streams records for one resource. The stream is produced
	// by a single goroutine and is closed when extraction completes
	// or fails.
	Read(ctx context.Context, resource string) (*RecordStream, error)

	// GetState returns the current extraction state
	GetState() *State

	// SetState restores extraction state from a previous run
	SetState(state *State) error
}

// Destination loads records into a target system.
type Destination interface {
	Connector

	// Write consumes a record stream for one resource, honoring the
	// resource's write disposition.
	Write(ctx context.Context, resource *ResourceDef, stream *RecordStream) error
}
