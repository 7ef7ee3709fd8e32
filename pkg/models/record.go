// Package models provides the unified record model for Comet.
// A Record is a single normalized item extracted from a remote API:
// a key-value mapping plus metadata about where it came from. Records
// are pooled to keep allocation pressure flat across long paginated
// walks.
package models

import (
	"sync"
	"time"
)

// Record represents a single normalized item flowing from a source
// connector to the sink.
type Record struct {
	// ID is an opaque record identifier, unique within a run.
	ID string

	// Data holds the record fields. Primary key fields declared by the
	// owning resource are always present; breakdown identifier fields
	// that do not apply are present with a nil value, never omitted.
	Data map[string]interface{}

	// Metadata describes the record's provenance.
	Metadata RecordMetadata
}

// RecordMetadata carries provenance and routing information.
type RecordMetadata struct {
	// Source is the connector name (e.g. "customerio").
	Source string
	// Resource is the logical table the record belongs to.
	Resource string
	// Timestamp is when the record was extracted.
	Timestamp time.Time
	// Custom holds connector-specific metadata.
	Custom map[string]interface{}
}

var recordPool = sync.Pool{
	New: func() interface{} {
		return &Record{
			Data: make(map[string]interface{}, 16),
		}
	},
}

// NewRecord returns a pooled record bound to the given source.
func NewRecord(source string) *Record {
	r := recordPool.Get().(*Record)
	r.Metadata.Source = source
	r.Metadata.Timestamp = time.Now()
	return r
}

// SetData sets a data field.
func (r *Record) SetData(key string, value interface{}) {
	r.Data[key] = value
}

// GetData returns a data field.
func (r *Record) GetData(key string) (interface{}, bool) {
	v, ok := r.Data[key]
	return v, ok
}

// SetMetadata sets a custom metadata field.
func (r *Record) SetMetadata(key string, value interface{}) {
	if r.Metadata.Custom == nil {
		r.Metadata.Custom = make(map[string]interface{}, 4)
	}
	r.Metadata.Custom[key] = value
}

// Release resets the record and returns it to the pool. The record
// must not be used after Release.
func (r *Record) Release() {
	r.ID = ""
	for k := range r.Data {
		delete(r.Data, k)
	}
	r.Metadata = RecordMetadata{}
	recordPool.Put(r)
}
