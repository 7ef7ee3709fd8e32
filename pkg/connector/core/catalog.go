package core

import (
	"fmt"

	"github.com/ajitpratap0/comet/pkg/errors"
)

// WriteDisposition controls how a destination applies records.
type WriteDisposition string

const (
	// WriteReplace truncates the target before writing
	WriteReplace WriteDisposition = "replace"
	// WriteMerge upserts records by primary key
	WriteMerge WriteDisposition = "merge"
)

// ResourceDef describes one extractable resource and its place in the
// source's dependency graph.
type ResourceDef struct {
	// Name is the resource identifier, unique within a catalog
	Name string `json:"name"`

	// PrimaryKey lists the fields forming the record identity
	PrimaryKey []string `json:"primary_key,omitempty"`

	// WriteDisposition is how destinations apply these records
	WriteDisposition WriteDisposition `json:"write_disposition"`

	// Parent names the resource this one fans out from, if any
	Parent string `json:"parent,omitempty"`

	// JoinField is the field injected into child records carrying the
	// parent identifier, conventionally "<parent_entity>_id"
	JoinField string `json:"join_field,omitempty"`

	// IncrementalField is the record field holding the instant used
	// for window filtering; empty means full refresh every run
	IncrementalField string `json:"incremental_field,omitempty"`

	// BreakdownFields are dimension fields that explode one API row
	// into several records, one per breakdown value
	BreakdownFields []string `json:"breakdown_fields,omitempty"`
}

// Incremental reports whether this resource uses window filtering.
func (r *ResourceDef) Incremental() bool { return r.IncrementalField != "" }

// Catalog is the set of resources a source exposes, in dependency
// order: parents always precede their children.
type Catalog struct {
	Resources []*ResourceDef `json:"resources"`
}

// Get returns the resource with the given name.
func (c *Catalog) Get(name string) (*ResourceDef, bool) {
	for _, r := range c.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Names returns resource names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Resources))
	for i, r := range c.Resources {
		names[i] = r.Name
	}
	return names
}

// Validate checks catalog consistency: unique names, known
// dispositions, parents declared before children, and join fields
// present wherever a parent is set.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Resources))

	for _, r := range c.Resources {
		if r.Name == "" {
			return errors.New(errors.ErrorTypeValidation, "resource name is required")
		}
		if seen[r.Name] {
			return errors.New(errors.ErrorTypeValidation,
				fmt.Sprintf("duplicate resource %q", r.Name))
		}

		switch r.WriteDisposition {
		case WriteReplace, WriteMerge:
		default:
			return errors.New(errors.ErrorTypeValidation,
				fmt.Sprintf("resource %q has invalid write disposition %q", r.Name, r.WriteDisposition))
		}

		if r.WriteDisposition == WriteMerge && len(r.PrimaryKey) == 0 {
			return errors.New(errors.ErrorTypeValidation,
				fmt.Sprintf("resource %q uses merge but has no primary key", r.Name))
		}

		if r.Parent != "" {
			if !seen[r.Parent] {
				return errors.New(errors.ErrorTypeValidation,
					fmt.Sprintf("resource %q depends on %q which is not declared before it", r.Name, r.Parent))
			}
			if r.JoinField == "" {
				return errors.New(errors.ErrorTypeValidation,
					fmt.Sprintf("resource %q has a parent but no join field", r.Name))
			}
		}

		seen[r.Name] = true
	}

	return nil
}
