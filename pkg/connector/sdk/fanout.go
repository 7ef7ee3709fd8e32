package sdk

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/logger"
)

// ChildFetch fetches all child items scoped to one parent identifier.
type ChildFetch func(ctx context.Context, parentID string) ([]map[string]interface{}, error)

// Resolver produces child records for a stream of parent records.
// Each parent triggers exactly one child fetch per run; the parent's
// identifier is injected onto every child record under JoinField.
type Resolver struct {
	// JoinField is the child field carrying the parent id,
	// conventionally "<parent_entity>_id"
	JoinField string

	// IDFields lists parent fields tried in order for the parent
	// identifier. Defaults to ["id"].
	IDFields []string

	// Fetch performs the scoped child request
	Fetch ChildFetch

	// OnSkip is invoked when a parent lacks a usable identifier
	OnSkip func(parent map[string]interface{})
}

// ParentID extracts the parent identifier, trying IDFields in order.
// The second return is false when no usable identifier exists.
func (r *Resolver) ParentID(parent map[string]interface{}) (string, bool) {
	fields := r.IDFields
	if len(fields) == 0 {
		fields = []string{"id"}
	}

	for _, field := range fields {
		if id := stringID(parent[field]); id != "" {
			return id, true
		}
	}
	return "", false
}

// Resolve fetches children for one parent and invokes emit for each,
// in fetch order. A parent with no usable identifier is skipped
// silently: no child call, no error.
func (r *Resolver) Resolve(ctx context.Context, parent map[string]interface{}, emit func(map[string]interface{}) error) error {
	parentID, ok := r.ParentID(parent)
	if !ok {
		logger.Get().Debug("skipping parent without identifier",
			zap.String("join_field", r.JoinField))
		if r.OnSkip != nil {
			r.OnSkip(parent)
		}
		return nil
	}

	children, err := r.Fetch(ctx, parentID)
	if err != nil {
		return err
	}

	for _, child := range children {
		child[r.JoinField] = parentID
		if err := emit(child); err != nil {
			return err
		}
	}
	return nil
}

// ResolveAll drains a parent slice sequentially, one parent at a
// time, fully emitting each parent's children before advancing.
// Child order follows parent order but is not a contractual
// guarantee for consumers.
func (r *Resolver) ResolveAll(ctx context.Context, parents []map[string]interface{}, emit func(map[string]interface{}) error) error {
	for _, parent := range parents {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Resolve(ctx, parent, emit); err != nil {
			return err
		}
	}
	return nil
}

// stringID renders an identifier value as a string. Numeric ids are
// formatted without an exponent; anything else unusable returns "".
func stringID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}

// ExplodeBreakdown turns one metrics row into one record per
// breakdown entry. When row[breakdownKey] holds a list of objects,
// each becomes its own record merging the base fields with the entry
// fields and carrying the entry's id under idField. When no breakdown
// is present a single record is emitted with idField explicitly
// nulled, so the key shape is uniform across all rows.
func ExplodeBreakdown(row map[string]interface{}, breakdownKey, idField string) []map[string]interface{} {
	entries, ok := row[breakdownKey].([]interface{})
	if !ok || len(entries) == 0 {
		out := copyRow(row)
		delete(out, breakdownKey)
		out[idField] = nil
		return []map[string]interface{}{out}
	}

	records := make([]map[string]interface{}, 0, len(entries))
	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		rec := copyRow(row)
		delete(rec, breakdownKey)
		for k, v := range entry {
			if k == "id" {
				continue
			}
			rec[k] = v
		}
		rec[idField] = entry["id"]
		if _, ok := rec[idField]; !ok || rec[idField] == "" {
			rec[idField] = nil
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		out := copyRow(row)
		delete(out, breakdownKey)
		out[idField] = nil
		return []map[string]interface{}{out}
	}
	return records
}

// NormalizeKeys ensures every record carries all of the given keys,
// setting missing ones to an explicit nil so a single primary key
// shape holds across all rows of a resource.
func NormalizeKeys(records []map[string]interface{}, keys []string) {
	for _, rec := range records {
		for _, key := range keys {
			if _, ok := rec[key]; !ok {
				rec[key] = nil
			}
		}
	}
}

func copyRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// JoinFieldFor derives the conventional join field name for a parent
// entity, e.g. "campaign" becomes "campaign_id".
func JoinFieldFor(entity string) string {
	return fmt.Sprintf("%s_id", entity)
}
