// Package mask provides field-level masking for extracted records,
// used to scrub PII before records leave the pipeline. Strategies
// form a closed set so dispatch is exhaustive at compile time.
package mask

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ajitpratap0/comet/pkg/errors"
)

// Strategy is one of the supported masking transforms.
type Strategy int

const (
	// Redact replaces the value with a fixed placeholder
	Redact Strategy = iota
	// Hash replaces the value with its hex SHA-256 digest
	Hash
	// Partial keeps the first and last character, masking the rest
	Partial
	// Null replaces the value with nil
	Null
)

const redactedPlaceholder = "***"

// ParseStrategy converts a configuration string to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "redact":
		return Redact, nil
	case "hash":
		return Hash, nil
	case "partial":
		return Partial, nil
	case "null":
		return Null, nil
	default:
		return 0, errors.New(errors.ErrorTypeConfig,
			fmt.Sprintf("unknown masking strategy %q", name))
	}
}

// Apply transforms a single value with the strategy.
func (s Strategy) Apply(value interface{}) interface{} {
	if value == nil {
		return nil
	}

	switch s {
	case Redact:
		return redactedPlaceholder
	case Hash:
		sum := sha256.Sum256([]byte(fmt.Sprintf("%v", value)))
		return hex.EncodeToString(sum[:])
	case Partial:
		return partialMask(fmt.Sprintf("%v", value))
	case Null:
		return nil
	default:
		return redactedPlaceholder
	}
}

func partialMask(s string) string {
	runes := []rune(s)
	if len(runes) <= 2 {
		return redactedPlaceholder
	}
	out := make([]rune, len(runes))
	out[0] = runes[0]
	out[len(runes)-1] = runes[len(runes)-1]
	for i := 1; i < len(runes)-1; i++ {
		out[i] = '*'
	}
	return string(out)
}

// Engine applies per-field masking strategies to records.
type Engine struct {
	fields map[string]Strategy
}

// NewEngine builds an engine from a field-to-strategy-name mapping.
func NewEngine(rules map[string]string) (*Engine, error) {
	fields := make(map[string]Strategy, len(rules))
	for field, name := range rules {
		strategy, err := ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		fields[field] = strategy
	}
	return &Engine{fields: fields}, nil
}

// Apply masks the configured fields in place. Fields absent from the
// record are left untouched.
func (e *Engine) Apply(record map[string]interface{}) {
	for field, strategy := range e.fields {
		if value, ok := record[field]; ok {
			record[field] = strategy.Apply(value)
		}
	}
}
