package sdk

import (
	"fmt"
	"math"
	"time"

	"github.com/ajitpratap0/comet/pkg/errors"
)

// serialEpoch is the spreadsheet serial-number epoch (day 0).
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// NumberFormat says how numeric timestamp values should be read.
// Providers either send unix epoch seconds or spreadsheet serial
// day numbers; the two cannot be told apart by value alone, so the
// resource declares which one applies.
type NumberFormat int

const (
	// NumberEpochSeconds reads numbers as unix seconds since 1970
	NumberEpochSeconds NumberFormat = iota
	// NumberSerialDays reads numbers as days since 1899-12-30
	NumberSerialDays
)

// instantLayouts are the string timestamp formats accepted, tried in
// order.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// SerialToTime converts a spreadsheet serial day number to an
// instant: epoch seconds plus the rounded serial-day offset.
func SerialToTime(serial float64) time.Time {
	seconds := int64(math.Round(serial * 86400))
	return serialEpoch.Add(time.Duration(seconds) * time.Second)
}

// TimeToSerial converts an instant back to a spreadsheet serial day
// number.
func TimeToSerial(t time.Time) float64 {
	return t.Sub(serialEpoch).Seconds() / 86400
}

// ParseInstant converts a provider-native timestamp value into a
// canonical UTC instant. A nil or missing value parses to the unix
// epoch, which naturally falls out of any incremental window whose
// lower bound is later than epoch.
func ParseInstant(value interface{}, numbers NumberFormat) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return time.Unix(0, 0).UTC(), nil

	case time.Time:
		return v.UTC(), nil

	case float64:
		return numericInstant(v, numbers), nil
	case float32:
		return numericInstant(float64(v), numbers), nil
	case int:
		return numericInstant(float64(v), numbers), nil
	case int64:
		return numericInstant(float64(v), numbers), nil

	case string:
		if v == "" {
			return time.Unix(0, 0).UTC(), nil
		}
		for _, layout := range instantLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, errors.New(errors.ErrorTypeData,
			fmt.Sprintf("unparseable timestamp %q", v))

	default:
		return time.Time{}, errors.New(errors.ErrorTypeData,
			fmt.Sprintf("unsupported timestamp type %T", value))
	}
}

func numericInstant(v float64, numbers NumberFormat) time.Time {
	if numbers == NumberSerialDays {
		return SerialToTime(v)
	}
	return time.Unix(int64(v), 0).UTC()
}

// Window bounds one incremental run. Last is the inclusive lower
// bound (epoch when no prior state exists); End is the inclusive
// upper bound, nil meaning unbounded above.
type Window struct {
	Last time.Time
	End  *time.Time
}

// Contains reports whether an instant falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.Last) {
		return false
	}
	if w.End != nil && t.After(*w.End) {
		return false
	}
	return true
}

// WindowFilter drops items outside an incremental window and
// annotates passing items with the canonical parsed instant.
type WindowFilter struct {
	// Field is the item key holding the timestamp
	Field string
	// Numbers selects how numeric field values are interpreted
	Numbers NumberFormat
	// Window is the acceptance bound
	Window Window
}

// Accept parses the item's timestamp field and reports whether the
// item falls inside the window. On acceptance, the raw field value is
// replaced in place with the canonical instant.
func (f *WindowFilter) Accept(item map[string]interface{}) (time.Time, bool, error) {
	instant, err := ParseInstant(item[f.Field], f.Numbers)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, errors.ErrorTypeData,
			fmt.Sprintf("bad value in incremental field %q", f.Field))
	}

	if !f.Window.Contains(instant) {
		return instant, false, nil
	}

	item[f.Field] = instant
	return instant, true, nil
}

// Apply filters a finite item slice, preserving input order. Items
// outside the window are dropped, not buffered.
func (f *WindowFilter) Apply(items []map[string]interface{}) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		_, ok, err := f.Accept(item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}
