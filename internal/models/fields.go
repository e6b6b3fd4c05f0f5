// ABOUTME: Field-map input for the validating record constructors.
// ABOUTME: Coercion, clamping and date/timestamp parsing shared by every model.
package models

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultDataSource is recorded when a field map carries no data_source.
const DefaultDataSource = "zepp"

// DateLayout is the storage format for calendar dates.
const DateLayout = "2006-01-02"

// TimestampLayout is the storage format for instants. The offset is kept.
const TimestampLayout = time.RFC3339

// Fields holds raw or transformed values keyed by canonical column name.
// Constructors read from it and never write to it.
type Fields map[string]any

// ValidationError reports a record that cannot be built from its fields.
type ValidationError struct {
	Field  string
	Reason string
}

// Error returns the validation reason.
func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("Required field '%s' is missing", e.Field)
	}
	return e.Reason
}

func missing(field string) error {
	return &ValidationError{Field: field}
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// lookup returns the value for name, treating nil and typed-nil pointers as absent.
func (f Fields) lookup(name string) (any, bool) {
	v, ok := f[name]
	if !ok || v == nil {
		return nil, false
	}
	switch p := v.(type) {
	case *time.Time:
		if p == nil {
			return nil, false
		}
		return *p, true
	case *string:
		if p == nil {
			return nil, false
		}
		return *p, true
	case *int64:
		if p == nil {
			return nil, false
		}
		return *p, true
	case *float64:
		if p == nil {
			return nil, false
		}
		return *p, true
	case string:
		if strings.TrimSpace(p) == "" {
			return nil, false
		}
	}
	return v, true
}

func (f Fields) require(names ...string) error {
	for _, name := range names {
		if _, ok := f.lookup(name); !ok {
			return missing(name)
		}
	}
	return nil
}

func (f Fields) integer(name string) (int64, bool, error) {
	v, ok := f.lookup(name)
	if !ok {
		return 0, false, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, true, invalid(name, "Invalid numeric value for '%s': %v", name, v)
	}
	return n, true, nil
}

func (f Fields) real(name string) (float64, bool, error) {
	v, ok := f.lookup(name)
	if !ok {
		return 0, false, nil
	}
	n, err := toFloat(v)
	if err != nil {
		return 0, true, invalid(name, "Invalid numeric value for '%s': %v", name, v)
	}
	return n, true, nil
}

func (f Fields) text(name string) (string, bool) {
	v, ok := f.lookup(name)
	if !ok {
		return "", false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s), true
	}
	return fmt.Sprint(v), true
}

// count reads a non-negative integer metric, clamping negatives to zero.
func (f Fields) count(name string) (int64, error) {
	n, _, err := f.integer(name)
	if err != nil {
		return 0, err
	}
	return max(n, 0), nil
}

// measure reads a non-negative real metric, clamping negatives to zero.
func (f Fields) measure(name string) (float64, error) {
	n, _, err := f.real(name)
	if err != nil {
		return 0, err
	}
	return max(n, 0), nil
}

func (f Fields) source() string {
	if s, ok := f.text("data_source"); ok {
		return s
	}
	return DefaultDataSource
}

func (f Fields) date(name string) (time.Time, error) {
	v, ok := f.lookup(name)
	if !ok {
		return time.Time{}, missing(name)
	}
	d, err := ParseDate(v)
	if err != nil {
		return time.Time{}, invalid(name, "Invalid date format")
	}
	return d, nil
}

func (f Fields) timestamp(name string) (*time.Time, error) {
	v, ok := f.lookup(name)
	if !ok {
		return nil, nil
	}
	var ts time.Time
	switch t := v.(type) {
	case time.Time:
		ts = t
	case string:
		parsed, err := ParseTimestamp(t)
		if err != nil {
			return nil, invalid(name, "Invalid timestamp format for '%s': %s", name, t)
		}
		ts = parsed
	default:
		return nil, invalid(name, "Invalid timestamp format for '%s': %v", name, v)
	}
	return &ts, nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float32:
		return truncate(float64(n))
	case float64:
		return truncate(n)
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		fl, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return truncate(fl)
	}
	return 0, fmt.Errorf("unsupported numeric type %T", v)
}

func truncate(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("value %v out of integer range", f)
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("non-finite value %v", n)
		}
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("non-finite value %v", f)
		}
		return f, nil
	}
	return 0, fmt.Errorf("unsupported numeric type %T", v)
}

// ParseDate accepts a YYYY-MM-DD string, a timestamp string, or a time.Time,
// and returns the calendar date at UTC midnight.
func ParseDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		s := strings.TrimSpace(d)
		if t, err := time.Parse(DateLayout, s); err == nil {
			return t, nil
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("unsupported date type %T", v)
}

var compactOffset = regexp.MustCompile(`([+-]\d{2})(\d{2})$`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp parses device and ISO-8601 timestamps. A compact "+0000"
// suffix is accepted, and values without an offset are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if len(s) > len(DateLayout) {
		s = compactOffset.ReplaceAllString(s, "$1:$2")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(TimestampLayout)
}

func optional[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
