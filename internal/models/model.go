// ABOUTME: Model descriptors for every table plus the record interface storage persists.
// ABOUTME: The registry lists models in foreign-key dependency order.
package models

import (
	"fmt"
	"strings"
)

// Model describes one table: its DDL, indexes, date column and natural key.
type Model interface {
	Name() string
	TableName() string
	CreateSQL() string
	IndexesSQL() []string
	// DateColumn is empty when the table has no date-bearing column.
	DateColumn() string
	KeyColumns() []string
}

// Record is a validated row ready to be written.
type Record interface {
	Model() Model
	// Columns and Values line up index for index. Surrogate id and audit
	// timestamps are never included.
	Columns() []string
	Values() []any
	// Key returns the natural key values in KeyColumns order.
	Key() []any
}

// Builder constructs a validated record from a field map.
type Builder func(Fields) (Record, error)

// Model registry entries.
var (
	UserModel      Model = userModel{}
	ActivityModel  Model = activityModel{}
	SleepModel     Model = sleepModel{}
	SportModel     Model = sportModel{}
	HeartRateModel Model = heartRateModel{}
)

// Registry returns every model, users first.
func Registry() []Model {
	return []Model{UserModel, ActivityModel, SleepModel, SportModel, HeartRateModel}
}

// Get looks up a model by registry name.
func Get(name string) (Model, error) {
	for _, m := range Registry() {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("unknown model: %s", name)
}

// KeyString renders natural key values as a comparable map key.
func KeyString(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x1f")
}

// auditColumns is appended to every table definition.
const auditColumns = `created_at TEXT DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT DEFAULT CURRENT_TIMESTAMP`
