// ABOUTME: Heart rate sample model, bounds-checked to a physiological range.
// ABOUTME: Natural key is (user_id, timestamp, data_source).
package models

import "time"

// Heart rate bounds, inclusive.
const (
	MinHeartRate = 30
	MaxHeartRate = 220
)

// HeartRate is one beats-per-minute sample.
type HeartRate struct {
	UserID     int64
	Timestamp  time.Time
	HeartRate  int64
	RestingHR  *int64
	MaxHR      *int64
	DataSource string
}

// NewHeartRate validates fields and builds a HeartRate sample.
func NewHeartRate(f Fields) (*HeartRate, error) {
	if err := f.require("user_id", "timestamp", "heart_rate"); err != nil {
		return nil, err
	}
	h := &HeartRate{DataSource: f.source()}
	var err error
	if h.UserID, _, err = f.integer("user_id"); err != nil {
		return nil, err
	}
	ts, err := f.timestamp("timestamp")
	if err != nil {
		return nil, err
	}
	h.Timestamp = *ts
	if h.HeartRate, _, err = f.integer("heart_rate"); err != nil {
		return nil, err
	}
	if h.HeartRate < MinHeartRate || h.HeartRate > MaxHeartRate {
		return nil, invalid("heart_rate", "Invalid heart rate value: %d (out of bounds %d-%d)", h.HeartRate, MinHeartRate, MaxHeartRate)
	}
	for name, dst := range map[string]**int64{"resting_hr": &h.RestingHR, "max_hr": &h.MaxHR} {
		n, ok, err := f.integer(name)
		if err != nil {
			return nil, err
		}
		*dst = optional(max(n, 0), ok)
	}
	return h, nil
}

// BuildHeartRate adapts NewHeartRate to the Builder signature.
func BuildHeartRate(f Fields) (Record, error) { return NewHeartRate(f) }

// Model returns the table model the record belongs to.
func (h *HeartRate) Model() Model { return HeartRateModel }

// Columns lists the columns Values fills, in order.
func (h *HeartRate) Columns() []string {
	return []string{"user_id", "timestamp", "heart_rate", "resting_hr", "max_hr", "data_source"}
}

// Values returns the column values in Columns order.
func (h *HeartRate) Values() []any {
	return []any{h.UserID, h.Timestamp.Format(TimestampLayout), h.HeartRate, deref(h.RestingHR), deref(h.MaxHR), h.DataSource}
}

// Key returns the natural key values.
func (h *HeartRate) Key() []any {
	return []any{h.UserID, h.Timestamp.Format(TimestampLayout), h.DataSource}
}

type heartRateModel struct{}

func (heartRateModel) Name() string { return "heart_rate" }
func (heartRateModel) TableName() string { return "heart_rate_data" }
func (heartRateModel) DateColumn() string { return "timestamp" }
func (heartRateModel) KeyColumns() []string {
	return []string{"user_id", "timestamp", "data_source"}
}

func (heartRateModel) CreateSQL() string {
	return `CREATE TABLE IF NOT EXISTS heart_rate_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	heart_rate INTEGER NOT NULL,
	resting_hr INTEGER,
	max_hr INTEGER,
	data_source TEXT NOT NULL DEFAULT 'zepp',
	` + auditColumns + `,
	UNIQUE(user_id, timestamp, data_source),
	FOREIGN KEY (user_id) REFERENCES users(id)
)`
}

func (heartRateModel) IndexesSQL() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_heart_rate_user_ts ON heart_rate_data(user_id, timestamp)`,
	}
}
