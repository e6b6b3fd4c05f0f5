// ABOUTME: Sleep session model with stage durations and derived efficiency.
// ABOUTME: Natural key is (user_id, date, data_source); one main session per day.
package models

import "time"

// Sleep is the main sleep session attributed to a calendar date.
type Sleep struct {
	UserID            int64
	Date              time.Time
	SleepStart        *time.Time
	SleepEnd          *time.Time
	TotalSleepMinutes int64
	DeepSleepMinutes  int64
	LightSleepMinutes int64
	REMSleepMinutes   int64
	WakeMinutes       int64
	SleepEfficiency   float64
	NapsData          *string
	DataSource        string
}

// NewSleep validates fields and builds a Sleep record. When no total is
// given it is the sum of the stages, or the start-to-end window when no
// stage is present either.
func NewSleep(f Fields) (*Sleep, error) {
	if err := f.require("user_id", "date"); err != nil {
		return nil, err
	}
	s := &Sleep{DataSource: f.source()}
	var err error
	if s.UserID, _, err = f.integer("user_id"); err != nil {
		return nil, err
	}
	if s.Date, err = f.date("date"); err != nil {
		return nil, err
	}
	if s.SleepStart, err = f.timestamp("sleep_start"); err != nil {
		return nil, err
	}
	if s.SleepEnd, err = f.timestamp("sleep_end"); err != nil {
		return nil, err
	}
	if s.DeepSleepMinutes, err = f.count("deep_sleep_minutes"); err != nil {
		return nil, err
	}
	if s.LightSleepMinutes, err = f.count("light_sleep_minutes"); err != nil {
		return nil, err
	}
	if s.REMSleepMinutes, err = f.count("rem_sleep_minutes"); err != nil {
		return nil, err
	}
	if s.WakeMinutes, err = f.count("wake_minutes"); err != nil {
		return nil, err
	}

	total, hasTotal, err := f.integer("total_sleep_minutes")
	if err != nil {
		return nil, err
	}
	switch {
	case hasTotal:
		s.TotalSleepMinutes = max(total, 0)
	case f.has("deep_sleep_minutes", "light_sleep_minutes", "rem_sleep_minutes"):
		s.TotalSleepMinutes = s.DeepSleepMinutes + s.LightSleepMinutes + s.REMSleepMinutes
	default:
		s.TotalSleepMinutes = s.WindowMinutes()
	}

	efficiency, _, err := f.real("sleep_efficiency")
	if err != nil {
		return nil, err
	}
	s.SleepEfficiency = ClampPercent(efficiency)

	naps, ok := f.text("naps_data")
	s.NapsData = optional(naps, ok)
	return s, nil
}

// BuildSleep adapts NewSleep to the Builder signature.
func BuildSleep(f Fields) (Record, error) { return NewSleep(f) }

// WindowMinutes is the whole minutes between start and end, or 0 when the
// window is missing or inverted.
func (s *Sleep) WindowMinutes() int64 {
	if s.SleepStart == nil || s.SleepEnd == nil {
		return 0
	}
	return max(int64(s.SleepEnd.Sub(*s.SleepStart)/time.Minute), 0)
}

// ClampPercent bounds a percentage to [0, 100].
func ClampPercent(v float64) float64 {
	return min(max(v, 0), 100)
}

func (f Fields) has(names ...string) bool {
	for _, name := range names {
		if _, ok := f.lookup(name); ok {
			return true
		}
	}
	return false
}

// Model returns the table model the record belongs to.
func (s *Sleep) Model() Model { return SleepModel }

// Columns lists the columns Values fills, in order.
func (s *Sleep) Columns() []string {
	return []string{
		"user_id", "date", "sleep_start", "sleep_end",
		"total_sleep_minutes", "deep_sleep_minutes", "light_sleep_minutes", "rem_sleep_minutes",
		"wake_minutes", "sleep_efficiency", "naps_data", "data_source",
	}
}

// Values returns the column values in Columns order.
func (s *Sleep) Values() []any {
	return []any{
		s.UserID, s.Date.Format(DateLayout), formatTime(s.SleepStart), formatTime(s.SleepEnd),
		s.TotalSleepMinutes, s.DeepSleepMinutes, s.LightSleepMinutes, s.REMSleepMinutes,
		s.WakeMinutes, s.SleepEfficiency, deref(s.NapsData), s.DataSource,
	}
}

// Key returns the natural key values.
func (s *Sleep) Key() []any {
	return []any{s.UserID, s.Date.Format(DateLayout), s.DataSource}
}

type sleepModel struct{}

func (sleepModel) Name() string { return "sleep" }
func (sleepModel) TableName() string { return "sleep_data" }
func (sleepModel) DateColumn() string { return "date" }
func (sleepModel) KeyColumns() []string {
	return []string{"user_id", "date", "data_source"}
}

func (sleepModel) CreateSQL() string {
	return `CREATE TABLE IF NOT EXISTS sleep_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	date TEXT NOT NULL,
	sleep_start TEXT,
	sleep_end TEXT,
	total_sleep_minutes INTEGER DEFAULT 0,
	deep_sleep_minutes INTEGER DEFAULT 0,
	light_sleep_minutes INTEGER DEFAULT 0,
	rem_sleep_minutes INTEGER DEFAULT 0,
	wake_minutes INTEGER DEFAULT 0,
	sleep_efficiency REAL DEFAULT 0,
	naps_data TEXT,
	data_source TEXT NOT NULL DEFAULT 'zepp',
	` + auditColumns + `,
	UNIQUE(user_id, date, data_source),
	FOREIGN KEY (user_id) REFERENCES users(id)
)`
}

func (sleepModel) IndexesSQL() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_sleep_data_user_date ON sleep_data(user_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_sleep_data_date ON sleep_data(date)`,
	}
}
