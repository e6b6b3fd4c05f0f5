// ABOUTME: Daily activity model: steps, calories and distance per user and day.
// ABOUTME: Natural key is (user_id, date, data_source).
package models

import "time"

// Activity is one day of aggregate movement.
type Activity struct {
	UserID        int64
	Date          time.Time
	Steps         int64
	Calories      float64
	Distance      float64
	RunDistance   float64
	ActiveMinutes int64
	DataSource    string
}

// NewActivity validates fields and builds an Activity.
func NewActivity(f Fields) (*Activity, error) {
	if err := f.require("user_id", "date"); err != nil {
		return nil, err
	}
	a := &Activity{DataSource: f.source()}
	var err error
	if a.UserID, _, err = f.integer("user_id"); err != nil {
		return nil, err
	}
	if a.Date, err = f.date("date"); err != nil {
		return nil, err
	}
	if a.Steps, err = f.count("steps"); err != nil {
		return nil, err
	}
	if a.Calories, err = f.measure("calories"); err != nil {
		return nil, err
	}
	if a.Distance, err = f.measure("distance"); err != nil {
		return nil, err
	}
	if a.RunDistance, err = f.measure("run_distance"); err != nil {
		return nil, err
	}
	if a.ActiveMinutes, err = f.count("active_minutes"); err != nil {
		return nil, err
	}
	return a, nil
}

// BuildActivity adapts NewActivity to the Builder signature.
func BuildActivity(f Fields) (Record, error) { return NewActivity(f) }

// Model returns the table model the record belongs to.
func (a *Activity) Model() Model { return ActivityModel }

// Columns lists the columns Values fills, in order.
func (a *Activity) Columns() []string {
	return []string{"user_id", "date", "steps", "calories", "distance", "run_distance", "active_minutes", "data_source"}
}

// Values returns the column values in Columns order.
func (a *Activity) Values() []any {
	return []any{a.UserID, a.Date.Format(DateLayout), a.Steps, a.Calories, a.Distance, a.RunDistance, a.ActiveMinutes, a.DataSource}
}

// Key returns the natural key values.
func (a *Activity) Key() []any {
	return []any{a.UserID, a.Date.Format(DateLayout), a.DataSource}
}

type activityModel struct{}

func (activityModel) Name() string { return "activity" }
func (activityModel) TableName() string { return "daily_activity" }
func (activityModel) DateColumn() string { return "date" }
func (activityModel) KeyColumns() []string {
	return []string{"user_id", "date", "data_source"}
}

func (activityModel) CreateSQL() string {
	return `CREATE TABLE IF NOT EXISTS daily_activity (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	date TEXT NOT NULL,
	steps INTEGER DEFAULT 0,
	calories REAL DEFAULT 0,
	distance REAL DEFAULT 0,
	run_distance REAL DEFAULT 0,
	active_minutes INTEGER DEFAULT 0,
	data_source TEXT NOT NULL DEFAULT 'zepp',
	` + auditColumns + `,
	UNIQUE(user_id, date, data_source),
	FOREIGN KEY (user_id) REFERENCES users(id)
)`
}

func (activityModel) IndexesSQL() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_daily_activity_user_date ON daily_activity(user_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_activity_date ON daily_activity(date)`,
	}
}
