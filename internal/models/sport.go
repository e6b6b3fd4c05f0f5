// ABOUTME: Sport session model: a timed workout with type code, distance and pace.
// ABOUTME: Natural key is (user_id, start_time, sport_type, data_source).
package models

import "time"

// Sport is one recorded workout session.
type Sport struct {
	UserID          int64
	StartTime       time.Time
	SportType       int64
	DurationSeconds int64
	DistanceMeters  float64
	Calories        float64
	AvgPace         float64
	MaxPace         float64
	MinPace         float64
	DataSource      string
}

// NewSport validates fields and builds a Sport record.
func NewSport(f Fields) (*Sport, error) {
	if err := f.require("user_id", "start_time", "sport_type"); err != nil {
		return nil, err
	}
	s := &Sport{DataSource: f.source()}
	var err error
	if s.UserID, _, err = f.integer("user_id"); err != nil {
		return nil, err
	}
	start, err := f.timestamp("start_time")
	if err != nil {
		return nil, err
	}
	s.StartTime = *start
	if s.SportType, _, err = f.integer("sport_type"); err != nil {
		return nil, err
	}
	if s.DurationSeconds, err = f.count("duration_seconds"); err != nil {
		return nil, err
	}
	if s.DistanceMeters, err = f.measure("distance_meters"); err != nil {
		return nil, err
	}
	if s.Calories, err = f.measure("calories"); err != nil {
		return nil, err
	}
	if s.AvgPace, err = f.measure("avg_pace_per_meter"); err != nil {
		return nil, err
	}
	if s.MaxPace, err = f.measure("max_pace_per_meter"); err != nil {
		return nil, err
	}
	if s.MinPace, err = f.measure("min_pace_per_meter"); err != nil {
		return nil, err
	}
	return s, nil
}

// BuildSport adapts NewSport to the Builder signature.
func BuildSport(f Fields) (Record, error) { return NewSport(f) }

// Model returns the table model the record belongs to.
func (s *Sport) Model() Model { return SportModel }

// Columns lists the columns Values fills, in order.
func (s *Sport) Columns() []string {
	return []string{
		"user_id", "start_time", "sport_type", "duration_seconds", "distance_meters", "calories",
		"avg_pace_per_meter", "max_pace_per_meter", "min_pace_per_meter", "data_source",
	}
}

// Values returns the column values in Columns order.
func (s *Sport) Values() []any {
	return []any{
		s.UserID, s.StartTime.Format(TimestampLayout), s.SportType, s.DurationSeconds, s.DistanceMeters, s.Calories,
		s.AvgPace, s.MaxPace, s.MinPace, s.DataSource,
	}
}

// Key returns the natural key values.
func (s *Sport) Key() []any {
	return []any{s.UserID, s.StartTime.Format(TimestampLayout), s.SportType, s.DataSource}
}

type sportModel struct{}

func (sportModel) Name() string { return "sport" }
func (sportModel) TableName() string { return "sport_data" }
func (sportModel) DateColumn() string { return "start_time" }
func (sportModel) KeyColumns() []string {
	return []string{"user_id", "start_time", "sport_type", "data_source"}
}

func (sportModel) CreateSQL() string {
	return `CREATE TABLE IF NOT EXISTS sport_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	sport_type INTEGER NOT NULL,
	duration_seconds INTEGER DEFAULT 0,
	distance_meters REAL DEFAULT 0,
	calories REAL DEFAULT 0,
	avg_pace_per_meter REAL DEFAULT 0,
	max_pace_per_meter REAL DEFAULT 0,
	min_pace_per_meter REAL DEFAULT 0,
	data_source TEXT NOT NULL DEFAULT 'zepp',
	` + auditColumns + `,
	UNIQUE(user_id, start_time, sport_type, data_source),
	FOREIGN KEY (user_id) REFERENCES users(id)
)`
}

func (sportModel) IndexesSQL() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_sport_data_user_start ON sport_data(user_id, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_sport_data_type ON sport_data(sport_type)`,
	}
}
