// ABOUTME: Typed loaders for activity, sleep, heart rate and sport rows.
// ABOUTME: Each accepts an inclusive date range; zero bounds are open.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/healthetl/internal/models"
)

// DateRange bounds a load by calendar date, inclusive. Zero values are unbounded.
type DateRange struct {
	From time.Time
	To   time.Time
}

// LastDays returns the range covering the n days ending on end.
func LastDays(end time.Time, n int) DateRange {
	return DateRange{From: end.AddDate(0, 0, -(n - 1)), To: end}
}

// where renders the range as a SQL condition over a date expression.
func (r DateRange) where(expr string) (string, []any) {
	var conds []string
	var args []any
	if !r.From.IsZero() {
		conds = append(conds, expr+" >= ?")
		args = append(args, r.From.Format(models.DateLayout))
	}
	if !r.To.IsZero() {
		conds = append(conds, expr+" <= ?")
		args = append(args, r.To.Format(models.DateLayout))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ActivityDay is one row of daily_activity.
type ActivityDay struct {
	Date          time.Time
	Steps         int64
	Calories      float64
	Distance      float64
	RunDistance   float64
	ActiveMinutes int64
	DataSource    string
}

// SleepNight is one row of sleep_data.
type SleepNight struct {
	Date              time.Time
	SleepStart        *time.Time
	SleepEnd          *time.Time
	TotalSleepMinutes int64
	DeepSleepMinutes  int64
	LightSleepMinutes int64
	REMSleepMinutes   int64
	WakeMinutes       int64
	SleepEfficiency   float64
	DataSource        string
}

// TotalSleepHours converts total sleep to hours.
func (s SleepNight) TotalSleepHours() float64 { return float64(s.TotalSleepMinutes) / 60 }

// DeepSleepHours converts deep sleep to hours.
func (s SleepNight) DeepSleepHours() float64 { return float64(s.DeepSleepMinutes) / 60 }

// BedTimeHours is the local clock time of sleep start in fractional hours.
func (s SleepNight) BedTimeHours() float64 { return clockHours(s.SleepStart) }

// WakeTimeHours is the local clock time of sleep end in fractional hours.
func (s SleepNight) WakeTimeHours() float64 { return clockHours(s.SleepEnd) }

func clockHours(t *time.Time) float64 {
	if t == nil {
		return 0
	}
	return float64(t.Hour()) + float64(t.Minute())/60
}

// HeartRateSample is one row of heart_rate_data.
type HeartRateSample struct {
	Timestamp  time.Time
	HeartRate  int64
	RestingHR  *int64
	MaxHR      *int64
	DataSource string
}

// SportSession is one row of sport_data.
type SportSession struct {
	StartTime       time.Time
	SportType       int64
	DurationSeconds int64
	DistanceMeters  float64
	Calories        float64
	AvgPace         float64
	DataSource      string
}

// DurationMinutes converts the session duration to minutes.
func (s SportSession) DurationMinutes() float64 { return float64(s.DurationSeconds) / 60 }

// DistanceKm converts the session distance to kilometers.
func (s SportSession) DistanceKm() float64 { return s.DistanceMeters / 1000 }

// SportName is the display name of the session's sport type.
func (s SportSession) SportName() string { return SportName(s.SportType) }

// LoadActivity returns daily activity ordered by date.
func (q *Querier) LoadActivity(ctx context.Context, r DateRange) ([]ActivityDay, error) {
	where, args := r.where("date")
	rows, err := q.db.QueryContext(ctx, `SELECT date, steps, calories, distance, run_distance, active_minutes, data_source
		FROM daily_activity`+where+` ORDER BY date`, args...)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}
	defer rows.Close()

	var out []ActivityDay
	for rows.Next() {
		var a ActivityDay
		var date string
		if err := rows.Scan(&date, &a.Steps, &a.Calories, &a.Distance, &a.RunDistance, &a.ActiveMinutes, &a.DataSource); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if a.Date, err = time.Parse(models.DateLayout, date); err != nil {
			return nil, fmt.Errorf("parse activity date: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LoadSleep returns sleep nights ordered by date.
func (q *Querier) LoadSleep(ctx context.Context, r DateRange) ([]SleepNight, error) {
	where, args := r.where("date")
	rows, err := q.db.QueryContext(ctx, `SELECT date, sleep_start, sleep_end, total_sleep_minutes, deep_sleep_minutes,
		light_sleep_minutes, rem_sleep_minutes, wake_minutes, sleep_efficiency, data_source
		FROM sleep_data`+where+` ORDER BY date`, args...)
	if err != nil {
		return nil, fmt.Errorf("load sleep: %w", err)
	}
	defer rows.Close()

	var out []SleepNight
	for rows.Next() {
		var s SleepNight
		var date string
		var start, end sql.NullString
		if err := rows.Scan(&date, &start, &end, &s.TotalSleepMinutes, &s.DeepSleepMinutes,
			&s.LightSleepMinutes, &s.REMSleepMinutes, &s.WakeMinutes, &s.SleepEfficiency, &s.DataSource); err != nil {
			return nil, fmt.Errorf("scan sleep: %w", err)
		}
		if s.Date, err = time.Parse(models.DateLayout, date); err != nil {
			return nil, fmt.Errorf("parse sleep date: %w", err)
		}
		s.SleepStart = parseStored(start)
		s.SleepEnd = parseStored(end)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadHeartRate returns samples ordered by timestamp. The range applies to
// the local calendar date of each sample.
func (q *Querier) LoadHeartRate(ctx context.Context, r DateRange) ([]HeartRateSample, error) {
	where, args := r.where("substr(timestamp, 1, 10)")
	rows, err := q.db.QueryContext(ctx, `SELECT timestamp, heart_rate, resting_hr, max_hr, data_source
		FROM heart_rate_data`+where+` ORDER BY timestamp`, args...)
	if err != nil {
		return nil, fmt.Errorf("load heart rate: %w", err)
	}
	defer rows.Close()

	var out []HeartRateSample
	for rows.Next() {
		var h HeartRateSample
		var ts string
		var resting, maxHR sql.NullInt64
		if err := rows.Scan(&ts, &h.HeartRate, &resting, &maxHR, &h.DataSource); err != nil {
			return nil, fmt.Errorf("scan heart rate: %w", err)
		}
		if h.Timestamp, err = time.Parse(models.TimestampLayout, ts); err != nil {
			return nil, fmt.Errorf("parse heart rate timestamp: %w", err)
		}
		if resting.Valid {
			h.RestingHR = &resting.Int64
		}
		if maxHR.Valid {
			h.MaxHR = &maxHR.Int64
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// LoadSport returns sessions ordered by start time.
func (q *Querier) LoadSport(ctx context.Context, r DateRange) ([]SportSession, error) {
	where, args := r.where("substr(start_time, 1, 10)")
	rows, err := q.db.QueryContext(ctx, `SELECT start_time, sport_type, duration_seconds, distance_meters, calories,
		avg_pace_per_meter, data_source
		FROM sport_data`+where+` ORDER BY start_time`, args...)
	if err != nil {
		return nil, fmt.Errorf("load sport: %w", err)
	}
	defer rows.Close()

	var out []SportSession
	for rows.Next() {
		var s SportSession
		var start string
		if err := rows.Scan(&start, &s.SportType, &s.DurationSeconds, &s.DistanceMeters, &s.Calories, &s.AvgPace, &s.DataSource); err != nil {
			return nil, fmt.Errorf("scan sport: %w", err)
		}
		if s.StartTime, err = time.Parse(models.TimestampLayout, start); err != nil {
			return nil, fmt.Errorf("parse sport start: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func parseStored(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(models.TimestampLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}
