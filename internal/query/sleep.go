// ABOUTME: Bedtime and wake-time schedule extraction from stored sleep sessions.
// ABOUTME: Times are read in the stored local offset and formatted HH:MM.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/healthetl/internal/models"
)

// ErrNoSleepData is returned when a user has no sleep session with a window.
var ErrNoSleepData = errors.New("no sleep data found")

// ScheduleEntry is one night of the bedtime chart.
type ScheduleEntry struct {
	Day      string `json:"day"`
	Bedtime  string `json:"bedtime"`
	WakeTime string `json:"wake_time"`
	FullDate string `json:"full_date"`
}

const scheduleColumns = `SELECT date, sleep_start, sleep_end FROM sleep_data
	WHERE user_id = ?
	AND sleep_start IS NOT NULL
	AND sleep_end IS NOT NULL
	AND sleep_start != sleep_end`

// SleepSchedule returns the most recent nights for userID, oldest first.
func (q *Querier) SleepSchedule(ctx context.Context, userID int64, nights int) ([]ScheduleEntry, error) {
	rows, err := q.db.QueryContext(ctx, scheduleColumns+` ORDER BY date DESC LIMIT ?`, userID, nights)
	if err != nil {
		return nil, fmt.Errorf("load sleep schedule: %w", err)
	}
	entries, err := scanSchedule(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w for user %d", ErrNoSleepData, userID)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// SleepScheduleRange returns the nights between from and to inclusive, in date order.
func (q *Querier) SleepScheduleRange(ctx context.Context, userID int64, r DateRange) ([]ScheduleEntry, error) {
	rows, err := q.db.QueryContext(ctx, scheduleColumns+` AND date BETWEEN ? AND ? ORDER BY date ASC`,
		userID, r.From.Format(models.DateLayout), r.To.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("load sleep schedule: %w", err)
	}
	return scanSchedule(rows)
}

func scanSchedule(rows *sql.Rows) ([]ScheduleEntry, error) {
	defer rows.Close()

	var out []ScheduleEntry
	for rows.Next() {
		var date, start, end string
		if err := rows.Scan(&date, &start, &end); err != nil {
			return nil, fmt.Errorf("scan sleep schedule: %w", err)
		}
		bed, err := time.Parse(models.TimestampLayout, start)
		if err != nil {
			return nil, fmt.Errorf("parse sleep start: %w", err)
		}
		wake, err := time.Parse(models.TimestampLayout, end)
		if err != nil {
			return nil, fmt.Errorf("parse sleep end: %w", err)
		}
		day, err := time.Parse(models.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("parse sleep date: %w", err)
		}
		out = append(out, ScheduleEntry{
			Day:      day.Format("01/02"),
			Bedtime:  bed.Format("15:04"),
			WakeTime: wake.Format("15:04"),
			FullDate: date,
		})
	}
	return out, rows.Err()
}

// SleepDateRange returns the first and last dates with a usable sleep window.
// Both are empty when there is none.
func (q *Querier) SleepDateRange(ctx context.Context, userID int64) (start, end string, err error) {
	var first, last sql.NullString
	err = q.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM sleep_data
		WHERE user_id = ?
		AND sleep_start IS NOT NULL
		AND sleep_end IS NOT NULL
		AND sleep_start != sleep_end`, userID).Scan(&first, &last)
	if err != nil {
		return "", "", fmt.Errorf("sleep date range: %w", err)
	}
	return first.String, last.String, nil
}
