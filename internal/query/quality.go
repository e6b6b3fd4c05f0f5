// ABOUTME: Data quality counts used by the verify command.
// ABOUTME: Flags missing and out-of-range activity values and sleep rows without a window.
package query

import (
	"context"
	"fmt"
)

// Thresholds beyond which a daily value is reported as extreme.
const (
	MaxPlausibleSteps    = 50000
	MaxPlausibleCalories = 10000
)

// Quality counts suspicious rows per check.
type Quality struct {
	MissingSteps     int64 `json:"missing_steps" yaml:"missing_steps"`
	MissingCalories  int64 `json:"missing_calories" yaml:"missing_calories"`
	ExtremeSteps     int64 `json:"extreme_steps" yaml:"extreme_steps"`
	ExtremeCalories  int64 `json:"extreme_calories" yaml:"extreme_calories"`
	SleepWithoutTime int64 `json:"sleep_without_window" yaml:"sleep_without_window"`
}

// Issues returns the number of flagged rows across all checks.
func (q Quality) Issues() int64 {
	return q.MissingSteps + q.MissingCalories + q.ExtremeSteps + q.ExtremeCalories + q.SleepWithoutTime
}

// DataQuality runs the quality checks.
func (q *Querier) DataQuality(ctx context.Context) (*Quality, error) {
	var out Quality
	checks := []struct {
		dst  *int64
		stmt string
		args []any
	}{
		{&out.MissingSteps, `SELECT COUNT(*) FROM daily_activity WHERE steps IS NULL`, nil},
		{&out.MissingCalories, `SELECT COUNT(*) FROM daily_activity WHERE calories IS NULL`, nil},
		{&out.ExtremeSteps, `SELECT COUNT(*) FROM daily_activity WHERE steps > ? OR steps < 0`, []any{MaxPlausibleSteps}},
		{&out.ExtremeCalories, `SELECT COUNT(*) FROM daily_activity WHERE calories > ? OR calories < 0`, []any{MaxPlausibleCalories}},
		{&out.SleepWithoutTime, `SELECT COUNT(*) FROM sleep_data
			WHERE sleep_start IS NULL OR sleep_end IS NULL OR sleep_start = sleep_end`, nil},
	}
	for _, c := range checks {
		if err := q.db.QueryRowContext(ctx, c.stmt, c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("quality check: %w", err)
		}
	}
	return &out, nil
}
