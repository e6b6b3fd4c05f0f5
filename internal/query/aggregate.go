// ABOUTME: Period and daily rollups: weekly/monthly/quarterly means, heart rate per day, sport totals.
// ABOUTME: Also holds the sport type code to name mapping.
package query

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Period is an aggregation bucket size.
type Period string

// Aggregation periods.
const (
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
)

// ParsePeriod accepts week/weekly, month/monthly and quarter/quarterly.
func ParsePeriod(name string) (Period, error) {
	switch name {
	case "week", "weekly":
		return PeriodWeek, nil
	case "month", "monthly":
		return PeriodMonth, nil
	case "quarter", "quarterly":
		return PeriodQuarter, nil
	}
	return "", fmt.Errorf("unknown period: %s", name)
}

func unknownMetric(metric string) error {
	return fmt.Errorf("unknown metric: %s", metric)
}

// Bucket returns the start of the period containing t and its label.
// Weeks start on Monday.
func Bucket(t time.Time, p Period) (time.Time, string) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodWeek:
		back := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -back)
		return start, "Week of " + start.Format("2006-01-02")
	case PeriodQuarter:
		q := (int(day.Month())-1)/3 + 1
		start := time.Date(day.Year(), time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		return start, fmt.Sprintf("Q%d %d", q, day.Year())
	default:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.Format("2006-01")
	}
}

// PeriodValue is the mean of a series within one period.
type PeriodValue struct {
	Start time.Time `json:"start"`
	Label string    `json:"label"`
	Mean  float64   `json:"mean"`
	Count int       `json:"count"`
}

// AggregateByPeriod averages points per period, ignoring NaN values.
// Results are ordered by period start.
func AggregateByPeriod(points []Point, p Period) []PeriodValue {
	type acc struct {
		label string
		sum   float64
		n     int
	}
	buckets := make(map[time.Time]*acc)
	for _, pt := range points {
		if math.IsNaN(pt.Value) {
			continue
		}
		start, label := Bucket(pt.Date, p)
		a, ok := buckets[start]
		if !ok {
			a = &acc{label: label}
			buckets[start] = a
		}
		a.sum += pt.Value
		a.n++
	}

	out := make([]PeriodValue, 0, len(buckets))
	for start, a := range buckets {
		out = append(out, PeriodValue{Start: start, Label: a.label, Mean: a.sum / float64(a.n), Count: a.n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// HeartRateDay summarizes one local calendar day of samples. Averages of
// optional columns are NaN when no sample carried them.
type HeartRateDay struct {
	Date         time.Time `json:"date"`
	AvgHR        float64   `json:"avg_hr"`
	MinHR        int64     `json:"min_hr"`
	MaxHR        int64     `json:"max_hr"`
	StdHR        float64   `json:"hr_std"`
	AvgRestingHR float64   `json:"avg_resting_hr"`
	AvgMaxHR     float64   `json:"avg_max_hr"`
	Samples      int       `json:"samples"`
}

// DailyHeartRate groups samples by the date of their stored local timestamp.
// StdHR is the sample standard deviation, NaN for a single sample.
func DailyHeartRate(samples []HeartRateSample) []HeartRateDay {
	groups := make(map[time.Time][]HeartRateSample)
	for _, s := range samples {
		t := s.Timestamp
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		groups[day] = append(groups[day], s)
	}

	out := make([]HeartRateDay, 0, len(groups))
	for day, group := range groups {
		d := HeartRateDay{Date: day, MinHR: math.MaxInt64, MaxHR: math.MinInt64, Samples: len(group)}
		var sum, restingSum, maxSum float64
		var restingN, maxN int
		for _, s := range group {
			sum += float64(s.HeartRate)
			d.MinHR = min(d.MinHR, s.HeartRate)
			d.MaxHR = max(d.MaxHR, s.HeartRate)
			if s.RestingHR != nil {
				restingSum += float64(*s.RestingHR)
				restingN++
			}
			if s.MaxHR != nil {
				maxSum += float64(*s.MaxHR)
				maxN++
			}
		}
		d.AvgHR = sum / float64(len(group))
		d.StdHR = math.NaN()
		if len(group) > 1 {
			var sq float64
			for _, s := range group {
				diff := float64(s.HeartRate) - d.AvgHR
				sq += diff * diff
			}
			d.StdHR = math.Sqrt(sq / float64(len(group)-1))
		}
		d.AvgRestingHR = mean(restingSum, restingN)
		d.AvgMaxHR = mean(maxSum, maxN)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// sportNames maps device sport type codes to display names.
var sportNames = map[int64]string{
	1:   "Running",
	6:   "Cycling",
	8:   "Swimming",
	9:   "Walking",
	10:  "Hiking",
	17:  "Yoga",
	21:  "Basketball",
	22:  "Football",
	42:  "Tennis",
	52:  "Strength Training",
	53:  "Fitness",
	60:  "Elliptical",
	105: "Treadmill",
}

// SportName returns the display name for a sport type code.
func SportName(code int64) string {
	if name, ok := sportNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Other (%d)", code)
}

// SportPeriod totals one sport within one period.
type SportPeriod struct {
	Start           time.Time `json:"start"`
	Label           string    `json:"label"`
	SportName       string    `json:"sport_name"`
	ActivityCount   int       `json:"activity_count"`
	TotalMinutes    float64   `json:"total_time_minutes"`
	TotalHours      float64   `json:"total_time_hours"`
	TotalDistanceKm float64   `json:"total_distance_km"`
	TotalCalories   float64   `json:"total_calories"`
}

// SportByPeriod totals sessions per period and sport. Only weekly and
// monthly periods are supported.
func SportByPeriod(sessions []SportSession, p Period) ([]SportPeriod, error) {
	if p != PeriodWeek && p != PeriodMonth {
		return nil, fmt.Errorf("period must be weekly or monthly, got %s", p)
	}
	type key struct {
		start time.Time
		sport string
	}
	totals := make(map[key]*SportPeriod)
	for _, s := range sessions {
		start, label := Bucket(s.StartTime, p)
		k := key{start: start, sport: s.SportName()}
		sp, ok := totals[k]
		if !ok {
			sp = &SportPeriod{Start: start, Label: label, SportName: k.sport}
			totals[k] = sp
		}
		sp.ActivityCount++
		sp.TotalMinutes += s.DurationMinutes()
		sp.TotalDistanceKm += s.DistanceKm()
		sp.TotalCalories += s.Calories
	}

	out := make([]SportPeriod, 0, len(totals))
	for _, sp := range totals {
		sp.TotalHours = sp.TotalMinutes / 60
		out = append(out, *sp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].SportName < out[j].SportName
	})
	return out, nil
}
