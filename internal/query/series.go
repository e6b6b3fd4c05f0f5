// ABOUTME: Centered moving averages over daily series.
// ABOUTME: Positions without a complete window are NaN.
package query

import (
	"math"
	"sort"
	"time"
)

// Smoothing windows applied by WithMovingAverages, in days.
const (
	ShortWindow = 7
	LongWindow  = 30
)

// Point is one dated value in a series.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// SmoothedPoint carries a value alongside its 7 and 30 day moving averages.
type SmoothedPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	MA7   float64   `json:"ma7"`
	MA30  float64   `json:"ma30"`
}

// MovingAverage returns the centered rolling mean of values. For an even
// window the extra element is taken from before the center. A window that
// runs past either end, or that contains NaN, yields NaN.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	offset := (window - 1) / 2
	for i := range values {
		start, end := i+offset+1-window, i+offset
		if window <= 0 || start < 0 || end >= len(values) {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for _, v := range values[start : end+1] {
			sum += v
		}
		out[i] = sum / float64(window)
	}
	return out
}

// WithMovingAverages sorts points by date and attaches 7 and 30 day averages.
func WithMovingAverages(points []Point) []SmoothedPoint {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	values := make([]float64, len(sorted))
	for i, p := range sorted {
		values[i] = p.Value
	}
	ma7 := MovingAverage(values, ShortWindow)
	ma30 := MovingAverage(values, LongWindow)

	out := make([]SmoothedPoint, len(sorted))
	for i, p := range sorted {
		out[i] = SmoothedPoint{Date: p.Date, Value: p.Value, MA7: ma7[i], MA30: ma30[i]}
	}
	return out
}

// ActivitySeries extracts one metric from activity rows: steps, calories,
// distance, run_distance or active_minutes.
func ActivitySeries(days []ActivityDay, metric string) ([]Point, error) {
	var pick func(ActivityDay) float64
	switch metric {
	case "steps":
		pick = func(a ActivityDay) float64 { return float64(a.Steps) }
	case "calories":
		pick = func(a ActivityDay) float64 { return a.Calories }
	case "distance":
		pick = func(a ActivityDay) float64 { return a.Distance }
	case "run_distance":
		pick = func(a ActivityDay) float64 { return a.RunDistance }
	case "active_minutes":
		pick = func(a ActivityDay) float64 { return float64(a.ActiveMinutes) }
	default:
		return nil, unknownMetric(metric)
	}
	out := make([]Point, len(days))
	for i, d := range days {
		out[i] = Point{Date: d.Date, Value: pick(d)}
	}
	return out, nil
}

// SleepSeries extracts one metric from sleep rows: total_sleep_hours,
// deep_sleep_hours, sleep_efficiency, bed_time_hours or wake_time_hours.
func SleepSeries(nights []SleepNight, metric string) ([]Point, error) {
	var pick func(SleepNight) float64
	switch metric {
	case "total_sleep_hours":
		pick = SleepNight.TotalSleepHours
	case "deep_sleep_hours":
		pick = SleepNight.DeepSleepHours
	case "sleep_efficiency":
		pick = func(s SleepNight) float64 { return s.SleepEfficiency }
	case "bed_time_hours":
		pick = SleepNight.BedTimeHours
	case "wake_time_hours":
		pick = SleepNight.WakeTimeHours
	default:
		return nil, unknownMetric(metric)
	}
	out := make([]Point, len(nights))
	for i, n := range nights {
		out[i] = Point{Date: n.Date, Value: pick(n)}
	}
	return out, nil
}
