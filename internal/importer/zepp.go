// ABOUTME: Transformers mapping Zepp export columns onto canonical model fields.
// ABOUTME: Activity, sleep, sport and heart rate; device timestamps go from UTC to local offset.
package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/healthetl/internal/logging"
	"github.com/harperreed/healthetl/internal/models"
)

// Transformer maps a raw row to canonical fields. It may fail with a
// *models.ValidationError for rows that cannot be interpreted.
type Transformer interface {
	Transform(raw RawRow) (models.Fields, error)
}

// zone carries the target location and logger for timestamp conversion.
type zone struct {
	Location *time.Location
	Logger   *log.Logger
}

func (z zone) local(raw string) *time.Time {
	loc := z.Location
	if loc == nil {
		loc = DeviceLocation
	}
	return localTimestamp(raw, loc, logging.OrDiscard(z.Logger))
}

// setTime stores t under name only when it parsed.
func setTime(f models.Fields, name string, t *time.Time) {
	if t != nil {
		f[name] = *t
	}
}

// ActivityTransformer reads date,steps,calories,distance,runDistance.
type ActivityTransformer struct{}

// Transform maps an ACTIVITY row onto activity fields.
func (ActivityTransformer) Transform(raw RawRow) (models.Fields, error) {
	f := models.Fields{
		"steps":          safeInt(raw["steps"]),
		"calories":       safeFloat(raw["calories"]),
		"distance":       safeFloat(raw["distance"]),
		"run_distance":   safeFloat(raw["runDistance"]),
		"active_minutes": int64(0),
	}
	if d, ok := raw["date"]; ok {
		f["date"] = d
	}
	return f, nil
}

// SleepTransformer reads date,deepSleepTime,shallowSleepTime,wakeTime,start,stop,REMTime,naps.
type SleepTransformer struct{ zone }

// Transform maps a SLEEP row onto sleep fields, localizing the sleep window.
func (t SleepTransformer) Transform(raw RawRow) (models.Fields, error) {
	deep := safeInt(raw["deepSleepTime"])
	light := safeInt(raw["shallowSleepTime"])
	rem := safeInt(raw["REMTime"])
	start := t.local(raw["start"])
	end := t.local(raw["stop"])

	total := deep + light + rem
	f := models.Fields{
		"total_sleep_minutes": total,
		"deep_sleep_minutes":  deep,
		"light_sleep_minutes": light,
		"rem_sleep_minutes":   rem,
		"wake_minutes":        safeInt(raw["wakeTime"]),
		"sleep_efficiency":    sleepEfficiency(total, start, end),
	}
	if d, ok := raw["date"]; ok {
		f["date"] = d
	}
	if naps, ok := raw["naps"]; ok {
		f["naps_data"] = naps
	}
	setTime(f, "sleep_start", start)
	setTime(f, "sleep_end", end)
	return f, nil
}

// sleepEfficiency is total sleep over time in bed as a clamped percentage,
// or 0 without a positive window.
func sleepEfficiency(totalMinutes int64, start, end *time.Time) float64 {
	if start == nil || end == nil {
		return 0
	}
	inBed := end.Sub(*start).Minutes()
	if inBed <= 0 {
		return 0
	}
	return models.ClampPercent(float64(totalMinutes) / inBed * 100)
}

// SportTransformer reads type,startTime,sportTime(s),distance(m),calories(kcal) and pace columns.
type SportTransformer struct{ zone }

// Transform maps a SPORT row onto sport fields, zeroing pace sentinels.
func (t SportTransformer) Transform(raw RawRow) (models.Fields, error) {
	f := models.Fields{
		"duration_seconds":   safeInt(raw["sportTime(s)"]),
		"distance_meters":    safeFloat(raw["distance(m)"]),
		"calories":           safeFloat(raw["calories(kcal)"]),
		"avg_pace_per_meter": safePace(raw["avgPace(/meter)"]),
		"max_pace_per_meter": safePace(raw["maxPace(/meter)"]),
		"min_pace_per_meter": safePace(raw["minPace(/meter)"]),
	}
	if code, ok := raw["type"]; ok {
		n, err := strconv.ParseInt(code, 10, 64)
		if err != nil {
			return nil, &models.ValidationError{Field: "sport_type", Reason: fmt.Sprintf("Invalid data format: type %q", code)}
		}
		f["sport_type"] = n
	}
	setTime(f, "start_time", t.local(raw["startTime"]))
	return f, nil
}

// HeartRateTransformer reads date,time,heartRate. A time cell that already
// carries a date is used on its own.
type HeartRateTransformer struct{ zone }

// Transform maps a HEARTRATE row onto a localized heart rate sample.
func (t HeartRateTransformer) Transform(raw RawRow) (models.Fields, error) {
	f := models.Fields{}
	if bpm, ok := raw["heartRate"]; ok {
		f["heart_rate"] = bpm
	}

	stamp := raw["time"]
	if d, ok := raw["date"]; ok && !strings.Contains(stamp, "-") {
		stamp = strings.TrimSpace(d + " " + stamp)
	}
	setTime(f, "timestamp", t.local(stamp))
	return f, nil
}
