// ABOUTME: Lenient conversions for device CSV cells.
// ABOUTME: Bad numbers become zero; bad timestamps become nil with a warning.
package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/healthetl/internal/models"
)

// DeviceLocation is the fixed offset device timestamps are converted to.
var DeviceLocation = time.FixedZone("GMT-3", -3*60*60)

// LocationForOffset returns a fixed zone for a whole-hour UTC offset.
func LocationForOffset(hours int) *time.Location {
	switch hours {
	case -3:
		return DeviceLocation
	case 0:
		return time.UTC
	default:
		return time.FixedZone(fmt.Sprintf("GMT%+d", hours), hours*60*60)
	}
}

// safeInt truncates decimal strings and maps anything unparseable or out of
// int64 range to 0.
func safeInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// safeFloat maps empty or unparseable input to 0.
func safeFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return f
}

// safePace treats the -1 sentinel, "None" and empty as 0.
func safePace(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return 0
	}
	f := safeFloat(s)
	if f == -1 {
		return 0
	}
	return f
}

// localTimestamp parses a UTC device timestamp and converts it to loc.
// An empty or unparseable value yields nil.
func localTimestamp(raw string, loc *time.Location, logger *log.Logger) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	t, err := models.ParseTimestamp(raw)
	if err != nil {
		logger.Warn("unparseable timestamp", "value", raw, "err", err)
		return nil
	}
	local := t.In(loc)
	logger.Debug("converted timestamp", "utc", t.UTC().Format(time.RFC3339), "local", local.Format(time.RFC3339))
	return &local
}
