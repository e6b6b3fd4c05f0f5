// ABOUTME: Tests for CSV parsing, Zepp transformers and single-file imports.
// ABOUTME: Imports run against a real SQLite database in a temp directory.
package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperreed/healthetl/internal/models"
	"github.com/harperreed/healthetl/internal/observability"
	"github.com/harperreed/healthetl/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const activityCSV = `date,steps,calories,distance,runDistance
2024-01-15,8500,2200,6200,2100
2024-01-16,9200,2350,7100,0
2024-01-17,7800,2150,5900,1800
`

const sleepCSV = `date,deepSleepTime,shallowSleepTime,wakeTime,start,stop,REMTime,naps
2024-01-15,120,280,15,2024-01-15 23:30:00+0000,2024-01-16 07:15:00+0000,65,
2024-01-16,95,310,20,2024-01-16 23:45:00+0000,2024-01-17 07:30:00+0000,58,
`

const sportCSV = `type,startTime,sportTime(s),maxPace(/meter),minPace(/meter),distance(m),avgPace(/meter),calories(kcal)
1,2024-01-15 18:00:00+0000,2400,0.35,0.65,5000.0,0.48,350.5
9,2024-01-16 12:00:00+0000,1800,-1.0,-1.0,2000.0,-1.0,120
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func setupStore(t *testing.T) (*storage.DB, int64) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "health.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	userID, err := storage.NewSchemaManager(db, nil).Initialize(context.Background())
	require.NoError(t, err)
	return db, userID
}

func count(t *testing.T, db *storage.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.SQL().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestCSVParserHandlesBOMAndWhitespace(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.csv", "\xEF\xBB\xBF date , steps \n 2024-01-15 , 100 \n,\n2024-01-16,\n")

	rows, err := CSVParser{}.Parse(path)
	require.NoError(t, err)
	defer rows.Close()

	var got []RawRow
	for rows.Next() {
		got = append(got, rows.Row())
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []RawRow{
		{"date": "2024-01-15", "steps": "100"},
		{"date": "2024-01-16"},
	}, got)
}

func TestCSVParserErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := CSVParser{}.Parse(filepath.Join(dir, "missing.csv"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)

	empty := writeFile(t, dir, "empty.csv", "")
	_, err = CSVParser{}.Parse(empty)
	require.ErrorAs(t, err, &perr)
	require.Contains(t, err.Error(), "missing header row")
}

func TestSafeConversions(t *testing.T) {
	require.Equal(t, int64(123), safeInt("123.5"))
	require.Equal(t, int64(0), safeInt("invalid"))
	require.Equal(t, int64(0), safeInt(""))
	require.Equal(t, int64(0), safeInt("1e30"))
	require.Equal(t, int64(0), safeInt("-1e30"))
	require.Equal(t, 0.0, safeFloat("invalid"))
	require.Equal(t, 0.0, safePace("-1.0"))
	require.Equal(t, 0.0, safePace("None"))
	require.Equal(t, 0.48, safePace("0.48"))
}

func TestSleepTransformer(t *testing.T) {
	tr := SleepTransformer{}
	f, err := tr.Transform(RawRow{
		"date": "2024-01-15", "deepSleepTime": "120", "shallowSleepTime": "280", "wakeTime": "15",
		"start": "2024-01-15 23:30:00+0000", "stop": "2024-01-16 07:15:00+0000", "REMTime": "65",
	})
	require.NoError(t, err)
	require.Equal(t, int64(465), f["total_sleep_minutes"])
	require.InDelta(t, 100.0, f["sleep_efficiency"], 0.001)

	start := f["sleep_start"].(time.Time)
	require.Equal(t, "2024-01-15T20:30:00-03:00", start.Format(time.RFC3339))
}

func TestSleepTransformerBadTimestamp(t *testing.T) {
	f, err := SleepTransformer{}.Transform(RawRow{"date": "2024-01-15", "start": "invalid-timestamp", "deepSleepTime": "60"})
	require.NoError(t, err)
	require.NotContains(t, f, "sleep_start")
	require.Equal(t, 0.0, f["sleep_efficiency"])
}

func TestSportTransformer(t *testing.T) {
	f, err := SportTransformer{}.Transform(RawRow{
		"type": "1", "startTime": "2024-01-15 18:00:00+0000", "sportTime(s)": "2400",
		"maxPace(/meter)": "0.35", "minPace(/meter)": "0.65", "distance(m)": "5000.0",
		"avgPace(/meter)": "0.48", "calories(kcal)": "350.5",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), f["sport_type"])
	require.Equal(t, int64(2400), f["duration_seconds"])
	require.Equal(t, 5000.0, f["distance_meters"])
	require.Equal(t, 350.5, f["calories"])
	require.Equal(t, 15, f["start_time"].(time.Time).Hour())

	_, err = SportTransformer{}.Transform(RawRow{"type": "run"})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestHeartRateTransformer(t *testing.T) {
	f, err := HeartRateTransformer{}.Transform(RawRow{"date": "2024-01-15", "time": "11:00", "heartRate": "72"})
	require.NoError(t, err)
	require.Equal(t, "72", f["heart_rate"])
	require.Equal(t, "2024-01-15T08:00:00-03:00", f["timestamp"].(time.Time).Format(time.RFC3339))
}

func TestParseDataType(t *testing.T) {
	dt, err := ParseDataType("heartrate")
	require.NoError(t, err)
	require.Equal(t, HeartRate, dt)

	_, err = ParseDataType("steps")
	require.Error(t, err)
}

func TestImportActivityFile(t *testing.T) {
	ctx := context.Background()
	db, uid := setupStore(t)
	metrics := observability.NewMetrics()
	path := writeFile(t, t.TempDir(), "ACTIVITY_1.csv", activityCSV)

	imp, err := New(Activity, db, Options{Metrics: metrics})
	require.NoError(t, err)

	stats, err := imp.ImportFile(ctx, path, uid, 2, false)
	require.NoError(t, err)
	require.Equal(t, Stats{Processed: 3, Inserted: 3}, *stats)
	require.Equal(t, 3, count(t, db, "daily_activity"))
	require.Equal(t, 3.0, testutil.ToFloat64(metrics.Records().WithLabelValues("activity", observability.OutcomeInserted)))

	stats, err = imp.ImportFile(ctx, path, uid, 100, false)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Inserted)
	require.Equal(t, 3, stats.Updated)
	require.Equal(t, 3, count(t, db, "daily_activity"))
}

func TestImportSleepStoresLocalTimestamps(t *testing.T) {
	ctx := context.Background()
	db, uid := setupStore(t)
	path := writeFile(t, t.TempDir(), "SLEEP_1.csv", sleepCSV)

	imp, err := New(Sleep, db, Options{})
	require.NoError(t, err)
	stats, err := imp.ImportFile(ctx, path, uid, 0, false)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Inserted)

	var start string
	var total int
	var efficiency float64
	require.NoError(t, db.SQL().QueryRow(
		"SELECT sleep_start, total_sleep_minutes, sleep_efficiency FROM sleep_data WHERE date = '2024-01-16'",
	).Scan(&start, &total, &efficiency))
	require.Equal(t, "2024-01-16T20:45:00-03:00", start)
	require.Equal(t, 463, total)
	require.InDelta(t, 463.0/465.0*100, efficiency, 0.01)
}

func TestImportSportZeroesPaceSentinel(t *testing.T) {
	ctx := context.Background()
	db, uid := setupStore(t)
	path := writeFile(t, t.TempDir(), "SPORT_1.csv", sportCSV)

	imp, err := New(Sport, db, Options{})
	require.NoError(t, err)
	_, err = imp.ImportFile(ctx, path, uid, 0, false)
	require.NoError(t, err)

	var pace float64
	require.NoError(t, db.SQL().QueryRow("SELECT avg_pace_per_meter FROM sport_data WHERE sport_type = 9").Scan(&pace))
	require.Equal(t, 0.0, pace)
}

func TestImportCountsRowErrors(t *testing.T) {
	ctx := context.Background()
	db, uid := setupStore(t)
	csv := "date,time,heartRate\n2024-01-15,08:00,72\n2024-01-15,08:05,300\n2024-01-15,08:10,\n,08:15,80\n"
	path := writeFile(t, t.TempDir(), "HEARTRATE_1.csv", csv)

	imp, err := New("heartrate", db, Options{})
	require.NoError(t, err)
	stats, err := imp.ImportFile(ctx, path, uid, 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Processed)
	require.Equal(t, 3, stats.Errors)
	require.Equal(t, 1, count(t, db, "heart_rate_data"))
}

func TestImportDryRunWritesNothing(t *testing.T) {
	db, uid := setupStore(t)
	path := writeFile(t, t.TempDir(), "ACTIVITY_1.csv", activityCSV)

	imp, err := New(Activity, db, Options{})
	require.NoError(t, err)
	stats, err := imp.ImportFile(context.Background(), path, uid, 0, true)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Processed)
	require.Zero(t, stats.Inserted)
	require.Zero(t, count(t, db, "daily_activity"))
}

func TestImportUnknownUserIsIntegrityError(t *testing.T) {
	db, _ := setupStore(t)
	path := writeFile(t, t.TempDir(), "ACTIVITY_1.csv", activityCSV)

	imp, err := New(Activity, db, Options{})
	require.NoError(t, err)
	_, err = imp.ImportFile(context.Background(), path, 4242, 0, false)
	require.True(t, errors.Is(err, storage.ErrIntegrity), "got %v", err)
	require.Zero(t, count(t, db, "daily_activity"))
}

func TestImportMissingFileIsParseError(t *testing.T) {
	db, uid := setupStore(t)
	imp, err := New(Activity, db, Options{})
	require.NoError(t, err)

	_, err = imp.ImportFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), uid, 0, false)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ValidateFile(writeFile(t, dir, "a.csv", activityCSV)))
	require.NoError(t, ValidateFile(writeFile(t, dir, "a.json", "[]")))
	require.Error(t, ValidateFile(writeFile(t, dir, "a.txt", "x")))
	require.Error(t, ValidateFile(dir))
	require.Error(t, ValidateFile(filepath.Join(dir, "missing.csv")))
}

func parseAll(t *testing.T, p Parser, path string) []RawRow {
	t.Helper()
	rows, err := p.Parse(path)
	require.NoError(t, err)
	defer rows.Close()

	var got []RawRow
	for rows.Next() {
		got = append(got, rows.Row())
	}
	require.NoError(t, rows.Err())
	return got
}

func TestJSONParserShapes(t *testing.T) {
	dir := t.TempDir()
	want := []RawRow{{"date": "2024-01-15", "steps": "8500"}}

	tests := []struct {
		name    string
		content string
		want    []RawRow
	}{
		{"array", `[{"date": "2024-01-15", "steps": 8500}]`, want},
		{"object", `{"date": "2024-01-15", "steps": 8500}`, want},
		{"wrapper", `{"data": [{"date": "2024-01-15", "steps": 8500}, {}]}`, want},
		{"bom and nulls", "\xEF\xBB\xBF[{\"date\": \" 2024-01-15 \", \"steps\": 8500, \"calories\": null, \"note\": \"\"}]", want},
		{"nested", `[{"date": "2024-01-15", "naps": [{"start": 1}], "ok": true}]`,
			[]RawRow{{"date": "2024-01-15", "naps": `[{"start":1}]`, "ok": "true"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".json", tt.content)
			require.Equal(t, tt.want, parseAll(t, JSONParser{}, path))
		})
	}
}

func TestJSONParserErrors(t *testing.T) {
	dir := t.TempDir()
	var perr *ParseError

	_, err := JSONParser{}.Parse(filepath.Join(dir, "missing.json"))
	require.ErrorAs(t, err, &perr)

	_, err = JSONParser{}.Parse(writeFile(t, dir, "bad.json", `[{"date": `))
	require.ErrorAs(t, err, &perr)
	require.Contains(t, err.Error(), "invalid JSON")

	for name, content := range map[string]string{
		"scalar.json":  `42`,
		"strings.json": `["2024-01-15"]`,
	} {
		_, err = JSONParser{}.Parse(writeFile(t, dir, name, content))
		require.ErrorAs(t, err, &perr, name)
		require.ErrorIs(t, err, ErrUnsupportedStructure, name)
	}
}

func TestImportJSONFile(t *testing.T) {
	ctx := context.Background()
	db, uid := setupStore(t)
	path := writeFile(t, t.TempDir(), "activity.json",
		`{"data": [{"date": "2024-01-15", "steps": 8500, "calories": 2200}, {"date": "2024-01-16", "steps": "9200"}]}`)

	imp, err := New(Activity, db, Options{})
	require.NoError(t, err)
	require.IsType(t, JSONParser{}, imp.ParserFor(path))
	require.IsType(t, CSVParser{}, imp.ParserFor("ACTIVITY_1.CSV"))

	stats, err := imp.ImportFile(ctx, path, uid, 0, false)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Inserted)

	var steps int
	require.NoError(t, db.SQL().QueryRow("SELECT steps FROM daily_activity WHERE date = '2024-01-16'").Scan(&steps))
	require.Equal(t, 9200, steps)
}

func TestOptionsParsersOverride(t *testing.T) {
	db, _ := setupStore(t)
	imp, err := New(Activity, db, Options{Parsers: map[string]Parser{".TSV": CSVParser{Delimiter: '\t'}}})
	require.NoError(t, err)
	require.Equal(t, CSVParser{Delimiter: '\t'}, imp.ParserFor("a.tsv"))
}
