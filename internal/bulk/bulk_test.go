// ABOUTME: Tests for export discovery and duplicate-aware bulk imports.
// ABOUTME: Builds a Zepp-style export tree in a temp directory per test.
package bulk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/harperreed/healthetl/internal/importer"
	"github.com/harperreed/healthetl/internal/models"
	"github.com/harperreed/healthetl/internal/observability"
	"github.com/harperreed/healthetl/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	activityFirst = "date,steps,calories,distance,runDistance\n" +
		"2024-01-15,8500,2200,6200,2100\n" +
		"2024-01-16,9200,2350,7100,0\n"
	activitySecond = "date,steps,calories,distance,runDistance\n" +
		"2024-01-16,9300,2350,7100,0\n" +
		"2024-01-17,7800,2150,5900,1800\n"
	sleepFile = "date,deepSleepTime,shallowSleepTime,wakeTime,start,stop,REMTime,naps\n" +
		"2024-01-15,120,280,15,2024-01-15 23:30:00+0000,2024-01-16 07:15:00+0000,65,\n" +
		"2024-01-16,95,310,20,2024-01-16 23:45:00+0000,2024-01-17 07:30:00+0000,58,\n"
	sportFile = "type,startTime,sportTime(s),maxPace(/meter),minPace(/meter),distance(m),avgPace(/meter),calories(kcal)\n" +
		"1,2024-01-15 18:00:00+0000,2400,0.35,0.65,5000.0,0.48,350.5\n"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// exportTree lays out two exports plus a hidden one that must be ignored.
func exportTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	first := filepath.Join(root, "3075021305_1749047212827")
	second := filepath.Join(root, "3075021305_1749047212828")
	write(t, filepath.Join(first, "ACTIVITY", "ACTIVITY_1749047212827.csv"), activityFirst)
	write(t, filepath.Join(first, "SLEEP", "SLEEP_1749047212827.csv"), sleepFile)
	write(t, filepath.Join(first, "SPORT", "SPORT_1749047212827.csv"), sportFile)
	write(t, filepath.Join(second, "ACTIVITY", "ACTIVITY_1749047212828.csv"), activitySecond)
	write(t, filepath.Join(root, ".hidden_export", "ACTIVITY", "ACTIVITY_1.csv"), activityFirst)
	write(t, filepath.Join(first, "ACTIVITY", "notes.txt"), "ignored")
	return root
}

func setup(t *testing.T) (*storage.DB, *Importer, *observability.Metrics) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "health.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	uid, err := storage.NewSchemaManager(db, nil).Initialize(context.Background())
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	b := New(db, Options{UserID: uid, Importer: importer.Options{Metrics: metrics}})
	return db, b, metrics
}

func count(t *testing.T, db *storage.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.SQL().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func steps(t *testing.T, db *storage.DB, date string) int {
	t.Helper()
	var n int
	require.NoError(t, db.SQL().QueryRow("SELECT steps FROM daily_activity WHERE date = ?", date).Scan(&n))
	return n
}

func TestDiscoverFiles(t *testing.T) {
	files := DiscoverFiles(exportTree(t), nil)

	require.Len(t, files[importer.Activity], 2)
	require.Len(t, files[importer.Sleep], 1)
	require.Len(t, files[importer.Sport], 1)
	require.Empty(t, files[importer.HeartRate])
	require.Equal(t, 4, files.Total())
	require.Contains(t, files[importer.Activity][0], "1749047212827")
}

func TestDiscoverFilesMissingRoot(t *testing.T) {
	files := DiscoverFiles(filepath.Join(t.TempDir(), "nope"), nil)
	require.Len(t, files, 4)
	for _, dt := range importer.AllDataTypes {
		require.NotNil(t, files[dt])
		require.Empty(t, files[dt])
	}
}

func TestImportDirectoryOverlappingFiles(t *testing.T) {
	ctx := context.Background()
	db, b, metrics := setup(t)

	stats, err := b.ImportDirectory(ctx, exportTree(t), StrategyUpdate, false)
	require.NoError(t, err)
	require.NotEmpty(t, stats.RunID)
	require.Equal(t, 4, stats.FilesProcessed)
	require.Equal(t, 6, stats.RecordsInserted)
	require.Equal(t, 1, stats.RecordsUpdated)
	require.Empty(t, stats.Errors)

	require.Equal(t, 3, count(t, db, "daily_activity"))
	require.Equal(t, 2, count(t, db, "sleep_data"))
	require.Equal(t, 1, count(t, db, "sport_data"))
	require.Equal(t, 9300, steps(t, db, "2024-01-16"))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.Files().WithLabelValues("activity", observability.FileProcessed)))
}

func TestImportUpdateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, b, _ := setup(t)
	root := exportTree(t)

	_, err := b.ImportDirectory(ctx, root, StrategyUpdate, false)
	require.NoError(t, err)
	before := steps(t, db, "2024-01-16")

	stats, err := b.ImportDirectory(ctx, root, StrategyUpdate, false)
	require.NoError(t, err)
	require.Zero(t, stats.RecordsInserted)
	require.Equal(t, 7, stats.RecordsUpdated)
	require.Equal(t, 3, count(t, db, "daily_activity"))
	require.Equal(t, before, steps(t, db, "2024-01-16"))
}

func TestImportSkipLeavesStoredValues(t *testing.T) {
	ctx := context.Background()
	db, b, _ := setup(t)
	root := t.TempDir()
	write(t, filepath.Join(root, "a", "ACTIVITY", "ACTIVITY_1.csv"), activityFirst)
	write(t, filepath.Join(root, "b", "ACTIVITY", "ACTIVITY_2.csv"), activitySecond)

	stats, err := b.ImportDirectory(ctx, root, StrategySkip, false)
	require.NoError(t, err)
	require.Equal(t, 3, stats.RecordsInserted)
	require.Equal(t, 1, stats.RecordsSkipped)
	require.Equal(t, 9200, steps(t, db, "2024-01-16"))
}

func TestImportErrorStrategyAborts(t *testing.T) {
	ctx := context.Background()
	db, b, _ := setup(t)
	root := exportTree(t)

	_, err := b.ImportDirectory(ctx, root, StrategyUpdate, false)
	require.NoError(t, err)

	stats, err := b.ImportDirectory(ctx, root, StrategyError, false)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, 2, dup.Count)
	require.Equal(t, "activity", dup.DataType)
	require.Zero(t, stats.FilesProcessed)
	require.Len(t, stats.Errors, 1)
	require.Equal(t, 3, count(t, db, "daily_activity"))
}

func TestImportDryRun(t *testing.T) {
	db, b, _ := setup(t)

	stats, err := b.ImportDirectory(context.Background(), exportTree(t), StrategyUpdate, true)
	require.NoError(t, err)
	require.Equal(t, 4, stats.FilesProcessed)
	require.Zero(t, stats.RecordsInserted)
	require.Zero(t, count(t, db, "daily_activity"))
	require.Zero(t, count(t, db, "sleep_data"))
}

func TestImportFilesRecordsFailuresAndSkips(t *testing.T) {
	ctx := context.Background()
	db, b, _ := setup(t)
	dir := t.TempDir()
	empty := filepath.Join(dir, "ACTIVITY_empty.csv")
	broken := filepath.Join(dir, "ACTIVITY_broken.csv")
	good := filepath.Join(dir, "ACTIVITY_good.csv")
	write(t, empty, "date,steps\n")
	write(t, broken, "date,steps\n2024-01-15,85\"00\n")
	write(t, good, activityFirst)

	files := Files{importer.Activity: {empty, broken, filepath.Join(dir, "missing.csv"), good}}
	stats, err := b.ImportFiles(ctx, files, StrategyUpdate, false)
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesSkipped)
	require.Equal(t, 2, stats.FilesFailed)
	require.Equal(t, 1, stats.FilesProcessed)
	require.Len(t, stats.Errors, 2)
	require.Equal(t, 2, count(t, db, "daily_activity"))
}

func TestImportFilesDedupesWithinFile(t *testing.T) {
	db, b, _ := setup(t)
	path := filepath.Join(t.TempDir(), "ACTIVITY_1.csv")
	write(t, path, "date,steps\n2024-01-15,100\n2024-01-16,200\n2024-01-15,300\n")

	stats, err := b.ImportFiles(context.Background(), Files{importer.Activity: {path}}, StrategyUpdate, false)
	require.NoError(t, err)
	require.Equal(t, 2, stats.RecordsInserted)
	require.Equal(t, 300, steps(t, db, "2024-01-15"))
}

func TestUnknownStrategy(t *testing.T) {
	_, err := ParseStrategy("merge")
	require.ErrorIs(t, err, ErrUnknownStrategy)

	s, err := ParseStrategy("")
	require.NoError(t, err)
	require.Equal(t, StrategyUpdate, s)

	_, b, _ := setup(t)
	_, err = b.HandleDuplicateStrategy(context.Background(), importer.Activity, nil, Strategy("merge"))
	require.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = b.ImportFiles(context.Background(), Files{}, Strategy("merge"), false)
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestImportDirectoryNormalizesStrategy(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"", "UPDATE", " skip "} {
		t.Run(name, func(t *testing.T) {
			db, b, _ := setup(t)

			stats, err := b.ImportDirectory(ctx, exportTree(t), Strategy(name), false)
			require.NoError(t, err)
			require.Empty(t, stats.Errors)
			require.Zero(t, stats.FilesFailed)
			require.Equal(t, 4, stats.FilesProcessed)
			require.Equal(t, 3, count(t, db, "daily_activity"))
		})
	}
}

type failingStore struct{ storage.Repository }

func (failingStore) FindExistingKeys(context.Context, models.Model, [][]any) (map[string]bool, error) {
	return nil, errors.New("database is locked")
}

func TestCheckForDuplicatesFallsBackToNew(t *testing.T) {
	b := New(failingStore{}, Options{UserID: 1})
	a, err := models.BuildActivity(models.Fields{"user_id": 1, "date": "2024-01-15"})
	require.NoError(t, err)

	fresh, existing := b.CheckForDuplicates(context.Background(), importer.Activity, []models.Record{a})
	require.Len(t, fresh, 1)
	require.Empty(t, existing)
}
