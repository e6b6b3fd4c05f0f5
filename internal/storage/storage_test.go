// ABOUTME: Tests for the schema manager and batch record writes.
// ABOUTME: Each test runs against a fresh SQLite file in a temp directory.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/harperreed/healthetl/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupTestDB(t *testing.T) (*DB, int64) {
	t.Helper()
	db := openTestDB(t)
	sm := NewSchemaManager(db, nil)
	userID, err := sm.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return db, userID
}

func activity(t *testing.T, userID int64, date string, steps int) models.Record {
	t.Helper()
	r, err := models.BuildActivity(models.Fields{"user_id": userID, "date": date, "steps": steps})
	if err != nil {
		t.Fatalf("BuildActivity failed: %v", err)
	}
	return r
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.SQL().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestVerifySchema(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	sm := NewSchemaManager(db, nil)

	if sm.VerifySchema(ctx) {
		t.Error("VerifySchema on empty database = true, want false")
	}

	for i := 0; i < 2; i++ {
		if err := sm.CreateAllTables(ctx); err != nil {
			t.Fatalf("CreateAllTables pass %d failed: %v", i, err)
		}
	}
	if !sm.VerifySchema(ctx) {
		t.Error("VerifySchema after create = false, want true")
	}
}

func TestCreateTableSingleModel(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	sm := NewSchemaManager(db, nil)

	if err := sm.CreateTable(ctx, models.UserModel); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if sm.VerifySchema(ctx) {
		t.Error("VerifySchema with only users = true, want false")
	}
}

func TestEnsureDefaultUserConcurrent(t *testing.T) {
	db, _ := setupTestDB(t)
	sm := NewSchemaManager(db, nil)

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = sm.EnsureDefaultUser(context.Background(), "shared_user")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d got id %d, want %d", i, ids[i], ids[0])
		}
	}

	var n int
	if err := db.SQL().QueryRow("SELECT COUNT(*) FROM users WHERE user_id = 'shared_user'").Scan(&n); err != nil {
		t.Fatalf("count users: %v", err)
	}
	if n != 1 {
		t.Errorf("user rows = %d, want 1", n)
	}
}

func TestEnsureDefaultUserDefaults(t *testing.T) {
	db, id := setupTestDB(t)

	var userID, name, tz string
	err := db.SQL().QueryRow("SELECT user_id, name, timezone FROM users WHERE id = ?", id).Scan(&userID, &name, &tz)
	if err != nil {
		t.Fatalf("query user: %v", err)
	}
	if userID != DefaultUserID || name != DefaultUserName || tz != "UTC" {
		t.Errorf("got (%s, %s, %s)", userID, name, tz)
	}
}

func TestUpsertBatchInsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	db, uid := setupTestDB(t)

	first := []models.Record{activity(t, uid, "2024-01-15", 8500), activity(t, uid, "2024-01-16", 9200)}
	res, err := db.UpsertBatch(ctx, first)
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if res.Inserted != 2 || res.Updated != 0 {
		t.Errorf("first batch = %+v, want 2 inserted", res)
	}

	second := []models.Record{activity(t, uid, "2024-01-16", 10000), activity(t, uid, "2024-01-17", 7800)}
	res, err = db.UpsertBatch(ctx, second)
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if res.Inserted != 1 || res.Updated != 1 {
		t.Errorf("second batch = %+v, want 1 inserted 1 updated", res)
	}

	if n := countRows(t, db, "daily_activity"); n != 3 {
		t.Errorf("rows = %d, want 3", n)
	}
	var steps int
	if err := db.SQL().QueryRow("SELECT steps FROM daily_activity WHERE date = '2024-01-16'").Scan(&steps); err != nil {
		t.Fatalf("query steps: %v", err)
	}
	if steps != 10000 {
		t.Errorf("steps = %d, want 10000 after upsert", steps)
	}
}

func TestUpsertBatchRollsBackOnIntegrityError(t *testing.T) {
	ctx := context.Background()
	db, uid := setupTestDB(t)

	batch := []models.Record{activity(t, uid, "2024-01-15", 100), activity(t, 999, "2024-01-16", 200)}
	_, err := db.UpsertBatch(ctx, batch)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	if n := countRows(t, db, "daily_activity"); n != 0 {
		t.Errorf("rows = %d after rollback, want 0", n)
	}
}

func TestFindExistingKeysAndUpdateByKey(t *testing.T) {
	ctx := context.Background()
	db, uid := setupTestDB(t)

	if _, err := db.UpsertBatch(ctx, []models.Record{activity(t, uid, "2024-01-15", 100)}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	existing := activity(t, uid, "2024-01-15", 500)
	fresh := activity(t, uid, "2024-01-20", 600)
	found, err := db.FindExistingKeys(ctx, models.ActivityModel, [][]any{existing.Key(), fresh.Key()})
	if err != nil {
		t.Fatalf("FindExistingKeys failed: %v", err)
	}
	if !found[models.KeyString(existing.Key())] {
		t.Error("expected existing key to be found")
	}
	if found[models.KeyString(fresh.Key())] {
		t.Error("fresh key reported as existing")
	}

	n, err := db.UpdateByKey(ctx, []models.Record{existing, fresh})
	if err != nil {
		t.Fatalf("UpdateByKey failed: %v", err)
	}
	if n != 1 {
		t.Errorf("updated = %d, want 1", n)
	}
	if rows := countRows(t, db, "daily_activity"); rows != 1 {
		t.Errorf("rows = %d, UpdateByKey must not insert", rows)
	}
}

func TestSportNaturalKeyIncludesType(t *testing.T) {
	ctx := context.Background()
	db, uid := setupTestDB(t)

	build := func(sportType int) models.Record {
		r, err := models.BuildSport(models.Fields{
			"user_id": uid, "start_time": "2024-01-15T15:00:00-03:00", "sport_type": sportType,
		})
		if err != nil {
			t.Fatalf("BuildSport failed: %v", err)
		}
		return r
	}
	res, err := db.UpsertBatch(ctx, []models.Record{build(1), build(9), build(1)})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if res.Inserted != 2 || res.Updated != 1 {
		t.Errorf("result = %+v, want 2 inserted 1 updated", res)
	}
}

func TestGetSchemaStats(t *testing.T) {
	ctx := context.Background()
	db, uid := setupTestDB(t)
	sm := NewSchemaManager(db, nil)

	batch := []models.Record{activity(t, uid, "2024-01-17", 1), activity(t, uid, "2024-01-15", 2)}
	if _, err := db.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	stats, err := sm.GetSchemaStats(ctx)
	if err != nil {
		t.Fatalf("GetSchemaStats failed: %v", err)
	}
	if stats.SchemaVersion != "2.0" {
		t.Errorf("SchemaVersion = %s", stats.SchemaVersion)
	}
	if stats.Tables["daily_activity"] != 2 || stats.Tables["users"] != 1 {
		t.Errorf("Tables = %v", stats.Tables)
	}
	if stats.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", stats.TotalRecords)
	}
	r := stats.DateRanges["daily_activity"]
	if r.Earliest != "2024-01-15" || r.Latest != "2024-01-17" {
		t.Errorf("date range = %+v", r)
	}
	if _, ok := stats.DateRanges["sleep_data"]; ok {
		t.Error("empty table should have no date range")
	}
	if stats.Sources["daily_activity"]["zepp"] != 2 {
		t.Errorf("Sources = %v", stats.Sources)
	}
}

func TestSchemaStatsFormat(t *testing.T) {
	stats := &SchemaStats{
		SchemaVersion: SchemaVersion,
		TotalRecords:  4,
		Tables:        map[string]int64{"users": 1, "daily_activity": 3},
		DateRanges:    map[string]DateRange{"daily_activity": {Earliest: "2024-01-15", Latest: "2024-01-17"}},
		Sources:       map[string]map[string]int64{"daily_activity": {"zepp": 3}},
	}

	text, err := stats.Format("text")
	if err != nil {
		t.Fatalf("Format(text) failed: %v", err)
	}
	if !strings.Contains(string(text), "2024-01-15 → 2024-01-17") {
		t.Errorf("text output missing date range:\n%s", text)
	}

	data, err := stats.Format("json")
	if err != nil {
		t.Fatalf("Format(json) failed: %v", err)
	}
	var decoded SchemaStats
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Tables["daily_activity"] != 3 {
		t.Errorf("decoded tables = %v", decoded.Tables)
	}

	yml, err := stats.Format("yaml")
	if err != nil {
		t.Fatalf("Format(yaml) failed: %v", err)
	}
	if !strings.Contains(string(yml), "schema_version: \"2.0\"") {
		t.Errorf("yaml output:\n%s", yml)
	}

	if _, err := stats.Format("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
