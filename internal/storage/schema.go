// ABOUTME: Schema manager creating tables, indexes and update triggers from the model registry.
// ABOUTME: Also verifies the schema, reports table statistics and seeds the default user.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/harperreed/healthetl/internal/logging"
	"github.com/harperreed/healthetl/internal/models"
)

// SchemaVersion is reported by GetSchemaStats.
const SchemaVersion = "2.0"

// DefaultUserID identifies the user rows are attributed to when none is given.
const DefaultUserID = "default"

// DefaultUserName is stored for users created by EnsureDefaultUser.
const DefaultUserName = "Default User"

// DateRange is the earliest and latest value of a table's date column.
type DateRange struct {
	Earliest string `json:"earliest" yaml:"earliest"`
	Latest   string `json:"latest" yaml:"latest"`
}

// SchemaStats summarizes row counts and coverage for every table.
type SchemaStats struct {
	SchemaVersion string                      `json:"schema_version" yaml:"schema_version"`
	TotalRecords  int64                       `json:"total_records" yaml:"total_records"`
	Tables        map[string]int64            `json:"tables" yaml:"tables"`
	DateRanges    map[string]DateRange        `json:"date_ranges" yaml:"date_ranges"`
	Sources       map[string]map[string]int64 `json:"sources" yaml:"sources"`
}

// SchemaManager owns table creation and inspection.
type SchemaManager struct {
	db     *DB
	logger *log.Logger
}

// NewSchemaManager creates a schema manager. A nil logger discards output.
func NewSchemaManager(db *DB, logger *log.Logger) *SchemaManager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SchemaManager{db: db, logger: logger}
}

// CreateAllTables creates every table, index and trigger. Safe to repeat.
func (m *SchemaManager) CreateAllTables(ctx context.Context) error {
	return m.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, model := range models.Registry() {
			if err := createTable(ctx, tx, model); err != nil {
				return err
			}
			m.logger.Debug("table ready", "table", model.TableName())
		}
		return nil
	})
}

// CreateTable creates a single model's table, indexes and trigger.
func (m *SchemaManager) CreateTable(ctx context.Context, model models.Model) error {
	return m.db.withTx(ctx, func(tx *sql.Tx) error {
		return createTable(ctx, tx, model)
	})
}

func createTable(ctx context.Context, tx *sql.Tx, model models.Model) error {
	if _, err := tx.ExecContext(ctx, model.CreateSQL()); err != nil {
		return fmt.Errorf("create table %s: %w", model.TableName(), err)
	}
	for _, idx := range model.IndexesSQL() {
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index on %s: %w", model.TableName(), err)
		}
	}
	if _, err := tx.ExecContext(ctx, updateTriggerSQL(model.TableName())); err != nil {
		return fmt.Errorf("create trigger on %s: %w", model.TableName(), err)
	}
	return nil
}

func updateTriggerSQL(table string) string {
	return fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS update_%[1]s_timestamp
	AFTER UPDATE ON %[1]s
	FOR EACH ROW WHEN NEW.updated_at = OLD.updated_at
	BEGIN
		UPDATE %[1]s SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END`, table)
}

// VerifySchema reports whether every registered table exists.
func (m *SchemaManager) VerifySchema(ctx context.Context) bool {
	for _, model := range models.Registry() {
		var name string
		err := m.db.db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, model.TableName(),
		).Scan(&name)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				m.logger.Error("schema verification failed", "table", model.TableName(), "err", err)
			} else {
				m.logger.Warn("missing table", "table", model.TableName())
			}
			return false
		}
	}
	return true
}

// GetSchemaStats counts rows per table and collects date coverage.
func (m *SchemaManager) GetSchemaStats(ctx context.Context) (*SchemaStats, error) {
	stats := &SchemaStats{
		SchemaVersion: SchemaVersion,
		Tables:        make(map[string]int64),
		DateRanges:    make(map[string]DateRange),
		Sources:       make(map[string]map[string]int64),
	}

	for _, model := range models.Registry() {
		table := model.TableName()
		var count int64
		if err := m.db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats.Tables[table] = count
		stats.TotalRecords += count

		if count == 0 || model == models.UserModel {
			continue
		}

		if col := model.DateColumn(); col != "" {
			var earliest, latest sql.NullString
			q := fmt.Sprintf("SELECT MIN(%[1]s), MAX(%[1]s) FROM %[2]s", col, table)
			if err := m.db.db.QueryRowContext(ctx, q).Scan(&earliest, &latest); err != nil {
				return nil, fmt.Errorf("date range %s: %w", table, err)
			}
			stats.DateRanges[table] = DateRange{Earliest: earliest.String, Latest: latest.String}
		}

		sources, err := m.sourceCounts(ctx, table)
		if err != nil {
			return nil, err
		}
		stats.Sources[table] = sources
	}
	return stats, nil
}

func (m *SchemaManager) sourceCounts(ctx context.Context, table string) (map[string]int64, error) {
	rows, err := m.db.db.QueryContext(ctx,
		"SELECT data_source, COUNT(*) FROM "+table+" GROUP BY data_source")
	if err != nil {
		return nil, fmt.Errorf("source counts %s: %w", table, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

// EnsureDefaultUser returns the row id for userID, creating the user if needed.
// Concurrent callers converge on one row through the UNIQUE constraint.
func (m *SchemaManager) EnsureDefaultUser(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	user, err := models.NewUser(models.Fields{"user_id": userID, "name": DefaultUserName})
	if err != nil {
		return 0, fmt.Errorf("build user: %w", err)
	}

	if _, err := m.db.db.ExecContext(ctx,
		`INSERT INTO users (user_id, name, timezone) VALUES (?, ?, ?) ON CONFLICT(user_id) DO NOTHING`,
		user.UserID, *user.Name, user.Timezone,
	); err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}

	var id int64
	if err := m.db.db.QueryRowContext(ctx, `SELECT id FROM users WHERE user_id = ?`, user.UserID).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup user: %w", err)
	}
	return id, nil
}

// Initialize creates the schema, seeds the default user and verifies the result.
func (m *SchemaManager) Initialize(ctx context.Context) (int64, error) {
	if err := m.CreateAllTables(ctx); err != nil {
		return 0, err
	}
	id, err := m.EnsureDefaultUser(ctx, DefaultUserID)
	if err != nil {
		return 0, err
	}
	if !m.VerifySchema(ctx) {
		return 0, errors.New("schema verification failed")
	}
	m.logger.Info("database initialized", "path", m.db.Path(), "default_user", id)
	return id, nil
}
