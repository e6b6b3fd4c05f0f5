// ABOUTME: Transactional batch writes of validated records keyed on their natural key.
// ABOUTME: Upsert, key lookup and update-by-key for the importers.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/healthetl/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrIntegrity marks writes rejected by a foreign key constraint, which
// means the caller referenced a user that does not exist.
var ErrIntegrity = errors.New("integrity constraint violated")

// keyLookupChunk bounds the number of keys per lookup statement.
const keyLookupChunk = 200

// BatchResult counts what a batch write did.
type BatchResult struct {
	Inserted int
	Updated  int
}

// UpsertBatch writes records in one transaction. A record whose natural key
// already exists has every non-key column overwritten; otherwise it is
// inserted. Any failure rolls back the whole batch.
func (d *DB) UpsertBatch(ctx context.Context, records []models.Record) (BatchResult, error) {
	var res BatchResult
	if len(records) == 0 {
		return res, nil
	}
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			n, err := updateByKey(ctx, tx, r)
			if err != nil {
				return err
			}
			if n > 0 {
				res.Updated++
				continue
			}
			if err := insert(ctx, tx, r); err != nil {
				return err
			}
			res.Inserted++
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

// UpdateByKey overwrites existing rows matched on natural key and returns
// how many rows changed.
func (d *DB) UpdateByKey(ctx context.Context, records []models.Record) (int, error) {
	updated := 0
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			n, err := updateByKey(ctx, tx, r)
			if err != nil {
				return err
			}
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// FindExistingKeys returns the subset of keys already stored for model,
// rendered with models.KeyString.
func (d *DB) FindExistingKeys(ctx context.Context, model models.Model, keys [][]any) (map[string]bool, error) {
	existing := make(map[string]bool)
	cols := model.KeyColumns()
	match := "(" + strings.Join(cols, " = ? AND ") + " = ?)"

	for start := 0; start < len(keys); start += keyLookupChunk {
		chunk := keys[start:min(start+keyLookupChunk, len(keys))]
		clauses := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*len(cols))
		for i, k := range chunk {
			clauses[i] = match
			args = append(args, k...)
		}
		q := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
			strings.Join(cols, ", "), model.TableName(), strings.Join(clauses, " OR "))

		if err := d.scanKeys(ctx, q, args, len(cols), existing); err != nil {
			return nil, fmt.Errorf("find existing %s keys: %w", model.Name(), err)
		}
	}
	return existing, nil
}

func (d *DB) scanKeys(ctx context.Context, q string, args []any, width int, into map[string]bool) error {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		vals := make([]any, width)
		ptrs := make([]any, width)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		into[models.KeyString(vals)] = true
	}
	return rows.Err()
}

func insert(ctx context.Context, tx *sql.Tx, r models.Record) error {
	cols := r.Columns()
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.Model().TableName(), strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := tx.ExecContext(ctx, q, r.Values()...); err != nil {
		return wrapWriteErr("insert "+r.Model().Name(), err)
	}
	return nil
}

func updateByKey(ctx context.Context, tx *sql.Tx, r models.Record) (int64, error) {
	model := r.Model()
	keyCols := model.KeyColumns()
	isKey := make(map[string]bool, len(keyCols))
	for _, c := range keyCols {
		isKey[c] = true
	}

	var sets []string
	var args []any
	for i, c := range r.Columns() {
		if isKey[c] {
			continue
		}
		sets = append(sets, c+" = ?")
		args = append(args, r.Values()[i])
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, r.Key()...)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		model.TableName(), strings.Join(sets, ", "), strings.Join(keyCols, " = ? AND "))
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, wrapWriteErr("update "+model.Name(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func wrapWriteErr(op string, err error) error {
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrIntegrity, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isForeignKeyViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
