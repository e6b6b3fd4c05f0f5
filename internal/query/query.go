// ABOUTME: Read-only SQL access for dashboards and the MCP bridge.
// ABOUTME: Returns rows as maps or as a column-oriented frame.
package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotReadOnly rejects statements other than a single SELECT or WITH query.
var ErrNotReadOnly = errors.New("only single SELECT or WITH statements are allowed")

// Row is one result row keyed by column name.
type Row map[string]any

// Frame is a column-oriented result set.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Column returns every value of the named column, or nil if it is absent.
func (f *Frame) Column(name string) []any {
	idx := -1
	for i, c := range f.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]any, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r[idx]
	}
	return out
}

// Records converts the frame into maps.
func (f *Frame) Records() []Row {
	out := make([]Row, len(f.Rows))
	for i, r := range f.Rows {
		row := make(Row, len(f.Columns))
		for j, c := range f.Columns {
			row[c] = r[j]
		}
		out[i] = row
	}
	return out
}

// Querier runs read-side queries against the health database.
type Querier struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Querier {
	return &Querier{db: db}
}

// Query runs a read-only statement and returns rows as maps.
func (q *Querier) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	f, err := q.Frame(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return f.Records(), nil
}

// Frame runs a read-only statement and returns a column-oriented result.
// The statement runs on a connection with query_only set, so a write hidden
// behind a SELECT or WITH prefix is refused by SQLite itself.
func (q *Querier) Frame(ctx context.Context, query string, args ...any) (*Frame, error) {
	stmt, err := readOnly(query)
	if err != nil {
		return nil, err
	}
	conn, err := q.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("enable query_only: %w", err)
	}
	// The pragma belongs to the pooled connection and must not leak; a
	// connection that cannot be reset is discarded instead.
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "PRAGMA query_only = OFF"); err != nil {
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()

	f, err := scanFrame(ctx, conn, stmt, args)
	if isReadOnlyViolation(err) {
		return nil, fmt.Errorf("%w: %v", ErrNotReadOnly, err)
	}
	return f, err
}

func scanFrame(ctx context.Context, conn *sql.Conn, stmt string, args []any) (*Frame, error) {
	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	f := &Frame{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		f.Rows = append(f.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return f, nil
}

func readOnly(query string) (string, error) {
	stmt := strings.TrimSpace(query)
	stmt = strings.TrimSpace(strings.TrimRight(stmt, "; \t\n"))
	if stmt == "" || strings.Contains(stmt, ";") {
		return "", ErrNotReadOnly
	}
	head := strings.ToUpper(strings.Fields(stmt)[0])
	if head != "SELECT" && head != "WITH" {
		return "", ErrNotReadOnly
	}
	return stmt, nil
}

func isReadOnlyViolation(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) && serr.Code()&0xff == sqlite3.SQLITE_READONLY {
		return true
	}
	return strings.Contains(err.Error(), "readonly database")
}
