package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"refcheck/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no native TIMESTAMPTZ type; audit timestamps are stored as
//     RFC3339Nano strings for reliable round-trip behavior and easy debugging.
//   - Duplicate detection on the dimension insert relies on whatever
//     UNIQUE/PK constraint the reference table carries, exactly as in the
//     other backends: the insert fails, the transaction rolls back, and the
//     caller skips that code.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureLogTables creates undefined_log and process_params when absent.
func (r *Repo) EnsureLogTables(ctx context.Context) error {
	for _, ddl := range []string{undefinedLogDDL, processParamsDDL} {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure log tables: %w", err)
		}
	}
	return nil
}

const undefinedLogDDL = `CREATE TABLE IF NOT EXISTS undefined_log (
  ts TEXT NOT NULL,
  table_name TEXT NOT NULL,
  code_column TEXT NOT NULL,
  desc_column TEXT NOT NULL,
  code TEXT NOT NULL,
  descript TEXT NOT NULL
);`

const processParamsDDL = `CREATE TABLE IF NOT EXISTS process_params (
  client TEXT NOT NULL,
  task_name TEXT NOT NULL,
  run_seq INTEGER NOT NULL DEFAULT 0,
  run_flag TEXT NOT NULL DEFAULT 'N',
  params TEXT NOT NULL DEFAULT '{}'
);`

func (r *Repo) SelectProcessParams(ctx context.Context, client, task string) ([]storage.ProcessParam, error) {
	const q = `SELECT run_flag, params FROM process_params
WHERE client = ? AND task_name = ?
ORDER BY run_seq`

	rows, err := r.db.QueryContext(ctx, q, client, task)
	if err != nil {
		return nil, fmt.Errorf("select process_params: %w", err)
	}
	defer rows.Close()

	var out []storage.ProcessParam
	for rows.Next() {
		var p storage.ProcessParam
		if err := rows.Scan(&p.RunFlag, &p.Params); err != nil {
			return nil, fmt.Errorf("scan process_params: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) LoadMappings(ctx context.Context, reservedPrefix string) ([]storage.Mapping, error) {
	const q = `SELECT table_name, column_name, ref_table_name, ref_code_column_name, ref_desc_column_name
FROM code_source
WHERE COALESCE(active_flag, 'Y') = 'Y'`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select code_source: %w", err)
	}
	defer rows.Close()

	var raw []storage.Mapping
	for rows.Next() {
		var m storage.Mapping
		if err := rows.Scan(&m.TableName, &m.ColumnName, &m.RefTableName, &m.RefCodeColumnName, &m.RefDescColumnName); err != nil {
			return nil, fmt.Errorf("scan code_source: %w", err)
		}
		raw = append(raw, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows code_source: %w", err)
	}

	return storage.FilterMappings(raw, reservedPrefix)
}

func (r *Repo) SelectUndefinedCodes(ctx context.Context, m storage.Mapping) ([]string, error) {
	q, err := buildAntiJoinSQL(m)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("anti-join %s.%s: %w", m.TableName, m.ColumnName, err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan anti-join %s.%s: %w", m.TableName, m.ColumnName, err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// RemediateCode applies the placeholder insert and the audit insert in a
// single transaction.
func (r *Repo) RemediateCode(ctx context.Context, m storage.Mapping, code, description string, now time.Time) error {
	dimSQL, logSQL, err := buildRemediateSQL(m)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remediate %s code=%q: %w", m.RefTableName, code, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, dimSQL, code, description); err != nil {
		return fmt.Errorf("insert %s code=%q: %w", m.RefTableName, code, err)
	}
	if _, err := tx.ExecContext(ctx, logSQL,
		formatTime(now), m.RefTableName, m.RefCodeColumnName, m.RefDescColumnName, code, description); err != nil {
		return fmt.Errorf("insert undefined_log code=%q: %w", code, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remediate %s code=%q: %w", m.RefTableName, code, err)
	}
	return nil
}

/* ---------- SQL builders ---------- */

func buildAntiJoinSQL(m storage.Mapping) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT DISTINCT t.")
	b.WriteString(sqlIdent(m.ColumnName))
	b.WriteString(" FROM ")
	b.WriteString(sqlTable(m.TableName))
	b.WriteString(" t LEFT JOIN ")
	b.WriteString(sqlTable(m.RefTableName))
	b.WriteString(" r ON t.")
	b.WriteString(sqlIdent(m.ColumnName))
	b.WriteString(" = r.")
	b.WriteString(sqlIdent(m.RefCodeColumnName))
	b.WriteString(" WHERE t.")
	b.WriteString(sqlIdent(m.ColumnName))
	b.WriteString(" IS NOT NULL AND r.")
	b.WriteString(sqlIdent(m.RefCodeColumnName))
	b.WriteString(" IS NULL")
	return b.String(), nil
}

func buildRemediateSQL(m storage.Mapping) (dimSQL, logSQL string, err error) {
	if err := m.Validate(); err != nil {
		return "", "", err
	}

	dimSQL = fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES (?, ?)",
		sqlTable(m.RefTableName),
		sqlIdent(m.RefCodeColumnName),
		sqlIdent(m.RefDescColumnName),
	)
	logSQL = "INSERT INTO undefined_log (ts, table_name, code_column, desc_column, code, descript) " +
		"VALUES (?, ?, ?, ?, ?, ?)"
	return dimSQL, logSQL, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// sqlTable quotes a possibly schema-qualified table name (attached databases).
func sqlTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = sqlIdent(p)
	}
	return strings.Join(parts, ".")
}

// formatTime formats a time as RFC3339Nano in UTC.
// We store timestamps as TEXT for reliable scanning/parsing with modernc.org/sqlite.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
