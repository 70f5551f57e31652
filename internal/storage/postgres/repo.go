package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"refcheck/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

It provides:
  - code_source mapping lookup
  - the per-mapping anti-join
  - transactional placeholder insert + audit insert

Insert behavior matches the SQLite and MSSQL implementations.
*/
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureLogTables creates undefined_log and process_params when absent.
//
// This method is idempotent. The fact and dimension tables named by mapping
// rows are never created here; they belong to the warehouse, not to us.
func (r *Repo) EnsureLogTables(ctx context.Context) error {
	for _, ddl := range []string{undefinedLogDDL, processParamsDDL} {
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure log tables: %w", err)
		}
	}
	return nil
}

const undefinedLogDDL = `CREATE TABLE IF NOT EXISTS undefined_log (
  ts TIMESTAMPTZ NOT NULL,
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
  run_flag CHAR(1) NOT NULL DEFAULT 'N',
  params TEXT NOT NULL DEFAULT '{}'
);`

// SelectProcessParams returns ordered (run_flag, params) rows for a client/task pair.
func (r *Repo) SelectProcessParams(ctx context.Context, client, task string) ([]storage.ProcessParam, error) {
	const q = `SELECT run_flag, params FROM process_params
WHERE client = $1 AND task_name = $2
ORDER BY run_seq`

	rows, err := r.pool.Query(ctx, q, client, task)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows process_params: %w", err)
	}
	return out, nil
}

// LoadMappings returns the active code_source rows.
//
// active_flag semantics follow the warehouse convention: NULL means active,
// so the filter is COALESCE(active_flag,'Y') = 'Y'. Reserved-prefix filtering
// and identifier validation are shared across backends via
// storage.FilterMappings.
func (r *Repo) LoadMappings(ctx context.Context, reservedPrefix string) ([]storage.Mapping, error) {
	const q = `SELECT table_name, column_name, ref_table_name, ref_code_column_name, ref_desc_column_name
FROM code_source
WHERE COALESCE(active_flag, 'Y') = 'Y'`

	rows, err := r.pool.Query(ctx, q)
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

// SelectUndefinedCodes runs the left-anti-join for one mapping.
func (r *Repo) SelectUndefinedCodes(ctx context.Context, m storage.Mapping) ([]string, error) {
	q, err := buildAntiJoinSQL(m)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, q)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows anti-join %s.%s: %w", m.TableName, m.ColumnName, err)
	}
	return codes, nil
}

// RemediateCode inserts the placeholder dimension row and the audit row in
// one transaction, so a failure leaves neither half behind.
func (r *Repo) RemediateCode(ctx context.Context, m storage.Mapping, code, description string, now time.Time) error {
	dimSQL, logSQL, err := buildRemediateSQL(m)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin remediate %s code=%q: %w", m.RefTableName, code, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, dimSQL, code, description); err != nil {
		return fmt.Errorf("insert %s code=%q: %w", m.RefTableName, code, err)
	}
	if _, err := tx.Exec(ctx, logSQL, now, m.RefTableName, m.RefCodeColumnName, m.RefDescColumnName, code, description); err != nil {
		return fmt.Errorf("insert undefined_log code=%q: %w", code, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit remediate %s code=%q: %w", m.RefTableName, code, err)
	}
	return nil
}

/* ---------- SQL builders ---------- */

// buildAntiJoinSQL constructs the detection query for one mapping.
//
// Why this exists:
//   - It is pure and deterministic, so we can unit test correctness (quoting,
//     join shape) without a database.
//
// Constraints:
//   - Every identifier in m must already satisfy storage.ValidIdent; the
//     builder re-checks and refuses to emit SQL otherwise.
func buildAntiJoinSQL(m storage.Mapping) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT DISTINCT t.")
	b.WriteString(pgIdent(m.ColumnName))
	b.WriteString(" FROM ")
	b.WriteString(pgTable(m.TableName))
	b.WriteString(" t LEFT JOIN ")
	b.WriteString(pgTable(m.RefTableName))
	b.WriteString(" r ON t.")
	b.WriteString(pgIdent(m.ColumnName))
	b.WriteString(" = r.")
	b.WriteString(pgIdent(m.RefCodeColumnName))
	b.WriteString(" WHERE t.")
	b.WriteString(pgIdent(m.ColumnName))
	b.WriteString(" IS NOT NULL AND r.")
	b.WriteString(pgIdent(m.RefCodeColumnName))
	b.WriteString(" IS NULL")
	return b.String(), nil
}

// buildRemediateSQL constructs the two parameterized inserts for one mapping.
// Code and description values are always bound, never interpolated.
func buildRemediateSQL(m storage.Mapping) (dimSQL, logSQL string, err error) {
	if err := m.Validate(); err != nil {
		return "", "", err
	}

	dimSQL = fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES ($1, $2)",
		pgTable(m.RefTableName),
		pgIdent(m.RefCodeColumnName),
		pgIdent(m.RefDescColumnName),
	)
	logSQL = "INSERT INTO undefined_log (ts, table_name, code_column, desc_column, code, descript) " +
		"VALUES ($1, $2, $3, $4, $5, $6)"
	return dimSQL, logSQL, nil
}

// pgIdent quotes a single identifier.
func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// pgTable quotes a possibly schema-qualified table name.
//
// Examples:
//   - "orders"      => "orders"
//   - "dw.orders"   => "dw"."orders"
func pgTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}
