package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"refcheck/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// This implementation supports:
//   - code_source mapping lookup.
//   - The per-mapping anti-join detection query.
//   - Transactional placeholder insert + audit insert per code.
//
// Note on driver registration:
//   - This package intentionally does NOT blank-import a SQL Server driver.
//     The application registers the "sqlserver" driver via
//     refcheck/internal/storage/all. If it is missing, sql.Open fails.
type Repo struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
//
// This method validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureLogTables creates undefined_log and process_params when absent.
//
// SQL Server has no CREATE TABLE IF NOT EXISTS; the standard pattern is an
// OBJECT_ID guard.
func (r *Repo) EnsureLogTables(ctx context.Context) error {
	for _, ddl := range []string{undefinedLogDDL, processParamsDDL} {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: ensure log tables: %w", err)
		}
	}
	return nil
}

const undefinedLogDDL = `IF OBJECT_ID(N'undefined_log', N'U') IS NULL
CREATE TABLE undefined_log (
  ts DATETIMEOFFSET NOT NULL,
  table_name NVARCHAR(256) NOT NULL,
  code_column NVARCHAR(256) NOT NULL,
  desc_column NVARCHAR(256) NOT NULL,
  code NVARCHAR(512) NOT NULL,
  descript NVARCHAR(1024) NOT NULL
);`

const processParamsDDL = `IF OBJECT_ID(N'process_params', N'U') IS NULL
CREATE TABLE process_params (
  client NVARCHAR(64) NOT NULL,
  task_name NVARCHAR(128) NOT NULL,
  run_seq INT NOT NULL DEFAULT 0,
  run_flag NCHAR(1) NOT NULL DEFAULT 'N',
  params NVARCHAR(MAX) NOT NULL DEFAULT '{}'
);`

func (r *Repo) SelectProcessParams(ctx context.Context, client, task string) ([]storage.ProcessParam, error) {
	const q = `SELECT run_flag, params FROM process_params
WHERE client = @p1 AND task_name = @p2
ORDER BY run_seq`

	rows, err := r.db.QueryContext(ctx, q, client, task)
	if err != nil {
		return nil, fmt.Errorf("mssql: select process_params: %w", err)
	}
	defer rows.Close()

	var out []storage.ProcessParam
	for rows.Next() {
		var p storage.ProcessParam
		if err := rows.Scan(&p.RunFlag, &p.Params); err != nil {
			return nil, fmt.Errorf("mssql: scan process_params: %w", err)
		}
		// NCHAR pads to the declared width; trim so "Y " still enables the run.
		p.RunFlag = strings.TrimRight(p.RunFlag, " ")
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
		return nil, fmt.Errorf("mssql: select code_source: %w", err)
	}
	defer rows.Close()

	var raw []storage.Mapping
	for rows.Next() {
		var m storage.Mapping
		if err := rows.Scan(&m.TableName, &m.ColumnName, &m.RefTableName, &m.RefCodeColumnName, &m.RefDescColumnName); err != nil {
			return nil, fmt.Errorf("mssql: scan code_source: %w", err)
		}
		raw = append(raw, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mssql: rows code_source: %w", err)
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
		return nil, fmt.Errorf("mssql: anti-join %s.%s: %w", m.TableName, m.ColumnName, err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("mssql: scan anti-join %s.%s: %w", m.TableName, m.ColumnName, err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// RemediateCode applies both inserts inside one transaction so a failure
// leaves neither the placeholder nor a dangling audit row.
func (r *Repo) RemediateCode(ctx context.Context, m storage.Mapping, code, description string, now time.Time) error {
	dimSQL, logSQL, err := buildRemediateSQL(m)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql: begin remediate %s code=%q: %w", m.RefTableName, code, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, dimSQL, code, description); err != nil {
		return fmt.Errorf("mssql: insert %s code=%q: %w", m.RefTableName, code, err)
	}
	if _, err := tx.ExecContext(ctx, logSQL,
		now, m.RefTableName, m.RefCodeColumnName, m.RefDescColumnName, code, description); err != nil {
		return fmt.Errorf("mssql: insert undefined_log code=%q: %w", code, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit remediate %s code=%q: %w", m.RefTableName, code, err)
	}
	return nil
}

/* ---------- SQL builders ---------- */

// buildAntiJoinSQL constructs the detection query for one mapping.
// Pure and deterministic so quoting and join shape are testable without a DB.
func buildAntiJoinSQL(m storage.Mapping) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT DISTINCT t.")
	b.WriteString(msIdent(m.ColumnName))
	b.WriteString(" FROM ")
	b.WriteString(msTable(m.TableName))
	b.WriteString(" t LEFT JOIN ")
	b.WriteString(msTable(m.RefTableName))
	b.WriteString(" r ON t.")
	b.WriteString(msIdent(m.ColumnName))
	b.WriteString(" = r.")
	b.WriteString(msIdent(m.RefCodeColumnName))
	b.WriteString(" WHERE t.")
	b.WriteString(msIdent(m.ColumnName))
	b.WriteString(" IS NOT NULL AND r.")
	b.WriteString(msIdent(m.RefCodeColumnName))
	b.WriteString(" IS NULL")
	return b.String(), nil
}

func buildRemediateSQL(m storage.Mapping) (dimSQL, logSQL string, err error) {
	if err := m.Validate(); err != nil {
		return "", "", err
	}

	dimSQL = fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES (@p1, @p2)",
		msTable(m.RefTableName),
		msIdent(m.RefCodeColumnName),
		msIdent(m.RefDescColumnName),
	)
	logSQL = "INSERT INTO undefined_log (ts, table_name, code_column, desc_column, code, descript) " +
		"VALUES (@p1, @p2, @p3, @p4, @p5, @p6)"
	return dimSQL, logSQL, nil
}

// msIdent quotes a single identifier with brackets.
func msIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// msTable quotes a possibly schema-qualified table name.
func msTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}
