package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"refcheck/internal/storage"
)

// fakeConn implements dbConn without a real SQL Server.
type fakeConn struct {
	execs    []string
	execErr  error
	beginErr error
	tx       *fakeTx
}

func (f *fakeConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.execs = append(f.execs, query)
	return nil, f.execErr
}

func (f *fakeConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, fmt.Errorf("not used in this test")
}

func (f *fakeConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.tx = &fakeTx{}
	return f.tx, nil
}

func (f *fakeConn) Close() error { return nil }

type fakeTx struct {
	execs      []string
	args       [][]any
	failOnExec int // 1-based exec call that fails; 0 = never
	committed  bool
	rolledBack bool
}

func (f *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.execs = append(f.execs, query)
	f.args = append(f.args, args)
	if f.failOnExec == len(f.execs) {
		return nil, fmt.Errorf("forced failure on exec %d", f.failOnExec)
	}
	return nil, nil
}

func (f *fakeTx) Commit() error   { f.committed = true; return nil }
func (f *fakeTx) Rollback() error { f.rolledBack = true; return nil }

func TestEnsureLogTablesRunsBothDDLs(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	r := &Repo{db: conn}

	if err := r.EnsureLogTables(context.Background()); err != nil {
		t.Fatalf("EnsureLogTables: %v", err)
	}
	if len(conn.execs) != 2 {
		t.Fatalf("execs = %d, want 2", len(conn.execs))
	}
	if !strings.Contains(conn.execs[0], "undefined_log") || !strings.Contains(conn.execs[1], "process_params") {
		t.Fatalf("unexpected DDL order: %v", conn.execs)
	}
}

func TestRemediateCodeCommitsBothInserts(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	r := &Repo{db: conn}
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	err := r.RemediateCode(context.Background(), testMapping(), "Z", storage.PlaceholderDescription("Z"), now)
	if err != nil {
		t.Fatalf("RemediateCode: %v", err)
	}

	tx := conn.tx
	if tx == nil || !tx.committed {
		t.Fatal("transaction not committed")
	}
	if len(tx.execs) != 2 {
		t.Fatalf("tx execs = %d, want dim insert + audit insert", len(tx.execs))
	}
	if !strings.Contains(tx.execs[0], "[status_dim]") {
		t.Fatalf("first insert is not the dimension insert: %s", tx.execs[0])
	}
	if !strings.Contains(tx.execs[1], "undefined_log") {
		t.Fatalf("second insert is not the audit insert: %s", tx.execs[1])
	}

	// The audit row carries ts, ref table, columns, code, description as
	// bound args, in that order.
	audit := tx.args[1]
	if len(audit) != 6 {
		t.Fatalf("audit args = %v", audit)
	}
	if audit[1] != "status_dim" || audit[4] != "Z" {
		t.Fatalf("audit args = %v", audit)
	}
}

func TestRemediateCodeRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	// Force the dimension insert (first tx exec) to fail.
	connWithFail := &fakeConn{}
	r := &Repo{db: &failingBeginConn{inner: connWithFail, failOnExec: 1}}

	err := r.RemediateCode(context.Background(), testMapping(), "Z", "d", time.Now())
	if err == nil {
		t.Fatal("want error from failed dimension insert")
	}
	tx := connWithFail.tx
	if tx == nil || tx.committed || !tx.rolledBack {
		t.Fatalf("tx state = %+v, want rollback without commit", tx)
	}
}

// failingBeginConn wraps fakeConn so the created tx fails on a chosen exec.
type failingBeginConn struct {
	inner      *fakeConn
	failOnExec int
}

func (f *failingBeginConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return f.inner.ExecContext(ctx, query, args...)
}

func (f *failingBeginConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return f.inner.QueryContext(ctx, query, args...)
}

func (f *failingBeginConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := f.inner.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	f.inner.tx.failOnExec = f.failOnExec
	return tx, nil
}

func (f *failingBeginConn) Close() error { return f.inner.Close() }
