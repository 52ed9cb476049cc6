package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type nopDriver struct{}

func (d nopDriver) Open(name string) (driver.Conn, error) {
	return nopConn{}, nil
}

type nopConn struct{}

func (nopConn) Prepare(query string) (driver.Stmt, error) { return nopStmt{}, nil }
func (nopConn) Close() error                              { return nil }
func (nopConn) Begin() (driver.Tx, error)                 { return nopTx{}, nil }
func (nopConn) Ping(ctx context.Context) error            { return nil }

type nopStmt struct{}

func (nopStmt) Close() error                                   { return nil }
func (nopStmt) NumInput() int                                  { return -1 }
func (nopStmt) Exec(args []driver.Value) (driver.Result, error) { return nopResult{}, nil }
func (nopStmt) Query(args []driver.Value) (driver.Rows, error)  { return nopRows{}, nil }

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

type nopResult struct{}

func (nopResult) LastInsertId() (int64, error) { return 0, nil }
func (nopResult) RowsAffected() (int64, error) { return 0, nil }

type nopRows struct{}

func (nopRows) Columns() []string              { return []string{} }
func (nopRows) Close() error                   { return nil }
func (nopRows) Next(dest []driver.Value) error { return driver.ErrBadConn }

var registerTestDriverOnce sync.Once

func withTestDriver(t *testing.T) {
	t.Helper()
	registerTestDriverOnce.Do(func() {
		sql.Register("dbtest", nopDriver{})
	})
	prev := openDB
	var gotDriver string
	openDB = func(name, dsn string) (*sql.DB, error) {
		gotDriver = name
		return sql.Open("dbtest", dsn)
	}
	t.Cleanup(func() {
		openDB = prev
		if gotDriver != "" && gotDriver != "pgx" {
			t.Errorf("expected pgx driver for DATABASE_URL, got %q", gotDriver)
		}
	})
}

func TestOptionsFromEnvAppliesOverrides(t *testing.T) {
	withTestDriver(t)

	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")
	t.Setenv("DB_PING_TIMEOUT", "1s")

	opts := OptionsFromEnv(DefaultServerOptions())
	db, err := Open(context.Background(), Target{DatabaseURL: "postgres://ignored"}, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	stats := db.Stats()
	if stats.MaxOpenConnections != 7 {
		t.Fatalf("expected MaxOpenConnections=7, got %d", stats.MaxOpenConnections)
	}
	if opts.MaxIdleConns != 3 {
		t.Fatalf("expected MaxIdleConns=3, got %d", opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime != 20*time.Minute {
		t.Fatalf("expected ConnMaxLifetime=20m, got %s", opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime != 45*time.Second {
		t.Fatalf("expected ConnMaxIdleTime=45s, got %s", opts.ConnMaxIdleTime)
	}
	if opts.PingTimeout != time.Second {
		t.Fatalf("expected PingTimeout=1s, got %s", opts.PingTimeout)
	}
}

func TestOptionsFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("DB_PING_TIMEOUT", "soon")

	opts := OptionsFromEnv(DefaultServerOptions())
	if opts.MaxOpenConns != 10 {
		t.Fatalf("expected default MaxOpenConns, got %d", opts.MaxOpenConns)
	}
	if opts.PingTimeout != 5*time.Second {
		t.Fatalf("expected default PingTimeout, got %s", opts.PingTimeout)
	}
}

func TestTargetDialect(t *testing.T) {
	if got := (Target{SQLitePath: "crm.db"}).Dialect(); got != DialectSQLite {
		t.Fatalf("expected sqlite3, got %s", got)
	}
	if got := (Target{DatabaseURL: "postgres://x", SQLitePath: "crm.db"}).Dialect(); got != DialectPostgres {
		t.Fatalf("expected postgres, got %s", got)
	}
}

func TestOpenRequiresTarget(t *testing.T) {
	if _, err := Open(context.Background(), Target{}, DefaultServerOptions()); err == nil {
		t.Fatalf("expected error for empty target")
	}
}

func TestMigrationsCreateTablesAndAreIdempotent(t *testing.T) {
	ctx := context.Background()
	target := Target{SQLitePath: filepath.Join(t.TempDir(), "crm.db")}

	first, err := Open(ctx, target, DefaultMigrateOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := RunMigrations(ctx, first, target.Dialect()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	now := time.Now().UTC()
	if _, err := first.ExecContext(ctx,
		`INSERT INTO clients (name, case_id, email, created_at) VALUES ($1, $2, $3, $4)`,
		"Jane Doe", "CASE-1", "jane@example.com", now); err != nil {
		t.Fatalf("insert client: %v", err)
	}
	first.Close()

	// Simulates a restart against the existing file.
	second, err := Open(ctx, target, DefaultMigrateOptions())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if err := RunMigrations(ctx, second, target.Dialect()); err != nil {
		t.Fatalf("RunMigrations again: %v", err)
	}

	var count int
	var name string
	if err := second.QueryRowContext(ctx, `SELECT COUNT(*), MAX(name) FROM clients`).Scan(&count, &name); err != nil {
		t.Fatalf("count clients: %v", err)
	}
	if count != 1 || name != "Jane Doe" {
		t.Fatalf("expected existing row untouched, got count=%d name=%q", count, name)
	}
}

func TestSQLiteEnforcesForeignKeys(t *testing.T) {
	ctx := context.Background()
	target := Target{SQLitePath: ":memory:"}
	db, err := Open(ctx, target, DefaultServerOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := RunMigrations(ctx, db, target.Dialect()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO files (client_id, blob_name, uploaded_at) VALUES ($1, $2, $3)`,
		999, "999/doc.pdf", time.Now().UTC())
	if err == nil {
		t.Fatalf("expected foreign key violation for unknown client")
	}
}

func TestRunMigrationsNilDatabase(t *testing.T) {
	if err := RunMigrations(context.Background(), nil, DialectSQLite); err != nil {
		t.Fatalf("expected nil database to be a no-op, got %v", err)
	}
}

func TestRunMigrationsUnknownDialect(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := RunMigrations(context.Background(), db, Dialect("mysql")); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
}
