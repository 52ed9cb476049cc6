// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"intake-portal/internal/shared/storage/db"
)

// Open returns a fresh in-memory database with all migrations applied. It is closed on cleanup.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	target := db.Target{SQLitePath: ":memory:"}
	database, err := db.Open(context.Background(), target, db.DefaultServerOptions())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := db.RunMigrations(context.Background(), database, target.Dialect()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return database
}
