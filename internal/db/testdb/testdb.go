// Package testdb provides in-memory sqlite databases for tests.
package testdb

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/inkpost/inkpost/internal/db"
	"github.com/inkpost/inkpost/internal/migrate"
	"github.com/inkpost/inkpost/migrations"
)

// RunWhile returns an in-memory database with all migrations applied.
// The database is closed when the test finishes.
//
// The returned pool has a single connection, so it can be used as both
// the read and the write database of a store.
func RunWhile(t *testing.T) *sql.DB {
	t.Helper()

	conn := RunUnmigratedWhile(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := migrate.RunFS(ctx, conn, migrations.FS, migrate.Metadata{
		AppVersion: "test",
		Timestamp:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return conn
}

// RunUnmigratedWhile returns an empty in-memory database.
func RunUnmigratedWhile(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenSQLite(":memory:", true)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		err := conn.Close()
		if err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})

	return conn
}
