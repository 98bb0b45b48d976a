// Package dbtest opens throwaway SQLite databases migrated with the
// storefront's sqlite3 migration set for service and handler tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/lojinha/storefront/internal/db"
	_ "github.com/mattn/go-sqlite3"
)

// New returns a fully migrated database. It is closed when the test finishes.
func New(t testing.TB) *db.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "storefront.db")
	sqlDB, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	// a single connection serialises transactions like a row lock would
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	database := db.Wrap(sqlDB, "sqlite3")
	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return database
}
