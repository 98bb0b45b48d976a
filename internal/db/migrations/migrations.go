// Package migrations embeds the goose SQL migrations, one set per SQL dialect.
// Both sets describe the same tables and must be changed together.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed mysql/*.sql sqlite3/*.sql
var files embed.FS

// For returns the migration set for dialect ("mysql" or "sqlite3")
func For(dialect string) (fs.FS, error) {
	switch dialect {
	case "mysql", "sqlite3":
		return fs.Sub(files, dialect)
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
}
