package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/lojinha/storefront/internal/db/migrations"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel/attribute"
)

var gooseDialects = map[string]goose.Dialect{
	"mysql":   goose.DialectMySQL,
	"sqlite3": goose.DialectSQLite3,
}

// DB wraps the database connection
type DB struct {
	*sql.DB
	system string
}

// NewDB creates a new MySQL connection with OpenTelemetry instrumentation
func NewDB(dsn string, serviceName string) (*DB, error) {
	driverName, err := otelsql.Register("mysql",
		otelsql.WithAttributes(
			attribute.String("db.system", "mysql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(
		attribute.String("db.system", "mysql"),
		attribute.String("service.name", serviceName),
	)); err != nil {
		slog.Warn("failed to register otelsql stats metrics", slog.String("error", err.Error()))
	}

	return &DB{DB: db, system: "mysql"}, nil
}

// Wrap adapts an already opened connection pool. system names the SQL dialect.
func Wrap(db *sql.DB, system string) *DB {
	return &DB{DB: db, system: system}
}

// System returns the SQL dialect name
func (db *DB) System() string {
	return db.system
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Migrate applies every pending embedded migration for the connection's dialect
func (db *DB) Migrate(ctx context.Context) error {
	dialect, ok := gooseDialects[db.system]
	if !ok {
		return fmt.Errorf("unsupported migration dialect %q", db.system)
	}
	fsys, err := migrations.For(db.system)
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	slog.Info("database schema migrated",
		slog.String("dialect", db.system),
		slog.Int("applied", len(results)))
	return nil
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("failed to rollback transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
