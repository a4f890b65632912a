package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// pragmas applied to every connection opened by the driver.
const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// DB wraps the sqlx handle for connection management
type DB struct {
	conn   *sqlx.DB
	logger *slog.Logger
}

// New opens the SQLite database at dsn and verifies the connection.
// SQLite has a single writer, so the pool is pinned to one connection; this
// also keeps in-memory databases visible to every caller.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sqlx.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	logger.Debug("database opened", slog.String("dsn", dsn))
	return &DB{conn: conn, logger: logger}, nil
}

// FromConn wraps an already opened *sql.DB, e.g. a sqlmock connection.
func FromConn(conn *sql.DB, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{conn: sqlx.NewDb(conn, "sqlite"), logger: logger}
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	return dsn + "?" + pragmas
}

// Close closes the DB connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Exec executes a query
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryRow executes a query that is expected to return at most one row
func (db *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// QueryRows executes a query returning rows; the caller must close them.
func (db *DB) QueryRows(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// Get scans a single row into dest.
func (db *DB) Get(ctx context.Context, dest any, query string, args ...any) error {
	return db.conn.GetContext(ctx, dest, query, args...)
}

// Select scans all rows into the slice pointed to by dest.
func (db *DB) Select(ctx context.Context, dest any, query string, args ...any) error {
	return db.conn.SelectContext(ctx, dest, query, args...)
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
// fn must only use tx: the pool holds a single connection.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("rollback failed", slog.Any("err", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetConn returns the underlying sqlx handle
func (db *DB) GetConn() *sqlx.DB {
	return db.conn
}
