// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, trivial
// cross-compilation. ":memory:" gives every test its own throwaway database.
//
// SCHEMA:
// Migrations are plain SQL files embedded into the binary and applied with
// goose on startup (and by the "migrate" CLI command). goose records the
// applied version in its own table, so re-running is a no-op.
//
// ATOMICITY:
// Every mutation is a single INSERT/UPDATE/DELETE statement, which SQLite
// applies atomically; a failure leaves nothing half-written. Updates SET
// only the columns the caller supplied, so two requests changing different
// fields of the same row both land. The UPDATE and the read-back of the row
// share one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a sql.DB connection pool and implements
// repository.UserRepository and repository.JokeRepository.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// New opens the SQLite database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/jokes_dev.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests)
func New(ctx context.Context, dbPath string) (*DB, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Open opens the database without migrating it.
//
// PRAGMAs are passed through the DSN so that every pooled connection gets
// them, not just the first: foreign keys (for ON DELETE CASCADE), WAL for
// concurrent readers during a write, and a busy timeout so concurrent
// writers wait instead of failing immediately.
func Open(dbPath string) (*DB, error) {
	memory := dbPath == ":memory:"

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is a separate, empty database, so the
	// pool must never open a second one.
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	return &DB{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Migrate applies all pending migrations and returns the resulting schema version.
func (db *DB) Migrate(ctx context.Context) (int64, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("sqlite: loading migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn, fsys)
	if err != nil {
		return 0, fmt.Errorf("sqlite: creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("sqlite: applying migrations: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading schema version: %w", err)
	}
	return version, nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, which "table.column" it was on.
func uniqueViolation(err error) (string, bool) {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	// Primary result code in the low byte; extended codes carry the detail.
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return "", false
	}
	msg := se.Error()
	if se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		se.Code() != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY &&
		!strings.Contains(msg, "UNIQUE constraint failed") {
		return "", false
	}

	// Message format: "... UNIQUE constraint failed: users.email (2067)"
	if i := strings.LastIndex(msg, "failed: "); i >= 0 {
		col := msg[i+len("failed: "):]
		if j := strings.IndexByte(col, ' '); j >= 0 {
			col = col[:j]
		}
		return col, true
	}
	return "", true
}

// foreignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func foreignKeyViolation(err error) bool {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY ||
		strings.Contains(se.Error(), "FOREIGN KEY constraint failed")
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// assignments collects the "column = ?" pairs of a partial UPDATE.
type assignments struct {
	columns []string
	args    []any
}

func (a *assignments) set(column string, value any) {
	a.columns = append(a.columns, column+" = ?")
	a.args = append(a.args, value)
}

// setOptional adds column when v was supplied; "" clears it to NULL.
func (a *assignments) setOptional(column string, v *string) {
	if v != nil {
		a.set(column, nullable(*v))
	}
}

func (a *assignments) clause() string {
	return strings.Join(a.columns, ", ")
}

// nullable stores "" as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ptr converts a scanned nullable column back into an optional field.
func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
