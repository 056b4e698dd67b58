// Package envcache is the transactional, SQLite-backed store for omni's
// environment model: work directories, content-addressed environment
// versions, tool installations, and the reference counts that drive
// cleanup. It corresponds to spec.md §4.1 (ENVCACHE).
//
// Every multi-statement operation runs inside a single transaction and
// rolls back whole on any error, mirroring the teacher's builddb package
// (bbolt Update/View closures) but against SQLite so the schema can express
// the foreign-key graph of spec.md §3 directly instead of hand-rolling
// indexes across buckets.
package envcache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"omni/internal/errs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a SQLite connection pool opened against the ENVCACHE schema.
type DB struct {
	sql         *sql.DB
	busyTimeout time.Duration

	// now is injected so tests can exercise retention/compaction without
	// depending on wall-clock time. Defaults to time.Now.
	now func() time.Time
}

// Open opens or creates the ENVCACHE database at path, running any pending
// goose migrations. Foreign keys are enabled for the lifetime of the
// connection (SQLite defaults them off per-connection).
func Open(path string, busyTimeout time.Duration) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, busyTimeout.Milliseconds())
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &errs.CacheError{Code: "P001", Op: "open", Err: err}
	}
	// SQLite serializes writers at the file level; a single connection
	// avoids SQLITE_BUSY noise from this process's own goroutines and lets
	// the busy_timeout pragma do its job against other processes.
	sqlDB.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		sqlDB.Close()
		return nil, &errs.CacheError{Code: "P002", Op: "set-dialect", Err: err}
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		sqlDB.Close()
		return nil, &errs.CacheError{Code: "P003", Op: "migrate", Err: err}
	}

	return &DB{sql: sqlDB, busyTimeout: busyTimeout, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.sql.Close()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. fn's error is returned as-is; callers wrap it in
// a CacheError themselves.
func (db *DB) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return &errs.CacheError{Code: "P004", Op: op, Err: err}
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return &errs.CacheError{Code: "P005", Op: op, Err: err}
	}
	return nil
}

func wrapCacheErr(code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &errs.CacheError{Code: code, Op: op, Err: err}
}
