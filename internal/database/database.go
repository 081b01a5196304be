// Package database wraps the embedded SQLite engine behind a pooled,
// transaction-aware handle. One DB corresponds to one store file (or one
// in-memory database).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/watzon/syncstore/internal/config"
)

// MemoryPath is the reserved path value selecting an in-memory database.
const MemoryPath = ":memory:"

var memorySeq atomic.Uint64

type DB struct {
	*sql.DB
	cfg    *config.DatabaseConfig
	path   string
	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) the SQLite database at path. Passing
// MemoryPath yields a private in-memory database.
func Open(path string, cfg *config.DatabaseConfig) (*DB, error) {
	dsn := path
	if path == MemoryPath {
		// A named shared-cache database keeps every pooled connection on
		// the same in-memory store while isolating it from other opens in
		// the process. The idle pool keeps at least one connection, which
		// keeps the database alive.
		dsn = fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", memorySeq.Add(1))
	} else if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{
		DB:   sqlDB,
		cfg:  cfg,
		path: path,
	}

	if err := db.configure(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	idle := cfg.MaxIdleConns
	if path == MemoryPath && idle < 1 {
		// An in-memory database vanishes with its last connection.
		idle = 1
	}
	sqlDB.SetMaxIdleConns(idle)
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Path returns the file path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// InMemory reports whether the database is backed by memory instead of a file.
func (db *DB) InMemory() bool {
	return db.path == MemoryPath
}

func (db *DB) configure() error {
	pragmas := []string{
		"PRAGMA busy_timeout = " + fmt.Sprintf("%d", db.cfg.BusyTimeout.Milliseconds()),
	}

	if db.cfg.WALMode && db.path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
		pragmas = append(pragmas, "PRAGMA synchronous = NORMAL")
	}

	if db.cfg.CacheSize != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = %d", db.cfg.CacheSize))
	}

	pragmas = append(pragmas, "PRAGMA temp_store = MEMORY")

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("executing %q: %w", pragma, err)
		}
	}

	return nil
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	if db.cfg.WALMode && db.path != MemoryPath {
		_, _ = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}

	return db.DB.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

// Checkpoint forces a WAL checkpoint. A no-op for in-memory databases.
func (db *DB) Checkpoint(ctx context.Context) error {
	if !db.cfg.WALMode || db.path == MemoryPath {
		return nil
	}
	_, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)")
	return err
}

// Transaction runs fn inside a transaction, rolling back on error or panic.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	tx := &Tx{Tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

type Tx struct {
	*sql.Tx
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.DB.ExecContext(ctx, query, args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.DB.QueryContext(ctx, query, args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, query, args...)
}

func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// Now returns the current UTC time formatted for storage. Millisecond
// precision keeps updated_at comparisons meaningful within a request.
func Now() string {
	return FormatTime(time.Now())
}

// TimeFormat is RFC 3339 with millisecond resolution, always UTC.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
