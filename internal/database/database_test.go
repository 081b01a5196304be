package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/watzon/syncstore/internal/config"
)

func testConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		WALMode:      true,
		CacheSize:    -2000,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

func testDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath, testConfig())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestOpenAndClose(t *testing.T) {
	db := testDB(t)

	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}

func TestMemoryDatabasesAreIsolated(t *testing.T) {
	ctx := context.Background()

	a, err := Open(MemoryPath, testConfig())
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()

	b, err := Open(MemoryPath, testConfig())
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer b.Close()

	if _, err := a.ExecContext(ctx, "CREATE TABLE only_a (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	var n int
	err = b.QueryRowContext(ctx, "SELECT COUNT(*) FROM only_a").Scan(&n)
	if err == nil {
		t.Fatal("expected b to not see a's table")
	}
}

func TestTransaction(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)")
	if err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	err = db.Transaction(ctx, func(tx *Tx) error {
		_, err := tx.Exec("INSERT INTO test (id, name) VALUES (1, 'alice')")
		if err != nil {
			return err
		}
		_, err = tx.Exec("INSERT INTO test (id, name) VALUES (2, 'bob')")
		return err
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM test").Scan(&count)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows, got %d", count)
	}
}

func TestTransactionRollback(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT UNIQUE)")
	if err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	err = db.Transaction(ctx, func(tx *Tx) error {
		_, err := tx.Exec("INSERT INTO test (id, name) VALUES (1, 'alice')")
		if err != nil {
			return err
		}
		_, err = tx.Exec("INSERT INTO test (id, name) VALUES (2, 'alice')")
		return err
	})
	if err == nil {
		t.Fatal("expected transaction to fail")
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM test").Scan(&count)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 rows after rollback, got %d", count)
	}
}

func TestClassifyUniqueError(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT UNIQUE)")
	if err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO test (id, name) VALUES (1, 'alice')"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err = db.ExecContext(ctx, "INSERT INTO test (id, name) VALUES (2, 'alice')")
	if err == nil {
		t.Fatal("expected unique violation")
	}

	classified := ClassifyError(err)
	if !IsUniqueError(classified) {
		t.Errorf("expected unique error, got %v", classified)
	}
	if !errors.Is(classified, ErrUniqueViolation) {
		t.Error("expected classified error to unwrap to ErrUniqueViolation")
	}

	ce := AsConstraintError(classified)
	if ce == nil {
		t.Fatal("expected a ConstraintError")
	}
	if ce.Column != "name" {
		t.Errorf("expected column 'name', got %q", ce.Column)
	}
}

func TestTimeFormatRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 30, 45, 123_000_000, time.UTC)

	s := FormatTime(now)
	if s != "2025-06-01T12:30:45.123Z" {
		t.Errorf("unexpected format: %s", s)
	}

	parsed, err := ParseTime(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("round trip mismatch: %v != %v", parsed, now)
	}
}

func TestCheckpoint(t *testing.T) {
	db := testDB(t)
	if err := db.Checkpoint(context.Background()); err != nil {
		t.Errorf("checkpoint failed: %v", err)
	}
}
