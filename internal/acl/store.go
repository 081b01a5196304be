package acl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/watzon/syncstore/internal/config"
	"github.com/watzon/syncstore/internal/database"
	"github.com/watzon/syncstore/internal/store"
)

// Entry is one persisted grant: user_id holds access_level on
// (data_collection, data_id). Owner records who created the grant.
type Entry struct {
	ID         string    `json:"id"`
	Collection string    `json:"data_collection"`
	DataID     store.Id  `json:"data_id"`
	UserID     store.Uid `json:"user_id"`
	Level      Level     `json:"access_level"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Owner      store.Uid `json:"owner"`
}

const aclTable = `
	CREATE TABLE IF NOT EXISTS acls (
		id TEXT PRIMARY KEY,
		data_collection TEXT NOT NULL,
		data_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		permission TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		owner TEXT NOT NULL,
		UNIQUE (data_collection, data_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS acls_data_idx ON acls (data_collection, data_id);
	CREATE INDEX IF NOT EXISTS acls_user_idx ON acls (user_id, id);
`

const entryColumns = "id, data_collection, data_id, user_id, permission, created_at, updated_at, owner"

// Store persists ACL entries in their own database file under the inner
// directory.
type Store struct {
	db *database.DB
}

// NewStore opens (creating if needed) <baseDir>/inner/acls.db.
func NewStore(baseDir string, cfg *config.DatabaseConfig) (*Store, error) {
	path := filepath.Join(baseDir, "inner", "acls.db")
	db, err := database.Open(path, cfg)
	if err != nil {
		return nil, store.IOErr(err)
	}
	if _, err := db.Exec(aclTable); err != nil {
		db.Close()
		return nil, store.BackendErr(err)
	}
	return &Store{db: db}, nil
}

// NewMemoryStore opens an in-memory ACL store, used by tests.
func NewMemoryStore(cfg *config.DatabaseConfig) (*Store, error) {
	db, err := database.Open(database.MemoryPath, cfg)
	if err != nil {
		return nil, store.BackendErr(err)
	}
	if _, err := db.Exec(aclTable); err != nil {
		db.Close()
		return nil, store.BackendErr(err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance jobs.
func (s *Store) DB() *database.DB {
	return s.db
}

// Grant upserts a single entry; a re-grant replaces the level and refreshes
// updated_at.
func (s *Store) Grant(ctx context.Context, collection string, dataID store.Id, userID store.Uid, level Level, owner store.Uid) (Entry, error) {
	if !level.Valid() {
		return Entry{}, store.Validationf("unknown access level %q", level)
	}

	now := time.Now().UTC()
	e := Entry{
		ID:         uuid.New().String(),
		Collection: collection,
		DataID:     dataID,
		UserID:     userID,
		Level:      level,
		CreatedAt:  now,
		UpdatedAt:  now,
		Owner:      owner,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acls (id, data_collection, data_id, user_id, permission, created_at, updated_at, owner)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (data_collection, data_id, user_id)
		DO UPDATE SET permission = excluded.permission, updated_at = excluded.updated_at`,
		e.ID, e.Collection, e.DataID, e.UserID, string(e.Level),
		database.FormatTime(e.CreatedAt), database.FormatTime(e.UpdatedAt), e.Owner,
	)
	if err != nil {
		return Entry{}, store.BackendErr(err)
	}
	return e, nil
}

// Revoke removes one grant.
func (s *Store) Revoke(ctx context.Context, collection string, dataID store.Id, userID store.Uid) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM acls WHERE data_collection = ? AND data_id = ? AND user_id = ?",
		collection, dataID, userID)
	if err != nil {
		return store.BackendErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.BackendErr(err)
	}
	if n == 0 {
		return store.NotFoundf("acl %s/%s for user %s", collection, dataID, userID)
	}
	return nil
}

// ListForData returns every grant on one item, ordered by user id. The
// resolver consumes the full set, so this is not paged.
func (s *Store) ListForData(ctx context.Context, collection string, dataID store.Id) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM acls WHERE data_collection = ? AND data_id = ? ORDER BY user_id", entryColumns),
		collection, dataID)
	if err != nil {
		return nil, store.BackendErr(err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListForUser pages through every grant held by one user, across all
// collections, ordered by entry id.
func (s *Store) ListForUser(ctx context.Context, userID store.Uid, marker string, limit int) ([]Entry, string, error) {
	if limit < 1 {
		return nil, "", store.Validationf("limit must be at least 1")
	}

	query := fmt.Sprintf("SELECT %s FROM acls WHERE user_id = ?", entryColumns)
	args := []any{userID}
	if marker != "" {
		query += " AND id >= ?"
		args = append(args, marker)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", store.BackendErr(err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(entries) > limit {
		next = entries[limit].ID
		entries = entries[:limit]
	}
	return entries, next, nil
}

// Replace swaps the full grant set for one item in a single transaction.
// Entries whose level is unchanged are left alone, changed levels are
// updated in place, missing users are deleted, and new users are inserted.
func (s *Store) Replace(ctx context.Context, collection string, dataID store.Id, owner store.Uid, grants map[store.Uid]Level) error {
	for userID, level := range grants {
		if !level.Valid() {
			return store.Validationf("user %s: unknown access level %q", userID, level)
		}
	}

	now := database.Now()

	err := s.db.Transaction(ctx, func(tx *database.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT user_id, permission FROM acls WHERE data_collection = ? AND data_id = ?",
			collection, dataID)
		if err != nil {
			return err
		}
		existing := map[store.Uid]Level{}
		for rows.Next() {
			var userID, permission string
			if err := rows.Scan(&userID, &permission); err != nil {
				rows.Close()
				return err
			}
			existing[userID] = Level(permission)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		var unchanged, changed, removed, added int

		for userID, oldLevel := range existing {
			newLevel, keep := grants[userID]
			switch {
			case !keep:
				if _, err := tx.ExecContext(ctx,
					"DELETE FROM acls WHERE data_collection = ? AND data_id = ? AND user_id = ?",
					collection, dataID, userID); err != nil {
					return err
				}
				removed++
			case newLevel != oldLevel:
				if _, err := tx.ExecContext(ctx,
					`UPDATE acls SET permission = ?, updated_at = ?
					 WHERE data_collection = ? AND data_id = ? AND user_id = ?`,
					string(newLevel), now, collection, dataID, userID); err != nil {
					return err
				}
				changed++
			default:
				unchanged++
			}
		}

		for userID, level := range grants {
			if _, ok := existing[userID]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO acls (id, data_collection, data_id, user_id, permission, created_at, updated_at, owner)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.New().String(), collection, dataID, userID, string(level), now, now, owner,
			); err != nil {
				return err
			}
			added++
		}

		log.Debug().
			Str("collection", collection).
			Str("data_id", dataID).
			Int("unchanged", unchanged).
			Int("changed", changed).
			Int("removed", removed).
			Int("added", added).
			Msg("ACL set replaced")

		return nil
	})
	if err != nil {
		return store.BackendErr(err)
	}
	return nil
}

// DeleteForData removes every grant on one item. Removing grants for an
// item with none is not an error.
func (s *Store) DeleteForData(ctx context.Context, collection string, dataID store.Id) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM acls WHERE data_collection = ? AND data_id = ?",
		collection, dataID); err != nil {
		return store.BackendErr(err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e                  Entry
			permission         string
			createdAt, updated string
		)
		if err := rows.Scan(&e.ID, &e.Collection, &e.DataID, &e.UserID, &permission, &createdAt, &updated, &e.Owner); err != nil {
			return nil, store.BackendErr(err)
		}
		e.Level = Level(permission)
		var err error
		if e.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, store.BackendErr(err)
		}
		if e.UpdatedAt, err = database.ParseTime(updated); err != nil {
			return nil, store.BackendErr(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entries, nil
		}
		return nil, store.BackendErr(err)
	}
	return entries, nil
}
