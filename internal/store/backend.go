package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/watzon/syncstore/internal/config"
	"github.com/watzon/syncstore/internal/database"
	"github.com/watzon/syncstore/internal/schema"
)

// tablePrefix keeps collection tables clear of engine-internal names.
const tablePrefix = "c_"

const schemasTable = `
	CREATE TABLE IF NOT EXISTS __schemas (
		collection TEXT PRIMARY KEY,
		schema TEXT NOT NULL
	);
`

// Backend is one store file (or in-memory database) holding any number of
// collections, each bound to a compiled schema. Immutable after Build; safe
// for concurrent use.
type Backend struct {
	db    *database.DB
	descs map[string]*schema.Descriptor
}

// BackendBuilder assembles a Backend: choose the path, register each
// collection schema, then Build.
type BackendBuilder struct {
	path    string
	cfg     *config.DatabaseConfig
	schemas []namedSchema
}

type namedSchema struct {
	collection string
	raw        []byte
}

// NewBackendBuilder starts a builder for the store file at path. Pass
// database.MemoryPath for an in-memory store.
func NewBackendBuilder(path string, cfg *config.DatabaseConfig) *BackendBuilder {
	return &BackendBuilder{path: path, cfg: cfg}
}

// WithCollection registers a collection schema. Registering the same
// collection twice keeps the last schema.
func (b *BackendBuilder) WithCollection(collection string, schemaJSON []byte) *BackendBuilder {
	b.schemas = append(b.schemas, namedSchema{collection: collection, raw: schemaJSON})
	return b
}

// Build opens the database, provisions the internal tables, and compiles and
// persists every registered schema. Schema problems surface as validation
// errors; filesystem problems as io errors.
func (b *BackendBuilder) Build() (*Backend, error) {
	db, err := database.Open(b.path, b.cfg)
	if err != nil {
		return nil, IOErr(err)
	}

	be := &Backend{
		db:    db,
		descs: make(map[string]*schema.Descriptor, len(b.schemas)),
	}

	if _, err := db.Exec(schemasTable); err != nil {
		db.Close()
		return nil, BackendErr(err)
	}

	for _, ns := range b.schemas {
		if err := be.registerSchema(context.Background(), ns.collection, ns.raw); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := schema.CheckParentGraph(be.descs); err != nil {
		db.Close()
		return nil, Validationf("%v", err)
	}

	return be, nil
}

// registerSchema compiles and persists one collection schema and ensures its
// physical table. Replacement overwrites the stored text and the cached
// validator; existing rows are not retrofitted.
func (be *Backend) registerSchema(ctx context.Context, collection string, raw []byte) error {
	desc, err := schema.Compile(collection, raw, be)
	if err != nil {
		return Validationf("collection %q: %v", collection, err)
	}

	table := TableName(collection)
	err = be.db.Transaction(ctx, func(tx *database.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO __schemas (collection, schema) VALUES (?, ?)
			 ON CONFLICT (collection) DO UPDATE SET schema = excluded.schema`,
			collection, string(desc.Raw),
		); err != nil {
			return err
		}

		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				body TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				owner TEXT NOT NULL,
				uniq TEXT UNIQUE,
				parent_id TEXT
			);`, table)
		if _, err := tx.Exec(ddl); err != nil {
			return err
		}

		if _, err := tx.Exec(fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s_owner_idx ON %s (owner, id)", table, table,
		)); err != nil {
			return err
		}
		if _, err := tx.Exec(fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s_parent_idx ON %s (parent_id, id)", table, table,
		)); err != nil {
			return err
		}

		for _, field := range desc.Inspect {
			col := inspectColumn(field)
			if _, err := tx.Exec(fmt.Sprintf(
				"ALTER TABLE %s ADD COLUMN %s TEXT", table, col,
			)); err != nil && !isDuplicateColumn(err) {
				return err
			}
			if _, err := tx.Exec(fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s, id)", table, col, table, col,
			)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return BackendErr(err)
	}

	be.descs[collection] = desc

	log.Debug().
		Str("collection", collection).
		Str("table", table).
		Bool("unique", desc.HasUnique()).
		Bool("parent", desc.Parent != nil).
		Msg("Collection schema registered")

	return nil
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

// TableName maps a collection name to its physical table: every character
// outside [A-Za-z0-9_] becomes '_', plus a fixed prefix.
func TableName(collection string) string {
	var sb strings.Builder
	sb.Grow(len(tablePrefix) + len(collection))
	sb.WriteString(tablePrefix)
	for _, c := range collection {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			sb.WriteRune(c)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func inspectColumn(field string) string {
	return "x_" + strings.TrimPrefix(TableName(field), tablePrefix)
}

// ParentExists implements schema.Lookup: the live-state probe behind
// x-parent-id. It runs outside the transaction of the write it gates; the
// narrow window this opens is an accepted property of the design.
func (be *Backend) ParentExists(collection string, id string) (bool, error) {
	var one int
	err := be.db.QueryRowContext(context.Background(),
		fmt.Sprintf("SELECT 1 FROM %s WHERE id = ? LIMIT 1", TableName(collection)), id,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Descriptor returns the compiled schema for a collection.
func (be *Backend) Descriptor(collection string) (*schema.Descriptor, bool) {
	d, ok := be.descs[collection]
	return d, ok
}

// Collections lists the registered collection names.
func (be *Backend) Collections() []string {
	names := make([]string, 0, len(be.descs))
	for name := range be.descs {
		names = append(names, name)
	}
	return names
}

func (be *Backend) Ping(ctx context.Context) error {
	return be.db.Ping(ctx)
}

func (be *Backend) Close() error {
	return be.db.Close()
}

// DB exposes the underlying handle for maintenance jobs.
func (be *Backend) DB() *database.DB {
	return be.db
}

func (be *Backend) descriptor(collection string) (*schema.Descriptor, error) {
	d, ok := be.descs[collection]
	if !ok {
		return nil, Validationf("collection %q not registered", collection)
	}
	return d, nil
}

// validateBody decodes and validates a document body, returning the decoded
// value for field extraction.
func (be *Backend) validateBody(desc *schema.Descriptor, body json.RawMessage) (any, error) {
	doc, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	if err := desc.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, Validationf("%v", ve)
		}
		return nil, BackendErr(err)
	}
	return doc, nil
}

func decodeBody(body json.RawMessage) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, Validationf("malformed json body: %v", err)
	}
	return doc, nil
}

// fieldValue extracts a named field from the decoded body for a derived
// column. Non-string values are stored as their JSON encoding.
func fieldValue(doc any, field string) (string, bool, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return "", false, nil
	}
	v, ok := obj[field]
	if !ok {
		return "", false, nil
	}
	if s, ok := v.(string); ok {
		return s, true, nil
	}
	enc, err := json.Marshal(v)
	if err != nil {
		return "", false, BackendErr(err)
	}
	return string(enc), true, nil
}

// derived holds the per-row values computed from the body via the schema's
// side-indexes.
type derived struct {
	unique  sql.NullString
	parent  sql.NullString
	inspect map[string]sql.NullString
}

func (be *Backend) deriveColumns(desc *schema.Descriptor, doc any) (derived, error) {
	var d derived

	if desc.HasUnique() {
		v, ok, err := fieldValue(doc, desc.UniqueField)
		if err != nil {
			return d, err
		}
		if ok {
			d.unique = sql.NullString{String: v, Valid: true}
		}
	}

	if desc.Parent != nil {
		v, ok, err := fieldValue(doc, desc.Parent.Field)
		if err != nil {
			return d, err
		}
		if ok {
			d.parent = sql.NullString{String: v, Valid: true}
		}
	}

	if len(desc.Inspect) > 0 {
		d.inspect = make(map[string]sql.NullString, len(desc.Inspect))
		for _, field := range desc.Inspect {
			v, ok, err := fieldValue(doc, field)
			if err != nil {
				return d, err
			}
			d.inspect[field] = sql.NullString{String: v, Valid: ok}
		}
	}

	return d, nil
}
