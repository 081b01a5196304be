// Package store implements the document store core: schema-validated
// collections of JSON items persisted per-namespace in SQLite files.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Id is a canonical UUID string. Uid is an Id referring to a user.
type (
	Id  = string
	Uid = string
)

// Meta is the envelope every stored document carries.
type Meta struct {
	ID        Id        `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Owner     Uid       `json:"owner"`
	Unique    string    `json:"unique,omitempty"`
	ParentID  Id        `json:"parent_id,omitempty"`
}

// Item is a document plus its envelope, as returned to callers.
type Item struct {
	Meta
	Body json.RawMessage `json:"body"`
}

// NewMeta creates envelope metadata for a fresh insert. Timestamps are cut to
// the stored millisecond resolution so the returned envelope matches the row.
func NewMeta(owner Uid) Meta {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return Meta{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		Owner:     owner,
	}
}

// Page is one result page of a list operation. NextMarker is the id the
// caller passes back to continue; empty means the iteration is complete.
type Page struct {
	Items      []Item `json:"items"`
	NextMarker string `json:"next_marker,omitempty"`
}

// ImportRecord is one row of a bulk import: externally supplied identity and
// timestamps plus the document body.
type ImportRecord struct {
	ID        Id              `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Owner     Uid             `json:"owner"`
	Body      json.RawMessage `json:"body"`
}
