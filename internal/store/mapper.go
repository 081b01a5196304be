package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/watzon/syncstore/internal/database"
)

const itemColumns = "id, body, created_at, updated_at, owner, uniq, parent_id"

// Insert validates body against the collection schema and writes one row,
// returning the stored item. UNIQUE collisions surface as validation errors.
func (be *Backend) Insert(ctx context.Context, collection string, body json.RawMessage, owner Uid) (Item, error) {
	meta := NewMeta(owner)
	return be.write(ctx, collection, body, meta)
}

// Import writes one row with externally supplied identity and timestamps.
// Intended for bulk migration tools; the body is still validated.
func (be *Backend) Import(ctx context.Context, collection string, rec ImportRecord) (Item, error) {
	meta, err := importMeta(rec)
	if err != nil {
		return Item{}, err
	}
	return be.write(ctx, collection, rec.Body, meta)
}

// ImportBatch writes a batch of import records in one transaction: any
// failure (including a UNIQUE collision surfacing mid-batch) rolls the whole
// batch back. Validation runs up front, before the transaction opens, so the
// parent-lookup probe never contends with the batch's own connection.
func (be *Backend) ImportBatch(ctx context.Context, collection string, recs []ImportRecord) ([]Item, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	rows := make([]pendingRow, 0, len(recs))
	for _, rec := range recs {
		meta, err := importMeta(rec)
		if err != nil {
			return nil, err
		}
		row, err := be.prepareRow(collection, rec.Body, meta)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	err := be.db.Transaction(ctx, func(tx *database.Tx) error {
		for _, row := range rows {
			if _, err := tx.ExecContext(ctx, row.query, row.args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		classified := database.ClassifyError(err)
		if database.IsUniqueError(classified) {
			return nil, Validationf("unique constraint violation: %v", classified)
		}
		return nil, BackendErr(classified)
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.item)
	}
	return items, nil
}

func importMeta(rec ImportRecord) (Meta, error) {
	if rec.ID == "" {
		return Meta{}, Validationf("import record requires an id")
	}
	if rec.UpdatedAt.Before(rec.CreatedAt) {
		return Meta{}, Validationf("import record %q: updated_at precedes created_at", rec.ID)
	}
	return Meta{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
		Owner:     rec.Owner,
	}, nil
}

// pendingRow is a validated, column-derived row ready to execute.
type pendingRow struct {
	item  Item
	query string
	args  []any
}

// prepareRow validates a body against the collection schema and builds the
// INSERT for it. The derived columns are computed here so callers can defer
// execution into a transaction.
func (be *Backend) prepareRow(collection string, body json.RawMessage, meta Meta) (pendingRow, error) {
	desc, err := be.descriptor(collection)
	if err != nil {
		return pendingRow{}, err
	}

	doc, err := be.validateBody(desc, body)
	if err != nil {
		return pendingRow{}, err
	}

	cols, err := be.deriveColumns(desc, doc)
	if err != nil {
		return pendingRow{}, err
	}
	meta.Unique = cols.unique.String
	meta.ParentID = cols.parent.String

	table := TableName(collection)
	names := []string{"id", "body", "created_at", "updated_at", "owner", "uniq", "parent_id"}
	args := []any{
		meta.ID,
		string(body),
		database.FormatTime(meta.CreatedAt),
		database.FormatTime(meta.UpdatedAt),
		meta.Owner,
		cols.unique,
		cols.parent,
	}
	for _, field := range desc.Inspect {
		names = append(names, inspectColumn(field))
		args = append(args, cols.inspect[field])
	}

	return pendingRow{
		item: Item{Meta: meta, Body: body},
		query: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, joinColumns(names), placeholders(len(names))),
		args: args,
	}, nil
}

func (be *Backend) write(ctx context.Context, collection string, body json.RawMessage, meta Meta) (Item, error) {
	row, err := be.prepareRow(collection, body, meta)
	if err != nil {
		return Item{}, err
	}

	if _, err := be.db.ExecContext(ctx, row.query, row.args...); err != nil {
		classified := database.ClassifyError(err)
		if database.IsUniqueError(classified) {
			// Caller-visible contract violation, not a storage failure.
			return Item{}, Validationf("unique constraint violation: %v", classified)
		}
		return Item{}, BackendErr(classified)
	}

	return row.item, nil
}

// Get returns the full item or a not-found error.
func (be *Backend) Get(ctx context.Context, collection string, id Id) (Item, error) {
	if _, err := be.descriptor(collection); err != nil {
		return Item{}, err
	}
	table := TableName(collection)
	row := be.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", itemColumns, table), id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, NotFoundf("%s/%s", collection, id)
	}
	if err != nil {
		return Item{}, BackendErr(err)
	}
	return item, nil
}

// GetByUnique looks an item up by its derived unique value. The collection
// must declare x-unique.
func (be *Backend) GetByUnique(ctx context.Context, collection string, value string) (Item, error) {
	desc, err := be.descriptor(collection)
	if err != nil {
		return Item{}, err
	}
	if !desc.HasUnique() {
		return Item{}, Validationf("collection %q does not declare x-unique", collection)
	}

	table := TableName(collection)
	row := be.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE uniq = ?", itemColumns, table), value)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, NotFoundf("%s by unique %q", collection, value)
	}
	if err != nil {
		return Item{}, BackendErr(err)
	}
	return item, nil
}

// Update revalidates the body, refreshes updated_at, and recomputes the
// derived columns.
func (be *Backend) Update(ctx context.Context, collection string, id Id, body json.RawMessage) (Item, error) {
	desc, err := be.descriptor(collection)
	if err != nil {
		return Item{}, err
	}

	doc, err := be.validateBody(desc, body)
	if err != nil {
		return Item{}, err
	}

	cols, err := be.deriveColumns(desc, doc)
	if err != nil {
		return Item{}, err
	}

	table := TableName(collection)
	updatedAt := time.Now().UTC()

	sets := "body = ?, updated_at = ?, uniq = ?, parent_id = ?"
	args := []any{string(body), database.FormatTime(updatedAt), cols.unique, cols.parent}
	for _, field := range desc.Inspect {
		sets += fmt.Sprintf(", %s = ?", inspectColumn(field))
		args = append(args, cols.inspect[field])
	}
	args = append(args, id)

	var item Item
	err = be.db.Transaction(ctx, func(tx *database.Tx) error {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, sets), args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}

		row := tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", itemColumns, table), id)
		item, err = scanItem(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, NotFoundf("%s/%s", collection, id)
	}
	if err != nil {
		classified := database.ClassifyError(err)
		if database.IsUniqueError(classified) {
			return Item{}, Validationf("unique constraint violation: %v", classified)
		}
		return Item{}, BackendErr(classified)
	}
	return item, nil
}

// Delete removes one row. Descendants referencing the deleted row keep their
// parent_id; the resolver treats them as orphans from then on.
func (be *Backend) Delete(ctx context.Context, collection string, id Id) error {
	if _, err := be.descriptor(collection); err != nil {
		return err
	}
	table := TableName(collection)
	res, err := be.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return BackendErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return BackendErr(err)
	}
	if n == 0 {
		return NotFoundf("%s/%s", collection, id)
	}
	return nil
}

// BatchDelete removes every id or none: a missing id rolls the whole batch
// back.
func (be *Backend) BatchDelete(ctx context.Context, collection string, ids []Id) error {
	if _, err := be.descriptor(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	table := TableName(collection)

	err := be.db.Transaction(ctx, func(tx *database.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = ?", table))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range ids {
			res, err := stmt.ExecContext(ctx, id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return NotFoundf("%s/%s", collection, id)
			}
		}
		return nil
	})
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return se
		}
		return BackendErr(err)
	}
	return nil
}

// ListByOwner pages through a collection's items for one owner.
func (be *Backend) ListByOwner(ctx context.Context, collection string, owner Uid, marker Id, limit int) (Page, error) {
	return be.listWhere(ctx, collection, "owner = ?", owner, marker, limit)
}

// ListChildren pages through the items whose parent_id equals parentID.
func (be *Backend) ListChildren(ctx context.Context, collection string, parentID Id, marker Id, limit int) (Page, error) {
	return be.listWhere(ctx, collection, "parent_id = ?", parentID, marker, limit)
}

// ListByInspect pages through items by a materialized x-inspect column.
func (be *Backend) ListByInspect(ctx context.Context, collection string, field, value string, marker Id, limit int) (Page, error) {
	desc, err := be.descriptor(collection)
	if err != nil {
		return Page{}, err
	}
	declared := false
	for _, f := range desc.Inspect {
		if f == field {
			declared = true
			break
		}
	}
	if !declared {
		return Page{}, Validationf("collection %q does not declare x-inspect field %q", collection, field)
	}
	return be.listWhere(ctx, collection, inspectColumn(field)+" = ?", value, marker, limit)
}

// listWhere runs the shared keyset pagination: rows ordered by id, iterated
// with an inclusive marker so concurrent insertions of smaller ids are never
// skipped. The query asks for limit+1 rows; a surplus row supplies the next
// marker and is withheld from the page.
func (be *Backend) listWhere(ctx context.Context, collection, cond string, condArg any, marker Id, limit int) (Page, error) {
	if _, err := be.descriptor(collection); err != nil {
		return Page{}, err
	}
	if limit < 1 {
		return Page{}, Validationf("limit must be at least 1")
	}

	table := TableName(collection)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", itemColumns, table, cond)
	args := []any{condArg}
	if marker != "" {
		query += " AND id >= ?"
		args = append(args, marker)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit+1)

	rows, err := be.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, BackendErr(err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return Page{}, BackendErr(err)
		}
		page.Items = append(page.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Page{}, BackendErr(err)
	}

	if len(page.Items) > limit {
		page.NextMarker = page.Items[limit].ID
		page.Items = page.Items[:limit]
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item               Item
		body               string
		createdAt, updated string
		uniq, parent       sql.NullString
	)
	if err := row.Scan(&item.ID, &body, &createdAt, &updated, &item.Owner, &uniq, &parent); err != nil {
		return Item{}, err
	}

	var err error
	if item.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return Item{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if item.UpdatedAt, err = database.ParseTime(updated); err != nil {
		return Item{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	item.Unique = uniq.String
	item.ParentID = parent.String
	item.Body = json.RawMessage(body)
	return item, nil
}

func joinColumns(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += "?"
	}
	return out
}
