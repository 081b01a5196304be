// Package service combines the data manager, the ACL store, and the
// permission resolver into the authorized operations the transport exposes.
// Every call is evaluated for the requesting user before touching rows.
package service

import (
	"context"
	"encoding/json"

	"github.com/watzon/syncstore/internal/acl"
	"github.com/watzon/syncstore/internal/store"
)

// Service is the authorized facade over the document store.
type Service struct {
	manager  *store.Manager
	acls     *acl.Store
	resolver *acl.Resolver
}

func New(manager *store.Manager, acls *acl.Store) *Service {
	return &Service{
		manager:  manager,
		acls:     acls,
		resolver: acl.NewResolver(manager, acls),
	}
}

// Resolver exposes the permission resolver for callers that evaluate
// custom requirements.
func (s *Service) Resolver() *acl.Resolver {
	return s.resolver
}

// Manager exposes the underlying data manager.
func (s *Service) Manager() *store.Manager {
	return s.manager
}

// Get fetches an item, requiring READ (or ownership, or an inherited
// grant).
func (s *Service) Get(ctx context.Context, namespace, collection string, id store.Id, user store.Uid) (store.Item, error) {
	backend, err := s.manager.BackendFor(namespace)
	if err != nil {
		return store.Item{}, err
	}
	item, err := backend.Get(ctx, collection, id)
	if err != nil {
		return store.Item{}, err
	}
	if err := s.resolver.Require(ctx, namespace, collection, item, user, acl.MaskRead); err != nil {
		return store.Item{}, err
	}
	return item, nil
}

// GetByUnique fetches an item by its derived unique value, requiring READ.
func (s *Service) GetByUnique(ctx context.Context, namespace, collection, value string, user store.Uid) (store.Item, error) {
	backend, err := s.manager.BackendFor(namespace)
	if err != nil {
		return store.Item{}, err
	}
	item, err := backend.GetByUnique(ctx, collection, value)
	if err != nil {
		return store.Item{}, err
	}
	if err := s.resolver.Require(ctx, namespace, collection, item, user, acl.MaskRead); err != nil {
		return store.Item{}, err
	}
	return item, nil
}

// ListMine pages through the caller's own items in a collection.
func (s *Service) ListMine(ctx context.Context, namespace, collection string, user store.Uid, marker string, limit int) (store.Page, error) {
	backend, err := s.manager.BackendFor(namespace)
	if err != nil {
		return store.Page{}, err
	}
	return backend.ListByOwner(ctx, collection, user, marker, limit)
}

// ListChildren pages through the children of parentID. READ is required on
// the parent item.
func (s *Service) ListChildren(ctx context.Context, namespace, collection string, parentID store.Id, user store.Uid, marker string, limit int) (store.Page, error) {
	backend, err := s.manager.BackendFor(namespace)
	if err != nil {
		return store.Page{}, err
	}
	desc, ok := backend.Descriptor(collection)
	if !ok {
		return store.Page{}, store.Validationf("collection %q not registered", collection)
	}
	if desc.Parent == nil {
		return store.Page{}, store.Validationf("collection %q does not declare a parent", collection)
	}

	parent, err := backend.Get(ctx, desc.Parent.Collection, parentID)
	if err != nil {
		return store.Page{}, err
	}
	if err := s.resolver.Require(ctx, namespace, desc.Parent.Collection, parent, user, acl.MaskRead); err != nil {
		return store.Page{}, err
	}

	return backend.ListChildren(ctx, collection, parentID, marker, limit)
}

// ListByInspect pages through items by a materialized x-inspect column.
// Items the caller cannot read are dropped from the page; the marker still
// advances over the underlying rows.
func (s *Service) ListByInspect(ctx context.Context, namespace, collection, field, value string, user store.Uid, marker string, limit int) (store.Page, error) {
	backend, err := s.manager.BackendFor(namespace)
	if err != nil {
		return store.Page{}, err
	}
	page, err := backend.ListByInspect(ctx, collection, field, value, marker, limit)
	if err != nil {
		return store.Page{}, err
	}

	visible := page.Items[:0]
	for _, item := range page.Items {
		ok, err := s.resolver.Allowed(ctx, namespace, collection, item, user, acl.MaskRead)
		if err != nil {
			if store.IsNotFound(err) {
				// Orphaned ancestry hides the row rather than failing
				// the whole page.
				continue
			}
			return store.Page{}, err
		}
		if ok {
			visible = append(visible, item)
		}
	}
	page.Items = visible
	return page, nil
}

// Insert validates and writes a document. For a root collection the caller
// simply becomes owner; for a child collection the caller needs append
// reach on the parent, and a dangling parent id surfaces as not-found from
// the permission walk.
func (s *Service) Insert(ctx context.Context, namespace, collection string, body json.RawMessage, user store.Uid) (store.Item, error) {
	backend, err := s.manager.BackendFor(namespace)
	if err != nil {
		return store.Item{}, err
	}
	desc, ok := backend.Descriptor(collection)
	if !ok {
		return store.Item{}, store.Validationf("collection %q not registered", collection)
	}

	if desc.Parent != nil {
		parentID, err := parentIDFromBody(body, desc.Parent.Field)
		if err != nil {
			return store.Item{}, err
		}
		parent, err := backend.Get(ctx, desc.Parent.Collection, parentID)
		if err != nil {
			return store.Item{}, err
		}
		if err := s.resolver.Require(ctx, namespace, desc.Parent.Collection, parent, user, acl.MaskAppend1); err != nil {
			return store.Item{}, err
		}
	}

	return backend.Insert(ctx, collection, body, user)
}

// Update requires UPDATE on the item, then revalidates and writes.
func (s *Service) Update(ctx context.Context, namespace, collection string, id store.Id, body json.RawMessage, user store.Uid) (store.Item, error) {
	backend, err := s.manager.BackendFor(namespace)
	if err != nil {
		return store.Item{}, err
	}
	item, err := backend.Get(ctx, collection, id)
	if err != nil {
		return store.Item{}, err
	}
	if err := s.resolver.Require(ctx, namespace, collection, item, user, acl.MaskUpdate); err != nil {
		return store.Item{}, err
	}
	return backend.Update(ctx, collection, id, body)
}

// Delete requires DELETE (ownership or FullAccess on the item itself), then
// removes the row and its grants. Descendants are left untouched.
func (s *Service) Delete(ctx context.Context, namespace, collection string, id store.Id, user store.Uid) error {
	backend, err := s.manager.BackendFor(namespace)
	if err != nil {
		return err
	}
	item, err := backend.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if err := s.resolver.Require(ctx, namespace, collection, item, user, acl.MaskDelete); err != nil {
		return err
	}
	if err := backend.Delete(ctx, collection, id); err != nil {
		return err
	}
	return s.acls.DeleteForData(ctx, collection, id)
}

// BatchDelete requires DELETE on every target before removing any; the
// removal itself is transactional.
func (s *Service) BatchDelete(ctx context.Context, namespace, collection string, ids []store.Id, user store.Uid) error {
	backend, err := s.manager.BackendFor(namespace)
	if err != nil {
		return err
	}
	for _, id := range ids {
		item, err := backend.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		if err := s.resolver.Require(ctx, namespace, collection, item, user, acl.MaskDelete); err != nil {
			return err
		}
	}
	if err := backend.BatchDelete(ctx, collection, ids); err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.acls.DeleteForData(ctx, collection, id); err != nil {
			return err
		}
	}
	return nil
}

// GetACL lists the grants on an item. Only the owner may inspect them.
func (s *Service) GetACL(ctx context.Context, namespace, collection string, id store.Id, user store.Uid) ([]acl.Entry, error) {
	if err := s.requireOwner(ctx, namespace, collection, id, user); err != nil {
		return nil, err
	}
	return s.acls.ListForData(ctx, collection, id)
}

// ReplaceACL swaps the full grant set on an item. Owner only.
func (s *Service) ReplaceACL(ctx context.Context, namespace, collection string, id store.Id, user store.Uid, grants map[store.Uid]acl.Level) error {
	if err := s.requireOwner(ctx, namespace, collection, id, user); err != nil {
		return err
	}
	return s.acls.Replace(ctx, collection, id, user, grants)
}

// GrantACL upserts one grant on an item. Owner only.
func (s *Service) GrantACL(ctx context.Context, namespace, collection string, id store.Id, user store.Uid, grantee store.Uid, level acl.Level) (acl.Entry, error) {
	if err := s.requireOwner(ctx, namespace, collection, id, user); err != nil {
		return acl.Entry{}, err
	}
	return s.acls.Grant(ctx, collection, id, grantee, level, user)
}

// DeleteACL removes every grant on an item. Owner only.
func (s *Service) DeleteACL(ctx context.Context, namespace, collection string, id store.Id, user store.Uid) error {
	if err := s.requireOwner(ctx, namespace, collection, id, user); err != nil {
		return err
	}
	return s.acls.DeleteForData(ctx, collection, id)
}

// ListGrants pages through the grants held by the calling user.
func (s *Service) ListGrants(ctx context.Context, user store.Uid, marker string, limit int) ([]acl.Entry, string, error) {
	return s.acls.ListForUser(ctx, user, marker, limit)
}

func (s *Service) requireOwner(ctx context.Context, namespace, collection string, id store.Id, user store.Uid) error {
	backend, err := s.manager.BackendFor(namespace)
	if err != nil {
		return err
	}
	item, err := backend.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if item.Owner != user {
		return store.PermissionDenied()
	}
	return nil
}

func parentIDFromBody(body json.RawMessage, field string) (store.Id, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", store.Validationf("malformed json body: %v", err)
	}
	raw, ok := doc[field]
	if !ok {
		return "", store.Validationf("parent reference field %q is missing", field)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", store.Validationf("parent reference field %q must be a string id", field)
	}
	return id, nil
}
