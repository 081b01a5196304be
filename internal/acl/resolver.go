package acl

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/watzon/syncstore/internal/metrics"
	"github.com/watzon/syncstore/internal/store"
)

// maxWalkDepth backstops the ancestor walk. Schema registration already
// rejects parent chains deeper than this, so hitting it at request time
// indicates corrupted data rather than configuration.
const maxWalkDepth = 8

// Resolver decides whether a user may perform an operation on an item. The
// decision procedure, per level of the ancestor chain: ownership
// short-circuit, then any direct grant whose mask covers the requirement,
// then the walk to the parent with the requirement's append reach promoted.
type Resolver struct {
	manager *store.Manager
	acls    *Store
}

func NewResolver(manager *store.Manager, acls *Store) *Resolver {
	return &Resolver{manager: manager, acls: acls}
}

// Allowed reports whether user holds required on item. A missing ancestor
// row propagates as a not-found error (configuration inconsistency, not a
// deny). The result is deterministic for a fixed database snapshot.
func (r *Resolver) Allowed(ctx context.Context, namespace, collection string, item store.Item, user store.Uid, required Mask) (bool, error) {
	backend, err := r.manager.BackendFor(namespace)
	if err != nil {
		return false, err
	}

	cur := item
	curColl := collection
	req := required

	for depth := 0; depth <= maxWalkDepth; depth++ {
		if cur.Owner == user {
			return true, nil
		}

		entries, err := r.acls.ListForData(ctx, curColl, cur.ID)
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			if e.UserID == user && e.Level.Mask().Satisfies(req) {
				return true, nil
			}
		}

		desc, ok := backend.Descriptor(curColl)
		if !ok || desc.Parent == nil || cur.ParentID == "" {
			return false, nil
		}

		upgraded, ok := req.UpgradeForParent()
		if !ok {
			return false, nil
		}

		parent, err := backend.Get(ctx, desc.Parent.Collection, cur.ParentID)
		if err != nil {
			return false, err
		}

		cur = parent
		curColl = desc.Parent.Collection
		req = upgraded
	}

	log.Warn().
		Str("namespace", namespace).
		Str("collection", collection).
		Str("item", item.ID).
		Msg("Ancestor walk exceeded depth bound")
	return false, nil
}

// Require is Allowed with a deny surfaced as a permission-denied error.
func (r *Resolver) Require(ctx context.Context, namespace, collection string, item store.Item, user store.Uid, required Mask) error {
	ok, err := r.Allowed(ctx, namespace, collection, item, user, required)
	if err != nil {
		return err
	}
	metrics.RecordPermissionCheck(ok)
	if !ok {
		return store.PermissionDenied()
	}
	return nil
}
