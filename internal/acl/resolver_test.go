package acl

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/syncstore/internal/store"
)

const (
	repoSchema = `{
		"type": "object",
		"properties": { "name": { "type": "string" } },
		"required": ["name"]
	}`
	postSchema = `{
		"type": "object",
		"properties": { "repo_id": { "type": "string" }, "title": { "type": "string" } },
		"required": ["repo_id", "title"],
		"x-parent-id": { "parent": "repo", "field": "repo_id" }
	}`
	commentSchema = `{
		"type": "object",
		"properties": { "post_id": { "type": "string" }, "content": { "type": "string" } },
		"required": ["post_id", "content"],
		"x-parent-id": { "parent": "post", "field": "post_id" }
	}`
)

const ns = "blog"

type fixture struct {
	resolver *Resolver
	backend  *store.Backend
	acls     *Store
}

func setup(t *testing.T) *fixture {
	t.Helper()

	acls := testStore(t)

	manager, err := store.NewManagerBuilder(t.TempDir(), testDBConfig()).
		AddMemoryNamespace(ns, store.Schemas{
			"repo":    []byte(repoSchema),
			"post":    []byte(postSchema),
			"comment": []byte(commentSchema),
		}).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	backend, err := manager.BackendFor(ns)
	require.NoError(t, err)

	return &fixture{
		resolver: NewResolver(manager, acls),
		backend:  backend,
		acls:     acls,
	}
}

func (f *fixture) insert(t *testing.T, collection, body, owner string) store.Item {
	t.Helper()
	item, err := f.backend.Insert(context.Background(), collection, json.RawMessage(body), owner)
	require.NoError(t, err)
	return item
}

func (f *fixture) tree(t *testing.T, owner string) (repo, post, comment store.Item) {
	t.Helper()
	repo = f.insert(t, "repo", `{"name":"r"}`, owner)
	post = f.insert(t, "post", fmt.Sprintf(`{"repo_id":%q,"title":"p"}`, repo.ID), owner)
	comment = f.insert(t, "comment", fmt.Sprintf(`{"post_id":%q,"content":"c"}`, post.ID), owner)
	return
}

func (f *fixture) allowed(t *testing.T, collection string, item store.Item, user string, required Mask) bool {
	t.Helper()
	ok, err := f.resolver.Allowed(context.Background(), ns, collection, item, user, required)
	require.NoError(t, err)
	return ok
}

func TestOwnerShortCircuits(t *testing.T) {
	f := setup(t)
	repo, post, comment := f.tree(t, "alice")

	for _, required := range []Mask{MaskRead, MaskUpdate, MaskDelete, MaskAppend1, MaskFull} {
		assert.True(t, f.allowed(t, "repo", repo, "alice", required))
		assert.True(t, f.allowed(t, "post", post, "alice", required))
		assert.True(t, f.allowed(t, "comment", comment, "alice", required))
	}
}

func TestNoGrantDenies(t *testing.T) {
	f := setup(t)
	repo, _, _ := f.tree(t, "alice")

	assert.False(t, f.allowed(t, "repo", repo, "bob", MaskRead))
}

func TestReadGrantOnRepo(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	repo, post, _ := f.tree(t, "alice")

	_, err := f.acls.Grant(ctx, "repo", repo.ID, "bob", LevelRead, "alice")
	require.NoError(t, err)

	// Reading the repo and its descendants works; the READ requirement
	// carries unchanged up the walk.
	assert.True(t, f.allowed(t, "repo", repo, "bob", MaskRead))
	assert.True(t, f.allowed(t, "post", post, "bob", MaskRead))

	// Mutation stays denied.
	assert.False(t, f.allowed(t, "repo", repo, "bob", MaskUpdate))
	assert.False(t, f.allowed(t, "post", post, "bob", MaskUpdate))
}

func TestAppendReachDecaysPerLevel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	repo, post, _ := f.tree(t, "alice")

	// ReadAppend1 on the repo: creating a post (append evaluated on the
	// repo itself) is allowed.
	_, err := f.acls.Grant(ctx, "repo", repo.ID, "bob", LevelReadAppend1, "alice")
	require.NoError(t, err)
	assert.True(t, f.allowed(t, "repo", repo, "bob", MaskAppend1))

	// Creating a comment under alice's post needs APPEND_1 at the post,
	// which promotes to APPEND_2 at the repo. ReadAppend1 does not reach.
	assert.False(t, f.allowed(t, "post", post, "bob", MaskAppend1))

	// Re-granting ReadAppend2 gives the extra hop.
	_, err = f.acls.Grant(ctx, "repo", repo.ID, "bob", LevelReadAppend2, "alice")
	require.NoError(t, err)
	assert.True(t, f.allowed(t, "post", post, "bob", MaskAppend1))

	// But the UPDATE bit is still absent at the post level.
	assert.False(t, f.allowed(t, "post", post, "bob", MaskUpdate))
}

func TestAppendReachExhaustsAfterThreeHops(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Four-level chain: a → b → c → d, alice owns all.
	manager, err := store.NewManagerBuilder(t.TempDir(), testDBConfig()).
		AddMemoryNamespace("deep", store.Schemas{
			"a": []byte(`{"type":"object"}`),
			"b": []byte(`{"type":"object","x-parent-id":{"parent":"a","field":"aid"}}`),
			"c": []byte(`{"type":"object","x-parent-id":{"parent":"b","field":"bid"}}`),
			"d": []byte(`{"type":"object","x-parent-id":{"parent":"c","field":"cid"}}`),
		}).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	backend, err := manager.BackendFor("deep")
	require.NoError(t, err)
	resolver := NewResolver(manager, f.acls)

	ins := func(coll, body string) store.Item {
		item, err := backend.Insert(ctx, coll, json.RawMessage(body), "alice")
		require.NoError(t, err)
		return item
	}
	a := ins("a", `{}`)
	b := ins("b", fmt.Sprintf(`{"aid":%q}`, a.ID))
	c := ins("c", fmt.Sprintf(`{"bid":%q}`, b.ID))
	d := ins("d", fmt.Sprintf(`{"cid":%q}`, c.ID))

	_, err = f.acls.Grant(ctx, "a", a.ID, "bob", LevelReadAppend3, "alice")
	require.NoError(t, err)

	check := func(coll string, item store.Item, want bool) {
		ok, err := resolver.Allowed(ctx, "deep", coll, item, "bob", MaskAppend1)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "append at %s", coll)
	}

	// APPEND_1 at b promotes to APPEND_2 at a; at c to APPEND_3; at d the
	// promotion would exceed three hops and the walk stops short.
	check("a", a, true)
	check("b", b, true)
	check("c", c, true)
	check("d", d, false)
}

func TestDeleteRequiresGrantOnItemItself(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	repo, post, comment := f.tree(t, "alice")

	_, err := f.acls.Grant(ctx, "repo", repo.ID, "bob", LevelFullAccess, "alice")
	require.NoError(t, err)

	// FullAccess on the repo allows deleting the repo.
	assert.True(t, f.allowed(t, "repo", repo, "bob", MaskDelete))

	// But DELETE does not inherit downward to descendants.
	assert.False(t, f.allowed(t, "post", post, "bob", MaskDelete))
	assert.False(t, f.allowed(t, "comment", comment, "bob", MaskDelete))

	// READ still flows down from FullAccess.
	assert.True(t, f.allowed(t, "comment", comment, "bob", MaskRead))
}

func TestOwnedAncestorGrantsAccess(t *testing.T) {
	f := setup(t)
	repo := f.insert(t, "repo", `{"name":"r"}`, "bob")
	post := f.insert(t, "post", fmt.Sprintf(`{"repo_id":%q,"title":"p"}`, repo.ID), "alice")

	// Bob owns the repo; ownership short-circuits at the ancestor level.
	assert.True(t, f.allowed(t, "post", post, "bob", MaskRead))
}

func TestMissingAncestorPropagatesNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	repo, post, _ := f.tree(t, "alice")

	require.NoError(t, f.backend.Delete(ctx, "repo", repo.ID))

	_, err := f.resolver.Allowed(ctx, ns, "post", post, "bob", MaskRead)
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err), "orphaned ancestry is a configuration inconsistency")
}

func TestRequireMapsDenyToPermissionDenied(t *testing.T) {
	f := setup(t)
	repo, _, _ := f.tree(t, "alice")

	err := f.resolver.Require(context.Background(), ns, "repo", repo, "bob", MaskRead)
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))
}
