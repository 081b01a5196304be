package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/syncstore/internal/acl"
	"github.com/watzon/syncstore/internal/config"
	"github.com/watzon/syncstore/internal/store"
)

const ns = "blog"

func testDBConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 2,
		MaxIdleConns: 2,
	}
}

func testService(t *testing.T) *Service {
	t.Helper()

	manager, err := store.NewManagerBuilder(t.TempDir(), testDBConfig()).
		AddMemoryNamespace(ns, store.Schemas{
			"repo": []byte(`{
				"type": "object",
				"properties": { "name": { "type": "string" } },
				"required": ["name"],
				"x-unique": "name"
			}`),
			"post": []byte(`{
				"type": "object",
				"properties": {
					"repo_id": { "type": "string" },
					"title": { "type": "string" },
					"author": { "type": "string" }
				},
				"required": ["repo_id", "title"],
				"x-parent-id": { "parent": "repo", "field": "repo_id" },
				"x-inspect": "author"
			}`),
			"comment": []byte(`{
				"type": "object",
				"properties": { "post_id": { "type": "string" }, "content": { "type": "string" } },
				"required": ["post_id", "content"],
				"x-parent-id": { "parent": "post", "field": "post_id" }
			}`),
		}).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	acls, err := acl.NewMemoryStore(testDBConfig())
	require.NoError(t, err)
	t.Cleanup(func() { acls.Close() })

	return New(manager, acls)
}

func insertRepo(t *testing.T, svc *Service, name, owner string) store.Item {
	t.Helper()
	item, err := svc.Insert(context.Background(), ns, "repo",
		json.RawMessage(fmt.Sprintf(`{"name":%q}`, name)), owner)
	require.NoError(t, err)
	return item
}

func insertPost(t *testing.T, svc *Service, repoID, title, owner string) store.Item {
	t.Helper()
	item, err := svc.Insert(context.Background(), ns, "post",
		json.RawMessage(fmt.Sprintf(`{"repo_id":%q,"title":%q}`, repoID, title)), owner)
	require.NoError(t, err)
	return item
}

func TestRootInsertAlwaysAllowed(t *testing.T) {
	svc := testService(t)

	repo := insertRepo(t, svc, "r", "alice")
	assert.Equal(t, "alice", repo.Owner)

	got, err := svc.Get(context.Background(), ns, "repo", repo.ID, "alice")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"r"}`, string(got.Body))
}

func TestGetRequiresRead(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	repo := insertRepo(t, svc, "r", "alice")

	_, err := svc.Get(ctx, ns, "repo", repo.ID, "bob")
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))

	_, err = svc.GrantACL(ctx, ns, "repo", repo.ID, "alice", "bob", acl.LevelRead)
	require.NoError(t, err)

	_, err = svc.Get(ctx, ns, "repo", repo.ID, "bob")
	require.NoError(t, err)
}

func TestChildInsertNeedsAppendOnParent(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	repo := insertRepo(t, svc, "r", "alice")

	body := json.RawMessage(fmt.Sprintf(`{"repo_id":%q,"title":"p"}`, repo.ID))

	// No grant: denied.
	_, err := svc.Insert(ctx, ns, "post", body, "bob")
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))

	// Read grant does not include append.
	_, err = svc.GrantACL(ctx, ns, "repo", repo.ID, "alice", "bob", acl.LevelRead)
	require.NoError(t, err)
	_, err = svc.Insert(ctx, ns, "post", body, "bob")
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))

	// ReadAppend1 allows it, and bob becomes the owner.
	_, err = svc.GrantACL(ctx, ns, "repo", repo.ID, "alice", "bob", acl.LevelReadAppend1)
	require.NoError(t, err)
	post, err := svc.Insert(ctx, ns, "post", body, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", post.Owner)
}

func TestAppendReachScenario(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	// Alice owns repo R and post P under it. With ReadAppend1 on R, bob
	// cannot comment under P; with ReadAppend2 he can.
	repo := insertRepo(t, svc, "r", "alice")
	post := insertPost(t, svc, repo.ID, "p", "alice")
	comment := json.RawMessage(fmt.Sprintf(`{"post_id":%q,"content":"hi"}`, post.ID))

	_, err := svc.GrantACL(ctx, ns, "repo", repo.ID, "alice", "bob", acl.LevelReadAppend1)
	require.NoError(t, err)
	_, err = svc.Insert(ctx, ns, "comment", comment, "bob")
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))

	_, err = svc.GrantACL(ctx, ns, "repo", repo.ID, "alice", "bob", acl.LevelReadAppend2)
	require.NoError(t, err)
	_, err = svc.Insert(ctx, ns, "comment", comment, "bob")
	require.NoError(t, err)

	// Bob may comment under his own posts regardless: ownership
	// short-circuits.
	bobPost := insertPost(t, svc, repo.ID, "bp", "bob")
	_, err = svc.Insert(ctx, ns, "comment",
		json.RawMessage(fmt.Sprintf(`{"post_id":%q,"content":"mine"}`, bobPost.ID)), "bob")
	require.NoError(t, err)
}

func TestDanglingParentIsNotFound(t *testing.T) {
	svc := testService(t)

	// The permission walk fetches the parent first, so a dangling id
	// surfaces as not-found at this layer (the bare mapper reports
	// validation instead; the surface behavior is what must be stable).
	_, err := svc.Insert(context.Background(), ns, "post",
		json.RawMessage(`{"repo_id":"deadbeef","title":"x"}`), "alice")
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
}

func TestUpdatePermissions(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	repo := insertRepo(t, svc, "r", "alice")

	newBody := json.RawMessage(`{"name":"r2"}`)

	_, err := svc.Update(ctx, ns, "repo", repo.ID, newBody, "bob")
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))

	_, err = svc.GrantACL(ctx, ns, "repo", repo.ID, "alice", "bob", acl.LevelUpdate)
	require.NoError(t, err)
	updated, err := svc.Update(ctx, ns, "repo", repo.ID, newBody, "bob")
	require.NoError(t, err)
	assert.JSONEq(t, string(newBody), string(updated.Body))
}

func TestDeleteNeedsFullAccessAndClearsGrants(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	repo := insertRepo(t, svc, "r", "alice")

	_, err := svc.GrantACL(ctx, ns, "repo", repo.ID, "alice", "bob", acl.LevelWrite)
	require.NoError(t, err)

	err = svc.Delete(ctx, ns, "repo", repo.ID, "bob")
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))

	_, err = svc.GrantACL(ctx, ns, "repo", repo.ID, "alice", "bob", acl.LevelFullAccess)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, ns, "repo", repo.ID, "bob"))

	_, err = svc.Get(ctx, ns, "repo", repo.ID, "alice")
	assert.True(t, store.IsNotFound(err))

	// The grants went with the item.
	entries, _, err := svc.ListGrants(ctx, "bob", "", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListChildrenRequiresReadOnParent(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	repo := insertRepo(t, svc, "r", "alice")
	for i := 0; i < 12; i++ {
		insertPost(t, svc, repo.ID, fmt.Sprintf("p%d", i), "alice")
	}

	_, err := svc.ListChildren(ctx, ns, "post", repo.ID, "bob", "", 5)
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))

	_, err = svc.GrantACL(ctx, ns, "repo", repo.ID, "alice", "bob", acl.LevelRead)
	require.NoError(t, err)

	// Three pages of five consume all twelve without duplicates.
	seen := map[string]bool{}
	marker := ""
	pages := 0
	for {
		page, err := svc.ListChildren(ctx, ns, "post", repo.ID, "bob", marker, 5)
		require.NoError(t, err)
		pages++
		for _, item := range page.Items {
			assert.False(t, seen[item.ID])
			seen[item.ID] = true
		}
		if page.NextMarker == "" {
			break
		}
		marker = page.NextMarker
	}
	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 12)

	// Listing children of a root collection is a validation error.
	_, err = svc.ListChildren(ctx, ns, "repo", repo.ID, "alice", "", 5)
	require.Error(t, err)
	assert.True(t, store.IsValidation(err))
}

func TestListByInspectFiltersUnreadable(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	aliceRepo := insertRepo(t, svc, "ar", "alice")
	bobRepo := insertRepo(t, svc, "br", "bob")

	mk := func(repoID, owner string, i int) {
		_, err := svc.Insert(ctx, ns, "post", json.RawMessage(
			fmt.Sprintf(`{"repo_id":%q,"title":"t%d","author":"carol"}`, repoID, i)), owner)
		require.NoError(t, err)
	}
	mk(aliceRepo.ID, "alice", 0)
	mk(aliceRepo.ID, "alice", 1)
	mk(bobRepo.ID, "bob", 2)

	// Bob sees only his own post for the shared author value.
	page, err := svc.ListByInspect(ctx, ns, "post", "author", "carol", "bob", "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestReplaceACLOwnerOnly(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	repo := insertRepo(t, svc, "r", "alice")

	grants := map[store.Uid]acl.Level{"bob": acl.LevelRead}

	err := svc.ReplaceACL(ctx, ns, "repo", repo.ID, "bob", grants)
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))

	require.NoError(t, svc.ReplaceACL(ctx, ns, "repo", repo.ID, "alice", grants))

	entries, err := svc.GetACL(ctx, ns, "repo", repo.ID, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.Uid("bob"), entries[0].UserID)

	// Non-owners cannot even read the grant set.
	_, err = svc.GetACL(ctx, ns, "repo", repo.ID, "bob")
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))
}

func TestBatchDeleteChecksEveryTarget(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	mine := insertRepo(t, svc, "mine", "alice")
	other := insertRepo(t, svc, "other", "bob")

	err := svc.BatchDelete(ctx, ns, "repo", []store.Id{mine.ID, other.ID}, "alice")
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))

	// Nothing was deleted.
	_, err = svc.Get(ctx, ns, "repo", mine.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, svc.BatchDelete(ctx, ns, "repo", []store.Id{mine.ID}, "alice"))
	_, err = svc.Get(ctx, ns, "repo", mine.ID, "alice")
	assert.True(t, store.IsNotFound(err))
}

func TestUnknownNamespace(t *testing.T) {
	svc := testService(t)

	_, err := svc.Get(context.Background(), "nope", "repo", "x", "alice")
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
}

func TestGetByUniqueRequiresRead(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	repo := insertRepo(t, svc, "named", "alice")

	got, err := svc.GetByUnique(ctx, ns, "repo", "named", "alice")
	require.NoError(t, err)
	assert.Equal(t, repo.ID, got.ID)

	_, err = svc.GetByUnique(ctx, ns, "repo", "named", "bob")
	require.Error(t, err)
	assert.True(t, store.IsPermissionDenied(err))
}
