package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertN(t *testing.T, be *Backend, collection, owner string, n int) map[Id]bool {
	t.Helper()
	ids := make(map[Id]bool, n)
	for i := 0; i < n; i++ {
		item, err := be.Insert(context.Background(), collection,
			json.RawMessage(fmt.Sprintf(`{"title":"%s item %d"}`, owner, i)), owner)
		require.NoError(t, err)
		ids[item.ID] = true
	}
	return ids
}

func TestListByOwnerPagination(t *testing.T) {
	be := testBackend(t, map[string]string{"post": postSchema})
	ctx := context.Background()

	const n = 12
	const limit = 5
	want := insertN(t, be, "post", "alice", n)
	insertN(t, be, "post", "bob", 3)

	seen := map[Id]bool{}
	marker := ""
	pages := 0
	for {
		page, err := be.ListByOwner(ctx, "post", "alice", marker, limit)
		require.NoError(t, err)
		pages++

		for _, item := range page.Items {
			assert.Equal(t, "alice", item.Owner)
			assert.False(t, seen[item.ID], "no duplicates across pages")
			seen[item.ID] = true
		}

		if page.NextMarker == "" {
			break
		}
		// Full pages before the last one.
		assert.Len(t, page.Items, limit)
		marker = page.NextMarker
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, want, seen, "union of pages equals the full set")
}

func TestListFirstPageExact(t *testing.T) {
	be := testBackend(t, map[string]string{"post": postSchema})
	ctx := context.Background()

	insertN(t, be, "post", "alice", 8)

	page, err := be.ListByOwner(ctx, "post", "alice", "", 8)
	require.NoError(t, err)
	assert.Len(t, page.Items, 8)
	assert.Empty(t, page.NextMarker, "marker is null when the page covers the set")

	page, err = be.ListByOwner(ctx, "post", "alice", "", 3)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.NotEmpty(t, page.NextMarker)
}

func TestListMarkerIsInclusive(t *testing.T) {
	be := testBackend(t, map[string]string{"post": postSchema})
	ctx := context.Background()

	insertN(t, be, "post", "alice", 4)

	first, err := be.ListByOwner(ctx, "post", "alice", "", 2)
	require.NoError(t, err)
	require.NotEmpty(t, first.NextMarker)

	second, err := be.ListByOwner(ctx, "post", "alice", first.NextMarker, 2)
	require.NoError(t, err)
	require.NotEmpty(t, second.Items)
	assert.Equal(t, first.NextMarker, second.Items[0].ID,
		"the marker row is the first row of the next page")
}

func TestListRejectsBadLimit(t *testing.T) {
	be := testBackend(t, map[string]string{"post": postSchema})

	_, err := be.ListByOwner(context.Background(), "post", "alice", "", 0)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestListChildren(t *testing.T) {
	be := testBackend(t, map[string]string{"repo": repoSchema, "post": childPostSchema})
	ctx := context.Background()

	repoA, err := be.Insert(ctx, "repo", json.RawMessage(`{"name":"a"}`), "u1")
	require.NoError(t, err)
	repoB, err := be.Insert(ctx, "repo", json.RawMessage(`{"name":"b"}`), "u1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := be.Insert(ctx, "post",
			json.RawMessage(fmt.Sprintf(`{"repo_id":%q,"title":"a%d"}`, repoA.ID, i)), "u1")
		require.NoError(t, err)
	}
	_, err = be.Insert(ctx, "post",
		json.RawMessage(fmt.Sprintf(`{"repo_id":%q,"title":"b0"}`, repoB.ID)), "u1")
	require.NoError(t, err)

	page, err := be.ListChildren(ctx, "post", repoA.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	for _, item := range page.Items {
		assert.Equal(t, repoA.ID, item.ParentID)
	}
}

func TestListByInspect(t *testing.T) {
	be := testBackend(t, map[string]string{"post": postSchema})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := be.Insert(ctx, "post",
			json.RawMessage(fmt.Sprintf(`{"title":"p%d","author":"carol"}`, i)), "u1")
		require.NoError(t, err)
	}
	_, err := be.Insert(ctx, "post", json.RawMessage(`{"title":"other","author":"dave"}`), "u1")
	require.NoError(t, err)

	page, err := be.ListByInspect(ctx, "post", "author", "carol", "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)

	// Undeclared fields are rejected rather than scanned.
	_, err = be.ListByInspect(ctx, "post", "title", "p0", "", 10)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}
