package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/syncstore/internal/acl"
	"github.com/watzon/syncstore/internal/config"
	"github.com/watzon/syncstore/internal/service"
	"github.com/watzon/syncstore/internal/store"
)

func seedFixture(t *testing.T) *service.Service {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, initCmd.RunE(initCmd, []string{dir}))

	namespaces, err := store.LoadSchemaDir(filepath.Join(dir, "schemas"))
	require.NoError(t, err)

	dbCfg := &config.DatabaseConfig{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	manager, err := store.NewManagerBuilder(t.TempDir(), dbCfg).
		AddMemoryNamespace(seedNamespace, namespaces[seedNamespace]).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	acls, err := acl.NewMemoryStore(dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { acls.Close() })

	return service.New(manager, acls)
}

func TestSeedDemoPlantsTree(t *testing.T) {
	svc := seedFixture(t)
	ctx := context.Background()

	require.NoError(t, seedDemo(ctx, svc))

	backend, err := svc.Manager().BackendFor(seedNamespace)
	require.NoError(t, err)

	repo, err := backend.GetByUnique(ctx, "repo", seedRepoName)
	require.NoError(t, err)
	assert.Equal(t, seedOwner, repo.Owner)

	posts, err := backend.ListChildren(ctx, "post", repo.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, posts.Items, 1)

	comments, err := backend.ListChildren(ctx, "comment", posts.Items[0].ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, comments.Items, 1)
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	svc := seedFixture(t)
	ctx := context.Background()

	require.NoError(t, seedDemo(ctx, svc))
	require.NoError(t, seedDemo(ctx, svc))

	backend, err := svc.Manager().BackendFor(seedNamespace)
	require.NoError(t, err)

	repo, err := backend.GetByUnique(ctx, "repo", seedRepoName)
	require.NoError(t, err)
	posts, err := backend.ListChildren(ctx, "post", repo.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, posts.Items, 1)
}
