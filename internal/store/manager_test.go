package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRoutesNamespaces(t *testing.T) {
	baseDir := t.TempDir()

	m, err := NewManagerBuilder(baseDir, testDBConfig()).
		AddNamespace("blog", Schemas{"post": []byte(postSchema)}).
		AddMemoryNamespace("scratch", Schemas{"post": []byte(postSchema)}).
		Build()
	require.NoError(t, err)
	defer m.Close()

	blog, err := m.BackendFor("blog")
	require.NoError(t, err)
	scratch, err := m.BackendFor("scratch")
	require.NoError(t, err)

	_, err = m.BackendFor("nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	ctx := context.Background()
	item, err := blog.Insert(ctx, "post", json.RawMessage(`{"title":"on disk"}`), "u1")
	require.NoError(t, err)

	// Namespaces are isolated stores.
	_, err = scratch.Get(ctx, "post", item.ID)
	assert.True(t, IsNotFound(err))

	// The file-backed namespace landed in its own file.
	_, err = os.Stat(filepath.Join(baseDir, "blog.db"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(baseDir, "scratch.db"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, m.Ping(ctx))
	assert.ElementsMatch(t, []string{"blog", "scratch"}, m.Namespaces())
}

func TestManagerReservedMemoryNamespace(t *testing.T) {
	m, err := NewManagerBuilder(t.TempDir(), testDBConfig()).
		AddNamespace(MemoryNamespace, Schemas{"post": []byte(postSchema)}).
		Build()
	require.NoError(t, err)
	defer m.Close()

	be, err := m.BackendFor(MemoryNamespace)
	require.NoError(t, err)
	require.NoError(t, be.Ping(context.Background()))
}

func TestManagerBuilderSurfacesSchemaErrors(t *testing.T) {
	_, err := NewManagerBuilder(t.TempDir(), testDBConfig()).
		AddNamespace("bad", Schemas{"c": []byte(`{"x-unique": 42}`)}).
		Build()
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestLoadSchemaDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "blog"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blog", "post.json"), []byte(postSchema), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blog", "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))

	namespaces, err := LoadSchemaDir(dir)
	require.NoError(t, err)

	require.Contains(t, namespaces, "blog")
	assert.NotContains(t, namespaces, "empty")
	assert.Contains(t, namespaces["blog"], "post")
	assert.JSONEq(t, postSchema, string(namespaces["blog"]["post"]))
}

func TestLoadSchemaDirMissing(t *testing.T) {
	namespaces, err := LoadSchemaDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, namespaces)
}
