package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/watzon/syncstore/internal/config"
	"github.com/watzon/syncstore/internal/database"
)

// MemoryNamespace is the reserved namespace name selecting an in-memory
// store instead of a file.
const MemoryNamespace = ":memory:"

// Manager routes namespaces to their backends. Immutable after Build; one
// store file (and one connection pool) per namespace.
type Manager struct {
	backends map[string]*Backend
	baseDir  string
}

// BackendFor returns the backend for a namespace or a not-found error.
func (m *Manager) BackendFor(namespace string) (*Backend, error) {
	b, ok := m.backends[namespace]
	if !ok {
		return nil, NotFoundf("namespace %q", namespace)
	}
	return b, nil
}

// Namespaces lists the configured namespace names.
func (m *Manager) Namespaces() []string {
	names := make([]string, 0, len(m.backends))
	for name := range m.backends {
		names = append(names, name)
	}
	return names
}

// Ping checks every namespace backend.
func (m *Manager) Ping(ctx context.Context) error {
	for name, b := range m.backends {
		if err := b.Ping(ctx); err != nil {
			return Backendf("namespace %q: %v", name, err)
		}
	}
	return nil
}

// Close closes every backend. The first error wins; the rest still close.
func (m *Manager) Close() error {
	var firstErr error
	for name, b := range m.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
			log.Error().Err(err).Str("namespace", name).Msg("Closing backend failed")
		}
	}
	return firstErr
}

// ManagerBuilder assembles a Manager from per-namespace schema sets.
type ManagerBuilder struct {
	baseDir  string
	cfg      *config.DatabaseConfig
	backends map[string]*Backend
	err      error
}

// NewManagerBuilder starts a builder rooted at baseDir; each file-backed
// namespace becomes <baseDir>/<namespace>.db.
func NewManagerBuilder(baseDir string, cfg *config.DatabaseConfig) *ManagerBuilder {
	return &ManagerBuilder{
		baseDir:  baseDir,
		cfg:      cfg,
		backends: make(map[string]*Backend),
	}
}

// Schemas maps collection names to their raw JSON schemas.
type Schemas map[string][]byte

// AddNamespace registers a file-backed namespace with its collection
// schemas. Using MemoryNamespace as the name yields an in-memory store.
func (mb *ManagerBuilder) AddNamespace(namespace string, schemas Schemas) *ManagerBuilder {
	return mb.add(namespace, schemas, namespace == MemoryNamespace)
}

// AddMemoryNamespace registers a namespace under its own name but backed by
// an in-memory database, regardless of the name.
func (mb *ManagerBuilder) AddMemoryNamespace(namespace string, schemas Schemas) *ManagerBuilder {
	return mb.add(namespace, schemas, true)
}

func (mb *ManagerBuilder) add(namespace string, schemas Schemas, inMemory bool) *ManagerBuilder {
	if mb.err != nil {
		return mb
	}

	path := database.MemoryPath
	if !inMemory {
		if err := os.MkdirAll(mb.baseDir, 0o755); err != nil {
			mb.err = IOErr(err)
			return mb
		}
		path = filepath.Join(mb.baseDir, namespace+".db")
	}

	bb := NewBackendBuilder(path, mb.cfg)
	for collection, raw := range schemas {
		bb.WithCollection(collection, raw)
	}
	backend, err := bb.Build()
	if err != nil {
		mb.err = err
		return mb
	}
	mb.backends[namespace] = backend

	log.Info().
		Str("namespace", namespace).
		Str("path", path).
		Int("collections", len(schemas)).
		Msg("Namespace registered")

	return mb
}

// Build finalizes the manager. A failed AddNamespace surfaces here.
func (mb *ManagerBuilder) Build() (*Manager, error) {
	if mb.err != nil {
		for _, b := range mb.backends {
			b.Close()
		}
		return nil, mb.err
	}
	return &Manager{backends: mb.backends, baseDir: mb.baseDir}, nil
}
