package vectorstore

import (
	"context"
	"fmt"
	"sync"
)

// CollectionManager maps project slugs to vector-store collections and
// ensures they're created on first use, caching the result in-memory
// (spec §4.6: "per-project collection, created lazily on first use").
type CollectionManager struct {
	store  Store
	prefix string
	dim    int

	mu    sync.RWMutex
	known map[string]bool
}

func NewCollectionManager(store Store, prefix string, dim int) *CollectionManager {
	if prefix == "" {
		prefix = "fold_"
	}
	return &CollectionManager{
		store:  store,
		prefix: prefix,
		dim:    dim,
		known:  make(map[string]bool),
	}
}

// Name returns the collection name for a project slug.
func (m *CollectionManager) Name(projectSlug string) string {
	return m.prefix + projectSlug
}

// EnsureForProject creates the collection for a project if it doesn't
// already exist and returns its name.
func (m *CollectionManager) EnsureForProject(ctx context.Context, projectSlug string) (string, error) {
	name := m.Name(projectSlug)

	m.mu.RLock()
	if m.known[name] {
		m.mu.RUnlock()
		return name, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.known[name] {
		return name, nil
	}

	if err := m.store.EnsureCollection(ctx, name, m.dim); err != nil {
		return "", fmt.Errorf("ensure collection %s: %w", name, err)
	}
	m.known[name] = true
	return name, nil
}

// DropForProject deletes the project's collection and clears the cache
// entry (spec §3: deleting a project cascades to its vector collection).
func (m *CollectionManager) DropForProject(ctx context.Context, projectSlug string) error {
	name := m.Name(projectSlug)
	if err := m.store.DeleteCollection(ctx, name); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.known, name)
	m.mu.Unlock()
	return nil
}
