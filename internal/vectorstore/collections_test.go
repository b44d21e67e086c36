package vectorstore

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	ensureCalls int32
}

func (f *fakeStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	atomic.AddInt32(&f.ensureCalls, 1)
	return nil
}
func (f *fakeStore) DeleteCollection(ctx context.Context, name string) error { return nil }
func (f *fakeStore) Upsert(ctx context.Context, collection string, points []Point) error {
	return nil
}
func (f *fakeStore) Delete(ctx context.Context, collection string, ids []string) error { return nil }
func (f *fakeStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]any) ([]SearchHit, error) {
	return nil, nil
}
func (f *fakeStore) Count(ctx context.Context, collection string) (int, error) { return 0, nil }
func (f *fakeStore) Health(ctx context.Context) error                          { return nil }

func TestEnsureForProjectCachesAfterFirstCall(t *testing.T) {
	fs := &fakeStore{}
	mgr := NewCollectionManager(fs, "fold_", 768)

	name1, err := mgr.EnsureForProject(context.Background(), "p")
	require.NoError(t, err)
	name2, err := mgr.EnsureForProject(context.Background(), "p")
	require.NoError(t, err)

	assert.Equal(t, "fold_p", name1)
	assert.Equal(t, name1, name2)
	assert.EqualValues(t, 1, fs.ensureCalls)
}

func TestNameUsesConfiguredPrefix(t *testing.T) {
	mgr := NewCollectionManager(&fakeStore{}, "custom_", 768)
	assert.Equal(t, "custom_p", mgr.Name("p"))
}
