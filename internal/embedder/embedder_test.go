package embedder

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	dim   int
	calls int
	fail  bool
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Dimension() int { return f.dim }
func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, assertErr{}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

type memCache struct {
	mu   sync.Mutex
	data map[string][]float32
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]float32)} }

func (c *memCache) Get(hash string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[hash]
	return v, ok, nil
}

func (c *memCache) Put(hash string, vector []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[hash] = vector
	return nil
}

func TestNewRejectsMismatchedDimensions(t *testing.T) {
	_, err := New(nil,
		Registration{Provider: &fakeProvider{name: "a", dim: 768}, IndexPriority: 0, SearchPriority: 0},
		Registration{Provider: &fakeProvider{name: "b", dim: 1024}, IndexPriority: 1, SearchPriority: 1},
	)
	require.Error(t, err)
}

func TestEmbedUsesCacheOnSecondCall(t *testing.T) {
	p := &fakeProvider{name: "local", dim: 3}
	cache := newMemCache()
	e, err := New(cache, Registration{Provider: p, IndexPriority: 0, SearchPriority: 0})
	require.NoError(t, err)

	_, err = e.EmbedForIndex(context.Background(), []string{"hello"})
	require.NoError(t, err)
	_, err = e.EmbedForIndex(context.Background(), []string{"hello"})
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls)
}

func TestEmbedFallsBackToNextProviderOnFailure(t *testing.T) {
	bad := &fakeProvider{name: "bad", dim: 3, fail: true}
	good := &fakeProvider{name: "good", dim: 3}
	e, err := New(nil,
		Registration{Provider: bad, IndexPriority: 0, SearchPriority: 0},
		Registration{Provider: good, IndexPriority: 1, SearchPriority: 1},
	)
	require.NoError(t, err)

	vecs, err := e.EmbedForIndex(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, good.calls)
}
