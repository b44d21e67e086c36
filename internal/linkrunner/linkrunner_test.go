package linkrunner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldhq/fold/internal/blob"
	"github.com/foldhq/fold/internal/embedder"
	"github.com/foldhq/fold/internal/linker"
	"github.com/foldhq/fold/internal/llmclient"
	"github.com/foldhq/fold/internal/memory"
	"github.com/foldhq/fold/internal/relstore"
	"github.com/foldhq/fold/internal/vectorstore"
)

type fakeEmbedProvider struct{ dim int }

func (f *fakeEmbedProvider) Name() string   { return "fake" }
func (f *fakeEmbedProvider) Dimension() int { return f.dim }
func (f *fakeEmbedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

type fakeVectorStore struct{ hits []vectorstore.SearchHit }

func (f *fakeVectorStore) EnsureCollection(ctx context.Context, name string, dim int) error { return nil }
func (f *fakeVectorStore) DeleteCollection(ctx context.Context, name string) error           { return nil }
func (f *fakeVectorStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	return nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, collection string, ids []string) error { return nil }
func (f *fakeVectorStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]any) ([]vectorstore.SearchHit, error) {
	return f.hits, nil
}
func (f *fakeVectorStore) Count(ctx context.Context, collection string) (int, error) { return 0, nil }
func (f *fakeVectorStore) Health(ctx context.Context) error                          { return nil }

type fakeLLMProvider struct{}

func (p *fakeLLMProvider) Name() string { return "fake" }
func (p *fakeLLMProvider) SummarizeCode(ctx context.Context, content, filePath, language string) (*llmclient.CodeSummary, error) {
	return &llmclient.CodeSummary{}, nil
}
func (p *fakeLLMProvider) AnalyseContent(ctx context.Context, content string) (*llmclient.ContentAnalysis, error) {
	return &llmclient.ContentAnalysis{}, nil
}
func (p *fakeLLMProvider) SuggestEvolution(ctx context.Context, newExcerpt string, neighbors []llmclient.NeighborRef) (*llmclient.Evolution, error) {
	return &llmclient.Evolution{ShouldEvolve: false}, nil
}

func TestEnqueueLinkRunsInBackgroundWithoutBlocking(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fold.db")
	db, err := relstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	projects := relstore.NewProjectStore(db)
	require.NoError(t, projects.Insert(&relstore.Project{ID: "p1", Slug: "acme", RootPath: t.TempDir(), CreatedAt: 1, UpdatedAt: 1}))

	blobs := blob.New(t.TempDir())
	emb, err := embedder.New(nil, embedder.Registration{Provider: &fakeEmbedProvider{dim: 4}, IndexPriority: 1, SearchPriority: 1})
	require.NoError(t, err)
	vs := &fakeVectorStore{}
	collMgr := vectorstore.NewCollectionManager(vs, "fold_", 4)

	svc := memory.New(
		projects, relstore.NewMemoryStore(db), relstore.NewChunkStore(db), relstore.NewLinkStore(db),
		blobs, vs, collMgr, emb, nil, nil,
	)
	res, err := svc.Create(context.Background(), "p1", memory.CreateInput{Source: memory.SourceAgent, MemoryType: "note", Content: "hello", Title: "hello"})
	require.NoError(t, err)

	l := linker.New(relstore.NewMemoryStore(db), relstore.NewLinkStore(db), blobs, vs, collMgr, llmclient.New(nil, &fakeLLMProvider{}), nil)
	runner := New(projects, svc, emb, l, nil)

	start := time.Now()
	require.NoError(t, runner.EnqueueLink(context.Background(), "p1", res.Memory.ID))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestEnqueueLinkNoOpWithoutEmbedderOrLinker(t *testing.T) {
	runner := New(nil, nil, nil, nil, nil)
	require.NoError(t, runner.EnqueueLink(context.Background(), "p1", "m1"))
}
