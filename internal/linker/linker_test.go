package linker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldhq/fold/internal/blob"
	"github.com/foldhq/fold/internal/llmclient"
	"github.com/foldhq/fold/internal/relstore"
	"github.com/foldhq/fold/internal/vectorstore"
)

type fakeVectorStore struct {
	hits []vectorstore.SearchHit
}

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

type fakeLLMProvider struct {
	evolution *llmclient.Evolution
}

func (p *fakeLLMProvider) Name() string { return "fake" }
func (p *fakeLLMProvider) SummarizeCode(ctx context.Context, content, filePath, language string) (*llmclient.CodeSummary, error) {
	return &llmclient.CodeSummary{}, nil
}
func (p *fakeLLMProvider) AnalyseContent(ctx context.Context, content string) (*llmclient.ContentAnalysis, error) {
	return &llmclient.ContentAnalysis{}, nil
}
func (p *fakeLLMProvider) SuggestEvolution(ctx context.Context, newExcerpt string, neighbors []llmclient.NeighborRef) (*llmclient.Evolution, error) {
	return p.evolution, nil
}

func setupLinker(t *testing.T, evolution *llmclient.Evolution, hits []vectorstore.SearchHit) (*Linker, *relstore.MemoryStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "fold.db")
	db, err := relstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	projects := relstore.NewProjectStore(db)
	require.NoError(t, projects.Insert(&relstore.Project{ID: "p1", Slug: "acme", RootPath: "/x", CreatedAt: 1, UpdatedAt: 1}))

	memories := relstore.NewMemoryStore(db)
	links := relstore.NewLinkStore(db)
	blobs := blob.New(t.TempDir())
	vs := &fakeVectorStore{hits: hits}
	collMgr := vectorstore.NewCollectionManager(vs, "fold_", 4)
	llm := llmclient.New(nil, &fakeLLMProvider{evolution: evolution})

	return New(memories, links, blobs, vs, collMgr, llm, nil), memories
}

func TestLinkNewSkipsWhenShouldEvolveIsFalse(t *testing.T) {
	l, memories := setupLinker(t, &llmclient.Evolution{ShouldEvolve: false}, []vectorstore.SearchHit{{ID: "n1", Score: 0.9}})
	require.NoError(t, memories.Insert(&relstore.Memory{ID: "n1", ProjectID: "p1", Source: "agent", MemoryType: "note", ContentHash: "h1", Title: "n1", CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, memories.Insert(&relstore.Memory{ID: "m1", ProjectID: "p1", Source: "agent", MemoryType: "note", ContentHash: "h2", Title: "m1", CreatedAt: 1, UpdatedAt: 1}))

	m, err := memories.GetByID("m1")
	require.NoError(t, err)
	require.NoError(t, l.LinkNew(context.Background(), "acme", m, []float32{0.1, 0.2, 0.3, 0.4}))

	linked, err := l.links.GetLinked("m1", 10)
	require.NoError(t, err)
	assert.Empty(t, linked)
}

func TestLinkNewCreatesLinkForSuggestedConnection(t *testing.T) {
	confidence := 0.8
	evolution := &llmclient.Evolution{
		ShouldEvolve:         true,
		SuggestedConnections: []llmclient.SuggestedConnection{{TargetID: "n1", LinkType: "related", Confidence: &confidence}},
	}
	l, memories := setupLinker(t, evolution, []vectorstore.SearchHit{{ID: "n1", Score: 0.9}, {ID: "m1", Score: 1.0}})

	require.NoError(t, memories.Insert(&relstore.Memory{ID: "n1", ProjectID: "p1", Source: "agent", MemoryType: "note", ContentHash: "h1", Title: "n1", CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, memories.Insert(&relstore.Memory{ID: "m1", ProjectID: "p1", Source: "agent", MemoryType: "note", ContentHash: "h2", Title: "m1", CreatedAt: 1, UpdatedAt: 1}))

	m, err := memories.GetByID("m1")
	require.NoError(t, err)
	require.NoError(t, l.LinkNew(context.Background(), "acme", m, []float32{0.1, 0.2, 0.3, 0.4}))

	linked, err := l.links.GetLinked("m1", 10)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "m1", linked[0].SourceID)
	assert.Equal(t, "n1", linked[0].TargetID)
	assert.Equal(t, "related", linked[0].LinkType)
}

func TestLinkNewIgnoresHallucinatedTargetIDs(t *testing.T) {
	evolution := &llmclient.Evolution{
		ShouldEvolve:         true,
		SuggestedConnections: []llmclient.SuggestedConnection{{TargetID: "does-not-exist", LinkType: "related"}},
	}
	l, memories := setupLinker(t, evolution, []vectorstore.SearchHit{{ID: "n1", Score: 0.9}})
	require.NoError(t, memories.Insert(&relstore.Memory{ID: "n1", ProjectID: "p1", Source: "agent", MemoryType: "note", ContentHash: "h1", Title: "n1", CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, memories.Insert(&relstore.Memory{ID: "m1", ProjectID: "p1", Source: "agent", MemoryType: "note", ContentHash: "h2", Title: "m1", CreatedAt: 1, UpdatedAt: 1}))

	m, err := memories.GetByID("m1")
	require.NoError(t, err)
	assert.NoError(t, l.LinkNew(context.Background(), "acme", m, []float32{0.1, 0.2, 0.3, 0.4}))

	linked, err := l.links.GetLinked("m1", 10)
	require.NoError(t, err)
	assert.Empty(t, linked)
}

func TestLinkCommitModifiesFiles(t *testing.T) {
	l, memories := setupLinker(t, nil, nil)
	require.NoError(t, memories.Insert(&relstore.Memory{ID: "commit1", ProjectID: "p1", Source: "git", MemoryType: "commit", ContentHash: "h1", Title: "c1", CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, memories.Insert(&relstore.Memory{ID: "file1", ProjectID: "p1", Source: "file", MemoryType: "code", ContentHash: "h2", Title: "f1", CreatedAt: 1, UpdatedAt: 1}))

	require.NoError(t, l.LinkCommitModifiesFiles("p1", "commit1", []string{"file1"}))
}
