package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldhq/fold/internal/blob"
	"github.com/foldhq/fold/internal/chunk"
	"github.com/foldhq/fold/internal/embedder"
	"github.com/foldhq/fold/internal/relstore"
	"github.com/foldhq/fold/internal/vectorstore"
)

type fakeEmbedProvider struct{ dim int }

func (f *fakeEmbedProvider) Name() string { return "fake" }
func (f *fakeEmbedProvider) Dimension() int { return f.dim }
func (f *fakeEmbedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

type fakeVectorStore struct {
	upserted map[string][]vectorstore.Point
	hits     []vectorstore.SearchHit
	searchN  int
}

func newFakeVectorStore() *fakeVectorStore { return &fakeVectorStore{upserted: map[string][]vectorstore.Point{}} }
func (f *fakeVectorStore) EnsureCollection(ctx context.Context, name string, dim int) error { return nil }
func (f *fakeVectorStore) DeleteCollection(ctx context.Context, name string) error           { return nil }
func (f *fakeVectorStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	f.upserted[collection] = append(f.upserted[collection], points...)
	return nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, collection string, ids []string) error { return nil }
func (f *fakeVectorStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]any) ([]vectorstore.SearchHit, error) {
	f.searchN = limit
	return f.hits, nil
}
func (f *fakeVectorStore) Count(ctx context.Context, collection string) (int, error) { return 0, nil }
func (f *fakeVectorStore) Health(ctx context.Context) error                          { return nil }

func setupService(t *testing.T) (*Service, *relstore.DB, string) {
	t.Helper()
	svc, db, projectID, _ := setupServiceWithVectors(t)
	return svc, db, projectID
}

func setupServiceWithVectors(t *testing.T) (*Service, *relstore.DB, string, *fakeVectorStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "fold.db")
	db, err := relstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	projects := relstore.NewProjectStore(db)
	require.NoError(t, projects.Insert(&relstore.Project{ID: "p1", Slug: "acme", RootPath: t.TempDir(), CreatedAt: 1, UpdatedAt: 1}))

	blobs := blob.New(t.TempDir())
	emb, err := embedder.New(nil, embedder.Registration{Provider: &fakeEmbedProvider{dim: 4}, IndexPriority: 1, SearchPriority: 1})
	require.NoError(t, err)
	vs := newFakeVectorStore()
	collMgr := vectorstore.NewCollectionManager(vs, "fold_", 4)

	svc := New(
		projects,
		relstore.NewMemoryStore(db),
		relstore.NewChunkStore(db),
		relstore.NewLinkStore(db),
		blobs,
		vs,
		collMgr,
		emb,
		nil,
		nil,
	)
	return svc, db, "p1", vs
}

func TestCreateFileMemoryDerivesDeterministicID(t *testing.T) {
	svc, _, projectID := setupService(t)

	res, err := svc.Create(context.Background(), projectID, CreateInput{
		Source: SourceFile, MemoryType: "code", Content: "package main", Title: "main.go",
		FilePath: "src/main.go", Language: "go",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Memory.ID)
	assert.Empty(t, res.Warnings)

	again, err := svc.Create(context.Background(), projectID, CreateInput{
		Source: SourceFile, MemoryType: "code", Content: "different", Title: "main.go",
		FilePath: "src/main.go", Language: "go",
	})
	require.NoError(t, err)
	// same path -> same deterministic id, even with different content
	assert.Equal(t, res.Memory.ID, again.Memory.ID)
}

func TestCreateAgentMemoryWritesBlob(t *testing.T) {
	svc, _, projectID := setupService(t)

	res, err := svc.Create(context.Background(), projectID, CreateInput{
		Source: SourceAgent, MemoryType: "note", Content: "remember this", Title: "a note",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	got, err := svc.Get(res.Memory.ID)
	require.NoError(t, err)
	assert.Equal(t, "a note", got.Title)

	f, err := svc.blobs.Read(res.Memory.ID)
	require.NoError(t, err)
	assert.Equal(t, "remember this", f.Body)
}

func TestCreateWithChunksEmbedsEachOne(t *testing.T) {
	svc, _, projectID, vs := setupServiceWithVectors(t)

	res, err := svc.Create(context.Background(), projectID, CreateInput{
		Source: SourceFile, MemoryType: "code", Content: "package main\nfunc main() {}", Title: "main.go",
		FilePath: "src/main.go", Language: "go",
		Chunks: []chunk.Chunk{{Content: "func main() {}", StartLine: 2, EndLine: 2, NodeType: "func"}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	// one point for the memory itself plus one per chunk
	points := vs.upserted["fold_acme"]
	require.Len(t, points, 2)
	assert.Equal(t, res.Memory.ID+":chunk:0", points[1].ID)
}

func TestDeleteRemovesMemoryDespiteMissingBlob(t *testing.T) {
	svc, _, projectID := setupService(t)

	res, err := svc.Create(context.Background(), projectID, CreateInput{
		Source: SourceFile, MemoryType: "code", Content: "x", Title: "x.go", FilePath: "x.go", Language: "go",
	})
	require.NoError(t, err)

	warnings, err := svc.Delete(context.Background(), projectID, res.Memory.ID)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	_, err = svc.Get(res.Memory.ID)
	assert.Error(t, err)
}

func TestContextExpandsOneHop(t *testing.T) {
	svc, db, projectID := setupService(t)
	links := relstore.NewLinkStore(db)

	a, err := svc.Create(context.Background(), projectID, CreateInput{Source: SourceAgent, MemoryType: "note", Content: "a", Title: "a"})
	require.NoError(t, err)
	b, err := svc.Create(context.Background(), projectID, CreateInput{Source: SourceAgent, MemoryType: "note", Content: "b", Title: "b"})
	require.NoError(t, err)

	require.NoError(t, links.Upsert(&relstore.MemoryLink{ProjectID: projectID, SourceID: a.Memory.ID, TargetID: b.Memory.ID, LinkType: "related", CreatedBy: "system", CreatedAt: 1}))

	ctxResult, err := svc.Context(a.Memory.ID, 1)
	require.NoError(t, err)
	require.Len(t, ctxResult.Neighbors, 1)
	assert.Equal(t, b.Memory.ID, ctxResult.Neighbors[0].ID)
}

func TestUpdateRefreshEmbeddingReusesStoredContentWithoutNewPayload(t *testing.T) {
	svc, _, projectID, vs := setupServiceWithVectors(t)

	res, err := svc.Create(context.Background(), projectID, CreateInput{
		Source: SourceFile, MemoryType: "code", Content: "package main", Title: "main.go",
		FilePath: "src/main.go", Language: "go",
	})
	require.NoError(t, err)
	id := res.Memory.ID

	before := len(vs.upserted["fold_acme"])

	newTitle := "renamed.go"
	updated, err := svc.Update(context.Background(), projectID, id, Patch{Title: &newTitle, RefreshEmbedding: true})
	require.NoError(t, err)
	assert.Empty(t, updated.Warnings)
	assert.Equal(t, "renamed.go", updated.Memory.Title)
	assert.Equal(t, "package main", updated.Memory.Content) // untouched, no new payload supplied

	after := len(vs.upserted["fold_acme"])
	assert.Greater(t, after, before) // re-embedded despite payload=nil
}

func TestSearchDedupesChunkAndMemoryHitsOfSameMemory(t *testing.T) {
	svc, _, projectID, vs := setupServiceWithVectors(t)

	res, err := svc.Create(context.Background(), projectID, CreateInput{
		Source: SourceFile, MemoryType: "code", Content: "func Foo() {}", Title: "a.go", FilePath: "a.go", Language: "go",
	})
	require.NoError(t, err)
	id := res.Memory.ID

	vs.hits = []vectorstore.SearchHit{
		{ID: id, Score: 0.7, Payload: map[string]any{"kind": "memory", "memory_id": id}},
		{ID: id + ":chunk:0", Score: 0.9, Payload: map[string]any{
			"kind": "chunk", "memory_id": id,
			"start_line": 1, "end_line": 1, "node_type": "func", "node_name": "Foo",
		}},
	}

	results, err := svc.Search(context.Background(), projectID, SearchParams{Query: "foo", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Memory.ID)
	assert.InDelta(t, 0.9, results[0].Relevance, 0.0001) // best-scoring point per group
	require.Len(t, results[0].MatchedChunks, 1)
	assert.Equal(t, "Foo", results[0].MatchedChunks[0].NodeName)
	assert.Equal(t, 3*10, vs.searchN) // limit = K*3
}

func TestSearchRanksByCombinedScoreDescending(t *testing.T) {
	svc, _, projectID, vs := setupServiceWithVectors(t)

	low, err := svc.Create(context.Background(), projectID, CreateInput{Source: SourceAgent, MemoryType: "note", Content: "low", Title: "low"})
	require.NoError(t, err)
	high, err := svc.Create(context.Background(), projectID, CreateInput{Source: SourceAgent, MemoryType: "note", Content: "high", Title: "high"})
	require.NoError(t, err)

	vs.hits = []vectorstore.SearchHit{
		{ID: low.Memory.ID, Score: 0.1, Payload: map[string]any{"kind": "memory", "memory_id": low.Memory.ID}},
		{ID: high.Memory.ID, Score: 0.9, Payload: map[string]any{"kind": "memory", "memory_id": high.Memory.ID}},
	}

	results, err := svc.Search(context.Background(), projectID, SearchParams{Query: "q", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, high.Memory.ID, results[0].Memory.ID)
	assert.Equal(t, low.Memory.ID, results[1].Memory.ID)
}

func TestSearchTruncatesToLimitAndBreaksTiesOnUpdatedAtThenID(t *testing.T) {
	svc, db, projectID, vs := setupServiceWithVectors(t)
	memories := relstore.NewMemoryStore(db)

	a, err := svc.Create(context.Background(), projectID, CreateInput{Source: SourceAgent, MemoryType: "note", Content: "a", Title: "a"})
	require.NoError(t, err)
	b, err := svc.Create(context.Background(), projectID, CreateInput{Source: SourceAgent, MemoryType: "note", Content: "b", Title: "b"})
	require.NoError(t, err)

	_, err = memories.Update(a.Memory.ID, &relstore.UpdateRequest{}, 100)
	require.NoError(t, err)
	_, err = memories.Update(b.Memory.ID, &relstore.UpdateRequest{}, 200)
	require.NoError(t, err)

	vs.hits = []vectorstore.SearchHit{
		{ID: a.Memory.ID, Score: 0.5, Payload: map[string]any{"kind": "memory", "memory_id": a.Memory.ID}},
		{ID: b.Memory.ID, Score: 0.5, Payload: map[string]any{"kind": "memory", "memory_id": b.Memory.ID}},
	}

	results, err := svc.Search(context.Background(), projectID, SearchParams{Query: "q", Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, b.Memory.ID, results[0].Memory.ID) // more recent updated_at wins the tie
}
