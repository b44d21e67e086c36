// Package memory implements the Memory service facade (spec §4.7): the
// single collaborator every other component goes through to read or
// mutate a project's memories, orchestrating the relational store, the
// fold-tree blob store, the vector store, and the embedder in the
// spec's fixed write order.
//
// Grounded on the teacher's internal/memory.Service facade shape:
// a constructor that takes every collaborator, and Store/Get/Update/
// Delete methods that orchestrate them with non-fatal degradation on
// sub-component failure.
package memory

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/foldhq/fold/internal/blob"
	"github.com/foldhq/fold/internal/chunk"
	"github.com/foldhq/fold/internal/decay"
	"github.com/foldhq/fold/internal/embedder"
	"github.com/foldhq/fold/internal/fingerprint"
	"github.com/foldhq/fold/internal/foldxerr"
	"github.com/foldhq/fold/internal/llmclient"
	"github.com/foldhq/fold/internal/relstore"
	"github.com/foldhq/fold/internal/vectorstore"
)

// Source distinguishes how a memory entered the index (spec §3, §9
// open question: id derivation depends on this).
type Source string

const (
	SourceFile  Source = "file"
	SourceGit   Source = "git"
	SourceAgent Source = "agent"
)

// CreateInput carries everything the caller supplies for a new memory.
// When AutoMetadata is set and Context or Keywords is empty, the
// auto_metadata analysis fills the empty Context, Keywords and Tags.
type CreateInput struct {
	Source             Source
	MemoryType         string
	Content            string
	Title              string
	Author             string
	Language           string
	FilePath           string // repo-relative, required for file/git sources
	RepositoryID       string // required for file/git sources
	Keywords           []string
	Tags               []string
	Context            string
	AutoMetadata       bool
	SynthesizedSummary bool
	Chunks             []chunk.Chunk
}

// Warning describes a non-fatal sub-component failure during create,
// update, or delete: the operation still returns success, but part of
// the index is degraded (spec §4.7's "commits but degrades" contract).
type Warning struct {
	Component string
	Err       error
}

// Result wraps a stored/updated memory plus any degradation warnings.
type Result struct {
	Memory   *relstore.Memory
	Warnings []Warning
}

// Service is the facade over every Fold collaborator.
type Service struct {
	projects   *relstore.ProjectStore
	memories   *relstore.MemoryStore
	chunks     *relstore.ChunkStore
	links      *relstore.LinkStore
	blobs      *blob.Store
	vectors    vectorstore.Store
	collection *vectorstore.CollectionManager
	embed      *embedder.Embedder
	llm        *llmclient.Client
	logger     *slog.Logger
}

// New constructs a Service. blobs may be nil for pure-relational
// deployments (agent-sourced memories require it).
func New(
	projects *relstore.ProjectStore,
	memories *relstore.MemoryStore,
	chunks *relstore.ChunkStore,
	links *relstore.LinkStore,
	blobs *blob.Store,
	vectors vectorstore.Store,
	collection *vectorstore.CollectionManager,
	embed *embedder.Embedder,
	llm *llmclient.Client,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		projects: projects, memories: memories, chunks: chunks, links: links,
		blobs: blobs, vectors: vectors, collection: collection,
		embed: embed, llm: llm, logger: logger,
	}
}

// Create stores a new memory. Write order is fixed by spec §4.7:
// relational commit -> blob write (agent source only) -> vector upsert
// -> (linking happens separately, see internal/linker).
func (s *Service) Create(ctx context.Context, projectID string, in CreateInput) (*Result, error) {
	project, err := s.projects.GetByID(projectID)
	if err != nil {
		return nil, err
	}

	if in.AutoMetadata && (in.Context == "" || len(in.Keywords) == 0) && s.llm != nil {
		if analysis, err := s.llm.AnalyseContent(ctx, in.Content); err != nil {
			s.logger.Warn("auto_metadata analysis failed, continuing without it", "error", err)
		} else {
			if in.Context == "" {
				in.Context = analysis.Context
			}
			if len(in.Keywords) == 0 {
				in.Keywords = analysis.Keywords
			}
			if len(in.Tags) == 0 {
				in.Tags = analysis.Tags
			}
		}
	}

	var id, contentHash string
	switch in.Source {
	case SourceFile, SourceGit:
		id, contentHash, err = fingerprint.FileFingerprint(project.Slug, in.FilePath, in.Content)
		if err != nil {
			return nil, err
		}
	default:
		id = uuid.NewString()
		contentHash = fingerprint.ContentHash(in.Content)
	}

	nowTime := time.Now()
	now := nowTime.Unix()
	m := &relstore.Memory{
		ID: id, ProjectID: projectID, RepositoryID: in.RepositoryID, Source: string(in.Source), MemoryType: in.MemoryType,
		ContentHash: contentHash, Content: in.Content, Title: in.Title, Author: in.Author,
		Language: in.Language, FilePath: in.FilePath, Keywords: in.Keywords, Tags: in.Tags,
		Context: in.Context, SynthesizedSummary: in.SynthesizedSummary, CreatedAt: now, UpdatedAt: now,
	}

	if err := s.memories.Insert(m); err != nil {
		return nil, err
	}

	result := &Result{Memory: m}

	if in.Source == SourceAgent && s.blobs != nil {
		fm := blob.Frontmatter{
			ID: id, Title: in.Title, Author: in.Author, Tags: in.Tags,
			FilePath: in.FilePath, Language: in.Language, MemoryType: in.MemoryType,
			CreatedAt: nowTime, UpdatedAt: nowTime,
		}
		if err := s.blobs.Write(fm, in.Content, nil); err != nil {
			result.Warnings = append(result.Warnings, Warning{Component: "blob", Err: err})
		}
	}

	if len(in.Chunks) > 0 {
		relChunks := toRelChunks(id, projectID, in.Language, in.Chunks)
		if err := s.chunks.InsertBatch(relChunks); err != nil {
			result.Warnings = append(result.Warnings, Warning{Component: "chunks", Err: err})
		}
	}

	if s.embed != nil && s.vectors != nil {
		if err := s.upsertVectors(ctx, project.Slug, m, in.Chunks); err != nil {
			result.Warnings = append(result.Warnings, Warning{Component: "vector", Err: err})
			s.logger.Warn("vector upsert failed, memory committed without vectors", "id", id, "error", err)
		}
	}

	return result, nil
}

// Patch is a caller-supplied partial update; nil fields are untouched.
type Patch struct {
	Title              *string
	Keywords           *[]string
	Tags               *[]string
	Context            *string
	Content            *string // if set, chunks are regenerated and re-embedded
	SynthesizedSummary *bool
	NewChunks          []chunk.Chunk
	// RefreshEmbedding re-embeds the memory even when Content is nil,
	// falling back to the existing row's stored content as embedding
	// input. Used when the original file behind a file-sourced memory
	// is no longer reachable (deleted path, moved repo) but the vector
	// still needs to reflect a metadata-only change.
	RefreshEmbedding bool
}

// Update mutates a memory's mutable fields and, if the payload changed,
// regenerates chunks and re-embeds (spec §4.7). If RefreshEmbedding is
// set without a new Content, the existing row's stored content is
// reused as the embedding input rather than skipping re-embedding.
func (s *Service) Update(ctx context.Context, projectID, id string, patch Patch) (*Result, error) {
	project, err := s.projects.GetByID(projectID)
	if err != nil {
		return nil, err
	}

	req := &relstore.UpdateRequest{
		Title: patch.Title, Keywords: patch.Keywords, Tags: patch.Tags, Context: patch.Context,
		SynthesizedSummary: patch.SynthesizedSummary,
	}
	now := time.Now().Unix()

	payloadChanged := patch.Content != nil
	if payloadChanged {
		newHash := fingerprint.ContentHash(*patch.Content)
		req.Content = patch.Content
		req.ContentHash = &newHash
	}

	m, err := s.memories.Update(id, req, now)
	if err != nil {
		return nil, err
	}
	result := &Result{Memory: m}

	if payloadChanged {
		if len(patch.NewChunks) > 0 {
			relChunks := toRelChunks(id, projectID, m.Language, patch.NewChunks)
			if err := s.chunks.ReplaceForMemory(id, relChunks); err != nil {
				result.Warnings = append(result.Warnings, Warning{Component: "chunks", Err: err})
			}
		}
		if s.embed != nil && s.vectors != nil {
			if err := s.upsertVectors(ctx, project.Slug, m, patch.NewChunks); err != nil {
				result.Warnings = append(result.Warnings, Warning{Component: "vector", Err: err})
			}
		}
	} else if patch.RefreshEmbedding && s.embed != nil && s.vectors != nil {
		existingChunks, err := s.chunks.ListByMemory(id)
		if err != nil {
			result.Warnings = append(result.Warnings, Warning{Component: "vector", Err: err})
		} else if err := s.upsertVectors(ctx, project.Slug, m, toChunkInputs(existingChunks)); err != nil {
			result.Warnings = append(result.Warnings, Warning{Component: "vector", Err: err})
		}
	}

	return result, nil
}

// Get reads a memory row. Per spec §4.7, plain Get does not count as a
// retrieval; only the search path increments retrieval_count.
func (s *Service) Get(id string) (*relstore.Memory, error) {
	return s.memories.GetByID(id)
}

// RecordRetrieval bumps retrieval_count and last_accessed; called from
// the search path only.
func (s *Service) RecordRetrieval(id string) error {
	return s.memories.RecordAccess(id, time.Now().Unix())
}

// SearchParams controls a Search call. Limit is the caller's requested
// page size K; a non-positive value defaults to DefaultSearchLimit.
type SearchParams struct {
	Query string
	Limit int
}

// DefaultSearchLimit is used when SearchParams.Limit is unset.
const DefaultSearchLimit = 10

// MatchedChunk surfaces a chunk-level vector hit under its parent
// memory (spec §4.11's dedup: a chunk hit never appears as its own
// result row).
type MatchedChunk struct {
	StartLine int
	EndLine   int
	NodeType  string
	NodeName  string
}

// SearchResult is one ranked memory in a search response.
type SearchResult struct {
	Memory        *relstore.Memory
	Relevance     float64
	Strength      float64
	CombinedScore float64
	MatchedChunks []MatchedChunk
}

// searchCandidate is the intermediate grouping unit dedup builds
// before scoring: one memory plus every chunk hit found for it.
type searchCandidate struct {
	memory    *relstore.Memory
	relevance float64
	chunks    []MatchedChunk
}

// Search implements spec §4.7's search(project, query, params) ->
// ranked results and §4.11's dedup/decay pipeline: the vector store is
// queried for limit*3 points spanning both memory- and chunk-kind
// vectors, hits are grouped by memory_id keeping the best-scoring point
// per group (chunk hits surfacing as MatchedChunks), each surviving
// memory is scored via internal/decay's Strength/Blend against the
// project's tuning, the set is re-ranked and truncated to limit, and
// retrieval_count/last_accessed are bumped best-effort for whatever is
// returned (spec's "must not delay the response").
func (s *Service) Search(ctx context.Context, projectID string, params SearchParams) ([]SearchResult, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	project, err := s.projects.GetByID(projectID)
	if err != nil {
		return nil, err
	}

	if s.embed == nil || s.vectors == nil {
		s.logger.Warn("search: vector store unavailable, returning empty page")
		return nil, nil
	}

	queryVectors, err := s.embed.EmbedForSearch(ctx, []string{params.Query})
	if err != nil || len(queryVectors) == 0 {
		s.logger.Warn("search: query embedding failed, returning empty page", "error", err)
		return nil, nil
	}

	collection := s.collection.Name(project.Slug)
	hits, err := s.vectors.Search(ctx, collection, queryVectors[0], limit*3, nil)
	if err != nil {
		s.logger.Warn("search: vector search failed, returning empty page", "error", err)
		return nil, nil
	}

	candidates := map[string]*searchCandidate{}
	order := make([]string, 0, len(hits))
	for _, hit := range hits {
		memoryID, _ := hit.Payload["memory_id"].(string)
		if memoryID == "" {
			continue
		}
		c, ok := candidates[memoryID]
		if !ok {
			c = &searchCandidate{}
			candidates[memoryID] = c
			order = append(order, memoryID)
		}
		if hit.Score > c.relevance {
			c.relevance = hit.Score
		}
		if kind, _ := hit.Payload["kind"].(string); kind == "chunk" {
			c.chunks = append(c.chunks, matchedChunkFromPayload(hit.Payload))
		}
	}

	cfg := decay.New(project.HalfLifeDays, project.StrengthWeight)
	now := time.Now().Unix()

	scored := make([]decay.Scored[*searchCandidate], 0, len(order))
	for _, memoryID := range order {
		c := candidates[memoryID]
		m, err := s.memories.GetByID(memoryID)
		if err != nil || m == nil {
			continue
		}
		c.memory = m
		ageDays := ageDaysSince(now, m.UpdatedAt, m.LastAccessed)
		strength := decay.StrengthWithHalfLife(ageDays, cfg.HalfLifeDays, m.RetrievalCount)
		scored = append(scored, decay.Score(c, c.relevance, strength, cfg))
	}

	decay.RerankWithTiebreak(scored, func(a, b *searchCandidate) bool {
		if a.memory.UpdatedAt != b.memory.UpdatedAt {
			return a.memory.UpdatedAt > b.memory.UpdatedAt
		}
		return a.memory.ID < b.memory.ID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	results := make([]SearchResult, len(scored))
	for i, sc := range scored {
		results[i] = SearchResult{
			Memory: sc.Item.memory, Relevance: sc.Relevance, Strength: sc.Strength,
			CombinedScore: sc.CombinedScore, MatchedChunks: sc.Item.chunks,
		}
	}

	for _, r := range results {
		id := r.Memory.ID
		go func() {
			if err := s.RecordRetrieval(id); err != nil {
				s.logger.Warn("search: failed to record retrieval", "id", id, "error", err)
			}
		}()
	}

	return results, nil
}

// ageDaysSince computes spec §4.11's age_days from whichever of
// updated_at/last_accessed is more recent.
func ageDaysSince(now, updatedAt, lastAccessed int64) float64 {
	ref := updatedAt
	if lastAccessed > ref {
		ref = lastAccessed
	}
	ageSeconds := now - ref
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	return float64(ageSeconds) / 86400.0
}

func matchedChunkFromPayload(payload map[string]any) MatchedChunk {
	return MatchedChunk{
		StartLine: toInt(payload["start_line"]),
		EndLine:   toInt(payload["end_line"]),
		NodeType:  toString(payload["node_type"]),
		NodeName:  toString(payload["node_name"]),
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

// Delete removes a memory and everything that references it. Steps
// proceed best-effort: vector/blob deletion failures are logged but
// never abort the relational delete (spec §4.7).
func (s *Service) Delete(ctx context.Context, projectID, id string) ([]Warning, error) {
	var warnings []Warning

	m, err := s.memories.GetByID(id)
	if err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(projectID)
	if err != nil {
		return nil, err
	}

	if s.vectors != nil {
		collection := s.collection.Name(project.Slug)
		chunks, _ := s.chunks.ListByMemory(id)
		ids := make([]string, 0, len(chunks)+1)
		ids = append(ids, id)
		for _, c := range chunks {
			ids = append(ids, c.ID)
		}
		if err := s.vectors.Delete(ctx, collection, ids); err != nil {
			warnings = append(warnings, Warning{Component: "vector", Err: err})
			s.logger.Warn("vector delete failed", "id", id, "error", err)
		}
	}

	if err := s.chunks.DeleteByMemory(id); err != nil {
		warnings = append(warnings, Warning{Component: "chunks", Err: err})
	}
	if err := s.links.DeleteByMemory(id); err != nil {
		warnings = append(warnings, Warning{Component: "links", Err: err})
	}
	if m.Source == string(SourceAgent) && s.blobs != nil {
		if err := s.blobs.Delete(id); err != nil {
			warnings = append(warnings, Warning{Component: "blob", Err: err})
			s.logger.Warn("blob delete failed", "id", id, "error", err)
		}
	}

	if err := s.memories.Delete(id); err != nil {
		return warnings, err
	}
	return warnings, nil
}

// Context performs a breadth-first expansion over memory_links up to
// depth (capped at 3), deduplicated by memory id (spec §4.7).
type ContextResult struct {
	Center    *relstore.Memory
	Neighbors []*relstore.Memory
	Edges     []*relstore.MemoryLink
}

func (s *Service) Context(id string, depth int) (*ContextResult, error) {
	if depth > 3 {
		depth = 3
	}
	if depth < 0 {
		depth = 0
	}

	center, err := s.memories.GetByID(id)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	result := &ContextResult{Center: center}

	for d := 0; d < depth; d++ {
		var next []string
		for _, current := range frontier {
			edges, err := s.links.GetLinked(current, 50)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				result.Edges = append(result.Edges, e)
				other := e.TargetID
				if other == current {
					other = e.SourceID
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				next = append(next, other)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	for id := range visited {
		if id == center.ID {
			continue
		}
		n, err := s.memories.GetByID(id)
		if err != nil {
			continue
		}
		result.Neighbors = append(result.Neighbors, n)
	}

	return result, nil
}

func (s *Service) upsertVectors(ctx context.Context, projectSlug string, m *relstore.Memory, chunks []chunk.Chunk) error {
	collection, err := s.collection.EnsureForProject(ctx, projectSlug)
	if err != nil {
		return err
	}

	texts := []string{m.Content}
	for _, c := range chunks {
		texts = append(texts, c.Content)
	}
	vectors, err := s.embed.EmbedForIndex(ctx, texts)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Embed, err, "embed memory for indexing")
	}
	if len(vectors) == 0 {
		return foldxerr.New(foldxerr.Embed, "embedder returned no vectors")
	}

	points := []vectorstore.Point{{
		ID: m.ID, Vector: vectors[0],
		Payload: map[string]any{"kind": "memory", "memory_id": m.ID, "title": m.Title, "type": m.MemoryType},
	}}
	for i, c := range chunks {
		if i+1 >= len(vectors) {
			break
		}
		points = append(points, vectorstore.Point{
			ID: chunkVectorID(m.ID, i), Vector: vectors[i+1],
			Payload: map[string]any{
				"kind": "chunk", "memory_id": m.ID, "chunk_index": i,
				"start_line": c.StartLine, "end_line": c.EndLine,
				"node_type": c.NodeType, "node_name": c.NodeName,
			},
		})
	}

	return s.vectors.Upsert(ctx, collection, points)
}

func chunkVectorID(memoryID string, index int) string {
	return memoryID + ":chunk:" + strconv.Itoa(index)
}

// toChunkInputs converts stored chunk rows back into the embedder's
// input shape, used by Update's RefreshEmbedding fallback to re-embed
// against already-persisted chunk content instead of a fresh payload.
func toChunkInputs(chunks []*relstore.Chunk) []chunk.Chunk {
	out := make([]chunk.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = chunk.Chunk{
			Content: c.Content, StartLine: c.StartLine, EndLine: c.EndLine,
			StartByte: c.StartByte, EndByte: c.EndByte, NodeType: c.NodeType, NodeName: c.NodeName,
		}
	}
	return out
}

func toRelChunks(memoryID, projectID, language string, chunks []chunk.Chunk) []*relstore.Chunk {
	out := make([]*relstore.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = &relstore.Chunk{
			ID:          uuid.NewString(),
			MemoryID:    memoryID,
			ProjectID:   projectID,
			Content:     c.Content,
			ContentHash: fingerprint.ContentHash(c.Content),
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
			StartByte:   c.StartByte,
			EndByte:     c.EndByte,
			NodeType:    c.NodeType,
			NodeName:    c.NodeName,
			Language:    language,
		}
	}
	return out
}
