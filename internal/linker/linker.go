// Package linker implements the A-MEM linker (spec §4.8): after a
// memory is created, it fetches nearest neighbors, asks the LLM
// whether the new memory should be connected to any of them, and
// writes the resulting typed links plus fold-file back-links.
//
// Grounded on the teacher's spreading-activation neighbor walk
// (internal/search/hybrid.go's applySpreadingActivation/GetLinked) and
// on yungbote-neurobridge-backend's graphrag seed-expansion shape for
// the neighbor-context mutation idea.
package linker

import (
	"context"
	"log/slog"
	"time"

	"github.com/foldhq/fold/internal/blob"
	"github.com/foldhq/fold/internal/llmclient"
	"github.com/foldhq/fold/internal/relstore"
	"github.com/foldhq/fold/internal/vectorstore"
)

// NeighborCount is spec §4.8's k for the nearest-neighbor fetch.
const NeighborCount = 5

// Linker proposes and persists links between memories.
type Linker struct {
	memories   *relstore.MemoryStore
	links      *relstore.LinkStore
	blobs      *blob.Store
	vectors    vectorstore.Store
	collection *vectorstore.CollectionManager
	llm        *llmclient.Client
	logger     *slog.Logger
}

func New(
	memories *relstore.MemoryStore,
	links *relstore.LinkStore,
	blobs *blob.Store,
	vectors vectorstore.Store,
	collection *vectorstore.CollectionManager,
	llm *llmclient.Client,
	logger *slog.Logger,
) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{memories: memories, links: links, blobs: blobs, vectors: vectors, collection: collection, llm: llm, logger: logger}
}

// LinkNew runs the A-MEM step for a freshly created (or updated) memory.
// It is safe to call synchronously or from a background job; spec §4.8
// allows either.
func (l *Linker) LinkNew(ctx context.Context, projectSlug string, m *relstore.Memory, vector []float32) error {
	if l.llm == nil || l.vectors == nil || vector == nil {
		return nil
	}

	collection := l.collection.Name(projectSlug)
	hits, err := l.vectors.Search(ctx, collection, vector, NeighborCount+1, nil)
	if err != nil {
		l.logger.Warn("linker: neighbor search failed", "memory_id", m.ID, "error", err)
		return nil
	}

	neighbors := make([]*relstore.Memory, 0, NeighborCount)
	refs := make([]llmclient.NeighborRef, 0, NeighborCount)
	for _, h := range hits {
		if h.ID == m.ID || len(neighbors) >= NeighborCount {
			continue
		}
		n, err := l.memories.GetByID(h.ID)
		if err != nil {
			continue
		}
		neighbors = append(neighbors, n)
		refs = append(refs, llmclient.NeighborRef{ID: n.ID, Title: n.Title, Summary: n.Context, Tags: n.Tags})
	}
	if len(neighbors) == 0 {
		return nil
	}

	evolution, err := l.llm.SuggestEvolution(ctx, m.Context, refs)
	if err != nil {
		l.logger.Warn("linker: suggest_evolution failed", "memory_id", m.ID, "error", err)
		return nil
	}
	if !evolution.ShouldEvolve {
		return nil
	}

	byID := make(map[string]*relstore.Memory, len(neighbors))
	for _, n := range neighbors {
		byID[n.ID] = n
	}

	now := time.Now().Unix()
	var linkedNeighbors []*relstore.Memory
	for _, sc := range evolution.SuggestedConnections {
		neighbor, ok := byID[sc.TargetID]
		if !ok {
			continue // ignore hallucinated ids that aren't in the neighbor set
		}
		confidence := 0.0
		if sc.Confidence != nil {
			confidence = *sc.Confidence
		}
		linkType := sc.LinkType
		if linkType == "" {
			linkType = "related"
		}
		if err := l.links.Upsert(&relstore.MemoryLink{
			ProjectID: m.ProjectID, SourceID: m.ID, TargetID: neighbor.ID,
			LinkType: linkType, Confidence: confidence, CreatedBy: "ai", CreatedAt: now,
		}); err != nil {
			l.logger.Warn("linker: link upsert failed", "source", m.ID, "target", neighbor.ID, "error", err)
			continue
		}
		linkedNeighbors = append(linkedNeighbors, neighbor)
	}

	for neighborID, newContext := range evolution.NeighborContextUpdates {
		if newContext == "" {
			continue
		}
		neighbor, ok := byID[neighborID]
		if !ok {
			continue
		}
		ctxCopy := newContext
		if _, err := l.memories.Update(neighbor.ID, &relstore.UpdateRequest{Context: &ctxCopy}, now); err != nil {
			l.logger.Warn("linker: neighbor context update failed", "neighbor_id", neighborID, "error", err)
			continue
		}
		if neighbor.Source == "agent" && l.blobs != nil {
			if err := l.blobs.RewriteLinks(neighbor.ID, relatedIDsFor(neighbor.ID, linkedNeighbors, m.ID)); err != nil {
				l.logger.Warn("linker: neighbor fold-file rewrite failed", "neighbor_id", neighborID, "error", err)
			}
		}
	}

	if m.Source == "agent" && l.blobs != nil && len(linkedNeighbors) > 0 {
		ids := make([]string, len(linkedNeighbors))
		for i, n := range linkedNeighbors {
			ids[i] = n.ID
		}
		if err := l.blobs.RewriteLinks(m.ID, ids); err != nil {
			l.logger.Warn("linker: new memory fold-file rewrite failed", "memory_id", m.ID, "error", err)
		}
		for _, n := range linkedNeighbors {
			if n.Source != "agent" {
				continue
			}
			if err := l.blobs.RewriteLinks(n.ID, append(relatedIDsFor(n.ID, linkedNeighbors, m.ID), m.ID)); err != nil {
				l.logger.Warn("linker: back-link fold-file rewrite failed", "neighbor_id", n.ID, "error", err)
			}
		}
	}

	return nil
}

func relatedIDsFor(selfID string, neighbors []*relstore.Memory, newID string) []string {
	out := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		if n.ID != selfID {
			out = append(out, n.ID)
		}
	}
	if selfID != newID {
		out = append(out, newID)
	}
	return out
}

// LinkCommitModifiesFiles inserts the structural `commit -modifies-> file`
// links for every path a commit memory touched (spec §4.8, no LLM
// involved).
func (l *Linker) LinkCommitModifiesFiles(projectID, commitMemoryID string, fileMemoryIDs []string) error {
	now := time.Now().Unix()
	for _, fileID := range fileMemoryIDs {
		if err := l.links.Upsert(&relstore.MemoryLink{
			ProjectID: projectID, SourceID: commitMemoryID, TargetID: fileID,
			LinkType: "modifies", Confidence: 1.0, CreatedBy: "system", CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// LinkPRToCommitsAndFiles inserts `pr -contains-> commit` and
// `pr -affects-> file` structural links.
func (l *Linker) LinkPRToCommitsAndFiles(projectID, prMemoryID string, commitMemoryIDs, fileMemoryIDs []string) error {
	now := time.Now().Unix()
	for _, commitID := range commitMemoryIDs {
		if err := l.links.Upsert(&relstore.MemoryLink{
			ProjectID: projectID, SourceID: prMemoryID, TargetID: commitID,
			LinkType: "contains", Confidence: 1.0, CreatedBy: "system", CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	for _, fileID := range fileMemoryIDs {
		if err := l.links.Upsert(&relstore.MemoryLink{
			ProjectID: projectID, SourceID: prMemoryID, TargetID: fileID,
			LinkType: "affects", Confidence: 1.0, CreatedBy: "system", CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	return nil
}
