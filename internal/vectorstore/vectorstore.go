// Package vectorstore defines the VectorStore collaborator interface
// (spec §6.1) and a Qdrant-backed adapter (spec §4.6).
package vectorstore

import "context"

// Point is a vector point to upsert. Payload carries at minimum
// { kind: "memory"|"chunk", memory_id, project_id, type, source,
// file_path?, language? } per spec §4.6.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchHit is one scored result from Search, ordered by descending
// cosine similarity by the caller.
type SearchHit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Store is the minimal collaborator interface the memory service and
// linker consume (spec §6.1).
type Store interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Delete(ctx context.Context, collection string, ids []string) error
	Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]any) ([]SearchHit, error)
	Count(ctx context.Context, collection string) (int, error)
	Health(ctx context.Context) error
}
