// Package embedder implements batched text-to-vector embedding with
// index/search priority separation and a content-hash cache (spec §4.5).
package embedder

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/foldhq/fold/internal/foldxerr"
)

// Provider is one embedding backend. Dimension must be identical across
// every enabled provider (spec §4.5's startup-fatal check).
type Provider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Cache stores embeddings keyed by content hash so re-embedding
// unchanged text is a no-op (spec §4.5's ambient concern, grounded on the
// teacher's CachedEmbedder).
type Cache interface {
	Get(hash string) ([]float32, bool, error)
	Put(hash string, vector []float32) error
}

// registered is one provider entry with its two priority orderings.
type registered struct {
	provider      Provider
	indexPriority int
	searchPrior   int
}

// Embedder selects a provider per call purpose and caches results by
// content hash.
type Embedder struct {
	providers []registered
	cache     Cache
	dimension int
}

// Registration binds a provider to its two priority orderings.
type Registration struct {
	Provider       Provider
	IndexPriority  int
	SearchPriority int
}

// New validates that all providers share one dimension and returns an
// Embedder. cache may be nil to disable caching.
func New(cache Cache, entries ...Registration) (*Embedder, error) {
	if len(entries) == 0 {
		return nil, foldxerr.New(foldxerr.InvalidInput, "embedder requires at least one provider")
	}
	dim := entries[0].Provider.Dimension()
	regs := make([]registered, 0, len(entries))
	for _, e := range entries {
		if e.Provider.Dimension() != dim {
			return nil, foldxerr.New(foldxerr.InvalidInput,
				fmt.Sprintf("embedder dimension mismatch: %s has %d, expected %d", e.Provider.Name(), e.Provider.Dimension(), dim))
		}
		regs = append(regs, registered{provider: e.Provider, indexPriority: e.IndexPriority, searchPrior: e.SearchPriority})
	}
	return &Embedder{providers: regs, cache: cache, dimension: dim}, nil
}

func (e *Embedder) Dimension() int { return e.dimension }

// EmbedForIndex embeds texts using the index-priority provider ordering
// (cheap local models preferred for bulk ingest).
func (e *Embedder) EmbedForIndex(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, func(r registered) int { return r.indexPriority })
}

// EmbedForSearch embeds texts using the search-priority ordering (higher
// quality cloud models preferred for queries).
func (e *Embedder) EmbedForSearch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, func(r registered) int { return r.searchPrior })
}

func (e *Embedder) embed(ctx context.Context, texts []string, priorityOf func(registered) int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ordered := append([]registered(nil), e.providers...)
	sort.SliceStable(ordered, func(i, j int) bool { return priorityOf(ordered[i]) < priorityOf(ordered[j]) })

	results := make([][]float32, len(texts))
	misses := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, t := range texts {
		hash := ContentHash(t)
		if e.cache != nil {
			if vec, ok, err := e.cache.Get(hash); err == nil && ok {
				results[i] = vec
				continue
			}
		}
		misses = append(misses, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	var lastErr error
	for _, r := range ordered {
		vecs, err := r.provider.Embed(ctx, missTexts)
		if err != nil {
			lastErr = err
			continue
		}
		for i, idx := range misses {
			results[idx] = vecs[i]
			if e.cache != nil {
				_ = e.cache.Put(ContentHash(missTexts[i]), vecs[i])
			}
		}
		return results, nil
	}

	return nil, foldxerr.Wrap(foldxerr.Embed, lastErr, "all embedding providers failed")
}

// ContentHash computes the cache key for a piece of text.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
