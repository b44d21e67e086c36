// Package decay implements Fold's ACT-R inspired retrieval strength and
// score blending (spec §4.11), grounded on the teacher's forgetting-curve
// style Retrievability function in internal/search/hybrid.go and
// cross-checked against the original Rust decay.rs for the concrete
// MIN_STRENGTH floor.
package decay

import (
	"math"
	"sort"
)

const (
	// DefaultHalfLifeDays is used when a project doesn't override it.
	DefaultHalfLifeDays = 30.0
	// DefaultStrengthWeight is used when a project doesn't override it.
	DefaultStrengthWeight = 0.3
	// MinStrength is the floor below which a memory's strength never
	// falls, so old-but-real memories stay reachable rather than
	// disappearing from ranked results entirely.
	MinStrength = 0.01
	// MaxStrength is the ceiling.
	MaxStrength = 1.0
)

// Config tunes strength calculation and score blending for a project.
type Config struct {
	HalfLifeDays   float64
	StrengthWeight float64
}

// DefaultConfig returns spec §6.4's documented defaults.
func DefaultConfig() Config {
	return Config{HalfLifeDays: DefaultHalfLifeDays, StrengthWeight: DefaultStrengthWeight}
}

// PureSemantic returns a config with zero strength weight, so ranking
// falls back to pure vector/lexical relevance with no recency or
// access-frequency influence. Useful for callers that want to disable
// decay entirely without special-casing the blend formula.
func PureSemantic() Config {
	return Config{HalfLifeDays: DefaultHalfLifeDays, StrengthWeight: 0.0}
}

// New builds a Config, clamping half-life to at least one day and the
// strength weight into [0,1].
func New(halfLifeDays, strengthWeight float64) Config {
	if halfLifeDays < 1.0 {
		halfLifeDays = 1.0
	}
	return Config{HalfLifeDays: halfLifeDays, StrengthWeight: clamp01(strengthWeight)}
}

// Strength computes a memory's retrieval strength (spec §4.11):
//
//	recency_factor = 0.5^(age_days/half_life_days)
//	access_boost   = log2(1+retrieval_count) * 0.1
//	strength       = clamp(recency_factor + access_boost, MIN_STRENGTH, MAX_STRENGTH)
//
// ageDays is measured from whichever of last_accessed or updated_at is
// more recent, so a fresh access resets the decay clock the same way
// re-reading a file resets its recency in the fold-tree.
func Strength(ageDays float64, retrievalCount int) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	recencyFactor := math.Pow(0.5, ageDays/DefaultHalfLifeDays)
	return strengthFromParts(recencyFactor, retrievalCount)
}

// StrengthWithHalfLife is Strength parameterized by a project-specific
// half-life instead of the package default.
func StrengthWithHalfLife(ageDays, halfLifeDays float64, retrievalCount int) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	if halfLifeDays < 1.0 {
		halfLifeDays = 1.0
	}
	recencyFactor := math.Pow(0.5, ageDays/halfLifeDays)
	return strengthFromParts(recencyFactor, retrievalCount)
}

func strengthFromParts(recencyFactor float64, retrievalCount int) float64 {
	accessBoost := 0.0
	if retrievalCount > 0 {
		accessBoost = math.Log2(1+float64(retrievalCount)) * 0.1
	}
	strength := recencyFactor + accessBoost
	if strength < MinStrength {
		return MinStrength
	}
	if strength > MaxStrength {
		return MaxStrength
	}
	return strength
}

// Blend combines semantic relevance with retrieval strength:
//
//	combined = (1-weight)*relevance + weight*strength
func Blend(relevance, strength, weight float64) float64 {
	weight = clamp01(weight)
	relevance = clamp01(relevance)
	strength = clamp01(strength)
	return (1-weight)*relevance + weight*strength
}

// Scored pairs an arbitrary item with its relevance, strength, and
// blended combined score, so callers can sort a heterogeneous result
// set by CombinedScore without recomputing anything.
type Scored[T any] struct {
	Item          T
	Relevance     float64
	Strength      float64
	CombinedScore float64
}

// Score builds a Scored[T] from raw relevance/strength using cfg's
// strength weight.
func Score[T any](item T, relevance, strength float64, cfg Config) Scored[T] {
	return Scored[T]{
		Item:          item,
		Relevance:     relevance,
		Strength:      strength,
		CombinedScore: Blend(relevance, strength, cfg.StrengthWeight),
	}
}

// Rerank sorts results by combined score, descending, in place.
func Rerank[T any](results []Scored[T]) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
}

// RerankWithTiebreak sorts by combined score descending, using less to
// order items whose combined score is equal (spec §4.11: ties break on
// more recent updated_at, then lexicographic id).
func RerankWithTiebreak[T any](results []Scored[T], less func(a, b T) bool) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return less(results[i].Item, results[j].Item)
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
