package decay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrengthFreshMemoryIsNearOne(t *testing.T) {
	s := Strength(0, 0)
	assert.Greater(t, s, 0.95)
}

func TestStrengthDecaysAtHalfLife(t *testing.T) {
	// scenario S4: half_life_days=10, memory updated 10 days ago -> ~0.5
	s := StrengthWithHalfLife(10, 10, 0)
	assert.InDelta(t, 0.5, s, 0.01)
}

func TestStrengthFullyFreshWithCustomHalfLife(t *testing.T) {
	// scenario S4: memory updated 0 days ago -> ~1.0
	s := StrengthWithHalfLife(0, 10, 0)
	assert.InDelta(t, 1.0, s, 0.01)
}

func TestStrengthNeverGoesBelowFloor(t *testing.T) {
	s := StrengthWithHalfLife(365, 30, 0)
	assert.GreaterOrEqual(t, s, MinStrength)
}

func TestStrengthNeverExceedsCeiling(t *testing.T) {
	s := StrengthWithHalfLife(0, 30, 1000)
	assert.LessOrEqual(t, s, MaxStrength)
}

func TestAccessCountBoostsStrength(t *testing.T) {
	noAccess := StrengthWithHalfLife(30, 30, 0)
	withAccess := StrengthWithHalfLife(30, 30, 10)
	assert.Greater(t, withAccess, noAccess)
}

func TestBlendPureSemanticIgnoresStrength(t *testing.T) {
	combined := Blend(0.9, 0.3, 0.0)
	assert.InDelta(t, 0.9, combined, 0.001)
}

func TestBlendPureStrengthIgnoresRelevance(t *testing.T) {
	combined := Blend(0.9, 0.3, 1.0)
	assert.InDelta(t, 0.3, combined, 0.001)
}

func TestBlendDefaultWeight(t *testing.T) {
	combined := Blend(0.9, 0.5, 0.3)
	assert.InDelta(t, 0.78, combined, 0.001)
}

func TestRerankSortsDescendingByCombinedScore(t *testing.T) {
	results := []Scored[string]{
		{Item: "low", CombinedScore: 0.2},
		{Item: "high", CombinedScore: 0.9},
		{Item: "mid", CombinedScore: 0.5},
	}
	Rerank(results)
	assert.Equal(t, []string{"high", "mid", "low"}, []string{results[0].Item, results[1].Item, results[2].Item})
}

func TestRerankWithTiebreakUsesLessOnEqualScores(t *testing.T) {
	results := []Scored[string]{
		{Item: "b", CombinedScore: 0.5},
		{Item: "a", CombinedScore: 0.5},
		{Item: "z", CombinedScore: 0.9},
	}
	RerankWithTiebreak(results, func(a, b string) bool { return a < b })
	assert.Equal(t, []string{"z", "a", "b"}, []string{results[0].Item, results[1].Item, results[2].Item})
}

func TestPureSemanticConfigHasZeroWeight(t *testing.T) {
	cfg := PureSemantic()
	assert.Equal(t, 0.0, cfg.StrengthWeight)
}

func TestNewClampsInputs(t *testing.T) {
	cfg := New(0, 5.0)
	assert.Equal(t, 1.0, cfg.HalfLifeDays)
	assert.Equal(t, 1.0, cfg.StrengthWeight)
}
