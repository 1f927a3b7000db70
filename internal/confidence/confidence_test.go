package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreDateISOIsHighConfidence(t *testing.T) {
	r := Score(TypeDate, "2025-01-02", -1, true, true, DefaultWeights)
	assert.InDelta(t, 1.0, r.Heuristic, 1e-9)
	assert.False(t, r.NeedsReview)
}

func TestScoreDateUnparseableIsLowConfidence(t *testing.T) {
	r := Score(TypeDate, "garbage", -1, true, true, DefaultWeights)
	// Type validity drops to 0.2 (0.4*0.2); name and context still add 0.6.
	assert.InDelta(t, 0.68, r.Heuristic, 1e-9)
	assert.True(t, r.NeedsReview)
}

func TestScoreNumberNumericIsHighConfidence(t *testing.T) {
	r := Score(TypeNumber, "1234.56", -1, true, true, DefaultWeights)
	assert.InDelta(t, 1.0, r.Heuristic, 1e-9)
}

func TestScoreEmailValid(t *testing.T) {
	r := Score(TypeEmail, "a@b.com", -1, true, true, DefaultWeights)
	assert.InDelta(t, 1.0, r.Heuristic, 1e-9)
}

func TestScoreAccountNumberLengthRange(t *testing.T) {
	r := Score(TypeAccountNumber, "12345678", -1, true, true, DefaultWeights)
	assert.InDelta(t, 0.9, typeValidityScore(TypeAccountNumber, "12345678"), 1e-9)
	_ = r
}

func TestScoreCurrencyKnownCode(t *testing.T) {
	assert.InDelta(t, 1.0, typeValidityScore(TypeCurrency, "USD"), 1e-9)
	assert.InDelta(t, 0.7, typeValidityScore(TypeCurrency, "ZZZ"), 1e-9)
	assert.InDelta(t, 0.3, typeValidityScore(TypeCurrency, "12"), 1e-9)
}

func TestScoreCombinesHeuristicAndModel(t *testing.T) {
	r := Score(TypeDate, "2025-01-02", 0.5, true, true, DefaultWeights)
	assert.True(t, r.HasModel)
	expected := DefaultWeights.Heuristic*1.0 + DefaultWeights.Model*0.5
	assert.InDelta(t, expected, r.Combined, 1e-9)
}

func TestScoreNeedsReviewBelowThreshold(t *testing.T) {
	r := Score(TypeDate, "garbage", 0.1, false, false, DefaultWeights)
	assert.True(t, r.NeedsReview)
}

func TestScoreConfidenceAlwaysInRange(t *testing.T) {
	r := Score(TypeGeneric, "anything", 0.9, true, true, DefaultWeights)
	assert.GreaterOrEqual(t, r.Combined, 0.0)
	assert.LessOrEqual(t, r.Combined, 1.0)
}

func TestOverallWeightedMean(t *testing.T) {
	results := map[string]Result{
		"a": {Combined: 1.0},
		"b": {Combined: 0.0},
	}
	assert.InDelta(t, 0.5, Overall(results, nil), 1e-9)
}

func TestOverallCustomWeights(t *testing.T) {
	results := map[string]Result{
		"a": {Combined: 1.0},
		"b": {Combined: 0.0},
	}
	weights := map[string]float64{"a": 3, "b": 1}
	assert.InDelta(t, 0.75, Overall(results, weights), 1e-9)
}

func TestOverallEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Overall(map[string]Result{}, nil))
}
