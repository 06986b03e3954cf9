package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"arroz", "", 5},
		{"", "arroz", 5},
		{"arroz", "arroz", 0},
		{"arroz", "arros", 1},
		{"feijao", "feijão", 1},
		{"cafe", "leite", 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestWeightedRatio(t *testing.T) {
	assert.InDelta(t, 100, WeightedRatio("arroz branco", "arroz branco"), 0.001)

	// Token sort rescues reordered words.
	assert.InDelta(t, 100, WeightedRatio("arroz branco", "branco arroz"), 0.001)

	// Near-identical strings score above the default threshold.
	assert.Greater(t, WeightedRatio("acucar cristal", "acucar crista"), 85.0)

	// Unrelated products score well below it.
	assert.Less(t, WeightedRatio("arroz", "detergente liquido"), 50.0)

	assert.InDelta(t, 100, WeightedRatio("", ""), 0.001)
}
