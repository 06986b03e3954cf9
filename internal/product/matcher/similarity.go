// Package matcher resolves receipt line descriptions to catalog products.
// The pipeline runs cheapest-first: exact barcode, fuzzy name score,
// embedding similarity, and finally creation of a new identity.
package matcher

import (
	"sort"
	"strings"
)

// levenshtein computes edit distance with the two-row optimization, on runes
// so accented text scores correctly.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// ratio converts edit distance to a similarity in [0, 1].
func ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// tokenSortRatio scores the strings with their words sorted, so word order
// differences ("arroz branco" vs "branco arroz") do not penalize the match.
func tokenSortRatio(a, b string) float64 {
	return ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// WeightedRatio returns the similarity score on a 0 to 100 scale, taking the
// best of the plain and token-sorted ratios.
func WeightedRatio(a, b string) float64 {
	return max(ratio(a, b), tokenSortRatio(a, b)) * 100
}
