package resolve

import (
	"github.com/agnivade/levenshtein"
)

// Similarity score weights: word overlap dominates, edit distance breaks up
// near-misses within similar token sets.
const (
	tokenWeight = 0.6
	editWeight  = 0.4
)

// Similarity scores two normalized names in [0,1]: a blend of token-set
// overlap and normalized edit distance.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	edit := editSimilarity(a, b)
	blend := tokenWeight*tokenOverlap(a, b) + editWeight*edit
	// Token overlap punishes single-character misspellings hard; a strong
	// pure edit score still counts.
	if edit > blend {
		return edit
	}
	return blend
}

// tokenOverlap is the Jaccard index of the two word sets.
func tokenOverlap(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		set[t] = struct{}{}
	}
	var shared int
	union := len(set)
	seen := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

// editSimilarity maps Levenshtein distance to [0,1].
func editSimilarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
