package diag

import (
	"golang.org/x/text/cases"
)

// SimilarName picks the candidate closest to name by edit distance,
// ignoring case. A candidate qualifies when it is at most max(2, len/3)
// edits away; ties go to the earliest candidate. name itself never
// qualifies.
func SimilarName(name string, candidates []string) (string, bool) {
	fold := cases.Fold()
	want := []rune(fold.String(name))
	limit := max(2, len(want)/3)
	best, bestDist := "", limit+1
	for _, c := range candidates {
		if c == name {
			continue
		}
		d := editDistance(want, []rune(fold.String(c)))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, best != ""
}

// editDistance is the Levenshtein distance over runes, two rows at a time.
func editDistance(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
