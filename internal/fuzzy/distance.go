// Package fuzzy scores vocabulary entries against a misspelled query with an
// edit-distance ensemble.
package fuzzy

// DamerauLevenshteinDistance returns the optimal string alignment distance between a
// and b: single-rune insertions, deletions, substitutions and adjacent transpositions
// each cost one.
func DamerauLevenshteinDistance(a, b string) int {
	d, _ := BoundedDistance(a, b, -1)
	return d
}

// BoundedDistance is DamerauLevenshteinDistance that stops as soon as the distance is
// known to exceed limit, returning some d > limit and false. A negative limit never stops.
func BoundedDistance(a, b string, limit int) (int, bool) {
	if a == b {
		return 0, true
	}
	long, short := []rune(a), []rune(b)
	if len(long) < len(short) {
		long, short = short, long
	}
	n, m := len(long), len(short)
	within := func(d int) bool { return limit < 0 || d <= limit }
	if !within(n - m) {
		return n - m, false
	}
	if m == 0 {
		return n, within(n)
	}

	// Rows i-2, i-1 and i of the DP table, each over the shorter string.
	rows := make([]int, 3*(m+1))
	prev2, prev, curr := rows[:m+1], rows[m+1:2*(m+1)], rows[2*(m+1):]
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		curr[0] = i
		rowMin := i
		for j := 1; j <= m; j++ {
			cost := 1
			if long[i-1] == short[j-1] {
				cost = 0
			}
			v := min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && long[i-1] == short[j-2] && long[i-2] == short[j-1] {
				v = min(v, prev2[j-2]+cost)
			}
			curr[j] = v
			rowMin = min(rowMin, v)
		}
		// Row minima never decrease, so the final distance is at least rowMin.
		if !within(rowMin) {
			return rowMin, false
		}
		prev2, prev, curr = prev, curr, prev2
	}
	return prev[m], within(prev[m])
}
