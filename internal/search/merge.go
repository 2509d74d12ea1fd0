package search

import (
	"math"

	"github.com/hyperjump/kotoba/internal/fuzzy"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/normalize"
)

// Merge combines per-method result lists into one ranked list.
// Entries are deduplicated by normalized word keeping the highest score; equal scores
// keep the method with the better priority (exact, fuzzy, semantic, ai-fallback).
// Scores are clamped to [0,1] with only exact matches allowed above 0.99. Results
// below minScore are dropped. Missing edit distances are computed against the
// normalized query so ties order by closeness, then word.
func Merge(query string, minScore float64, lists ...[]models.SearchResult) []models.SearchResult {
	best := make(map[string]int)
	var merged []models.SearchResult
	for _, list := range lists {
		for _, r := range list {
			r.Score = clampScore(r)
			key := normalize.Normalize(r.Word)
			if key == "" {
				continue
			}
			i, ok := best[key]
			if !ok {
				best[key] = len(merged)
				merged = append(merged, r)
				continue
			}
			cur := merged[i]
			if r.Score > cur.Score || (r.Score == cur.Score && r.Method.Priority() < cur.Method.Priority()) {
				merged[i] = r
			}
		}
	}

	out := merged[:0]
	for _, r := range merged {
		if r.Score < minScore {
			continue
		}
		if r.Method == models.MethodExact {
			r.Distance = 0
		} else if r.Distance == 0 {
			r.Distance = fuzzy.DamerauLevenshteinDistance(query, normalize.Normalize(r.Word))
		}
		out = append(out, r)
	}
	fuzzy.SortResults(out)
	return out
}

func clampScore(r models.SearchResult) float64 {
	s := r.Score
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	hi := fuzzy.MaxScore
	if r.Method == models.MethodExact {
		hi = 1
	}
	return math.Min(s, hi)
}
