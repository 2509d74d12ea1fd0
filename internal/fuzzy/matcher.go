package fuzzy

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/xrash/smetrics"

	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/normalize"
)

// MaxScore caps fuzzy scores so they never tie an exact match.
const MaxScore = 0.99

const (
	levenshteinWeight = 0.75
	jaroWinklerWeight = 0.25
	lengthExponent    = 0.25
)

// Matcher scores candidates against a query. It is immutable after construction and
// safe for concurrent use.
type Matcher struct {
	maxDistance          int
	minScore             float64
	levenshteinThreshold float64
	minQueryLength       int
	phoneticBonus        float64
}

// Option is a functional option for configuring Matcher.
type Option func(*Matcher)

// WithMaxDistance sets the maximum edit distance for a candidate to be scored.
func WithMaxDistance(d int) Option {
	return func(m *Matcher) {
		if d > 0 {
			m.maxDistance = d
		}
	}
}

// WithMinScore sets the floor below which matches are dropped.
func WithMinScore(s float64) Option {
	return func(m *Matcher) {
		if s >= 0 && s <= 1 {
			m.minScore = s
		}
	}
}

// WithLevenshteinThreshold sets the similarity below which the phonetic bonus applies.
func WithLevenshteinThreshold(t float64) Option {
	return func(m *Matcher) {
		if t >= 0 && t <= 1 {
			m.levenshteinThreshold = t
		}
	}
}

// WithMinQueryLength sets the shortest query, in runes, that is matched at all.
func WithMinQueryLength(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.minQueryLength = n
		}
	}
}

// WithPhoneticBonus sets the score added when query and candidate sound alike.
func WithPhoneticBonus(b float64) Option {
	return func(m *Matcher) {
		if b >= 0 {
			m.phoneticBonus = b
		}
	}
}

// NewMatcher creates a Matcher with defaults max distance 3, min score 0.6,
// Levenshtein threshold 0.8, min query length 2 and phonetic bonus 0.05.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		maxDistance:          3,
		minScore:             0.6,
		levenshteinThreshold: 0.8,
		minQueryLength:       2,
		phoneticBonus:        0.05,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MinScore returns the configured score floor.
func (m *Matcher) MinScore() float64 {
	return m.minScore
}

// MaxDistance returns the configured edit distance bound.
func (m *Matcher) MaxDistance() int {
	return m.maxDistance
}

// Match scores every candidate against the normalized query and returns those at or
// above the score floor, sorted by score descending, distance ascending, then word.
// Phrases are compared whole. Candidates equal to the query are skipped: they are
// exact hits.
func (m *Matcher) Match(query string, candidates []models.Word) []models.SearchResult {
	qLen := utf8.RuneCountInString(query)
	if qLen < m.minQueryLength || len(candidates) == 0 {
		return nil
	}
	qKey := phoneticKey(query)

	var results []models.SearchResult
	for _, c := range candidates {
		if c.Normalized == query {
			continue
		}
		cLen := utf8.RuneCountInString(c.Normalized)
		// Length difference is a lower bound on edit distance.
		if abs(cLen-qLen) > m.maxDistance {
			continue
		}
		score, distance, ok := m.score(query, c.Normalized, qLen, cLen, qKey)
		if !ok || score < m.minScore {
			continue
		}
		results = append(results, models.SearchResult{
			Word:     c.Text,
			Score:    score,
			Method:   models.MethodFuzzy,
			IsPhrase: normalize.IsPhrase(c.Normalized),
			Language: c.Language,
			Distance: distance,
		})
	}
	SortResults(results)
	return results
}

// Score returns the fuzzy score of candidate against query and their edit distance.
// ok is false when the pair is outside the configured distance.
func (m *Matcher) Score(query, candidate string) (score float64, distance int, ok bool) {
	qLen := utf8.RuneCountInString(query)
	cLen := utf8.RuneCountInString(candidate)
	if qLen == 0 || cLen == 0 {
		return 0, max(qLen, cLen), false
	}
	return m.score(query, candidate, qLen, cLen, phoneticKey(query))
}

func (m *Matcher) score(query, candidate string, qLen, cLen int, qKey string) (float64, int, bool) {
	d, ok := BoundedDistance(query, candidate, m.maxDistance)
	if !ok {
		return 0, d, false
	}
	longest := float64(max(qLen, cLen))
	lev := 1 - float64(d)/longest
	jw := jaroWinkler(query, candidate)

	score := levenshteinWeight*lev + jaroWinklerWeight*jw
	score *= math.Pow(float64(min(qLen, cLen))/longest, lengthExponent)

	if lev < m.levenshteinThreshold && qKey != "" && qKey == phoneticKey(candidate) {
		score += m.phoneticBonus
	}
	return clamp(score, 0, MaxScore), d, true
}

// SortResults orders results by score descending, then distance ascending, then word.
func SortResults(results []models.SearchResult) {
	slices.SortStableFunc(results, func(a, b models.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return strings.Compare(a.Word, b.Word)
	})
}

func jaroWinkler(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	jw := smetrics.JaroWinkler(a, b, 0.7, 4)
	if math.IsNaN(jw) {
		return 0
	}
	return clamp(jw, 0, 1)
}

// phoneticKey is the Soundex code of the ASCII letters of s, or "" when there are none.
func phoneticKey(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return smetrics.Soundex(b.String())
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
