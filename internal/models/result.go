package models

// Method names the search stage that produced a result.
type Method string

const (
	MethodExact      Method = "exact"
	MethodFuzzy      Method = "fuzzy"
	MethodSemantic   Method = "semantic"
	MethodAIFallback Method = "ai-fallback"
)

// Priority orders methods for tie-breaking equal scores; lower wins.
func (m Method) Priority() int {
	switch m {
	case MethodExact:
		return 0
	case MethodFuzzy:
		return 1
	case MethodSemantic:
		return 2
	case MethodAIFallback:
		return 3
	}
	return 4
}

// SearchResult is a single ranked match. Score is only comparable within one search call.
type SearchResult struct {
	Word     string  `json:"word"`
	Score    float64 `json:"score"`
	Method   Method  `json:"method"`
	IsPhrase bool    `json:"is_phrase"`
	Language string  `json:"language,omitempty"`
	// Distance is the edit distance between the normalized word and the normalized query.
	Distance int `json:"-"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query       string         `json:"query"`
	Normalized  string         `json:"normalized"`
	Results     []SearchResult `json:"results"`
	Total       int            `json:"total"`
	QueryTime   int64          `json:"query_time_ms"`
	CacheHit    bool           `json:"cache_hit"`
	// Degraded lists stages that were skipped or failed during this call, e.g. "semantic:timeout".
	Degraded   []string `json:"degraded,omitempty"`
	Generation string   `json:"generation,omitempty"`
}
