package search

import (
	"time"

	"github.com/hyperjump/kotoba/internal/cache"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/normalize"
)

// LookupExact returns the entry whose normalized form equals the normalized word.
func (e *Engine) LookupExact(word string, languages []string) (models.Word, bool) {
	snap := e.acquire()
	if snap == nil {
		return models.Word{}, false
	}
	defer snap.release()
	if len(languages) == 0 {
		languages = e.cfg.Languages
	}
	return snap.lexicon.LookupExact(normalize.Normalize(word), languages)
}

// Prefix returns up to limit entries starting with the normalized prefix, in trie
// order per language. A limit of zero or less uses the configured default.
func (e *Engine) Prefix(prefix string, languages []string, limit int) ([]models.Word, error) {
	p := normalize.Normalize(prefix)
	if p == "" {
		return nil, ErrEmptyQuery
	}
	snap := e.acquire()
	if snap == nil {
		return nil, ErrClosed
	}
	defer snap.release()
	if len(languages) == 0 {
		languages = e.cfg.Languages
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	limit = min(limit, e.cfg.MaxLimit)

	out := make([]models.Word, 0, limit)
	for w := range snap.lexicon.LookupPrefix(p, languages) {
		out = append(out, w)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Stats describes the current snapshot.
type Stats struct {
	Generation        string         `json:"generation"`
	BuiltAt           time.Time      `json:"built_at"`
	Languages         []string       `json:"languages"`
	Words             int            `json:"words"`
	WordsByLanguage   map[string]int `json:"words_by_language"`
	CandidateIndex    bool           `json:"candidate_index"`
	SemanticAvailable bool           `json:"semantic_available"`
	SemanticError     string         `json:"semantic_error,omitempty"`
	SemanticVectors   int            `json:"semantic_vectors"`
	SemanticSuspended bool           `json:"semantic_suspended"`
	EmbeddingBatches  int64          `json:"embedding_batches"`
	AIFallback        bool           `json:"ai_fallback"`
	Cache             cache.Stats    `json:"cache"`
}

// Stats reports the current snapshot and cache state.
func (e *Engine) Stats() Stats {
	st := Stats{
		Languages:         e.cfg.Languages,
		SemanticSuspended: e.breaker.Open(),
		AIFallback:        e.suggester != nil && e.cfg.AI.Enabled,
		Cache:             e.cache.Stats(),
	}
	if e.batcher != nil {
		st.EmbeddingBatches = e.batcher.Batches()
	}
	snap := e.acquire()
	if snap == nil {
		return st
	}
	defer snap.release()

	st.Generation = snap.generation
	st.BuiltAt = snap.builtAt
	st.Words = snap.lexicon.Len()
	st.WordsByLanguage = make(map[string]int)
	for _, l := range snap.lexicon.Languages() {
		st.WordsByLanguage[l] = snap.lexicon.LenLanguage(l)
	}
	st.CandidateIndex = snap.candidates != nil
	st.SemanticAvailable = snap.semantic != nil
	st.SemanticVectors = snap.semantic.Size()
	if snap.semanticErr != nil {
		st.SemanticError = snap.semanticErr.Error()
	}
	return st
}
