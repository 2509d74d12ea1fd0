// Package keyword provides a Bleve-backed candidate generator that narrows a large
// vocabulary to the entries worth scoring with the full fuzzy ensemble.
package keyword

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kotoba/internal/models"
)

// MaxFuzziness is the largest edit distance Bleve fuzzy queries support.
const MaxFuzziness = 2

// Covers reports whether a query at MaxFuzziness returns every entry within
// maxDistance Damerau-Levenshtein edits. Bleve counts a transposition as two edits.
func Covers(maxDistance int) bool {
	return maxDistance >= 0 && 2*maxDistance <= MaxFuzziness
}

const batchSize = 5000

// CandidateIndex implements fuzzy candidate lookup over whole normalized entries.
type CandidateIndex struct {
	index bleve.Index
}

// entryDoc is the indexed form of a vocabulary entry.
type entryDoc struct {
	Word string `json:"word"`
	Lang string `json:"lang"`
}

// NewCandidateIndex builds an in-memory Bleve index over words. Each entry is one
// keyword-analyzed term so phrases are matched whole.
func NewCandidateIndex(ctx context.Context, words []models.Word) (*CandidateIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	field := bleve.NewTextFieldMapping()
	field.Analyzer = keywordanalyzer.Name
	field.Store = false
	field.IncludeTermVectors = false
	docMapping.AddFieldMappingsAt("word", field)
	docMapping.AddFieldMappingsAt("lang", field)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create candidate index: %w", err)
	}
	c := &CandidateIndex{index: index}

	batch := index.NewBatch()
	for i, w := range words {
		if i%batchSize == 0 {
			if err := ctx.Err(); err != nil {
				_ = index.Close()
				return nil, err
			}
		}
		if err := batch.Index(DocID(w.Language, w.Normalized), entryDoc{Word: w.Normalized, Lang: w.Language}); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index %q: %w", w.Normalized, err)
		}
		if batch.Size() >= batchSize {
			if err := index.Batch(batch); err != nil {
				_ = index.Close()
				return nil, fmt.Errorf("failed to index batch: %w", err)
			}
			batch = index.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index batch: %w", err)
		}
	}
	return c, nil
}

// DocID is the candidate document id for an entry.
func DocID(lang, normalized string) string {
	return lang + ":" + normalized
}

// ParseDocID splits a DocID back into language and normalized word.
func ParseDocID(id string) (lang, normalized string, ok bool) {
	return strings.Cut(id, ":")
}

// Candidates returns ids of entries within fuzziness edits of query, restricted to
// langs when non-empty. Fuzziness above MaxFuzziness is clamped.
func (c *CandidateIndex) Candidates(ctx context.Context, query string, langs []string, fuzziness, limit int) ([]string, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}
	fuzziness = min(max(fuzziness, 0), MaxFuzziness)

	fq := bleve.NewFuzzyQuery(query)
	fq.SetFuzziness(fuzziness)
	fq.SetField("word")

	var q blevequery.Query = fq
	if len(langs) > 0 {
		langQueries := make([]blevequery.Query, 0, len(langs))
		for _, l := range langs {
			tq := bleve.NewTermQuery(l)
			tq.SetField("lang")
			langQueries = append(langQueries, tq)
		}
		q = bleve.NewConjunctionQuery(fq, bleve.NewDisjunctionQuery(langQueries...))
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("candidate search failed: %w", err)
	}
	ids := make([]string, len(results.Hits))
	for i, hit := range results.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// DocCount returns the number of indexed entries.
func (c *CandidateIndex) DocCount() (uint64, error) {
	return c.index.DocCount()
}

// Close releases the index.
func (c *CandidateIndex) Close() error {
	return c.index.Close()
}
