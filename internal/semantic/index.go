package semantic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/embedding"
	"github.com/hyperjump/kotoba/internal/keyword"
	"github.com/hyperjump/kotoba/internal/lexicon"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/normalize"
	"github.com/hyperjump/kotoba/internal/vector"
)

// MaxScore caps semantic scores below an exact match.
const MaxScore = 0.99

// Options tune an Index.
type Options struct {
	Timeout             time.Duration
	SimilarityThreshold float64
	TopK                int
}

// Index answers nearest-neighbour queries over a vocabulary snapshot.
type Index struct {
	embedder embedding.Embedder
	vectors  vector.VectorIndex
	lexicon  *lexicon.Index
	breaker  *Breaker
	opts     Options
	logger   *zap.Logger
}

// NewIndex wraps a built vector index. breaker may be shared across rebuilds so
// timeout history survives them; nil disables it.
func NewIndex(emb embedding.Embedder, vectors vector.VectorIndex, lex *lexicon.Index, breaker *Breaker, opts Options, logger *zap.Logger) *Index {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.TopK <= 0 {
		opts.TopK = 20
	}
	if breaker == nil {
		breaker = NewBreaker(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{embedder: emb, vectors: vectors, lexicon: lex, breaker: breaker, opts: opts, logger: logger}
}

// Size returns the number of indexed vectors.
func (ix *Index) Size() int {
	if ix == nil || ix.vectors == nil {
		return 0
	}
	return ix.vectors.Size()
}

type searchResult struct {
	hits []vector.Hit
	err  error
}

// Search embeds the normalized query and returns neighbours at or above the similarity
// threshold, restricted to langs when non-empty. It returns by the deadline even if
// the embedder ignores cancellation.
func (ix *Index) Search(ctx context.Context, query string, langs []string) Outcome {
	if ix == nil || ix.vectors == nil || ix.embedder == nil {
		return Outcome{Status: Unavailable, Err: ErrNotBuilt}
	}
	if !ix.breaker.Allow() {
		return Outcome{Status: Unavailable, Err: ErrCircuitOpen}
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.Timeout)
	defer cancel()

	done := make(chan searchResult, 1)
	go func() {
		vec, err := ix.embedder.Embed(ctx, query)
		if err != nil {
			done <- searchResult{err: fmt.Errorf("embed query: %w", err)}
			return
		}
		// One extra hit covers the query's own entry, which is skipped.
		hits, err := ix.vectors.Search(ctx, vec, ix.opts.TopK+1, languageFilter(langs))
		if err != nil {
			err = fmt.Errorf("vector search: %w", err)
		}
		done <- searchResult{hits: hits, err: err}
	}()

	var r searchResult
	select {
	case r = <-done:
	case <-ctx.Done():
		r = searchResult{err: ctx.Err()}
	}
	if r.err != nil {
		return ix.fail(ctx, r.err)
	}
	ix.breaker.Success()
	return Outcome{Status: OK, Results: ix.resolve(query, r.hits)}
}

func (ix *Index) fail(ctx context.Context, err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		ix.breaker.Timeout()
		return Outcome{Status: TimedOut, Err: err}
	}
	return Outcome{Status: Unavailable, Err: err}
}

// languageFilter keeps vector ids in langs; nil when every language is wanted.
func languageFilter(langs []string) vector.Filter {
	if len(langs) == 0 {
		return nil
	}
	return func(id string) bool {
		lang, _, ok := keyword.ParseDocID(id)
		return ok && slices.Contains(langs, lang)
	}
}

func (ix *Index) resolve(query string, hits []vector.Hit) []models.SearchResult {
	results := make([]models.SearchResult, 0, ix.opts.TopK)
	for _, h := range hits {
		if len(results) >= ix.opts.TopK {
			break
		}
		if h.Score < ix.opts.SimilarityThreshold || math.IsNaN(h.Score) {
			continue
		}
		lang, normalized, ok := keyword.ParseDocID(h.ID)
		if !ok || normalized == query {
			continue
		}
		w, ok := ix.lexicon.LookupExact(normalized, []string{lang})
		if !ok {
			continue
		}
		results = append(results, models.SearchResult{
			Word:     w.Text,
			Score:    math.Max(0, math.Min(MaxScore, h.Score)),
			Method:   models.MethodSemantic,
			IsPhrase: normalize.IsPhrase(w.Normalized),
			Language: w.Language,
		})
	}
	return results
}

// Close closes the vector index. The embedder is owned by the caller.
func (ix *Index) Close() error {
	if ix == nil || ix.vectors == nil {
		return nil
	}
	return ix.vectors.Close()
}
