// Package search runs the word search cascade: exact, then fuzzy and semantic in
// parallel, then an optional AI fallback, merged into one ranked list.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotoba/internal/ai"
	"github.com/hyperjump/kotoba/internal/cache"
	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/embedding"
	"github.com/hyperjump/kotoba/internal/fuzzy"
	"github.com/hyperjump/kotoba/internal/keyword"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/normalize"
	"github.com/hyperjump/kotoba/internal/semantic"
)

var (
	// ErrEmptyQuery is returned when the query is empty after normalization.
	ErrEmptyQuery = models.ErrEmptyQuery
	// ErrInvalidOptions is returned when search options are out of range.
	ErrInvalidOptions = models.ErrInvalidOptions
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("search engine closed")
)

// maxCandidates bounds how many entries the candidate index hands to the fuzzy scorer.
const maxCandidates = 2000

// Engine owns one index snapshot per language set and answers searches against it.
type Engine struct {
	cfg     config.SearchConfig
	words   WordSource
	matcher *fuzzy.Matcher
	cache   *cache.ResultCache

	embedder      embedding.Embedder
	queryEmbedder embedding.Embedder
	batcher       *embedding.Batcher
	buildCfg      semantic.BuildConfig
	builder       *semantic.Builder
	breaker       *semantic.Breaker
	suggester     ai.Suggester

	logger *zap.Logger

	snap      atomic.Pointer[snapshot]
	rebuildMu sync.Mutex
	closed    atomic.Bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. Degradations are logged at warn level.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEmbedder enables the semantic stage. The embedder stays owned by the caller.
func WithEmbedder(emb embedding.Embedder, build semantic.BuildConfig) EngineOption {
	return func(e *Engine) {
		e.embedder = emb
		e.buildCfg = build
	}
}

// WithSuggester enables the AI fallback stage.
func WithSuggester(s ai.Suggester) EngineOption {
	return func(e *Engine) { e.suggester = s }
}

// NewEngine builds the initial snapshot from words. It fails when the lexicon cannot be
// loaded; a semantic index that cannot be built only disables the semantic stage.
func NewEngine(ctx context.Context, words WordSource, cfg config.SearchConfig, opts ...EngineOption) (*Engine, error) {
	if words == nil {
		return nil, errors.New("search: word source is required")
	}
	config.ApplySearchDefaults(&cfg)
	rc, err := cache.New(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:   cfg,
		words: words,
		cache: rc,
		matcher: fuzzy.NewMatcher(
			fuzzy.WithMaxDistance(cfg.Fuzzy.MaxDistance),
			fuzzy.WithMinScore(cfg.MinScore),
			fuzzy.WithLevenshteinThreshold(cfg.Fuzzy.LevenshteinThreshold),
			fuzzy.WithMinQueryLength(cfg.Fuzzy.MinQueryLength),
			fuzzy.WithPhoneticBonus(cfg.Fuzzy.PhoneticBonus),
		),
		breaker: semantic.NewBreaker(cfg.Semantic.MaxConsecutiveTimeouts, cfg.Semantic.Cooldown()),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.embedder != nil {
		e.queryEmbedder = e.embedder
		if w := cfg.Semantic.BatchWindow(); w > 0 {
			e.batcher = embedding.NewBatcher(e.embedder, w, e.buildCfg.BatchSize)
			e.queryEmbedder = e.batcher
		}
		if e.buildCfg.MinLength == 0 {
			e.buildCfg.MinLength = cfg.Semantic.MinQueryLength
		}
		e.builder = semantic.NewBuilder(e.embedder, e.buildCfg, e.logger)
	}
	if err := e.Rebuild(ctx); err != nil {
		e.closeQueryPath()
		return nil, err
	}
	return e, nil
}

// plan is the resolved form of one call's options.
type plan struct {
	normalized string
	languages  []string
	minScore   float64
	semantic   bool
	maxResults int
	broad      bool
}

func (e *Engine) resolve(query string, opts models.SearchOptions) (plan, error) {
	if err := opts.Validate(); err != nil {
		return plan{}, err
	}
	p := plan{
		normalized: normalize.Normalize(query),
		languages:  e.cfg.Languages,
		minScore:   e.cfg.MinScore,
		semantic:   e.cfg.SemanticEnabled(),
		maxResults: e.cfg.DefaultLimit,
		broad:      opts.BroadRecall,
	}
	if p.normalized == "" {
		return plan{}, ErrEmptyQuery
	}
	if len(opts.Languages) > 0 {
		p.languages = opts.Languages
	}
	if opts.MinScore != nil {
		p.minScore = max(p.minScore, *opts.MinScore)
	}
	if opts.EnableSemantic != nil {
		p.semantic = *opts.EnableSemantic
	}
	if opts.MaxResults > 0 {
		p.maxResults = opts.MaxResults
	}
	p.maxResults = min(p.maxResults, e.cfg.MaxLimit)
	return p, nil
}

// Search runs the cascade for query. Only invalid input is an error: stages that are
// unavailable or time out are skipped and listed in the response's Degraded field.
func (e *Engine) Search(ctx context.Context, query string, opts models.SearchOptions) (*models.SearchResponse, error) {
	start := time.Now()
	p, err := e.resolve(query, opts)
	if err != nil {
		return nil, err
	}
	snap := e.acquire()
	if snap == nil {
		return nil, ErrClosed
	}
	defer snap.release()

	resp := &models.SearchResponse{
		Query:      query,
		Normalized: p.normalized,
		Generation: snap.generation,
	}
	key := cache.Key(p.normalized, p.languages, p.minScore, p.semantic, p.broad)
	if cached, ok := e.cache.Get(key); ok {
		resp.CacheHit = true
		e.finish(resp, cached, p.maxResults, start)
		return resp, nil
	}

	var exact []models.SearchResult
	if w, ok := snap.lexicon.LookupExact(p.normalized, p.languages); ok {
		exact = []models.SearchResult{{
			Word:     w.Text,
			Score:    1,
			Method:   models.MethodExact,
			IsPhrase: normalize.IsPhrase(w.Normalized),
			Language: w.Language,
		}}
	}

	var (
		fuzzyResults, semanticResults []models.SearchResult
		degraded                      []string
		mu                            sync.Mutex
	)
	degrade := func(method models.Method, reason string, err error) {
		e.logger.Warn("Search stage degraded",
			zap.String("query", p.normalized),
			zap.String("method", string(method)),
			zap.String("reason", reason),
			zap.Error(err))
		mu.Lock()
		degraded = append(degraded, string(method)+":"+reason)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.broad || len(exact) == 0 {
		g.Go(func() error {
			fuzzyResults = e.fuzzy(gctx, snap, p, degrade)
			return nil
		})
	}
	// Without an embedder the semantic stage is off rather than degraded.
	if p.semantic && e.builder != nil && utf8.RuneCountInString(p.normalized) >= e.cfg.Semantic.MinQueryLength {
		g.Go(func() error {
			if snap.semantic == nil {
				degrade(models.MethodSemantic, "unavailable", snap.semanticErr)
				return nil
			}
			out := snap.semantic.Search(gctx, p.normalized, p.languages)
			if out.Status != semantic.OK {
				degrade(models.MethodSemantic, out.Reason(), out.Err)
				return nil
			}
			semanticResults = out.Results
			return nil
		})
	}
	_ = g.Wait()

	results := Merge(p.normalized, p.minScore, exact, fuzzyResults, semanticResults)
	if len(results) == 0 && e.suggester != nil && e.cfg.AI.Enabled {
		suggested, err := e.suggest(ctx, snap, p)
		if err != nil {
			degrade(models.MethodAIFallback, "unavailable", err)
		}
		results = Merge(p.normalized, p.minScore, suggested)
	}

	if len(degraded) == 0 && ctx.Err() == nil {
		e.cache.Put(key, results)
	}
	resp.Degraded = degraded
	e.finish(resp, results, p.maxResults, start)
	return resp, nil
}

func (e *Engine) finish(resp *models.SearchResponse, results []models.SearchResult, limit int, start time.Time) {
	resp.Total = len(results)
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	resp.Results = results
	resp.QueryTime = time.Since(start).Milliseconds()
}

// fuzzy scores the query against the entries that can lie within the matcher's edit
// distance. The candidate index pre-selects them when it is complete for that distance;
// otherwise the rune-length window of the lexicon is scanned.
func (e *Engine) fuzzy(ctx context.Context, snap *snapshot, p plan, degrade func(models.Method, string, error)) []models.SearchResult {
	d := e.matcher.MaxDistance()
	if snap.candidates == nil || !keyword.Covers(d) {
		return e.matcher.Match(p.normalized, lengthWindow(snap, p, d))
	}
	ids, err := snap.candidates.Candidates(ctx, p.normalized, p.languages, keyword.MaxFuzziness, maxCandidates)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		degrade(models.MethodFuzzy, "candidate-scan", err)
		return e.matcher.Match(p.normalized, lengthWindow(snap, p, d))
	}
	// A full page may have cut off matches.
	if len(ids) >= maxCandidates {
		return e.matcher.Match(p.normalized, lengthWindow(snap, p, d))
	}
	words := make([]models.Word, 0, len(ids))
	for _, id := range ids {
		lang, normalized, ok := keyword.ParseDocID(id)
		if !ok {
			continue
		}
		if w, ok := snap.lexicon.LookupExact(normalized, []string{lang}); ok {
			words = append(words, w)
		}
	}
	return e.matcher.Match(p.normalized, words)
}

// lengthWindow returns the entries whose rune length is within d of the query's.
// Length difference is a lower bound on edit distance.
func lengthWindow(snap *snapshot, p plan, d int) []models.Word {
	n := utf8.RuneCountInString(p.normalized)
	return snap.lexicon.CandidatesByLength(p.languages, n-d, n+d)
}

// suggest asks the AI suggester and keeps suggestions that are lexicon entries.
func (e *Engine) suggest(ctx context.Context, snap *snapshot, p plan) ([]models.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.AI.Timeout())
	defer cancel()
	suggestions, err := e.suggester.Suggest(ctx, p.normalized, p.languages, e.cfg.AI.MaxSuggestions)
	if err != nil {
		return nil, fmt.Errorf("ai suggest: %w", err)
	}
	var out []models.SearchResult
	for _, s := range suggestions {
		w, ok := snap.lexicon.LookupExact(normalize.Normalize(s), p.languages)
		if !ok || w.Normalized == p.normalized {
			continue
		}
		out = append(out, models.SearchResult{
			Word:     w.Text,
			Score:    e.cfg.AI.Score,
			Method:   models.MethodAIFallback,
			IsPhrase: normalize.IsPhrase(w.Normalized),
			Language: w.Language,
		})
	}
	return out, nil
}

func (e *Engine) closeQueryPath() {
	if e.batcher != nil {
		_ = e.batcher.Close()
	}
}

// Close releases the snapshot and the query batcher. The embedder passed to
// WithEmbedder is not closed.
func (e *Engine) Close() error {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()
	if e.closed.Swap(true) {
		return nil
	}
	if s := e.snap.Load(); s != nil {
		s.close()
	}
	e.closeQueryPath()
	return nil
}
