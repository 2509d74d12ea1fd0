package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/keyword"
	"github.com/hyperjump/kotoba/internal/lexicon"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/semantic"
)

// WordSource supplies the vocabulary a snapshot is built from.
type WordSource interface {
	ListWords(ctx context.Context, languages []string) ([]models.Word, error)
}

// StaticWords is a WordSource over a fixed vocabulary.
type StaticWords []models.Word

// ListWords returns the whole vocabulary; lexicon.Build applies the language filter.
func (s StaticWords) ListWords(context.Context, []string) ([]models.Word, error) {
	return s, nil
}

// snapshot is an immutable set of indices. Searches hold a read lock so a replaced
// snapshot is only closed once in-flight searches are done with it.
type snapshot struct {
	generation  string
	builtAt     time.Time
	lexicon     *lexicon.Index
	candidates  *keyword.CandidateIndex
	semantic    *semantic.Index
	semanticErr error

	mu     sync.RWMutex
	closed bool
}

func (s *snapshot) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.candidates != nil {
		_ = s.candidates.Close()
	}
	if s.semantic != nil {
		_ = s.semantic.Close()
	}
}

// acquire returns the current snapshot read-locked, or nil after Close. Callers
// must release it.
func (e *Engine) acquire() *snapshot {
	for {
		if e.closed.Load() {
			return nil
		}
		s := e.snap.Load()
		s.mu.RLock()
		if !s.closed {
			return s
		}
		s.mu.RUnlock()
	}
}

func (s *snapshot) release() {
	s.mu.RUnlock()
}

// Rebuild reloads the vocabulary and builds a fresh snapshot, then swaps it in and
// purges the result cache. Searches running during the rebuild keep using the previous
// snapshot. A semantic index failure is logged and leaves semantic search unavailable.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	snap, err := e.build(ctx)
	if err != nil {
		return err
	}
	old := e.snap.Swap(snap)
	e.cache.Purge()
	if old != nil {
		old.close()
	}
	e.logger.Info("Index snapshot ready",
		zap.String("generation", snap.generation),
		zap.Int("words", snap.lexicon.Len()),
		zap.Bool("candidate_index", snap.candidates != nil),
		zap.Int("vectors", snap.semantic.Size()),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (e *Engine) build(ctx context.Context) (*snapshot, error) {
	words, err := e.words.ListWords(ctx, e.cfg.Languages)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	snap := &snapshot{
		generation: uuid.NewString(),
		builtAt:    time.Now().UTC(),
		lexicon:    lexicon.Build(words, e.cfg.Languages),
	}

	// The candidate index is only complete for small edit distances.
	if t := e.cfg.Fuzzy.CandidateIndexThreshold; t > 0 && snap.lexicon.Len() > t && keyword.Covers(e.matcher.MaxDistance()) {
		snap.candidates, err = keyword.NewCandidateIndex(ctx, snap.lexicon.Words())
		if err != nil {
			return nil, fmt.Errorf("build candidate index: %w", err)
		}
	}

	if e.builder == nil {
		snap.semanticErr = semantic.ErrNotBuilt
		return snap, nil
	}
	vecs, err := e.builder.Build(ctx, snap.lexicon)
	if err != nil {
		if ctx.Err() != nil {
			snap.close()
			return nil, ctx.Err()
		}
		e.logger.Warn("Semantic index unavailable", zap.Error(err))
		snap.semanticErr = err
		return snap, nil
	}
	snap.semantic = semantic.NewIndex(e.queryEmbedder, vecs, snap.lexicon, e.breaker, semantic.Options{
		Timeout:             e.cfg.Semantic.Timeout(),
		SimilarityThreshold: e.cfg.Semantic.SimilarityThreshold,
		TopK:                e.cfg.Semantic.TopK,
	}, e.logger)
	return snap, nil
}
