package semantic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/embedding"
	"github.com/hyperjump/kotoba/internal/keyword"
	"github.com/hyperjump/kotoba/internal/lexicon"
	"github.com/hyperjump/kotoba/internal/vector"
)

// BuildConfig controls how vocabulary vectors are produced and persisted.
type BuildConfig struct {
	IndexType string
	// Path is where the vector index is persisted. Empty keeps it in memory only.
	Path      string
	BatchSize int
	Workers   int
	// MinLength is the shortest normalized entry that gets a vector.
	MinLength int
}

// Builder builds or warm-loads the vector index for a lexicon snapshot.
type Builder struct {
	embedder embedding.Embedder
	cfg      BuildConfig
	logger   *zap.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(emb embedding.Embedder, cfg BuildConfig, logger *zap.Logger) *Builder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{embedder: emb, cfg: cfg, logger: logger}
}

// Build returns a vector index covering lex. A persisted index whose manifest matches
// the lexicon checksum and embedding model is loaded as is; a missing, stale or corrupt
// one is rebuilt and persisted. Persist failures are logged and the in-memory index
// is still returned.
func (b *Builder) Build(ctx context.Context, lex *lexicon.Index) (vector.VectorIndex, error) {
	if b.embedder == nil {
		return nil, ErrNotBuilt
	}
	idx, err := vector.NewVectorIndex(b.cfg.IndexType, b.embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}

	expect := vector.Manifest{
		IndexType:       b.cfg.IndexType,
		Model:           b.embedder.Model(),
		LexiconChecksum: lex.Checksum(),
	}
	m, err := vector.LoadVerified(idx, b.cfg.Path, expect)
	switch {
	case err == nil:
		b.logger.Info("Loaded vector index", zap.String("path", b.cfg.Path), zap.Int("vectors", m.Count))
		return idx, nil
	case errors.Is(err, vector.ErrNotPersisted):
	case errors.Is(err, vector.ErrStale), errors.Is(err, vector.ErrCorrupt):
		b.logger.Warn("Rebuilding vector index", zap.String("path", b.cfg.Path), zap.Error(err))
		vector.Remove(idx, b.cfg.Path)
		_ = idx.Close()
		if idx, err = vector.NewVectorIndex(b.cfg.IndexType, b.embedder.Dimensions()); err != nil {
			return nil, fmt.Errorf("create vector index: %w", err)
		}
	default:
		b.logger.Warn("Vector index unreadable, rebuilding", zap.Error(err))
	}

	if err := b.populate(ctx, idx, lex); err != nil {
		_ = idx.Close()
		return nil, err
	}
	if err := vector.SaveWithManifest(idx, b.cfg.Path, expect); err != nil {
		b.logger.Warn("Failed to persist vector index", zap.String("path", b.cfg.Path), zap.Error(err))
	}
	return idx, nil
}

func (b *Builder) populate(ctx context.Context, idx vector.VectorIndex, lex *lexicon.Index) error {
	var ids, texts []string
	for _, w := range lex.Words() {
		if len([]rune(w.Normalized)) < b.cfg.MinLength {
			continue
		}
		ids = append(ids, keyword.DocID(w.Language, w.Normalized))
		texts = append(texts, w.Normalized)
	}
	if len(ids) == 0 {
		return nil
	}

	pool, err := ants.NewPool(b.cfg.Workers)
	if err != nil {
		return fmt.Errorf("create embedding pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for start := 0; start < len(ids); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(ids))
		batchIDs, batchTexts := ids[start:end], texts[start:end]
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vecs, err := b.embedder.EmbedBatch(ctx, batchTexts)
			if err != nil {
				fail(fmt.Errorf("embed vocabulary: %w", err))
				return
			}
			if err := idx.Add(ctx, batchIDs, vecs); err != nil {
				fail(fmt.Errorf("add vectors: %w", err))
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.logger.Info("Built vector index", zap.Int("vectors", idx.Size()), zap.String("model", b.embedder.Model()))
	return nil
}
