// Package embedding produces word and phrase embeddings and caches them.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/config"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Model identifies the model so persisted vectors can be invalidated when it changes.
	Model() string
	Close() error
}

// New creates the embedder selected by cfg.Provider, wrapped in a memory and disk cache.
// The disk tier is skipped with a warning when it cannot be opened.
func New(cfg config.EmbeddingConfig, cachePath string, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		base Embedder
		err  error
	)
	switch cfg.Provider {
	case "mock":
		base = NewMockEmbedder(cfg.Dimensions)
	case "onnx":
		base, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case "openai":
		base, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	var store *BadgerStore
	if cachePath != "" {
		store, err = OpenBadgerStore(cachePath, logger)
		if err != nil {
			logger.Warn("embedding disk cache unavailable", zap.String("path", cachePath), zap.Error(err))
			store = nil
		}
	}
	cached, err := NewCachedEmbedder(base, int64(cfg.CacheSize), store)
	if err != nil {
		_ = base.Close()
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	return cached, nil
}
