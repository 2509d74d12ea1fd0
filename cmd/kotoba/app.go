package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/ai"
	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/embedding"
	"github.com/hyperjump/kotoba/internal/extract"
	"github.com/hyperjump/kotoba/internal/indexer"
	"github.com/hyperjump/kotoba/internal/search"
	"github.com/hyperjump/kotoba/internal/semantic"
	"github.com/hyperjump/kotoba/internal/storage"
	"github.com/hyperjump/kotoba/internal/vector"
	"github.com/hyperjump/kotoba/pkg/utils"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development), then falls back to built-in
// defaults if the default file does not exist either.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(g *globalFlags) (*config.Config, string, error) {
	if err := config.LoadDotEnv(g.envFile); err != nil {
		return nil, "", err
	}
	path := g.configPath
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg, err := config.Default()
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Components holds initialized services.
type Components struct {
	Config *config.Config
	// ConfigPath is the file Config was loaded from, "" for built-in defaults.
	ConfigPath string

	Logger   *zap.Logger
	Storage  storage.Storage
	Embedder embedding.Embedder
	Importer *indexer.Importer
	Engine   *search.Engine
}

// Close releases the engine before the embedder and storage it reads from.
func (c *Components) Close() {
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	_ = c.Logger.Sync()
}

// setup loads config and opens storage and the importer. The engine is built separately
// by buildEngine so init can import sources first.
func setup(g *globalFlags) (*Components, error) {
	cfg, resolved, err := loadConfig(g)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || g.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	imp := indexer.NewImporter(store, extract.NewExtractor(),
		indexer.WithLogger(logger),
		indexer.WithLanguages(cfg.Search.Languages, cfg.Lexicon.DefaultLanguage),
		indexer.WithExtensions(cfg.Lexicon.Extensions),
	)
	return &Components{Config: cfg, ConfigPath: resolved, Logger: logger, Storage: store, Importer: imp}, nil
}

// buildEngine creates the embedder and suggester and builds the first snapshot. When
// requireSemantic is set, an embedder or semantic index that cannot be built is an error;
// otherwise semantic search is left unavailable with a warning.
func (c *Components) buildEngine(ctx context.Context, requireSemantic bool) error {
	cfg := c.Config
	opts := []search.EngineOption{search.WithLogger(c.Logger)}

	if cfg.Search.SemanticEnabled() {
		emb, err := embedding.New(cfg.Embedding, cfg.Storage.EmbeddingCachePath, c.Logger)
		switch {
		case err == nil:
			c.Embedder = emb
			opts = append(opts, search.WithEmbedder(emb, semantic.BuildConfig{
				IndexType: vectorIndexType(cfg, c.Logger),
				Path:      cfg.Storage.VectorIndexPath,
				BatchSize: cfg.Embedding.BatchSize,
				Workers:   cfg.Embedding.Workers,
			}))
		case requireSemantic:
			return fmt.Errorf("failed to initialize embedder: %w", err)
		default:
			c.Logger.Warn("Embedder unavailable, semantic search disabled",
				zap.String("provider", cfg.Embedding.Provider), zap.Error(err))
		}
	}

	if cfg.Search.AI.Enabled {
		sugg, err := ai.NewOpenAISuggester(ai.Config{
			APIKey:  cfg.Search.AI.APIKey,
			BaseURL: cfg.Search.AI.BaseURL,
			Model:   cfg.Search.AI.Model,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize ai fallback: %w", err)
		}
		opts = append(opts, search.WithSuggester(sugg))
	}

	engine, err := search.NewEngine(ctx, c.Storage, cfg.Search, opts...)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	c.Engine = engine
	if requireSemantic && c.Embedder != nil {
		if st := engine.Stats(); !st.SemanticAvailable {
			return fmt.Errorf("failed to build semantic index: %s", st.SemanticError)
		}
	}
	return nil
}

// vectorIndexType falls back to the memory index when FAISS is configured but not
// compiled in.
func vectorIndexType(cfg *config.Config, logger *zap.Logger) string {
	t := cfg.Vector.IndexType
	if t == string(vector.IndexTypeFAISS) && !vector.IsFAISSAvailable() {
		logger.Warn("FAISS not available, falling back to memory vector index")
		return string(vector.IndexTypeMemory)
	}
	return t
}
