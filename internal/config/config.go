// Package config provides configuration loading and structs for the kotoba engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Search    SearchConfig    `yaml:"search"`
	Lexicon   LexiconConfig   `yaml:"lexicon"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig holds paths for the lexicon database and on-disk index caches.
type StorageConfig struct {
	DatabasePath       string `yaml:"database_path"`
	VectorIndexPath    string `yaml:"vector_index_path"`
	EmbeddingCachePath string `yaml:"embedding_cache_path"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "onnx", "openai" or "mock".
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	BatchSize  int    `yaml:"batch_size"`
	Workers    int    `yaml:"workers"`
}

// VectorConfig selects the nearest-neighbour backend.
type VectorConfig struct {
	// IndexType is "memory" or "faiss".
	IndexType string `yaml:"index_type"`
}

// SearchConfig holds cascade settings.
type SearchConfig struct {
	MinScore       float64        `yaml:"min_score"`
	EnableSemantic *bool          `yaml:"enable_semantic"`
	Languages      []string       `yaml:"languages"`
	DefaultLimit   int            `yaml:"default_limit"`
	MaxLimit       int            `yaml:"max_limit"`
	CacheSize      int            `yaml:"cache_size"`
	Fuzzy          FuzzyConfig    `yaml:"fuzzy"`
	Semantic       SemanticConfig `yaml:"semantic"`
	AI             AIConfig       `yaml:"ai"`
}

// SemanticEnabled returns whether semantic search runs by default; true when unset.
func (s *SearchConfig) SemanticEnabled() bool {
	if s.EnableSemantic != nil {
		return *s.EnableSemantic
	}
	return true
}

// FuzzyConfig tunes the edit-distance matcher.
type FuzzyConfig struct {
	LevenshteinThreshold    float64 `yaml:"levenshtein_threshold"`
	MaxDistance             int     `yaml:"max_distance"`
	MinQueryLength          int     `yaml:"min_query_length"`
	PhoneticBonus           float64 `yaml:"phonetic_bonus"`
	CandidateIndexThreshold int     `yaml:"candidate_index_threshold"`
}

// SemanticConfig tunes the embedding stage.
type SemanticConfig struct {
	TimeoutSeconds         float64 `yaml:"timeout_seconds"`
	SimilarityThreshold    float64 `yaml:"similarity_threshold"`
	TopK                   int     `yaml:"top_k"`
	MinQueryLength         int     `yaml:"min_query_length"`
	BatchWindowMs          int     `yaml:"batch_window_ms"`
	MaxConsecutiveTimeouts int     `yaml:"max_consecutive_timeouts"`
	CooldownSeconds        float64 `yaml:"cooldown_seconds"`
}

// Timeout returns the semantic deadline as a duration.
func (s SemanticConfig) Timeout() time.Duration {
	return seconds(s.TimeoutSeconds)
}

// Cooldown returns how long semantic search stays disabled after repeated timeouts.
func (s SemanticConfig) Cooldown() time.Duration {
	return seconds(s.CooldownSeconds)
}

// BatchWindow returns how long embedding requests are collected before one batch call.
func (s SemanticConfig) BatchWindow() time.Duration {
	return time.Duration(s.BatchWindowMs) * time.Millisecond
}

// AIConfig configures the optional last-resort suggestion stage.
type AIConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Score          float64 `yaml:"score"`
	MaxSuggestions int     `yaml:"max_suggestions"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

// Timeout returns the AI request deadline.
func (a AIConfig) Timeout() time.Duration {
	return seconds(a.TimeoutSeconds)
}

// LexiconConfig lists the wordlist files imported on init.
type LexiconConfig struct {
	Sources         []string `yaml:"sources"`
	DefaultLanguage string   `yaml:"default_language"`
	Extensions      []string `yaml:"extensions"`
}

// WatchConfig holds lexicon source watch settings.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMs int  `yaml:"debounce_ms"`
}

// Load reads and parses the config file at path, applies defaults, expands paths,
// and applies KOTOBA_* environment overrides.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.EmbeddingCachePath = expandPath(cfg.Storage.EmbeddingCachePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Lexicon.Sources {
		cfg.Lexicon.Sources[i] = expandPath(cfg.Lexicon.Sources[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration with KOTOBA_* environment overrides
// applied, for running without a config file.
func Default() (*Config, error) {
	var cfg Config
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	s := c.Search
	if s.MinScore < 0 || s.MinScore > 1 {
		return fmt.Errorf("search.min_score must be within [0,1], got %v", s.MinScore)
	}
	if s.Fuzzy.LevenshteinThreshold < 0 || s.Fuzzy.LevenshteinThreshold > 1 {
		return fmt.Errorf("search.fuzzy.levenshtein_threshold must be within [0,1], got %v", s.Fuzzy.LevenshteinThreshold)
	}
	if s.Semantic.SimilarityThreshold < 0 || s.Semantic.SimilarityThreshold > 1 {
		return fmt.Errorf("search.semantic.similarity_threshold must be within [0,1], got %v", s.Semantic.SimilarityThreshold)
	}
	if s.Semantic.TimeoutSeconds <= 0 {
		return fmt.Errorf("search.semantic.timeout_seconds must be positive, got %v", s.Semantic.TimeoutSeconds)
	}
	switch c.Embedding.Provider {
	case "mock", "onnx", "openai":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Vector.IndexType {
	case "memory", "faiss":
	default:
		return fmt.Errorf("unknown vector index type %q", c.Vector.IndexType)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
