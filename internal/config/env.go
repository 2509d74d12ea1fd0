package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every override variable, e.g. KOTOBA_MIN_SCORE.
const EnvPrefix = "KOTOBA"

// envOverrides holds environment overrides; nil pointers leave the file value in place.
type envOverrides struct {
	Debug             *bool    `envconfig:"DEBUG"`
	Host              *string  `envconfig:"SERVER_HOST"`
	Port              *int     `envconfig:"SERVER_PORT"`
	DatabasePath      *string  `envconfig:"DATABASE_PATH"`
	VectorIndexPath   *string  `envconfig:"VECTOR_INDEX_PATH"`
	EmbeddingProvider *string  `envconfig:"EMBEDDING_PROVIDER"`
	EmbeddingModel    *string  `envconfig:"EMBEDDING_MODEL"`
	EmbeddingAPIKey   *string  `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingBaseURL  *string  `envconfig:"EMBEDDING_BASE_URL"`
	MinScore          *float64 `envconfig:"MIN_SCORE"`
	EnableSemantic    *bool    `envconfig:"ENABLE_SEMANTIC"`
	Languages         []string `envconfig:"LANGUAGES"`
	SemanticTimeout   *float64 `envconfig:"SEMANTIC_TIMEOUT_SECONDS"`
	AIEnabled         *bool    `envconfig:"AI_ENABLED"`
	AIAPIKey          *string  `envconfig:"AI_API_KEY"`
	AIBaseURL         *string  `envconfig:"AI_BASE_URL"`
}

// LoadDotEnv loads variables from a .env file if it exists. Existing variables win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays KOTOBA_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	setIf(&cfg.Debug, env.Debug)
	setIf(&cfg.Server.Host, env.Host)
	setIf(&cfg.Server.Port, env.Port)
	setIf(&cfg.Storage.DatabasePath, env.DatabasePath)
	setIf(&cfg.Storage.VectorIndexPath, env.VectorIndexPath)
	setIf(&cfg.Embedding.Provider, env.EmbeddingProvider)
	setIf(&cfg.Embedding.Model, env.EmbeddingModel)
	setIf(&cfg.Embedding.APIKey, env.EmbeddingAPIKey)
	setIf(&cfg.Embedding.BaseURL, env.EmbeddingBaseURL)
	setIf(&cfg.Search.MinScore, env.MinScore)
	if env.EnableSemantic != nil {
		cfg.Search.EnableSemantic = env.EnableSemantic
	}
	if len(env.Languages) > 0 {
		cfg.Search.Languages = env.Languages
	}
	setIf(&cfg.Search.Semantic.TimeoutSeconds, env.SemanticTimeout)
	setIf(&cfg.Search.AI.Enabled, env.AIEnabled)
	setIf(&cfg.Search.AI.APIKey, env.AIAPIKey)
	setIf(&cfg.Search.AI.BaseURL, env.AIBaseURL)
	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
