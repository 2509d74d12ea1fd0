package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotoba/data/db/lexicon.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/kotoba/data/indices/vectors"
	}
	if cfg.Storage.EmbeddingCachePath == "" {
		cfg.Storage.EmbeddingCachePath = "/usr/local/var/kotoba/data/cache/embeddings"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kotoba/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 32
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 4
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}

	ApplySearchDefaults(&cfg.Search)
	if cfg.Lexicon.DefaultLanguage == "" {
		cfg.Lexicon.DefaultLanguage = cfg.Search.Languages[0]
	}
	if cfg.Lexicon.Extensions == nil {
		cfg.Lexicon.Extensions = []string{".txt", ".lst", ".md", ".tsv", ".csv", ".pdf", ".docx", ".xlsx"}
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = 500
	}
}

// ApplySearchDefaults sets default values for any zero values in the search settings.
func ApplySearchDefaults(s *SearchConfig) {
	if s.MinScore == 0 {
		s.MinScore = 0.6
	}
	// EnableSemantic defaults to true when unset (nil).
	if s.EnableSemantic == nil {
		t := true
		s.EnableSemantic = &t
	}
	if len(s.Languages) == 0 {
		s.Languages = []string{"en"}
	}
	if s.DefaultLimit == 0 {
		s.DefaultLimit = 20
	}
	if s.MaxLimit == 0 {
		s.MaxLimit = 100
	}
	if s.CacheSize == 0 {
		s.CacheSize = 1000
	}
	if s.Fuzzy.LevenshteinThreshold == 0 {
		s.Fuzzy.LevenshteinThreshold = 0.8
	}
	if s.Fuzzy.MaxDistance == 0 {
		s.Fuzzy.MaxDistance = 3
	}
	if s.Fuzzy.MinQueryLength == 0 {
		s.Fuzzy.MinQueryLength = 2
	}
	if s.Fuzzy.PhoneticBonus == 0 {
		s.Fuzzy.PhoneticBonus = 0.05
	}
	if s.Fuzzy.CandidateIndexThreshold == 0 {
		s.Fuzzy.CandidateIndexThreshold = 50000
	}
	if s.Semantic.TimeoutSeconds == 0 {
		s.Semantic.TimeoutSeconds = 5.0
	}
	if s.Semantic.SimilarityThreshold == 0 {
		s.Semantic.SimilarityThreshold = 0.7
	}
	if s.Semantic.TopK == 0 {
		s.Semantic.TopK = 20
	}
	if s.Semantic.MinQueryLength == 0 {
		s.Semantic.MinQueryLength = 3
	}
	if s.Semantic.BatchWindowMs == 0 {
		s.Semantic.BatchWindowMs = 5
	}
	if s.Semantic.MaxConsecutiveTimeouts == 0 {
		s.Semantic.MaxConsecutiveTimeouts = 3
	}
	if s.Semantic.CooldownSeconds == 0 {
		s.Semantic.CooldownSeconds = 30
	}
	if s.AI.Model == "" {
		s.AI.Model = "gpt-4o-mini"
	}
	if s.AI.Score == 0 {
		s.AI.Score = 0.65
	}
	if s.AI.MaxSuggestions == 0 {
		s.AI.MaxSuggestions = 5
	}
	if s.AI.TimeoutSeconds == 0 {
		s.AI.TimeoutSeconds = 10
	}
}
