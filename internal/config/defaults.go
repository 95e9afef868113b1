package config

// DefaultExcludes are directory patterns crawl sources skip by default.
var DefaultExcludes = []string{
	"node_modules",
	".git",
	".DS_Store",
	".Trash",
	"__MACOSX",
}

// DefaultFileTypes are the extensions ingested when a source does not
// specify its own allow-list.
var DefaultFileTypes = []string{"pdf", "xlsx", "csv", "docx", "txt"}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderOllama,
		Ollama: OllamaConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "llama3:8b",
			EmbeddingModel: "nomic-embed-text",
			Dimensions:     768,
		},
		OpenAI: OpenAIConfig{
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Dimensions:     1536,
		},
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-5-20250929",
		},
		DataDir: ".quarry",
		Port:    8080,
		Ingest: IngestConfig{
			MaxFileSizeMB:    100,
			BatchSize:        1000,
			EmbedBatchSize:   2000,
			ExtractBatchSize: 500,
		},
		Search: SearchConfig{
			CandidateLimit:      80,
			MinVectorSimilarity: 0.35,
			TopK:                15,
			RatePerMinute:       20,
		},
		Cache: CacheConfig{
			FreshnessHours: 24,
			RetentionDays:  7,
		},
	}
}
