package config

// ProviderType identifies an AI provider backend.
type ProviderType string

const (
	ProviderOllama    ProviderType = "ollama"
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
)

// Config is the top-level quarry configuration, corresponding to .quarry.yml.
type Config struct {
	Provider ProviderType `yaml:"provider" koanf:"provider"`

	Ollama    OllamaConfig    `yaml:"ollama" koanf:"ollama"`
	OpenAI    OpenAIConfig    `yaml:"openai" koanf:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" koanf:"anthropic"`

	DataDir string `yaml:"data_dir" koanf:"data_dir"`
	Port    int    `yaml:"port" koanf:"port"`
	// AllowAllOrigins relaxes CORS for local development.
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`

	// APIToken guards the HTTP surface. Empty disables authentication
	// (local single-user mode).
	APIToken string `yaml:"api_token" koanf:"api_token"`

	Ingest IngestConfig `yaml:"ingest" koanf:"ingest"`
	Search SearchConfig `yaml:"search" koanf:"search"`
	Cache  CacheConfig  `yaml:"cache" koanf:"cache"`
}

// OllamaConfig holds settings for a local Ollama instance.
type OllamaConfig struct {
	BaseURL        string `yaml:"base_url" koanf:"base_url"`
	Model          string `yaml:"model" koanf:"model"`
	EmbeddingModel string `yaml:"embedding_model" koanf:"embedding_model"`
	Dimensions     int    `yaml:"dimensions" koanf:"dimensions"`
}

// OpenAIConfig holds OpenAI API settings. The API key comes from
// OPENAI_API_KEY, never from the config file.
type OpenAIConfig struct {
	Model          string `yaml:"model" koanf:"model"`
	EmbeddingModel string `yaml:"embedding_model" koanf:"embedding_model"`
	Dimensions     int    `yaml:"dimensions" koanf:"dimensions"`
}

// AnthropicConfig holds Anthropic API settings. Anthropic has no embedding
// endpoint; embeddings fall back to the configured Ollama instance.
type AnthropicConfig struct {
	Model string `yaml:"model" koanf:"model"`
}

// IngestConfig bounds the ingestion pipeline.
type IngestConfig struct {
	MaxFileSizeMB    int `yaml:"max_file_size_mb" koanf:"max_file_size_mb"`
	BatchSize        int `yaml:"batch_size" koanf:"batch_size"`
	EmbedBatchSize   int `yaml:"embed_batch_size" koanf:"embed_batch_size"`
	ExtractBatchSize int `yaml:"extract_batch_size" koanf:"extract_batch_size"`
}

// SearchConfig tunes the hybrid retrieval path.
type SearchConfig struct {
	CandidateLimit      int     `yaml:"candidate_limit" koanf:"candidate_limit"`
	MinVectorSimilarity float64 `yaml:"min_vector_similarity" koanf:"min_vector_similarity"`
	TopK                int     `yaml:"top_k" koanf:"top_k"`
	RatePerMinute       int     `yaml:"rate_per_minute" koanf:"rate_per_minute"`
}

// CacheConfig controls the response cache windows.
type CacheConfig struct {
	FreshnessHours int `yaml:"freshness_hours" koanf:"freshness_hours"`
	RetentionDays  int `yaml:"retention_days" koanf:"retention_days"`
}
