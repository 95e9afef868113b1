package ai

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/db"
)

// SettingProvider is the settings table key naming the active AI provider.
// Changing it through the admin API swaps the backend without a restart.
const SettingProvider = "ai_provider"

// NewProvider constructs a provider of the given type from the config.
func NewProvider(providerType config.ProviderType, cfg *config.Config) (Provider, error) {
	switch providerType {
	case config.ProviderOllama:
		return NewOllamaProvider(cfg.Ollama.BaseURL, cfg.Ollama.Model, cfg.Ollama.EmbeddingModel, cfg.Ollama.Dimensions), nil

	case config.ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		return NewOpenAIProvider(apiKey, cfg.OpenAI.Model, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.Dimensions), nil

	case config.ProviderAnthropic:
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		embedder := NewOllamaProvider(cfg.Ollama.BaseURL, cfg.Ollama.Model, cfg.Ollama.EmbeddingModel, cfg.Ollama.Dimensions)
		return NewAnthropicProvider(apiKey, cfg.Anthropic.Model, embedder), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}

// Resolver hands out the currently selected provider. The selection lives
// in the settings table so it can change while the server runs; the
// constructed provider is reused until the stored name differs.
type Resolver struct {
	database *db.DB
	cfg      *config.Config

	mu     sync.Mutex
	cached Provider
	name   config.ProviderType
}

// NewResolver creates a provider resolver backed by the settings table.
func NewResolver(database *db.DB, cfg *config.Config) *Resolver {
	return &Resolver{database: database, cfg: cfg}
}

// Resolve returns the active provider, rebuilding it if the stored
// selection changed since the last call.
func (r *Resolver) Resolve(ctx context.Context) (Provider, error) {
	stored, err := r.database.GetSetting(SettingProvider, string(r.cfg.Provider))
	if err != nil {
		return nil, err
	}
	selected := config.ProviderType(stored)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && r.name == selected {
		return r.cached, nil
	}

	provider, err := NewProvider(selected, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("constructing %s provider: %w", selected, err)
	}

	r.cached = provider
	r.name = selected
	return provider, nil
}
