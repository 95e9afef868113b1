package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and saves the
// result to the given path. It returns the resulting Config.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to quarry! Let's configure your workspace.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Select AI provider",
		Items: []string{"ollama", "openai", "anthropic"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)

	if envVar := APIKeyEnvVar(cfg.Provider); envVar != "" {
		if os.Getenv(envVar) == "" {
			fmt.Printf("Note: set %s in your environment before starting the server.\n", envVar)
		}
		if cfg.Provider == ProviderAnthropic {
			fmt.Println("Anthropic has no embedding API; embeddings will use the local Ollama instance.")
		}
	}

	if cfg.Provider == ProviderOllama || cfg.Provider == ProviderAnthropic {
		urlPrompt := promptui.Prompt{
			Label:   "Ollama base URL",
			Default: cfg.Ollama.BaseURL,
		}
		baseURL, err := urlPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("ollama base url: %w", err)
		}
		cfg.Ollama.BaseURL = baseURL
	}

	dataDirPrompt := promptui.Prompt{
		Label:   "Data directory",
		Default: cfg.DataDir,
	}
	dataDir, err := dataDirPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	cfg.DataDir = dataDir

	portPrompt := promptui.Prompt{
		Label:   "HTTP port",
		Default: strconv.Itoa(cfg.Port),
		Validate: func(input string) error {
			n, err := strconv.Atoi(input)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("enter a port between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Port, _ = strconv.Atoi(portStr)

	tokenPrompt := promptui.Prompt{
		Label:   "API token (leave blank to disable authentication)",
		Default: "",
	}
	token, err := tokenPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("api token: %w", err)
	}
	cfg.APIToken = token

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, err
	}

	fmt.Printf("\nConfiguration written to %s\n", path)
	fmt.Println("Next: add a source with the API, then run `quarry pipeline`.")
	return cfg, nil
}
