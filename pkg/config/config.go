// Package config provides configuration loading and secret management for
// siteforge. It handles a JSON config file with defaults and environment
// variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Provider name constants.
const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// Default model per provider.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultOllamaModel    = "qwen2.5-coder"
	DefaultOllamaHost     = "http://localhost:11434"
)

// ConfigFilename is the name of the JSON config file inside the data dir.
const ConfigFilename = "config.json"

// LLMConfig selects the generation provider and model.
type LLMConfig struct {
	Provider    string  `json:"provider"`    // mock, openai, anthropic, gemini, ollama
	Model       string  `json:"model"`       // provider-specific model name
	OllamaHost  string  `json:"ollama_host"` // only used by the ollama provider
	MaxTokens   int     `json:"max_tokens"`  // cap on model reply size
	Temperature float64 `json:"temperature"` // 0 keeps generations reproducible
}

// PromptConfig tunes prompt assembly and cost estimation.
type PromptConfig struct {
	CostPer1KTokens    float64 `json:"cost_per_1k_tokens"`   // USD per 1000 prompt tokens
	TokenDivisor       int     `json:"token_divisor"`        // chars-per-token fallback when no codec
	RetrievalTopK      int     `json:"retrieval_top_k"`      // advisory patterns per request
	AdvisoryEntryChars int     `json:"advisory_entry_chars"` // per-pattern render cap
	AdvisoryTotalChars int     `json:"advisory_total_chars"` // whole advisory section cap
}

// Config is the root configuration for the siteforge service.
type Config struct {
	DataDir     string       `json:"data_dir"`     // holds siteforge.db and secrets file
	ListenAddr  string       `json:"listen_addr"`  // HTTP listen address
	PatternSeed string       `json:"pattern_seed"` // optional YAML file of starter patterns
	LLM         LLMConfig    `json:"llm"`
	Prompt      PromptConfig `json:"prompt"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:    ".siteforge",
		ListenAddr: ":8080",
		LLM: LLMConfig{
			Provider:    ProviderMock,
			MaxTokens:   4096,
			Temperature: 0,
		},
		Prompt: PromptConfig{
			CostPer1KTokens:    0.001,
			TokenDivisor:       4,
			RetrievalTopK:      3,
			AdvisoryEntryChars: 300,
			AdvisoryTotalChars: 1200,
		},
	}
}

// Load reads the config file at path, layering it over defaults and then
// applying environment overrides. A missing file is not an error; defaults
// plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments override file values without editing it.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SITEFORGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SITEFORGE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SITEFORGE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("SITEFORGE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SITEFORGE_OLLAMA_HOST"); v != "" {
		cfg.LLM.OllamaHost = v
	}
	if v := os.Getenv("SITEFORGE_RETRIEVAL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Prompt.RetrievalTopK = n
		}
	}
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderMock, ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("unknown llm provider: %q", c.LLM.Provider)
	}
	if c.Prompt.TokenDivisor <= 0 {
		return fmt.Errorf("token_divisor must be positive, got %d", c.Prompt.TokenDivisor)
	}
	if c.Prompt.RetrievalTopK <= 0 {
		return fmt.Errorf("retrieval_top_k must be positive, got %d", c.Prompt.RetrievalTopK)
	}
	if c.Prompt.CostPer1KTokens < 0 {
		return fmt.Errorf("cost_per_1k_tokens must not be negative")
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "siteforge.db")
}

// ModelName returns the configured model, or the provider default.
func (c *Config) ModelName() string {
	if c.LLM.Model != "" {
		return c.LLM.Model
	}
	switch c.LLM.Provider {
	case ProviderOpenAI:
		return DefaultOpenAIModel
	case ProviderAnthropic:
		return DefaultAnthropicModel
	case ProviderGemini:
		return DefaultGeminiModel
	case ProviderOllama:
		return DefaultOllamaModel
	default:
		return "mock"
	}
}

// OllamaHost returns the configured Ollama host, or the default.
func (c *Config) OllamaHost() string {
	if c.LLM.OllamaHost != "" {
		return c.LLM.OllamaHost
	}
	return DefaultOllamaHost
}
