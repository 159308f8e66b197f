package llm

import (
	"context"
	"fmt"

	"siteforge/pkg/config"
)

// ModelInfo describes one selectable provider with its default model.
type ModelInfo struct {
	Provider     string `json:"provider"`
	DefaultModel string `json:"default_model"`
	RequiresKey  bool   `json:"requires_key"`
}

// AvailableModels enumerates the providers this build can drive, with the
// model each one falls back to when the config names none.
func AvailableModels() []ModelInfo {
	return []ModelInfo{
		{Provider: config.ProviderMock, DefaultModel: "mock"},
		{Provider: config.ProviderOpenAI, DefaultModel: config.DefaultOpenAIModel, RequiresKey: true},
		{Provider: config.ProviderAnthropic, DefaultModel: config.DefaultAnthropicModel, RequiresKey: true},
		{Provider: config.ProviderGemini, DefaultModel: config.DefaultGeminiModel, RequiresKey: true},
		{Provider: config.ProviderOllama, DefaultModel: config.DefaultOllamaModel},
	}
}

// NewFromConfig builds the Client the configuration names. API keys resolve
// through the secrets layer (decrypted file first, then environment).
func NewFromConfig(ctx context.Context, cfg *config.Config) (Client, error) {
	model := cfg.ModelName()

	switch cfg.LLM.Provider {
	case config.ProviderMock:
		return NewMockClient(), nil

	case config.ProviderOpenAI:
		key, err := config.GetSecret(config.SecretOpenAIKey)
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		return NewOpenAIClient(key, model), nil

	case config.ProviderAnthropic:
		key, err := config.GetSecret(config.SecretAnthropicKey)
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		return NewAnthropicClient(key, model), nil

	case config.ProviderGemini:
		key, err := config.GetSecret(config.SecretGeminiKey)
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		return NewGeminiClient(ctx, key, model)

	case config.ProviderOllama:
		return NewOllamaClient(cfg.OllamaHost(), model), nil

	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.LLM.Provider)
	}
}
