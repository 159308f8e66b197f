package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.LLM.Provider != ProviderMock {
		t.Errorf("expected mock provider by default, got %s", cfg.LLM.Provider)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Prompt.TokenDivisor != 4 {
		t.Errorf("expected default token divisor 4, got %d", cfg.Prompt.TokenDivisor)
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFilename)
	content := `{"listen_addr": ":9999", "llm": {"provider": "openai"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("expected file value :9999, got %s", cfg.ListenAddr)
	}
	if cfg.LLM.Provider != ProviderOpenAI {
		t.Errorf("expected provider openai, got %s", cfg.LLM.Provider)
	}
	// Untouched fields keep defaults.
	if cfg.Prompt.RetrievalTopK != 3 {
		t.Errorf("expected default top_k 3, got %d", cfg.Prompt.RetrievalTopK)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SITEFORGE_LLM_PROVIDER", ProviderOllama)
	t.Setenv("SITEFORGE_RETRIEVAL_TOP_K", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.LLM.Provider != ProviderOllama {
		t.Errorf("expected env override ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.Prompt.RetrievalTopK != 7 {
		t.Errorf("expected env override 7, got %d", cfg.Prompt.RetrievalTopK)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "skynet"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestModelNameDefaults(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = ProviderGemini
	if cfg.ModelName() != DefaultGeminiModel {
		t.Errorf("expected %s, got %s", DefaultGeminiModel, cfg.ModelName())
	}
	cfg.LLM.Model = "gemini-2.5-pro"
	if cfg.ModelName() != "gemini-2.5-pro" {
		t.Errorf("explicit model should win, got %s", cfg.ModelName())
	}
}

func TestSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ResetSecrets()
	defer ResetSecrets()

	SetSecret(SecretOpenAIKey, "sk-test-123")
	if err := SaveSecretsToFile(dir, "hunter2"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !HasSecretsFile(dir) {
		t.Fatal("expected secrets file on disk")
	}

	ResetSecrets()
	if _, err := GetSecret(SecretOpenAIKey); err == nil {
		t.Fatal("secret should be gone after reset")
	}

	if err := LoadSecretsFromFile(dir, "hunter2"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	got, err := GetSecret(SecretOpenAIKey)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "sk-test-123" {
		t.Errorf("expected sk-test-123, got %s", got)
	}
}

func TestSecretsWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	ResetSecrets()
	defer ResetSecrets()

	SetSecret(SecretGeminiKey, "value")
	if err := SaveSecretsToFile(dir, "correct"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := LoadSecretsFromFile(dir, "wrong"); err == nil {
		t.Error("expected decryption failure with wrong passphrase")
	}
}

func TestGetSecretEnvFallback(t *testing.T) {
	ResetSecrets()
	t.Setenv("SITEFORGE_TEST_SECRET", "from-env")
	got, err := GetSecret("SITEFORGE_TEST_SECRET")
	if err != nil {
		t.Fatalf("expected env fallback: %v", err)
	}
	if got != "from-env" {
		t.Errorf("expected from-env, got %s", got)
	}
}
