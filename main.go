package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"siteforge/pkg/config"
	"siteforge/pkg/knowledge"
	"siteforge/pkg/llm"
	"siteforge/pkg/logx"
	"siteforge/pkg/metrics"
	"siteforge/pkg/orch"
	"siteforge/pkg/prompt"
	"siteforge/pkg/store"
	"siteforge/pkg/webapi"
)

func main() {
	var (
		configPath = flag.String("config", config.ConfigFilename, "path to config file")
		listenAddr = flag.String("listen", "", "listen address override")
		seedPath   = flag.String("seed", "", "pattern seed file override")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *debug {
		logx.SetDebug(true)
	}

	if err := run(*configPath, *listenAddr, *seedPath); err != nil {
		fmt.Fprintf(os.Stderr, "siteforge: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, listenAddr, seedPath string) error {
	logger := logx.NewLogger("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		return logx.Wrap(err, "failed to load config")
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if seedPath != "" {
		cfg.PatternSeed = seedPath
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return logx.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
	}

	if err := loadSecrets(cfg, logger); err != nil {
		return err
	}

	db, err := store.InitializeDatabase(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // best-effort close on exit

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.NewStore(db)
	index := knowledge.NewIndex(db, newEmbedder(ctx, logger))
	if _, err := index.SeedIfEmpty(ctx, cfg.PatternSeed); err != nil {
		return logx.Wrap(err, "failed to seed pattern index")
	}

	client, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("llm provider: %s (%s)", cfg.LLM.Provider, client.ModelName())

	assembler := prompt.NewAssembler(
		prompt.NewTokenCounter(cfg.Prompt.TokenDivisor),
		cfg.Prompt.CostPer1KTokens,
		cfg.Prompt.AdvisoryEntryChars,
		cfg.Prompt.AdvisoryTotalChars,
	)

	recorder := metrics.NewRecorder()
	orchestrator := orch.New(st, index, assembler, client, recorder,
		cfg.Prompt.RetrievalTopK, cfg.LLM.MaxTokens, cfg.LLM.Temperature)

	server := webapi.NewServer(st, index, orchestrator)
	return server.ListenAndServe(ctx, cfg.ListenAddr)
}

// loadSecrets decrypts the secrets file when one exists. Without a TTY the
// file is skipped and provider keys must come from the environment.
func loadSecrets(cfg *config.Config, logger *logx.Logger) error {
	if !config.HasSecretsFile(cfg.DataDir) {
		return nil
	}

	passphrase, err := config.PromptPassphrase("Secrets passphrase: ")
	if err != nil {
		logger.Warn("secrets file present but not loaded: %v", err)
		return nil
	}
	if err := config.LoadSecretsFromFile(cfg.DataDir, passphrase); err != nil {
		return logx.Wrap(err, "failed to decrypt secrets file")
	}
	logger.Info("secrets loaded from %s", config.SecretsFilePath(cfg.DataDir))
	return nil
}

// newEmbedder picks the pattern index embedder. The local hashing embedder
// is the default; the Gemini embedder is opt-in because retrieval then
// needs network access.
func newEmbedder(ctx context.Context, logger *logx.Logger) knowledge.Embedder {
	if os.Getenv("SITEFORGE_EMBEDDER") != "gemini" {
		return knowledge.NewHashingEmbedder()
	}

	key, err := config.GetSecret(config.SecretGeminiKey)
	if err != nil {
		logger.Warn("gemini embedder requested but no API key, using local embedder: %v", err)
		return knowledge.NewHashingEmbedder()
	}
	embedder, err := knowledge.NewGeminiEmbedder(ctx, key, "")
	if err != nil {
		logger.Warn("gemini embedder unavailable, using local embedder: %v", err)
		return knowledge.NewHashingEmbedder()
	}
	return embedder
}
