package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/embed"
	"github.com/shopsteward/steward/internal/index"
	"github.com/shopsteward/steward/internal/llm"
)

// apiKey returns the model API key from the configured environment
// variable, empty when unset.
func apiKey(cfg *config.Config) string {
	envName := cfg.LLM.APIKeyEnv
	if envName == "" {
		envName = "GEMINI_API_KEY"
	}
	return os.Getenv(envName)
}

// newEmbedder builds the embedder for one command invocation. offline
// forces the deterministic static backend regardless of configuration.
func newEmbedder(ctx context.Context, cfg *config.Config, task embed.Task, offline bool) (embed.Embedder, error) {
	embCfg := cfg.Embeddings
	if offline {
		embCfg.Provider = "static"
	}
	return embed.New(ctx, embCfg, apiKey(cfg), task, slog.Default())
}

// newLLMClient builds the Gemini client when an API key is configured.
// Returns a nil interface otherwise; the retrieval stack treats nil as
// "skip the model-backed stages".
func newLLMClient(ctx context.Context, cfg *config.Config) llm.Client {
	key := apiKey(cfg)
	if key == "" {
		return nil
	}
	client, err := llm.NewGemini(ctx, key, cfg.LLM.Model,
		llm.WithBreaker(cfg.LLM.MaxFailures, config.DurationOr(cfg.LLM.Cooldown, 30*time.Second)),
		llm.WithLogger(slog.Default()),
	)
	if err != nil {
		slog.Warn("LLM client unavailable, retrieval degrades to heuristics",
			slog.String("error", err.Error()))
		return nil
	}
	return client
}

// loadStack opens the CURRENT generation and composes the full query
// pipeline over it. Callers own Close.
func loadStack(ctx context.Context, cfg *config.Config, offline bool) (*index.QueryStack, error) {
	embedder, err := newEmbedder(ctx, cfg, embed.TaskQuery, offline)
	if err != nil {
		return nil, err
	}

	var client llm.Client
	if !offline {
		client = newLLMClient(ctx, cfg)
	}

	gens := index.NewGenerations(cfg.Storage.DataDir)
	return index.LoadQueryStack(gens, embedder, client, cfg)
}

// loadSnapshot opens the CURRENT generation without the query
// pipeline, for commands that only read artifacts. Callers own Close.
func loadSnapshot(cfg *config.Config) (*index.Snapshot, error) {
	return index.LoadCurrent(index.NewGenerations(cfg.Storage.DataDir))
}
