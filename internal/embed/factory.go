package embed

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/errors"
)

// Provider identifies an embedding backend.
type Provider string

const (
	// ProviderGemini uses the hosted Gemini embedding API.
	ProviderGemini Provider = "gemini"

	// ProviderStatic uses deterministic hash embeddings.
	ProviderStatic Provider = "static"
)

// ParseProvider normalizes a provider name. Unknown or empty names map
// to the empty provider, which means auto-detect.
func ParseProvider(s string) Provider {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gemini":
		return ProviderGemini
	case "static":
		return ProviderStatic
	default:
		return Provider("")
	}
}

// New creates an embedder for the configured provider, wrapped with an
// LRU cache. An empty provider auto-detects: Gemini when an API key is
// present, static otherwise. Explicitly configured Gemini with no key
// is an error rather than a silent downgrade, because vectors from
// different backends do not mix.
func New(ctx context.Context, cfg config.EmbeddingsConfig, apiKey string, task Task, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider := ParseProvider(cfg.Provider)
	if provider == "" {
		if cfg.Provider != "" {
			return nil, errors.ConfigError("unknown embeddings provider", nil).
				WithDetail("provider", cfg.Provider).
				WithSuggestion("use 'gemini', 'static', or leave empty to auto-detect")
		}
		if apiKey != "" {
			provider = ProviderGemini
		} else {
			provider = ProviderStatic
			logger.Info("no API key found, using static embeddings",
				slog.String("hint", "set GEMINI_API_KEY for semantic search"))
		}
	}

	var (
		inner Embedder
		err   error
	)
	switch provider {
	case ProviderGemini:
		inner, err = NewGemini(ctx, apiKey,
			WithModel(cfg.Model),
			WithDimensions(cfg.Dimensions),
			WithBatchSize(cfg.BatchSize),
			WithTask(task),
			WithLogger(logger))
	case ProviderStatic:
		inner = NewStatic()
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("embedder ready",
		slog.String("provider", string(provider)),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))
	return NewCached(inner, cfg.CacheSize), nil
}
