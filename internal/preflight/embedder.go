package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/embed"
)

// embedderProbeTimeout bounds the reachability probe so doctor never
// hangs on a dead network.
const embedderProbeTimeout = 5 * time.Second

// CheckAPIKey reports whether the configured API key variable is set.
// Advisory: without a key steward answers from keyword search and
// static embeddings, it just answers worse.
func (c *Checker) CheckAPIKey(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "api_key",
		Required: false,
	}

	envName := cfg.LLM.APIKeyEnv
	if envName == "" {
		envName = "GEMINI_API_KEY"
	}

	if os.Getenv(envName) == "" {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not set", envName)
		result.Details = "Enrichment, interpretation, and semantic search degrade without it"
		return result
	}

	result.Status = StatusPass
	result.Message = envName + " set"
	return result
}

// CheckEmbedder probes the configured embedding backend. The static
// backend always passes; Gemini is probed with a short timeout unless
// offline mode suppresses network checks.
func (c *Checker) CheckEmbedder(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	envName := cfg.LLM.APIKeyEnv
	if envName == "" {
		envName = "GEMINI_API_KEY"
	}
	apiKey := os.Getenv(envName)

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	if provider == "" && apiKey == "" {
		provider = embed.ProviderStatic
	}

	if provider == embed.ProviderStatic {
		result.Status = StatusPass
		result.Message = "static (deterministic, no network)"
		return result
	}

	if c.offline {
		result.Status = StatusWarn
		result.Message = "gemini probe skipped (offline)"
		return result
	}

	probeCtx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
	defer cancel()

	embedder, err := embed.New(probeCtx, cfg.Embeddings, apiKey, embed.TaskQuery, nil)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("gemini unavailable: %v", err)
		result.Details = "Queries fall back to keyword search and static embeddings"
		return result
	}
	defer func() { _ = embedder.Close() }()

	if !embedder.Available(probeCtx) {
		result.Status = StatusWarn
		result.Message = "gemini not reachable"
		result.Details = "Queries fall back to keyword search and static embeddings"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("gemini reachable (%s)", embedder.ModelName())
	return result
}
