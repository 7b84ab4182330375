package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/embed"
	"github.com/shopsteward/steward/internal/enrich"
	"github.com/shopsteward/steward/internal/errors"
	"github.com/shopsteward/steward/internal/index"
	"github.com/shopsteward/steward/internal/logging"
	"github.com/shopsteward/steward/internal/ui"
)

func newIngestCmd() *cobra.Command {
	var (
		noTUI      bool
		offline    bool
		skipEnrich bool
		contractID string
	)

	cmd := &cobra.Command{
		Use:   "ingest [contract.md]",
		Short: "Parse, enrich, embed, and index a contract",
		Long: `Ingest a collective bargaining agreement in markdown form.

The pipeline cleans the document, splits it into article and section
chunks, extracts the wage tables, tags each chunk (with model judgment
when an API key is configured, rules otherwise), embeds everything,
and publishes the result as a new index generation. The previous
generation keeps serving until the new one is complete.

With no argument, ingest looks for a single contract markdown file in
the project directory.`,
		Example: `  # Ingest a specific contract
  steward ingest "Safeway Pueblo Clerks 2022.md"

  # Offline: deterministic embeddings, no model calls
  steward ingest contract.md --offline

  # Keep rule-based tags only
  steward ingest contract.md --skip-enrich`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			source := ""
			if len(args) > 0 {
				source = args[0]
			}
			return runIngest(ctx, cmd, source, noTUI, offline, skipEnrich, contractID)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use deterministic embeddings and skip all model calls")
	cmd.Flags().BoolVar(&skipEnrich, "skip-enrich", false, "Skip LLM enrichment, keep rule-based tags")
	cmd.Flags().StringVar(&contractID, "contract-id", "", "Override the contract id derived from the filename")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, source string, noTUI, offline, skipEnrich bool, contractID string) error {
	// Ingest runs log to their own file so long enrichment batches
	// don't drown the server log. User-facing progress goes through
	// the renderer, not stderr.
	logCfg := logging.IngestConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	cfg := rootCfg

	source, err := resolveSource(source)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return errors.StorageError("cannot create data directory", err).
			WithDetail("path", cfg.Storage.DataDir)
	}

	uiCfg := ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI || quiet),
		ui.WithContractPath(source),
	)
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	embedder, err := newEmbedder(ctx, cfg, embed.TaskDocument, offline)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	var enricher *enrich.LLMEnricher
	if !skipEnrich && !offline {
		if client := newLLMClient(ctx, cfg); client != nil {
			enricher = enrich.NewLLMEnricher(client, contractDisplayName(source, contractID),
				enrich.WithBatch(cfg.Ingest.EnrichBatchSize, config.DurationOr(cfg.Ingest.EnrichBatchDelay, 2*time.Second)),
				enrich.WithTimeout(config.DurationOr(cfg.LLM.EnrichmentTimeout, 30*time.Second)),
				enrich.WithLogger(slog.Default()),
			)
		}
	}

	runner, err := index.NewRunner(index.RunnerDependencies{
		Config:   cfg,
		Embedder: embedder,
		Enricher: enricher,
		Renderer: renderer,
		Logger:   slog.Default(),
	})
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, index.RunnerConfig{
		Source:     source,
		ContractID: contractID,
		SkipEnrich: skipEnrich,
	})
	if err != nil {
		return err
	}

	slog.Info("ingest complete",
		slog.String("generation", res.Generation),
		slog.String("contract_id", res.ContractID),
		slog.Int("chunks", res.Chunks),
		slog.Int("articles", res.Articles),
		slog.Duration("duration", res.Duration),
	)
	return nil
}

// resolveSource finds the contract file: an explicit argument, or
// discovery in the project directory when there is exactly one
// candidate.
func resolveSource(source string) (string, error) {
	if source != "" {
		abs, err := filepath.Abs(source)
		if err != nil {
			return "", errors.ValidationError("cannot resolve contract path", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", errors.ValidationError(fmt.Sprintf("contract file not found: %s", source), err).
				WithSuggestion("check the path, or run 'steward ingest' with no argument to discover contracts")
		}
		if info.IsDir() {
			return "", errors.ValidationError(fmt.Sprintf("%s is a directory, not a contract file", source), nil)
		}
		return abs, nil
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	candidates := config.DiscoverContractFiles(root)
	switch len(candidates) {
	case 0:
		return "", errors.ValidationError("no contract markdown file found", nil).
			WithSuggestion("pass the file explicitly: steward ingest <contract.md>")
	case 1:
		return candidates[0], nil
	default:
		return "", errors.ValidationError(
			fmt.Sprintf("multiple contract files found: %s", strings.Join(baseNames(candidates), ", ")), nil).
			WithSuggestion("pass the one to ingest explicitly: steward ingest <contract.md>")
	}
}

// contractDisplayName is the human name shown in enrichment prompts,
// e.g. "Safeway Pueblo Clerks 2022".
func contractDisplayName(source, contractID string) string {
	if contractID != "" {
		return contractID
	}
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
