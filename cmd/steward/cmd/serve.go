package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/internal/embed"
	"github.com/shopsteward/steward/internal/errors"
	"github.com/shopsteward/steward/internal/index"
	"github.com/shopsteward/steward/internal/logging"
	"github.com/shopsteward/steward/internal/mcp"
	"github.com/shopsteward/steward/internal/preflight"
	"github.com/shopsteward/steward/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Serve contract retrieval tools over the Model Context Protocol.

Tools: contract_search, wage_lookup, get_article, contract_info.
The server watches the index and hot-swaps to each newly published
generation, so re-ingesting a contract never requires a restart.

stdout carries JSON-RPC exclusively; all logs go to the log file.`,
		Example: `  steward serve

  # Claude Desktop / MCP client registration:
  #   command: steward
  #   args: ["serve"]`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, skipCheck)
		},
	}

	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip the silent preflight check")

	return cmd
}

func runServe(ctx context.Context, skipCheck bool) error {
	cfg := rootCfg

	// No stdout or stderr writes from here on: the MCP client owns
	// both streams once the process starts.
	cleanup, err := logging.SetupMCPMode(logLevel(cfg))
	if err != nil {
		return err
	}
	defer cleanup()

	if !skipCheck && preflight.NeedsCheck(cfg.Storage.DataDir) {
		checker := preflight.New(preflight.WithOutput(io.Discard))
		results := checker.RunAll(ctx, cfg)
		if checker.HasCriticalFailures(results) {
			slog.Error("system check failed, run 'steward doctor' for diagnostics")
			return fmt.Errorf("system check failed")
		}
		if err := preflight.MarkPassed(cfg.Storage.DataDir); err != nil {
			slog.Debug("failed to write preflight marker", slog.String("error", err.Error()))
		}
	}

	embedder, err := newEmbedder(ctx, cfg, embed.TaskQuery, false)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	client := newLLMClient(ctx, cfg)

	gens := index.NewGenerations(cfg.Storage.DataDir)
	stack, err := index.LoadQueryStack(gens, embedder, client, cfg)
	if err != nil {
		if errors.GetCode(err) != errors.ErrCodeGenerationMissing {
			return err
		}
		// Serving without an index is fine: tools answer with the
		// ingest hint until the first generation publishes.
		slog.Warn("no contract ingested yet, tools will prompt for ingest")
		stack = nil
	}

	server, err := mcp.NewServer(stack, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = server.Close() }()

	if cfg.Telemetry.Enabled {
		if store, terr := telemetry.OpenStore(cfg.TelemetryDBPath()); terr != nil {
			slog.Warn("telemetry store unavailable", slog.String("error", terr.Error()))
		} else {
			collector := telemetry.NewCollector(store)
			server.SetMetrics(collector)
			defer func() {
				_ = collector.Close()
				_ = store.Close()
			}()
		}
	}

	watcher, err := index.NewGenerationWatcher(gens, slog.Default(), func(snap *index.Snapshot) {
		newStack, serr := index.NewQueryStack(snap, embedder, client, cfg)
		if serr != nil {
			slog.Error("failed to build query stack for new generation",
				slog.String("generation", snap.Generation),
				slog.String("error", serr.Error()))
			_ = snap.Close()
			return
		}
		server.SwapStack(newStack)
	})
	if err != nil {
		slog.Warn("generation watcher unavailable, restart to pick up re-ingests",
			slog.String("error", err.Error()))
	} else {
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("generation watcher failed to start",
				slog.String("error", err.Error()))
		}
		defer func() { _ = watcher.Stop() }()
	}

	slog.Info("steward serving",
		slog.String("transport", cfg.Server.Transport),
		slog.String("data_dir", cfg.Storage.DataDir),
		slog.Int("pid", os.Getpid()))

	return server.Serve(ctx, cfg.Server.Transport)
}
