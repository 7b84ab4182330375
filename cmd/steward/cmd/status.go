package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/embed"
	"github.com/shopsteward/steward/internal/index"
	"github.com/shopsteward/steward/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display the live index generation: which contract is loaded, how many
chunks and articles it holds, storage sizes, and which embedding
backend answers queries.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOut bool) error {
	cfg := rootCfg

	info, err := collectStatus(cfg)
	if err != nil {
		return err
	}

	noColor := !ui.IsTTY(cmd.OutOrStdout()) || ui.DetectNoColor()
	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)

	if jsonOut {
		return renderer.RenderJSON(info)
	}
	if err := renderer.Render(info); err != nil {
		return err
	}

	// An ingest may be rebuilding the next generation right now.
	if st, err := index.ReadStatus(index.StatusPath(cfg.Storage.DataDir)); err == nil && st.State == index.StateRunning {
		fmt.Fprintf(cmd.OutOrStdout(), "\nIngest in progress: %s (started %s)\n",
			st.ContractID, st.StartedAt.Format("15:04:05"))
	}
	return nil
}

func collectStatus(cfg *config.Config) (ui.StatusInfo, error) {
	var info ui.StatusInfo

	gens := index.NewGenerations(cfg.Storage.DataDir)
	id, err := gens.Current()
	if err != nil {
		return info, err
	}

	paths := gens.Paths(id)
	meta, err := index.LoadMeta(paths.Meta)
	if err != nil {
		return info, fmt.Errorf("generation %s has no readable meta: %w", id, err)
	}

	info.ContractID = meta.ContractID
	info.Generation = id
	info.TotalChunks = meta.Chunks
	info.TotalArticles = meta.Articles
	info.WageClasses = meta.WageClassifications
	info.LastIngested = meta.CreatedAt

	info.ChunksSize = pathSize(paths.Chunks) + pathSize(paths.ConceptIndex)
	info.KeywordSize = pathSize(paths.Keyword)
	info.VectorSize = pathSize(filepath.Dir(paths.Vectors))
	info.TotalSize = pathSize(paths.Root)

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	if provider == "" {
		if apiKey(cfg) != "" {
			provider = embed.ProviderGemini
		} else {
			provider = embed.ProviderStatic
		}
	}
	info.EmbedderType = string(provider)
	switch provider {
	case embed.ProviderGemini:
		info.EmbedderModel = cfg.Embeddings.Model
		if apiKey(cfg) != "" {
			info.EmbedderStatus = "ready"
		} else {
			info.EmbedderStatus = "offline"
		}
	default:
		info.EmbedderModel = meta.EmbedModel
		info.EmbedderStatus = "ready"
	}

	// Only the serve process runs a generation watcher.
	info.WatcherStatus = "n/a"

	return info, nil
}

// pathSize returns the size of a file, or the recursive size of a
// directory.
func pathSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if !st.IsDir() {
		return st.Size()
	}
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
