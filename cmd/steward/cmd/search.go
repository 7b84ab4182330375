package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/errors"
	"github.com/shopsteward/steward/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topK        int
	keywordOnly bool
	vectorOnly  bool
	offline     bool
	jsonOut     bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a single-angle retrieval, for debugging",
		Long: `Search the contract with one query angle and no model stages.

This is the low-level counterpart of 'ask': no multi-angle expansion,
no interpreter, no reranker. Use --keyword-only or --vector-only to
inspect one retrieval branch in isolation.`,
		Example: `  steward search "sunday premium pay"
  steward search "grievance deadline" --keyword-only
  steward search "time and one-half" --vector-only --top-k 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if opts.keywordOnly && opts.vectorOnly {
				return errors.ValidationError("--keyword-only and --vector-only are mutually exclusive", nil)
			}

			query := strings.Join(args, " ")
			return runSearch(ctx, cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.keywordOnly, "keyword-only", false, "BM25 branch only, no embeddings")
	cmd.Flags().BoolVar(&opts.vectorOnly, "vector-only", false, "Semantic branch only, no keyword scoring")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Skip all model calls, use deterministic retrieval")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg := rootCfg

	// The keyword branch never embeds, so it can always run offline.
	offline := opts.offline || opts.keywordOnly
	stack, err := loadStack(ctx, cfg, offline)
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close() }()

	var (
		chunks []*contract.ScoredChunk
		mode   string
	)
	switch {
	case opts.keywordOnly:
		mode = "keyword-only"
		chunks = stack.Engine.KeywordOnly(query, opts.topK)
	case opts.vectorOnly:
		mode = "vector-only"
		chunks, err = stack.Engine.VectorOnly(ctx, query, opts.topK)
		if err != nil {
			return err
		}
	default:
		mode = "hybrid"
		resp, rerr := stack.Retriever.Retrieve(ctx, query, search.Options{TopK: opts.topK})
		if rerr != nil {
			return rerr
		}
		chunks = resp.Chunks
	}

	if opts.jsonOut {
		return writeJSON(cmd.OutOrStdout(), struct {
			Query     string         `json:"query"`
			Mode      string         `json:"mode"`
			Citations []citationJSON `json:"citations"`
		}{Query: query, Mode: mode, Citations: toCitationJSON(chunks)})
	}

	w := cmd.OutOrStdout()
	styles := outputStyles(w)
	if len(chunks) == 0 {
		fmt.Fprintf(w, "No results for %q (%s).\n", query, mode)
		return nil
	}

	fmt.Fprintln(w, styles.Header.Render(fmt.Sprintf("%d results for %q (%s)", len(chunks), query, mode)))
	fmt.Fprintln(w)
	for i, sc := range chunks {
		if sc.Chunk == nil {
			continue
		}
		fmt.Fprintf(w, "%d. %s (score %.3f", i+1, sc.Chunk.Citation, sc.Similarity)
		if sc.VectorRank != contract.RankMissing {
			fmt.Fprintf(w, ", vector #%d", sc.VectorRank)
		}
		if sc.KeywordRank != contract.RankMissing {
			fmt.Fprintf(w, ", keyword #%d", sc.KeywordRank)
		}
		fmt.Fprintln(w, ")")
		for _, line := range getSnippet(sc.Chunk.Content, 3) {
			fmt.Fprintf(w, "   %s\n", line)
		}
		fmt.Fprintln(w)
	}
	return nil
}
