package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/search"
	"github.com/shopsteward/steward/internal/telemetry"
)

// askOptions holds CLI flags for ask.
type askOptions struct {
	topK           int
	classification string
	hours          int
	months         int
	date           string
	offline        bool
	jsonOut        bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the contract",
		Long: `Answer a workplace question from the ingested contract.

Runs the full retrieval pipeline: slang expansion, intent routing,
multi-angle search when a model is available, and hybrid keyword plus
semantic ranking. Results come back as cited contract language, wage
rates when the question is about pay, and an escalation warning when
the situation calls for a steward.`,
		Example: `  steward ask "do i get paid extra on sundays?"
  steward ask "how much does an all purpose clerk make?" --hours 3000
  steward ask "i was just fired, what do i do?"
  steward ask "what does article 16 say?" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			question := strings.Join(args, " ")
			return runAsk(ctx, cmd, question, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (0 uses the configured default)")
	cmd.Flags().StringVar(&opts.classification, "classification", "", "Your job classification, for wage questions")
	cmd.Flags().IntVar(&opts.hours, "hours", 0, "Hours worked, selects the wage step")
	cmd.Flags().IntVar(&opts.months, "months", 0, "Months employed, selects the wage step")
	cmd.Flags().StringVar(&opts.date, "date", "", "Wage rate period, YYYY-MM-DD (default: latest)")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Skip all model calls, use deterministic retrieval")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, question string, opts askOptions) error {
	cfg := rootCfg

	stack, err := loadStack(ctx, cfg, opts.offline)
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close() }()

	start := time.Now()
	resp, err := stack.Retriever.MultiAngle(ctx, question, search.Options{
		TopK:           opts.topK,
		Classification: opts.classification,
		HoursWorked:    opts.hours,
		MonthsEmployed: opts.months,
		EffectiveDate:  opts.date,
	})
	if err != nil {
		return err
	}
	recordQueryEvent(cfg, question, resp, time.Since(start))

	if opts.jsonOut {
		return writeJSON(cmd.OutOrStdout(), answerJSON{
			Question:           question,
			Intent:             resp.Intent,
			EscalationRequired: resp.EscalationRequired,
			Wage:               resp.WageInfo,
			Citations:          toCitationJSON(resp.Chunks),
			QueryExpansions:    resp.QueryExpansions,
			SearchAngles:       resp.SearchAngles,
			ExplicitArticles:   resp.ExplicitArticles,
		})
	}

	renderResponse(cmd.OutOrStdout(), question, resp, outputStyles(cmd.OutOrStdout()))
	return nil
}

// recordQueryEvent persists one query to the telemetry store. Best
// effort; a broken database never affects the answer.
func recordQueryEvent(cfg *config.Config, question string, resp *search.Response, latency time.Duration) {
	if !cfg.Telemetry.Enabled {
		return
	}
	store, err := telemetry.OpenStore(cfg.TelemetryDBPath())
	if err != nil {
		return
	}
	defer func() { _ = store.Close() }()

	collector := telemetry.NewCollector(store)
	defer func() { _ = collector.Close() }()

	intent := ""
	if resp.Intent != nil {
		intent = resp.Intent.Type
	}
	collector.Record(telemetry.QueryEvent{
		Query:       question,
		Intent:      intent,
		ResultCount: len(resp.Chunks),
		Latency:     latency,
	})
}
