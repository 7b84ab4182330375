package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/internal/search"
	"github.com/shopsteward/steward/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var (
		days    int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query statistics",
		Long: `Display local query telemetry: what kinds of questions workers ask,
which terms come up, what the contract failed to answer, and how fast
retrieval runs. Everything stays on this machine.`,
		Example: `  steward stats
  steward stats --days 30
  steward stats --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, days, jsonOut)
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runStats(cmd *cobra.Command, days int, jsonOut bool) error {
	cfg := rootCfg
	w := cmd.OutOrStdout()

	if !cfg.Telemetry.Enabled {
		fmt.Fprintln(w, "Telemetry is disabled (telemetry.enabled: false).")
		return nil
	}

	store, err := telemetry.OpenStore(cfg.TelemetryDBPath())
	if err != nil {
		return fmt.Errorf("open telemetry store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if days < 1 {
		days = 1
	}
	to := time.Now()
	from := to.AddDate(0, 0, -(days - 1))
	report, err := store.Report(from.Format("2006-01-02"), to.Format("2006-01-02"), 10, 10)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	if jsonOut {
		return writeJSON(w, report)
	}
	printReport(cmd, report, days)
	return nil
}

func printReport(cmd *cobra.Command, r *telemetry.Report, days int) {
	w := cmd.OutOrStdout()
	styles := outputStyles(w)

	fmt.Fprintln(w, styles.Header.Render(fmt.Sprintf("Query statistics, last %d day(s)", days)))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total queries: %d\n", r.TotalQueries)
	fmt.Fprintln(w)

	if len(r.IntentCounts) > 0 {
		fmt.Fprintln(w, "By intent:")
		order := []string{search.IntentWage, search.IntentHighStakes, search.IntentContract, telemetry.IntentUnknown}
		for _, intent := range order {
			if n, ok := r.IntentCounts[intent]; ok {
				fmt.Fprintf(w, "  %-12s %d\n", intent, n)
			}
		}
		fmt.Fprintln(w)
	}

	if len(r.TopTerms) > 0 {
		fmt.Fprintln(w, "Top query terms:")
		for i, tc := range r.TopTerms {
			fmt.Fprintf(w, "  %d. %s (%d)\n", i+1, tc.Term, tc.Count)
		}
		fmt.Fprintln(w)
	}

	if len(r.ZeroResultQueries) > 0 {
		fmt.Fprintln(w, "Recent questions the contract didn't answer:")
		for _, q := range r.ZeroResultQueries {
			fmt.Fprintf(w, "  - %q\n", q)
		}
		fmt.Fprintln(w)
	}

	if len(r.LatencyCounts) > 0 {
		fmt.Fprintln(w, "Latency:")
		for _, bucket := range telemetry.LatencyBuckets {
			if n, ok := r.LatencyCounts[bucket]; ok {
				fmt.Fprintf(w, "  %-10s %d\n", bucket, n)
			}
		}
	}
}
