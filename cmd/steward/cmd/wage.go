package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/internal/errors"
)

func newWageCmd() *cobra.Command {
	var (
		hours   int
		months  int
		date    string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "wage <classification>",
		Short: "Look up a wage rate from the contract's pay tables",
		Long: `Resolve an hourly rate for a job classification.

Experience picks the step: --hours for hour-based progressions,
--months for month-based ones. Without either, the lookup returns the
starting rate. --date resolves to the rate period covering that date;
the default is the most recent one.`,
		Example: `  steward wage "all purpose clerk"
  steward wage courtesy_clerk --hours 2500
  steward wage "all purpose clerk" --date 2023-01-22 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			classification := strings.Join(args, " ")
			return runWage(cmd, classification, hours, months, date, jsonOut)
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 0, "Hours worked, selects the wage step")
	cmd.Flags().IntVar(&months, "months", 0, "Months employed, selects the wage step")
	cmd.Flags().StringVar(&date, "date", "", "Rate period, YYYY-MM-DD (default: latest)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runWage(cmd *cobra.Command, classification string, hours, months int, date string, jsonOut bool) error {
	snap, err := loadSnapshot(rootCfg)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()

	if snap.Wages == nil || len(snap.Wages.Classifications) == 0 {
		return errors.ValidationError("this contract has no parsed wage tables", nil).
			WithSuggestion("re-run 'steward ingest' if the contract has an appendix with pay grids")
	}

	info := snap.Wages.Lookup(classification, hours, months, date)
	if info == nil {
		known := snap.Wages.Names()
		return errors.ValidationError(
			fmt.Sprintf("no classification matching %q", classification), nil).
			WithSuggestion("known classifications: " + strings.Join(known, ", "))
	}

	w := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(w, info)
	}
	renderWageInfo(w, info, outputStyles(w))
	return nil
}
