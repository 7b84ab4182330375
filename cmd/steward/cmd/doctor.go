package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose bool
		jsonOut bool
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and diagnose issues",
		Long: `Run diagnostics to ensure steward can serve answers.

Checks:
  - Data directory exists and is writable
  - Free disk space (100MB minimum)
  - A published index generation exists and all its artifacts load
  - Chunk, keyword, and vector counts agree
  - Telemetry database opens
  - API key presence (warning only)
  - Embedding backend reachability (warning only)

Only failed required checks exit non-zero. Warnings mean retrieval
still works, possibly degraded.`,
		Example: `  steward doctor
  steward doctor --verbose
  steward doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOut, offline)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip network probes")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOut, offline bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := rootCfg
	if cfg == nil {
		cfg = config.NewConfig()
	}

	checker := preflight.New(
		preflight.WithOffline(offline),
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, cfg)

	if jsonOut {
		if err := outputDoctorJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return &doctorError{message: "system check failed"}
	}

	if !jsonOut {
		if age := preflight.MarkerAge(cfg.Storage.DataDir); age > time.Minute {
			fmt.Fprintf(cmd.OutOrStdout(), "\nLast successful check: %s ago\n", formatAge(age))
		}
	}

	// A clean run refreshes the marker so the next serve start skips
	// the silent re-check.
	if err := preflight.MarkPassed(cfg.Storage.DataDir); err != nil {
		slog.Debug("failed to write preflight marker", slog.String("error", err.Error()))
	}
	return nil
}

// doctorError signals check failure without re-printing the already
// rendered results.
type doctorError struct {
	message string
}

func (e *doctorError) Error() string {
	return e.message
}

// doctorJSON is the --json output shape.
type doctorJSON struct {
	Status   string            `json:"status"`
	Checks   []doctorJSONCheck `json:"checks"`
	Warnings []string          `json:"warnings,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

// doctorJSONCheck is a single check result in --json output.
type doctorJSONCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func outputDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := doctorJSON{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorJSONCheck, len(results)),
	}

	for i, r := range results {
		out.Checks[i] = doctorJSONCheck{
			Name:     r.Name,
			Status:   statusLabel(r.Status),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}
		if r.IsCritical() {
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}

	return writeJSON(cmd.OutOrStdout(), out)
}

func statusLabel(s preflight.CheckStatus) string {
	switch s {
	case preflight.StatusPass:
		return "pass"
	case preflight.StatusWarn:
		return "warn"
	case preflight.StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
