package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		follow  bool
		lines   int
		level   string
		filter  string
		noColor bool
		logFile string
		source  string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View steward logs",
		Long: `View and tail steward logs.

By default, shows the last 50 lines of the server log. Use -f to follow
new entries in real time (like 'tail -f'). Serve runs log to file only,
so this is the way to watch the MCP server work.

Log sources:
  server - serve and ask runs (~/.steward/logs/steward.log)
  ingest - ingestion pipeline runs (~/.steward/logs/ingest.log)
  all    - both sources merged by timestamp`,
		Example: `  steward logs                  # last 50 lines of the server log
  steward logs --source ingest  # last ingestion run
  steward logs --source all -f  # follow everything in real time
  steward logs -n 200           # more history
  steward logs --level error    # errors only
  steward logs --filter "wage"  # lines matching a pattern`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, logsOptions{
				follow:  follow,
				lines:   lines,
				level:   level,
				filter:  filter,
				noColor: noColor,
				logFile: logFile,
				source:  source,
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Filter by log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&filter, "filter", "", "Filter by keyword/pattern (regex)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&logFile, "file", "", "Path to log file (overrides --source)")
	cmd.Flags().StringVar(&source, "source", "server", "Log source: server, ingest, or all")

	return cmd
}

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	logFile string
	source  string
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	logSource := logging.ParseLogSource(opts.source)

	paths, err := logging.FindLogFileBySource(logSource, opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	// Source labels only matter when more than one file feeds the view.
	showSource := logSource == logging.LogSourceAll || len(paths) > 1

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:      opts.level,
		Pattern:    pattern,
		NoColor:    opts.noColor,
		ShowSource: showSource,
	}, out)

	if len(paths) == 1 {
		fmt.Fprintf(errOut, "Log file: %s\n", paths[0])
	} else {
		fmt.Fprintf(errOut, "Log files: %s\n", strings.Join(paths, ", "))
	}
	if opts.follow {
		fmt.Fprintln(errOut, "Following... (Ctrl+C to stop)")
	}
	fmt.Fprintln(errOut, "---")

	if opts.follow {
		return followLogs(cmd.Context(), viewer, paths, out, errOut)
	}

	var entries []logging.LogEntry
	if len(paths) == 1 {
		entries, err = viewer.Tail(paths[0], opts.lines)
	} else {
		entries, err = viewer.TailMultiple(paths, opts.lines)
	}
	if err != nil {
		return err
	}

	viewer.Print(entries)
	return nil
}

func followLogs(ctx context.Context, viewer *logging.Viewer, paths []string, out, errOut io.Writer) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)

	go func() {
		if len(paths) == 1 {
			errCh <- viewer.Follow(ctx, paths[0], entries)
			return
		}
		errCh <- viewer.FollowMultiple(ctx, paths, entries)
	}()

	for {
		select {
		case entry := <-entries:
			fmt.Fprintln(out, viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			fmt.Fprintln(errOut, "\n---")
			fmt.Fprintln(errOut, "Stopped.")
			return nil
		}
	}
}
