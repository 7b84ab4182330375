// Package cmd provides the CLI commands for steward.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/errors"
	"github.com/shopsteward/steward/internal/logging"
	"github.com/shopsteward/steward/internal/profiling"
	"github.com/shopsteward/steward/pkg/version"
)

// Root persistent flags, applied by setupEnvironment before any
// subcommand runs.
var (
	configFile   string
	dataDirFlag  string
	logLevelFlag string
	quiet        bool
)

// Profiling flags.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// rootCfg is the loaded configuration, set by setupEnvironment.
var rootCfg *config.Config

// loggingCleanup closes the log file, set by setupEnvironment.
var loggingCleanup func()

// NewRootCmd creates the root command for the steward CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steward",
		Short: "Contract answers for union stewards",
		Long: `Steward answers workplace questions from a union contract.

It ingests a collective bargaining agreement once, builds local keyword
and semantic indexes over it, and then answers questions like "do I get
paid extra on Sundays?" with cited articles, wage rates, and escalation
warnings.

Start with 'steward ingest <contract.md>', then 'steward ask'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("steward version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to an explicit config file")
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Override the data directory")
	cmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress log output on stderr")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = setupEnvironment
	cmd.PersistentPostRunE = teardownEnvironment

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWageCmd())
	cmd.AddCommand(newArticleCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupEnvironment loads .env, configuration, logging, and profiling
// before any subcommand runs.
func setupEnvironment(cmd *cobra.Command, _ []string) error {
	// Best effort; a missing .env file is the normal case.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		// Doctor must be able to diagnose a broken setup, and version
		// has no use for config at all.
		switch cmd.Name() {
		case "doctor", "version":
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (using defaults)\n", err)
			cfg = config.NewConfig()
		default:
			return err
		}
	}
	if dataDirFlag != "" {
		cfg.Storage.DataDir = dataDirFlag
	}
	rootCfg = cfg

	// The serve command owns its logging setup: the MCP protocol
	// requires stdout and stderr to stay clean, so it configures
	// file-only logging itself. The logs command reads the log files
	// and must not hold them open for append.
	if cmd.Name() != "serve" && cmd.Name() != "logs" {
		logCfg := logging.DefaultConfig()
		logCfg.Level = logLevel(cfg)
		logCfg.WriteToStderr = !quiet
		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return fmt.Errorf("logging setup: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("start CPU profile: %w", err)
		}
	}
	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
				cpuCleanup = nil
			}
			return fmt.Errorf("start trace: %w", err)
		}
	}

	return nil
}

// teardownEnvironment stops profiling and closes the log file.
func teardownEnvironment(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("write memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig resolves configuration from the --config flag or the
// user/project discovery chain.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return config.Load(root)
}

// logLevel resolves the effective log level: flag beats config.
func logLevel(cfg *config.Config) string {
	if logLevelFlag != "" {
		return strings.ToLower(logLevelFlag)
	}
	return cfg.Server.LogLevel
}

// Execute runs the root command, printing structured errors to stderr.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), errors.FormatForCLI(err))
		return err
	}
	return nil
}
