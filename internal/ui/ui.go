// Package ui provides terminal UI components for ingest progress and
// generation status display.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents an ingest pipeline stage.
type Stage int

const (
	// StageParsing is the cleaning and chunking stage.
	StageParsing Stage = iota
	// StageWages is the wage table extraction stage.
	StageWages
	// StageEnriching is the chunk enrichment stage (rules + optional LLM).
	StageEnriching
	// StageEmbedding is the embedding generation stage.
	StageEmbedding
	// StageIndexing is the index building stage.
	StageIndexing
	// StagePublishing is the generation publish stage.
	StagePublishing
	// StageComplete indicates ingest is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageParsing:
		return "Parsing"
	case StageWages:
		return "Wages"
	case StageEnriching:
		return "Enriching"
	case StageEmbedding:
		return "Embedding"
	case StageIndexing:
		return "Indexing"
	case StagePublishing:
		return "Publishing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage icon for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageParsing:
		return "PARSE"
	case StageWages:
		return "WAGE"
	case StageEnriching:
		return "ENRICH"
	case StageEmbedding:
		return "EMBED"
	case StageIndexing:
		return "INDEX"
	case StagePublishing:
		return "PUB"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentItem string // citation or file currently being processed
	Message     string
}

// ErrorEvent represents an error during processing.
type ErrorEvent struct {
	Section string // citation or artifact the error relates to
	Err     error
	IsWarn  bool
}

// StageTimings tracks duration for each ingest stage.
type StageTimings struct {
	Parse   time.Duration // Cleaning + chunking
	Wage    time.Duration // Wage table extraction
	Enrich  time.Duration // Rule + LLM enrichment
	Embed   time.Duration // Embedding generation
	Index   time.Duration // Keyword, vector, and concept index builds
	Publish time.Duration // Artifact writes + generation publish
}

// EmbedderInfo contains embedder backend details.
type EmbedderInfo struct {
	Backend    string // "gemini" or "static"
	Model      string // Model name (e.g., "text-embedding-004")
	Dimensions int    // Embedding dimensions
}

// CompletionStats contains final ingest statistics.
type CompletionStats struct {
	Chunks      int
	Articles    int
	WageClasses int
	Generation  string // Published generation id
	Duration    time.Duration
	Errors      int
	Warnings    int
	Stages      StageTimings // Per-stage timing breakdown
	Embedder    EmbedderInfo // Embedder backend info
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output       io.Writer
	ForcePlain   bool
	NoColor      bool
	SpinnerStyle string
	ContractPath string // Contract source path to display in header
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithSpinnerStyle sets the spinner style.
func WithSpinnerStyle(style string) ConfigOption {
	return func(c *Config) {
		c.SpinnerStyle = style
	}
}

// WithContractPath sets the contract source path to display in header.
func WithContractPath(path string) ConfigOption {
	return func(c *Config) {
		c.ContractPath = path
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output:       output,
		ForcePlain:   false,
		NoColor:      false,
		SpinnerStyle: "dots",
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// NewRenderer creates an appropriate renderer based on config and environment.
// It returns a TUI renderer for interactive terminals, and a plain text
// renderer for CI environments, pipes, or when --no-tui is specified.
func NewRenderer(cfg Config) Renderer {
	// Force plain mode if requested
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}

	// Use plain mode for non-TTY outputs
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}

	// Use plain mode in CI environments
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	// Try TUI mode, fall back to plain on failure
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}

	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	// Check if it's a file that's a terminal
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
