package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where steward logs go and how much survives.
type Config struct {
	// Level is the minimum level recorded (debug, info, warn, error).
	Level string
	// FilePath receives JSON log lines. Empty disables file logging.
	FilePath string
	// MaxSizeMB rotates the file once it grows past this size.
	MaxSizeMB int
	// MaxFiles bounds how many rotated archives are kept.
	MaxFiles int
	// WriteToStderr mirrors log lines to stderr for foreground runs.
	WriteToStderr bool
}

const (
	defaultMaxSizeMB = 10
	defaultMaxFiles  = 5
)

// DefaultConfig logs info and above to ~/.steward/logs/steward.log and
// mirrors to stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     defaultMaxSizeMB,
		MaxFiles:      defaultMaxFiles,
		WriteToStderr: true,
	}
}

// IngestConfig routes ingestion runs to their own file so long
// enrichment batches don't drown the server log.
func IngestConfig() Config {
	cfg := DefaultConfig()
	cfg.FilePath = IngestLogPath()
	return cfg
}

// Setup builds a JSON slog logger per cfg and returns it with a
// cleanup that flushes and closes the log file. Zero-valued rotation
// settings fall back to the defaults.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}

	var out io.Writer = os.Stderr
	cleanup := func() {}

	if cfg.FilePath != "" {
		if err := EnsureLogDir(); err != nil {
			return nil, nil, err
		}
		writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { _ = writer.Close() }
		out = writer
		if cfg.WriteToStderr {
			out = io.MultiWriter(writer, os.Stderr)
		}
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: LevelFromString(cfg.Level),
	})
	return slog.New(handler), cleanup, nil
}

// LevelFromString maps a config or flag value onto a slog level.
// Unknown values land on info rather than erroring.
func LevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
