package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.steward/logs/,
// or $STEWARD_HOME/logs when set). Falls back to temp directory if the
// home directory is unavailable.
func DefaultLogDir() string {
	if h := os.Getenv("STEWARD_HOME"); h != "" {
		return filepath.Join(h, "logs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".steward", "logs")
	}
	return filepath.Join(home, ".steward", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "steward.log")
}

// IngestLogPath returns the ingestion run log path.
func IngestLogPath() string {
	return filepath.Join(DefaultLogDir(), "ingest.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceServer is the serve/ask log (default).
	LogSourceServer LogSource = "server"
	// LogSourceIngest is the ingestion pipeline log.
	LogSourceIngest LogSource = "ingest"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFileBySource resolves the log files to view. An explicit path
// wins over the source; otherwise only files that exist are returned,
// with a how-to-generate hint when nothing has logged yet.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	// Explicit path takes precedence
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceServer:
		serverPath := DefaultLogPath()
		checked = append(checked, serverPath)
		if _, err := os.Stat(serverPath); err == nil {
			paths = append(paths, serverPath)
		}

	case LogSourceIngest:
		ingestPath := IngestLogPath()
		checked = append(checked, ingestPath)
		if _, err := os.Stat(ingestPath); err == nil {
			paths = append(paths, ingestPath)
		}

	case LogSourceAll:
		serverPath := DefaultLogPath()
		ingestPath := IngestLogPath()
		checked = append(checked, serverPath, ingestPath)

		if _, err := os.Stat(serverPath); err == nil {
			paths = append(paths, serverPath)
		}
		if _, err := os.Stat(ingestPath); err == nil {
			paths = append(paths, ingestPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: server, ingest, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "ingest":
		return LogSourceIngest
	case "all":
		return LogSourceAll
	default:
		return LogSourceServer
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceServer:
		return "To generate server logs:\n  steward serve"
	case LogSourceIngest:
		return "To generate ingest logs:\n  steward ingest <contract.md>"
	case LogSourceAll:
		return "To generate logs:\n  Server: steward serve\n  Ingest: steward ingest <contract.md>"
	default:
		return ""
	}
}
