package logging

import (
	"log/slog"
)

// SetupMCPMode initializes file-only logging for `steward serve`.
//
// Once an MCP client owns the process, stdout carries JSON-RPC frames
// and anything else on either stream can break the session with an
// opaque connect error. Serve therefore logs to the log file and
// nowhere else; `steward logs` is the window into a running server.
func SetupMCPMode(level string) (func(), error) {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.WriteToStderr = false

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	slog.Info("mcp logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))

	return cleanup, nil
}
