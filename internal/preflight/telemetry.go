package preflight

import (
	"fmt"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/telemetry"
)

// CheckTelemetryDB opens and closes the metrics database. Advisory:
// telemetry is best-effort everywhere else too, so a broken database
// never blocks retrieval.
func (c *Checker) CheckTelemetryDB(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "telemetry_db",
		Required: false,
	}

	if !cfg.Telemetry.Enabled {
		result.Status = StatusPass
		result.Message = "disabled"
		return result
	}

	path := cfg.TelemetryDBPath()
	store, err := telemetry.OpenStore(path)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot open %s: %v", path, err)
		result.Details = "Query metrics will not persist; retrieval is unaffected"
		return result
	}
	_ = store.Close()

	result.Status = StatusPass
	result.Message = "openable"
	result.Details = "Database: " + path
	return result
}
