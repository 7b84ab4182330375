// Package preflight validates the environment before steward runs.
//
// The doctor command prints every check; serve runs them silently on
// first start and records a marker so later starts skip the cost.
//
// Checks are split by severity. Required checks (data directory
// writable, free disk, a loadable generation with agreeing index
// counts) can fail the run. Advisory checks (telemetry database, API
// key, embedding backend reachability) only warn, because steward
// degrades to keyword search and static embeddings without them.
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to serve
//	}
package preflight
