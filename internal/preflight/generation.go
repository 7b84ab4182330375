package preflight

import (
	"fmt"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/errors"
	"github.com/shopsteward/steward/internal/index"
)

// CheckGeneration verifies that a published generation exists and that
// every artifact of it loads. When one loads, a second result compares
// the chunk, keyword, and vector counts, which must agree for fused
// search to rank correctly.
//
// A missing generation is a warning, not a failure: a fresh install
// has nothing ingested yet and doctor should say so without failing.
func (c *Checker) CheckGeneration(cfg *config.Config) []CheckResult {
	result := CheckResult{
		Name:     "generation",
		Required: true,
	}

	gens := index.NewGenerations(cfg.Storage.DataDir)
	id, err := gens.Current()
	if err != nil {
		if errors.GetCode(err) == errors.ErrCodeGenerationMissing {
			result.Status = StatusWarn
			result.Message = "no contract ingested (run 'steward ingest <contract.md>')"
		} else {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("cannot read CURRENT marker: %v", err)
		}
		return []CheckResult{result}
	}

	snap, err := index.LoadGeneration(gens, id)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("generation %s does not load: %v", id, err)
		result.Details = "Re-run 'steward ingest' to publish a fresh generation"
		return []CheckResult{result}
	}
	defer func() { _ = snap.Close() }()

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d chunks)", id, snap.Chunks.Count())
	if snap.Meta != nil {
		result.Details = fmt.Sprintf("Contract: %s, ingested %s",
			snap.Meta.ContractID, snap.Meta.CreatedAt.Format("2006-01-02 15:04"))
	}

	return []CheckResult{result, c.checkCoherence(snap)}
}

// checkCoherence compares artifact counts within a loaded snapshot.
func (c *Checker) checkCoherence(snap *index.Snapshot) CheckResult {
	result := CheckResult{
		Name:     "index_coherence",
		Required: true,
	}

	chunks := snap.Chunks.Count()
	keyword := snap.Keyword.Count()
	vectors := snap.Vectors.Count()

	if chunks != keyword || chunks != vectors {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("counts disagree: %d chunks, %d keyword docs, %d vectors",
			chunks, keyword, vectors)
		result.Details = "Re-run 'steward ingest' to publish a fresh generation"
		return result
	}

	if snap.Meta != nil && snap.Meta.Chunks != chunks {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("meta records %d chunks, snapshot has %d",
			snap.Meta.Chunks, chunks)
		result.Details = "Re-run 'steward ingest' to publish a fresh generation"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d chunks across chunk, keyword, and vector stores", chunks)
	return result
}
