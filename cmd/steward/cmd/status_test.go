package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopsteward/steward/internal/ui"
)

func TestStatusCmd_ShowsPublishedGeneration(t *testing.T) {
	// Given: the fixture contract
	dataDir := ingestFixture(t)

	// When: running status
	out, err := runSteward(t, "--data-dir", dataDir, "--quiet", "status")
	require.NoError(t, err)

	// Then: the live generation renders with its stores
	assert.Contains(t, out, "Contract: safeway_pueblo_clerks_2022")
	assert.Contains(t, out, "Chunks:")
	assert.Contains(t, out, "Articles:     2")
	assert.Contains(t, out, "Wage classes: 2")
	assert.Contains(t, out, "Storage:")
	assert.Contains(t, out, "Embedder:")
}

func TestStatusCmd_JSONOutput(t *testing.T) {
	// Given: the fixture contract, ingested without an API key
	dataDir := ingestFixture(t)

	// When: running status --json
	out, err := runSteward(t, "--data-dir", dataDir, "--quiet", "status", "--json")
	require.NoError(t, err)

	// Then: the payload parses with the generation's numbers
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))

	assert.Equal(t, "safeway_pueblo_clerks_2022", info.ContractID)
	assert.NotEmpty(t, info.Generation)
	assert.Greater(t, info.TotalChunks, 0)
	assert.Equal(t, 2, info.TotalArticles)
	assert.Equal(t, 2, info.WageClasses)
	assert.False(t, info.LastIngested.IsZero())
	assert.Greater(t, info.TotalSize, int64(0))

	// No API key in the environment means the static backend answers.
	assert.Equal(t, "static", info.EmbedderType)
	assert.Equal(t, "ready", info.EmbedderStatus)
	assert.Equal(t, "n/a", info.WatcherStatus)
}

func TestStatusCmd_NoIngest_Fails(t *testing.T) {
	// Given: an empty data directory
	t.Setenv("STEWARD_HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	dataDir := t.TempDir()

	// When: running status before any ingest
	_, err := runSteward(t, "--data-dir", dataDir, "--quiet", "status")

	// Then: the error points at ingest
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no published generation")
}
