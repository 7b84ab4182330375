package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stewerrors "github.com/shopsteward/steward/internal/errors"
)

func TestGenerations_AllocateCreatesLayout(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	paths, err := gens.Allocate()
	require.NoError(t, err)

	assert.True(t, len(paths.ID) > len(generationPrefix))
	assert.Contains(t, paths.ID, generationPrefix)

	for _, dir := range []string{
		filepath.Dir(paths.Chunks),
		filepath.Dir(paths.WageTables),
		paths.ManifestDir,
		filepath.Dir(paths.Vectors),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, "missing %s", dir)
		assert.True(t, info.IsDir())
	}
}

func TestGenerations_AllocateUniqueIDs(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	first, err := gens.Allocate()
	require.NoError(t, err)
	second, err := gens.Allocate()
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestGenerations_CurrentWithoutPublish(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	_, err := gens.Current()
	require.Error(t, err)
	assert.Equal(t, stewerrors.ErrCodeGenerationMissing, stewerrors.GetCode(err))
}

func TestGenerations_PublishSetsCurrent(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	paths, err := gens.Allocate()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.Meta, []byte(`{"generation":"x"}`), 0o644))

	require.NoError(t, gens.Publish(paths.ID))

	current, err := gens.Current()
	require.NoError(t, err)
	assert.Equal(t, paths.ID, current)

	// The marker itself must be a plain file, not a leftover tmp.
	_, err = os.Stat(gens.CurrentPath() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestGenerations_PublishUnknownGeneration(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	err := gens.Publish("gen-19700101-000000")
	require.Error(t, err)
	assert.Equal(t, stewerrors.ErrCodeGenerationMissing, stewerrors.GetCode(err))
}

func TestGenerations_FailedRunLeavesCurrentUntouched(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	live, err := gens.Allocate()
	require.NoError(t, err)
	require.NoError(t, gens.Publish(live.ID))

	// A run that allocates but never publishes is simply removed.
	abandoned, err := gens.Allocate()
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(abandoned.Root))

	current, err := gens.Current()
	require.NoError(t, err)
	assert.Equal(t, live.ID, current)
}

func TestGenerations_ListSortedOldestFirst(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	var ids []string
	for i := 0; i < 3; i++ {
		paths, err := gens.Allocate()
		require.NoError(t, err)
		ids = append(ids, paths.ID)
	}

	listed, err := gens.List()
	require.NoError(t, err)
	assert.Equal(t, ids, listed)
}

func TestGenerations_ListEmptyDataDir(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	listed, err := gens.List()
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestGenerations_PruneKeepsNewestAndCurrent(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	var ids []string
	for i := 0; i < 4; i++ {
		paths, err := gens.Allocate()
		require.NoError(t, err)
		ids = append(ids, paths.ID)
	}

	// Pin the oldest as live, then prune to the newest two.
	require.NoError(t, gens.Publish(ids[0]))

	removed, err := gens.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, removed)

	remaining, err := gens.List()
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[2], ids[3]}, remaining)

	current, err := gens.Current()
	require.NoError(t, err)
	assert.Equal(t, ids[0], current)
}

func TestGenerations_PruneNothingToDo(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	paths, err := gens.Allocate()
	require.NoError(t, err)
	require.NoError(t, gens.Publish(paths.ID))

	removed, err := gens.Prune(2)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestGenerations_PruneFloorsKeepCount(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	var ids []string
	for i := 0; i < 3; i++ {
		paths, err := gens.Allocate()
		require.NoError(t, err)
		ids = append(ids, paths.ID)
	}
	require.NoError(t, gens.Publish(ids[2]))

	// keep=0 still retains the newest generation.
	removed, err := gens.Prune(0)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[1]}, removed)

	remaining, err := gens.List()
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2]}, remaining)
}

func TestMeta_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")

	meta := &Meta{
		Generation:          "gen-20250114-103000",
		ContractID:          "safeway_pueblo_clerks_2022",
		Source:              "contracts/safeway_pueblo.md",
		Chunks:              412,
		Articles:            58,
		WageClassifications: 6,
		EmbedModel:          "text-embedding-004",
		EmbedDimensions:     768,
	}
	require.NoError(t, meta.Save(path))

	loaded, err := LoadMeta(path)
	require.NoError(t, err)
	assert.Equal(t, meta.Generation, loaded.Generation)
	assert.Equal(t, meta.ContractID, loaded.ContractID)
	assert.Equal(t, 412, loaded.Chunks)
	assert.Equal(t, 768, loaded.EmbedDimensions)
}

func TestLoadMeta_Missing(t *testing.T) {
	_, err := LoadMeta(filepath.Join(t.TempDir(), "meta.json"))
	require.Error(t, err)
}
