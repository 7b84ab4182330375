package preflight

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeedsCheck_FreshDirectory(t *testing.T) {
	assert.True(t, NeedsCheck(t.TempDir()))
}

func TestMarkPassed_ThenNeedsCheckFalse(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")

	require.NoError(t, MarkPassed(dataDir))

	assert.False(t, NeedsCheck(dataDir))
	assert.FileExists(t, filepath.Join(dataDir, MarkerFile))
}

func TestClearMarker(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, MarkPassed(dataDir))

	require.NoError(t, ClearMarker(dataDir))

	assert.True(t, NeedsCheck(dataDir))
	assert.NoError(t, ClearMarker(dataDir), "clearing twice is fine")
}

func TestMarkerAge(t *testing.T) {
	dataDir := t.TempDir()

	assert.Zero(t, MarkerAge(dataDir))

	stamp := time.Now().Add(-2 * time.Hour).Format(time.RFC3339)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte(stamp), 0o644))

	age := MarkerAge(dataDir)
	assert.Greater(t, age, time.Hour)
	assert.Less(t, age, 3*time.Hour)
}

func TestMarkerAge_GarbageContent(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte("not a time"), 0o644))

	assert.Zero(t, MarkerAge(dataDir))
}
