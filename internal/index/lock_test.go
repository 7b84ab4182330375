package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestLock_TryLockAndUnlock(t *testing.T) {
	lock := NewIngestLock(t.TempDir())

	acquired, err := lock.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsLocked())

	require.NoError(t, lock.Unlock())
	assert.False(t, lock.IsLocked())
}

func TestIngestLock_SecondWriterBlocked(t *testing.T) {
	dataDir := t.TempDir()

	first := NewIngestLock(dataDir)
	acquired, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)
	defer func() { _ = first.Unlock() }()

	second := NewIngestLock(dataDir)
	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.False(t, second.IsLocked())
}

func TestIngestLock_ReleasedLockReacquirable(t *testing.T) {
	dataDir := t.TempDir()

	first := NewIngestLock(dataDir)
	acquired, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, first.Unlock())

	second := NewIngestLock(dataDir)
	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, second.Unlock())
}

func TestIngestLock_UnlockWithoutLock(t *testing.T) {
	lock := NewIngestLock(t.TempDir())
	assert.NoError(t, lock.Unlock())
}

func TestIngestLock_CreatesDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "data")
	lock := NewIngestLock(dataDir)

	acquired, err := lock.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, lock.Unlock())
}

func TestIngestLock_Path(t *testing.T) {
	dataDir := t.TempDir()
	lock := NewIngestLock(dataDir)
	assert.Equal(t, filepath.Join(dataDir, ".ingest.lock"), lock.Path())
}
