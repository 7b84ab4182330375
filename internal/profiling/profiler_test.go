package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCPU_WritesProfile(t *testing.T) {
	p := NewProfiler()
	path := filepath.Join(t.TempDir(), "cpu.prof")

	cleanup, err := p.StartCPU(path)
	require.NoError(t, err)

	// Burn a little CPU so the profile has samples.
	sum := 0
	for i := 0; i < 1_000_000; i++ {
		sum += i
	}
	_ = sum

	cleanup()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Nil(t, p.cpuFile)
}

func TestStartCPU_BadPath(t *testing.T) {
	p := NewProfiler()
	_, err := p.StartCPU(filepath.Join(t.TempDir(), "missing", "cpu.prof"))
	require.Error(t, err)
}

func TestWriteHeap_WritesProfile(t *testing.T) {
	p := NewProfiler()
	path := filepath.Join(t.TempDir(), "heap.prof")

	require.NoError(t, p.WriteHeap(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestStartTrace_WritesTrace(t *testing.T) {
	p := NewProfiler()
	path := filepath.Join(t.TempDir(), "trace.out")

	cleanup, err := p.StartTrace(path)
	require.NoError(t, err)
	cleanup()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Nil(t, p.traceFile)
}
