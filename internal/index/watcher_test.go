package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const swapWait = 5 * time.Second

func TestNewGenerationWatcher_RequiresDependencies(t *testing.T) {
	gens := NewGenerations(t.TempDir())

	_, err := NewGenerationWatcher(nil, nil, func(*Snapshot) {})
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewGenerationWatcher(gens, nil, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestGenerationWatcher_SwapsOnPublish(t *testing.T) {
	dataDir := t.TempDir()
	source := writeTestContract(t, t.TempDir())
	runner := newTestRunner(t, testConfig(dataDir))

	first, err := runner.Run(context.Background(), RunnerConfig{Source: source})
	require.NoError(t, err)

	gens := NewGenerations(dataDir)
	swapped := make(chan *Snapshot, 4)
	watcher, err := NewGenerationWatcher(gens, nil, func(s *Snapshot) { swapped <- s })
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background()))
	defer func() { _ = watcher.Stop() }()

	second, err := runner.Run(context.Background(), RunnerConfig{Source: source})
	require.NoError(t, err)
	require.NotEqual(t, first.Generation, second.Generation)

	select {
	case snap := <-swapped:
		defer snap.Close()
		assert.Equal(t, second.Generation, snap.Generation)
		assert.Equal(t, second.Chunks, snap.Chunks.Count())
	case <-time.After(swapWait):
		t.Fatal("no snapshot swap after publish")
	}
}

func TestGenerationWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dataDir := t.TempDir()
	gens := NewGenerations(dataDir)

	swapped := make(chan *Snapshot, 4)
	watcher, err := NewGenerationWatcher(gens, nil, func(s *Snapshot) { swapped <- s })
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background()))
	defer func() { _ = watcher.Stop() }()

	require.NoError(t, os.WriteFile(filepath.Join(gens.Root(), "notes.txt"), []byte("x"), 0o644))

	select {
	case <-swapped:
		t.Fatal("unrelated file must not trigger a swap")
	case <-time.After(600 * time.Millisecond):
	}
}

func TestGenerationWatcher_BadMarkerKeepsServing(t *testing.T) {
	dataDir := t.TempDir()
	source := writeTestContract(t, t.TempDir())
	runner := newTestRunner(t, testConfig(dataDir))

	_, err := runner.Run(context.Background(), RunnerConfig{Source: source})
	require.NoError(t, err)

	gens := NewGenerations(dataDir)
	swapped := make(chan *Snapshot, 4)
	watcher, err := NewGenerationWatcher(gens, nil, func(s *Snapshot) { swapped <- s })
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background()))
	defer func() { _ = watcher.Stop() }()

	// Point CURRENT at a generation that does not exist. The reload
	// fails and the watcher keeps whatever was serving.
	require.NoError(t, os.WriteFile(gens.CurrentPath(), []byte("gen-19700101-000000\n"), 0o644))

	select {
	case <-swapped:
		t.Fatal("unreadable generation must not swap in")
	case <-time.After(600 * time.Millisecond):
	}

	// A real publish afterwards still swaps.
	second, err := runner.Run(context.Background(), RunnerConfig{Source: source})
	require.NoError(t, err)

	select {
	case snap := <-swapped:
		defer snap.Close()
		assert.Equal(t, second.Generation, snap.Generation)
	case <-time.After(swapWait):
		t.Fatal("no snapshot swap after recovery publish")
	}
}

func TestGenerationWatcher_StopIsIdempotent(t *testing.T) {
	gens := NewGenerations(t.TempDir())
	watcher, err := NewGenerationWatcher(gens, nil, func(*Snapshot) {})
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background()))

	require.NoError(t, watcher.Stop())
	require.NoError(t, watcher.Stop())
}

func TestGenerationWatcher_ContextCancelStops(t *testing.T) {
	gens := NewGenerations(t.TempDir())
	watcher, err := NewGenerationWatcher(gens, nil, func(*Snapshot) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, watcher.Start(ctx))
	cancel()

	select {
	case <-watcher.doneCh:
	case <-time.After(swapWait):
		t.Fatal("watcher loop did not exit on context cancel")
	}
	require.NoError(t, watcher.Stop())
}
