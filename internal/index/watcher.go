package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultSwapDebounce coalesces the marker's tmp-write and rename
// into a single reload.
const defaultSwapDebounce = 200 * time.Millisecond

// GenerationWatcher watches the CURRENT marker and reloads the
// published snapshot when an ingest flips it. Long-running readers
// (the MCP server) swap snapshots between requests; a reload failure
// keeps the previous snapshot serving.
type GenerationWatcher struct {
	gens     *Generations
	onSwap   func(*Snapshot)
	logger   *slog.Logger
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	started   atomic.Bool
}

// NewGenerationWatcher creates a watcher. onSwap receives each
// successfully loaded snapshot and owns closing it.
func NewGenerationWatcher(gens *Generations, logger *slog.Logger, onSwap func(*Snapshot)) (*GenerationWatcher, error) {
	if gens == nil {
		return nil, fmt.Errorf("%w: generations is required", ErrNilDependency)
	}
	if onSwap == nil {
		return nil, fmt.Errorf("%w: swap callback is required", ErrNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &GenerationWatcher{
		gens:      gens,
		onSwap:    onSwap,
		logger:    logger,
		debounce:  defaultSwapDebounce,
		fsWatcher: fsw,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins watching the generations root. The root is created if
// it does not exist yet so a server can start before the first
// ingest.
func (w *GenerationWatcher) Start(ctx context.Context) error {
	root := w.gens.Root()
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return fmt.Errorf("create generations root: %w", err)
	}
	if err := w.fsWatcher.Add(root); err != nil {
		return fmt.Errorf("watch generations root: %w", err)
	}

	w.started.Store(true)
	go w.loop(ctx)
	w.logger.Info("generation_watcher_started", slog.String("path", root))
	return nil
}

// Stop terminates the watcher. Safe to call more than once.
func (w *GenerationWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.fsWatcher.Close()
	})
	if w.started.Load() {
		<-w.doneCh
	}
	return nil
}

func (w *GenerationWatcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isMarkerSwap(event) {
				continue
			}
			// Restart the window on every marker event so one reload
			// covers a tmp-write followed by the rename.
			pending = time.After(w.debounce)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("generation_watcher_error", slog.String("error", err.Error()))
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *GenerationWatcher) isMarkerSwap(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != currentMarker {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}

// reload loads whatever CURRENT points at now. On failure the old
// snapshot keeps serving.
func (w *GenerationWatcher) reload() {
	snap, err := LoadCurrent(w.gens)
	if err != nil {
		w.logger.Warn("snapshot_reload_failed", slog.String("error", err.Error()))
		return
	}
	w.logger.Info("snapshot_swapped",
		slog.String("generation", snap.Generation),
		slog.Int("chunks", snap.Chunks.Count()))
	w.onSwap(snap)
}
