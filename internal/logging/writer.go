package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// RotatingWriter appends log lines to a single file and archives it
// once it grows past the size cap. Archives carry the rotation time in
// the name (steward.log.20250825-161502.103332847) and the oldest are
// pruned so at most maxFiles archives remain. Every write is synced so
// `steward logs -f` sees lines as they land.
type RotatingWriter struct {
	path     string
	maxBytes int64
	maxFiles int

	mu   sync.Mutex
	file *os.File
	size int64
}

// Nanosecond stamps keep archive names unique under back-to-back
// rotations and make sorting by name chronological.
const archiveStamp = "20060102-150405.000000000"

// NewRotatingWriter opens path for appending, creating the parent
// directory if needed.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	w := &RotatingWriter{
		path:     path,
		maxBytes: int64(maxSizeMB) << 20,
		maxFiles: maxFiles,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			// A failed rotation must not lose the line; keep appending
			// to the oversized file.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	if w.file == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err == nil {
		_ = w.file.Sync()
	}
	return n, err
}

// Sync flushes buffered data to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("sizing log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// rotate renames the live file to a timestamped archive, prunes old
// archives, and reopens a fresh file.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("closing for rotation: %w", err)
		}
		w.file = nil
	}

	archive := fmt.Sprintf("%s.%s", w.path, time.Now().UTC().Format(archiveStamp))
	if err := os.Rename(w.path, archive); err != nil && !os.IsNotExist(err) {
		// Reopen the unrenamed file so writes keep landing somewhere.
		if openErr := w.open(); openErr != nil {
			return openErr
		}
		return fmt.Errorf("archiving log file: %w", err)
	}
	w.prune()

	w.size = 0
	return w.open()
}

// prune removes the oldest archives beyond maxFiles. Stamp names sort
// chronologically, so lexicographic order is age order.
func (w *RotatingWriter) prune() {
	archives, err := filepath.Glob(w.path + ".*")
	if err != nil || len(archives) <= w.maxFiles {
		return
	}
	sort.Strings(archives)
	for _, old := range archives[:len(archives)-w.maxFiles] {
		_ = os.Remove(old)
	}
}
