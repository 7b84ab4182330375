package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// IngestLock serializes writers on a data directory so two ingest
// runs cannot interleave generation allocation and publishing. It is
// a cross-process flock; readers never take it.
type IngestLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewIngestLock creates the writer lock for a data directory. The
// lock file lives at <dataDir>/.ingest.lock.
func NewIngestLock(dataDir string) *IngestLock {
	lockPath := filepath.Join(dataDir, ".ingest.lock")
	return &IngestLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking. Returns
// false when another ingest holds it.
func (l *IngestLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire ingest lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked IngestLock.
func (l *IngestLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return fmt.Errorf("failed to release ingest lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file location.
func (l *IngestLock) Path() string {
	return l.path
}

// IsLocked reports whether this process holds the lock.
func (l *IngestLock) IsLocked() bool {
	return l.locked
}
