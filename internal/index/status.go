package index

import (
	"path/filepath"
	"sync"
	"time"
)

// Ingest run states recorded in the status file.
const (
	StateRunning  = "running"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// statusFileName is the status file under the data directory.
const statusFileName = "ingest_status.json"

// StageStatus records progress through one pipeline stage.
type StageStatus struct {
	Name       string `json:"name"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	DurationMS int64  `json:"duration_ms"`
	Done       bool   `json:"done"`
}

// Status is the on-disk record of the most recent ingest run. The
// stats command and the progress UI read it; only the runner writes
// it. It is advisory, so writes are atomic but not fsynced.
type Status struct {
	State      string        `json:"state"`
	Generation string        `json:"generation"`
	ContractID string        `json:"contract_id"`
	Source     string        `json:"source,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Error      string        `json:"error,omitempty"`
	Stages     []StageStatus `json:"stages"`
}

// StatusPath returns the status file location for a data directory.
func StatusPath(dataDir string) string {
	return filepath.Join(dataDir, statusFileName)
}

// ReadStatus loads the last ingest status.
func ReadStatus(path string) (*Status, error) {
	var st Status
	if err := readJSON(path, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// StatusWriter maintains the status file through an ingest run.
type StatusWriter struct {
	mu         sync.Mutex
	path       string
	st         Status
	stageStart time.Time
}

// NewStatusWriter creates a writer for a data directory.
func NewStatusWriter(dataDir string) *StatusWriter {
	return &StatusWriter{path: StatusPath(dataDir)}
}

// Begin records the start of a run.
func (w *StatusWriter) Begin(generation, contractID, source string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now().UTC()
	w.st = Status{
		State:      StateRunning,
		Generation: generation,
		ContractID: contractID,
		Source:     source,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	return w.write()
}

// StartStage opens a new stage record. Any stage still open is
// closed first.
func (w *StatusWriter) StartStage(name string, total int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeOpenStage()
	w.st.Stages = append(w.st.Stages, StageStatus{Name: name, Total: total})
	w.stageStart = time.Now()
	w.st.UpdatedAt = time.Now().UTC()
	return w.write()
}

// Progress updates the open stage's counter.
func (w *StatusWriter) Progress(current int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n := len(w.st.Stages); n > 0 {
		w.st.Stages[n-1].Current = current
	}
	w.st.UpdatedAt = time.Now().UTC()
	return w.write()
}

// FinishStage closes the open stage and records its duration.
func (w *StatusWriter) FinishStage() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeOpenStage()
	w.st.UpdatedAt = time.Now().UTC()
	return w.write()
}

// Complete marks the run finished.
func (w *StatusWriter) Complete() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeOpenStage()
	w.st.State = StateComplete
	w.st.UpdatedAt = time.Now().UTC()
	return w.write()
}

// Fail marks the run failed with the causing error.
func (w *StatusWriter) Fail(err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeOpenStage()
	w.st.State = StateFailed
	if err != nil {
		w.st.Error = err.Error()
	}
	w.st.UpdatedAt = time.Now().UTC()
	return w.write()
}

func (w *StatusWriter) closeOpenStage() {
	n := len(w.st.Stages)
	if n == 0 || w.st.Stages[n-1].Done {
		return
	}
	w.st.Stages[n-1].Done = true
	w.st.Stages[n-1].DurationMS = time.Since(w.stageStart).Milliseconds()
}

func (w *StatusWriter) write() error {
	return writeJSONAtomic(w.path, &w.st)
}
