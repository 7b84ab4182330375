// Package index runs the ingestion pipeline and manages published
// index generations. Every ingest writes its artifacts into a fresh
// data/generations/<gen-id>/ directory and flips the CURRENT marker
// by atomic rename only after everything is fsynced, so readers
// always see a complete, internally consistent snapshot and a failed
// ingest leaves the live generation untouched.
package index

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopsteward/steward/internal/errors"
)

const (
	// generationPrefix starts every generation directory name.
	generationPrefix = "gen-"

	// currentMarker is the file in the generations root naming the
	// live generation.
	currentMarker = "CURRENT"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Generations manages the generation directories under a data dir.
type Generations struct {
	dataDir string
}

// NewGenerations creates a manager rooted at dataDir.
func NewGenerations(dataDir string) *Generations {
	return &Generations{dataDir: dataDir}
}

// DataDir returns the data directory root.
func (g *Generations) DataDir() string {
	return g.dataDir
}

// Root returns the directory holding all generations.
func (g *Generations) Root() string {
	return filepath.Join(g.dataDir, "generations")
}

// Dir returns the directory for one generation.
func (g *Generations) Dir(id string) string {
	return filepath.Join(g.Root(), id)
}

// CurrentPath returns the path of the CURRENT marker file.
func (g *Generations) CurrentPath() string {
	return filepath.Join(g.Root(), currentMarker)
}

// Paths lays out the artifact locations inside one generation.
type Paths struct {
	ID           string
	Root         string
	Meta         string
	Chunks       string
	ConceptIndex string
	Keyword      string
	WageTables   string
	ManifestDir  string
	Vectors      string
}

// ManifestFor returns the manifest path for a contract.
func (p *Paths) ManifestFor(contractID string) string {
	return filepath.Join(p.ManifestDir, contractID+".json")
}

// Paths computes the artifact layout for a generation id.
func (g *Generations) Paths(id string) *Paths {
	root := g.Dir(id)
	return &Paths{
		ID:           id,
		Root:         root,
		Meta:         filepath.Join(root, "meta.json"),
		Chunks:       filepath.Join(root, "chunks", "chunks.json"),
		ConceptIndex: filepath.Join(root, "chunks", "concept_index.json"),
		Keyword:      filepath.Join(root, "chunks", "keyword_index.json"),
		WageTables:   filepath.Join(root, "wages", "wage_tables.json"),
		ManifestDir:  filepath.Join(root, "manifests"),
		Vectors:      filepath.Join(root, "vectors", "contract.hnsw"),
	}
}

// Allocate creates a fresh generation directory with its artifact
// subdirectories. IDs are timestamped; a second allocation within the
// same second gets a numeric suffix.
func (g *Generations) Allocate() (*Paths, error) {
	if err := os.MkdirAll(g.Root(), dirPerm); err != nil {
		return nil, errors.New(errors.ErrCodeFilePermission, "cannot create generations directory", err).
			WithDetail("path", g.Root())
	}

	base := generationPrefix + time.Now().UTC().Format("20060102-150405")
	id := base
	for n := 2; ; n++ {
		err := os.Mkdir(g.Dir(id), dirPerm)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, errors.New(errors.ErrCodeFilePermission, "cannot create generation directory", err).
				WithDetail("path", g.Dir(id))
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}

	paths := g.Paths(id)
	for _, dir := range []string{
		filepath.Dir(paths.Chunks),
		filepath.Dir(paths.WageTables),
		paths.ManifestDir,
		filepath.Dir(paths.Vectors),
	} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, errors.New(errors.ErrCodeFilePermission, "cannot create generation subdirectory", err).
				WithDetail("path", dir)
		}
	}
	return paths, nil
}

// Current returns the id of the live generation.
func (g *Generations) Current() (string, error) {
	data, err := os.ReadFile(g.CurrentPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New(errors.ErrCodeGenerationMissing, "no published generation", err).
				WithSuggestion("run 'steward ingest <contract.md>' first")
		}
		return "", errors.New(errors.ErrCodeFilePermission, "cannot read CURRENT marker", err).
			WithDetail("path", g.CurrentPath())
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", errors.New(errors.ErrCodeGenerationMissing, "CURRENT marker is empty", nil).
			WithDetail("path", g.CurrentPath())
	}
	return id, nil
}

// Publish makes a generation live. Every file under the generation is
// fsynced before the CURRENT marker is swapped in by rename, so a
// reader that resolves the marker always finds complete artifacts.
func (g *Generations) Publish(id string) error {
	dir := g.Dir(id)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return errors.New(errors.ErrCodeGenerationMissing, "generation does not exist", err).
			WithDetail("generation", id)
	}

	if err := syncTree(dir); err != nil {
		return errors.New(errors.ErrCodeIndexFailed, "cannot sync generation artifacts", err).
			WithDetail("generation", id)
	}

	tmp := g.CurrentPath() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return errors.New(errors.ErrCodeFilePermission, "cannot write CURRENT marker", err).
			WithDetail("path", tmp)
	}
	if _, err := f.WriteString(id + "\n"); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.New(errors.ErrCodeFilePermission, "cannot write CURRENT marker", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.New(errors.ErrCodeFilePermission, "cannot sync CURRENT marker", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.New(errors.ErrCodeFilePermission, "cannot close CURRENT marker", err)
	}
	if err := os.Rename(tmp, g.CurrentPath()); err != nil {
		os.Remove(tmp)
		return errors.New(errors.ErrCodeFilePermission, "cannot publish CURRENT marker", err)
	}
	syncDir(g.Root())
	return nil
}

// List returns all generation ids, oldest first.
func (g *Generations) List() ([]string, error) {
	entries, err := os.ReadDir(g.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(errors.ErrCodeFilePermission, "cannot list generations", err).
			WithDetail("path", g.Root())
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), generationPrefix) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Prune removes old generations, keeping the newest keep directories.
// The live generation is never removed regardless of age. Returns the
// ids that were deleted.
func (g *Generations) Prune(keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}

	ids, err := g.List()
	if err != nil {
		return nil, err
	}
	if len(ids) <= keep {
		return nil, nil
	}

	current, _ := g.Current()

	var removed []string
	for _, id := range ids[:len(ids)-keep] {
		if id == current {
			continue
		}
		if err := os.RemoveAll(g.Dir(id)); err != nil {
			return removed, errors.New(errors.ErrCodeFilePermission, "cannot remove old generation", err).
				WithDetail("generation", id)
		}
		removed = append(removed, id)
	}
	return removed, nil
}

// Meta records what a generation contains. It is written last among
// the generation's artifacts and read first by loaders.
type Meta struct {
	Generation          string    `json:"generation"`
	ContractID          string    `json:"contract_id"`
	Source              string    `json:"source,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	Chunks              int       `json:"chunks"`
	Articles            int       `json:"articles"`
	WageClassifications int       `json:"wage_classifications"`
	EmbedModel          string    `json:"embed_model"`
	EmbedDimensions     int       `json:"embed_dimensions"`
}

// Save writes the meta file atomically.
func (m *Meta) Save(path string) error {
	return writeJSONAtomic(path, m)
}

// LoadMeta reads a generation's meta file.
func LoadMeta(path string) (*Meta, error) {
	var m Meta
	if err := readJSON(path, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// syncTree fsyncs every regular file under dir, then the directories,
// so a rename that follows cannot expose unflushed artifacts.
func syncTree(dir string) error {
	var dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return f.Sync()
	})
	if err != nil {
		return err
	}
	for _, d := range dirs {
		syncDir(d)
	}
	return nil
}

// syncDir fsyncs a directory so entry renames inside it are durable.
// Best effort: some filesystems reject directory fsync.
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	defer f.Close()
	_ = f.Sync()
}

// writeJSONAtomic marshals v and writes it via tmp+rename.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
