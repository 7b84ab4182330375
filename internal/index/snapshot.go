package index

import (
	"os"

	"github.com/shopsteward/steward/internal/concept"
	"github.com/shopsteward/steward/internal/contract"
	stewerrors "github.com/shopsteward/steward/internal/errors"
	"github.com/shopsteward/steward/internal/store"
	"github.com/shopsteward/steward/internal/wage"
)

// Snapshot is one generation loaded into memory. A reader resolves
// CURRENT once, loads the snapshot, and serves every lookup of a
// request from it, so indexes never outlive the chunk set they were
// built from.
type Snapshot struct {
	Generation string
	Meta       *Meta
	Chunks     *store.ChunkStore
	Keyword    *store.KeywordIndex
	Vectors    *store.VectorIndex
	Concepts   *concept.Index
	Manifest   *contract.Manifest
	Wages      *wage.Table
}

// LoadCurrent resolves the CURRENT marker and loads that generation.
func LoadCurrent(gens *Generations) (*Snapshot, error) {
	id, err := gens.Current()
	if err != nil {
		return nil, err
	}
	return LoadGeneration(gens, id)
}

// LoadGeneration loads one generation's artifacts. Everything except
// the wage table is required; a contract without a parseable wage
// grid publishes without one.
func LoadGeneration(gens *Generations, id string) (*Snapshot, error) {
	paths := gens.Paths(id)
	if info, err := os.Stat(paths.Root); err != nil || !info.IsDir() {
		return nil, stewerrors.New(stewerrors.ErrCodeGenerationMissing, "generation does not exist", err).
			WithDetail("generation", id)
	}

	meta, err := LoadMeta(paths.Meta)
	if err != nil {
		return nil, stewerrors.New(stewerrors.ErrCodeCorruptIndex, "generation meta is unreadable", err).
			WithDetail("generation", id).
			WithSuggestion("re-run 'steward ingest' to publish a fresh generation")
	}

	chunks, err := store.LoadChunkStore(paths.Chunks)
	if err != nil {
		return nil, corrupt(id, "chunk snapshot", err)
	}
	keyword, err := store.LoadKeywordIndex(paths.Keyword)
	if err != nil {
		return nil, corrupt(id, "keyword index", err)
	}
	vectors, err := store.LoadVectorIndex(paths.Vectors)
	if err != nil {
		return nil, corrupt(id, "vector index", err)
	}
	concepts, err := concept.LoadIndex(paths.ConceptIndex)
	if err != nil {
		_ = vectors.Close()
		return nil, corrupt(id, "concept index", err)
	}
	manifest, err := contract.LoadManifest(paths.ManifestFor(meta.ContractID))
	if err != nil {
		_ = vectors.Close()
		return nil, corrupt(id, "manifest", err)
	}

	var wages *wage.Table
	if _, err := os.Stat(paths.WageTables); err == nil {
		wages, err = wage.LoadTable(paths.WageTables)
		if err != nil {
			_ = vectors.Close()
			return nil, corrupt(id, "wage tables", err)
		}
	}

	return &Snapshot{
		Generation: id,
		Meta:       meta,
		Chunks:     chunks,
		Keyword:    keyword,
		Vectors:    vectors,
		Concepts:   concepts,
		Manifest:   manifest,
		Wages:      wages,
	}, nil
}

// Close releases the snapshot's vector index.
func (s *Snapshot) Close() error {
	if s.Vectors != nil {
		return s.Vectors.Close()
	}
	return nil
}

func corrupt(id, artifact string, err error) error {
	return stewerrors.New(stewerrors.ErrCodeCorruptIndex, artifact+" is unreadable", err).
		WithDetail("generation", id).
		WithSuggestion("re-run 'steward ingest' to publish a fresh generation")
}
