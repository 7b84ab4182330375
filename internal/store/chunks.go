// Package store holds the persisted retrieval artifacts for one
// contract: the chunk snapshot, the BM25 keyword index, and the HNSW
// vector index with its flattened metadata sidecar. Each artifact
// writes to a single file via temp-file + rename so readers never see
// a partial artifact; a generation directory groups the files so the
// whole snapshot swaps atomically.
package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopsteward/steward/internal/contract"
)

// ChunkStore is the in-memory chunk snapshot the retrieval engine
// reads from. It serves chunk lookups by id and position-ordered
// article listings for context expansion.
type ChunkStore struct {
	chunks    []*contract.Chunk
	byID      map[string]*contract.Chunk
	byArticle map[int][]*contract.Chunk
}

// NewChunkStore indexes the given chunks. Chunk ids are assumed
// unique; a duplicate id keeps the later chunk.
func NewChunkStore(chunks []*contract.Chunk) *ChunkStore {
	s := &ChunkStore{
		chunks:    chunks,
		byID:      make(map[string]*contract.Chunk, len(chunks)),
		byArticle: make(map[int][]*contract.Chunk),
	}
	for _, c := range chunks {
		s.byID[c.ChunkID] = c
		s.byArticle[c.ArticleNum] = append(s.byArticle[c.ArticleNum], c)
	}
	for _, group := range s.byArticle {
		contract.SortChunksByPosition(group)
	}
	return s
}

// Get returns the chunk with the given id.
func (s *ChunkStore) Get(id string) (*contract.Chunk, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// All returns every chunk in ingestion order. The returned slice is a
// copy; the chunks themselves are shared.
func (s *ChunkStore) All() []*contract.Chunk {
	out := make([]*contract.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Count returns the number of chunks in the snapshot.
func (s *ChunkStore) Count() int {
	return len(s.chunks)
}

// Article returns the chunks of one article ordered by position
// (intros first, then sections, then subsections). Article 0 holds
// chunks outside any article, such as Letters of Understanding.
func (s *ChunkStore) Article(num int) []*contract.Chunk {
	group := s.byArticle[num]
	out := make([]*contract.Chunk, len(group))
	copy(out, group)
	return out
}

// Save writes the snapshot as an indented JSON array using a temp
// file + rename.
func (s *ChunkStore) Save(path string) error {
	data, err := json.MarshalIndent(s.chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chunk snapshot: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write chunk snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save chunk snapshot: %w", err)
	}
	return nil
}

// LoadChunkStore reads a chunk snapshot written by Save.
func LoadChunkStore(path string) (*ChunkStore, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("chunk snapshot not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk snapshot: %w", err)
	}

	var chunks []*contract.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("failed to parse chunk snapshot: %w", err)
	}
	return NewChunkStore(chunks), nil
}
