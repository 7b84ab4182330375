package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/hnsw"

	"github.com/shopsteward/steward/internal/contract"
)

// defaultVectorK bounds Search results when the caller passes no k.
const defaultVectorK = 5

// minOverFetch is the smallest candidate pool fetched before the boost
// ladder re-ranks; boosted chunks outside the raw top k can still win.
const minOverFetch = 15

// Explicit references like "article 12" or "section 3" in a query name
// the provision the worker wants; matching chunks get boosted.
var (
	articleRefRe = regexp.MustCompile(`article\s*(\d+)`)
	sectionRefRe = regexp.MustCompile(`section\s*(\d+)`)
)

// VectorConfig sizes the HNSW graph. Dimensions must match the
// embedder that produced the vectors.
type VectorConfig struct {
	Dimensions int     `json:"dimensions"`
	M          int     `json:"m"`         // graph connectivity, default 16
	EfSearch   int     `json:"ef_search"` // search beam width, default 20
	Ml         float64 `json:"ml"`        // level generation factor, default 0.25
}

// DefaultVectorConfig returns the standard graph parameters for the
// given embedding dimensionality.
func DefaultVectorConfig(dims int) VectorConfig {
	return VectorConfig{Dimensions: dims, M: 16, EfSearch: 20, Ml: 0.25}
}

// BoostWeights are the metadata re-ranking constants applied on top of
// raw cosine similarity. The floor applies before any boost, so a
// barely-related chunk cannot ride a metadata match into the results.
type BoostWeights struct {
	SimilarityFloor       float64
	ExplicitArticle       float64 // query names the chunk's article
	ExplicitSection       float64 // query names the chunk's section
	BoostArticle          float64 // chunk's article is in the boost list
	Classification        float64 // chunk applies to the worker's classification
	ClassificationPenalty float64 // chunk applies to a different classification
	Topic                 float64 // chunk tagged with the query topic
	HighStakes            float64 // high-stakes chunk on a high-stakes query
}

// DefaultBoostWeights returns the tuned re-ranking constants.
func DefaultBoostWeights() BoostWeights {
	return BoostWeights{
		SimilarityFloor:       0.1,
		ExplicitArticle:       0.3,
		ExplicitSection:       0.1,
		BoostArticle:          0.2,
		Classification:        0.15,
		ClassificationPenalty: 0.05,
		Topic:                 0.15,
		HighStakes:            0.1,
	}
}

// ChunkMeta is the flattened routing metadata stored beside each
// vector: lists comma-joined, missing numbers zero. Filter and boost
// checks run against these flattened forms, so classification and
// topic matching is substring-based ("holiday" matches
// "holidays,personal_holidays").
type ChunkMeta struct {
	ContractID   string `json:"contract_id"`
	Citation     string `json:"citation"`
	ArticleNum   int    `json:"article_num"`
	ArticleTitle string `json:"article_title"`
	SectionNum   int    `json:"section_num"`
	UrgencyTier  string `json:"urgency_tier"`
	DocType      string `json:"doc_type"`
	AppliesTo    string `json:"applies_to"`
	Topics       string `json:"topics"`
	IsHighStakes bool   `json:"is_high_stakes"`
}

// MetaFromChunk flattens a chunk's routing metadata for the sidecar.
func MetaFromChunk(c *contract.Chunk) ChunkMeta {
	return ChunkMeta{
		ContractID:   c.ContractID,
		Citation:     c.Citation,
		ArticleNum:   c.ArticleNum,
		ArticleTitle: c.ArticleTitle,
		SectionNum:   c.SectionNum,
		UrgencyTier:  c.UrgencyTier,
		DocType:      c.DocType,
		AppliesTo:    strings.Join(c.AppliesTo, ","),
		Topics:       strings.Join(c.Topics, ","),
		IsHighStakes: c.IsHighStakes,
	}
}

// VectorQuery is one similarity search. Text is the raw query, scanned
// for explicit article/section references; Vector is its embedding.
// ContractID, UrgencyTier, and DocType are equality filters (empty
// means no filter); UrgencyTier doubles as the high-stakes boost
// trigger. The remaining fields only re-rank, never exclude.
type VectorQuery struct {
	Text   string
	Vector []float32
	K      int // defaults to 5

	ContractID  string
	UrgencyTier string
	DocType     string

	BoostArticles  []int
	Classification string
	Topic          string
}

// VectorHit is one similarity match with boosts applied.
type VectorHit struct {
	ChunkID    string
	Similarity float64
	Meta       ChunkMeta
}

// DimensionError reports a vector whose length does not match the
// index.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// VectorIndex is an HNSW similarity index over chunk embeddings with a
// flattened metadata sidecar for filtering and boost re-ranking.
// Vectors are normalized on insert, so cosine distance reduces to
// 1 - dot product.
type VectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	config  VectorConfig
	weights BoostWeights

	idMap   map[string]uint64    // chunk id -> graph key
	keyMap  map[uint64]string    // graph key -> chunk id
	meta    map[string]ChunkMeta // chunk id -> flattened metadata
	nextKey uint64

	closed bool
}

// vectorSidecar is the JSON persistence envelope for everything but
// the graph itself.
type vectorSidecar struct {
	Config  VectorConfig         `json:"config"`
	IDMap   map[string]uint64    `json:"id_map"`
	NextKey uint64               `json:"next_key"`
	Meta    map[string]ChunkMeta `json:"meta"`
}

// NewVectorIndex creates an empty index. Zero graph parameters fall
// back to defaults; Dimensions is required.
func NewVectorIndex(cfg VectorConfig) (*VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index requires positive dimensions, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	if cfg.Ml == 0 {
		cfg.Ml = 0.25
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = cfg.Ml

	return &VectorIndex{
		graph:   graph,
		config:  cfg,
		weights: DefaultBoostWeights(),
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		meta:    make(map[string]ChunkMeta),
	}, nil
}

// SetWeights replaces the boost constants. Call before serving
// queries; the weights are not persisted with the index.
func (ix *VectorIndex) SetWeights(w BoostWeights) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.weights = w
}

// Dimensions returns the embedding dimensionality the index expects.
func (ix *VectorIndex) Dimensions() int {
	return ix.config.Dimensions
}

// Add inserts a chunk's embedding and metadata. Re-adding an existing
// id replaces it: the old graph node is orphaned rather than deleted,
// because coder/hnsw cannot remove the last remaining node.
func (ix *VectorIndex) Add(id string, vector []float32, meta ChunkMeta) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return fmt.Errorf("vector index is closed")
	}
	if len(vector) != ix.config.Dimensions {
		return &DimensionError{Want: ix.config.Dimensions, Got: len(vector)}
	}

	if oldKey, exists := ix.idMap[id]; exists {
		delete(ix.keyMap, oldKey)
		delete(ix.idMap, id)
	}

	key := ix.nextKey
	ix.nextKey++

	ix.graph.Add(hnsw.MakeNode(key, normalizeCopy(vector)))
	ix.idMap[id] = key
	ix.keyMap[key] = id
	ix.meta[id] = meta
	return nil
}

// Search runs the similarity query: over-fetch candidates, apply
// equality filters, convert distance to similarity, drop chunks below
// the floor, apply the boost ladder, re-sort, truncate to k.
func (ix *VectorIndex) Search(q VectorQuery) ([]VectorHit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(q.Vector) != ix.config.Dimensions {
		return nil, &DimensionError{Want: ix.config.Dimensions, Got: len(q.Vector)}
	}
	if ix.graph.Len() == 0 {
		return []VectorHit{}, nil
	}

	k := q.K
	if k <= 0 {
		k = defaultVectorK
	}
	fetch := k * 2
	if fetch < minOverFetch {
		fetch = minOverFetch
	}

	lowered := strings.ToLower(q.Text)
	articleRefs := findRefs(articleRefRe, lowered)
	sectionRefs := findRefs(sectionRefRe, lowered)

	query := normalizeCopy(q.Vector)
	nodes := ix.graph.Search(query, fetch)

	hits := make([]VectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, exists := ix.keyMap[node.Key]
		if !exists {
			// Orphaned by a replacement Add.
			continue
		}
		meta := ix.meta[id]

		if q.ContractID != "" && meta.ContractID != q.ContractID {
			continue
		}
		if q.UrgencyTier != "" && meta.UrgencyTier != q.UrgencyTier {
			continue
		}
		if q.DocType != "" && meta.DocType != q.DocType {
			continue
		}

		similarity := 1 - float64(ix.graph.Distance(query, node.Value))
		if similarity < ix.weights.SimilarityFloor {
			continue
		}
		similarity += ix.boost(meta, articleRefs, sectionRefs, q)

		hits = append(hits, VectorHit{ChunkID: id, Similarity: similarity, Meta: meta})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// boost applies the metadata ladder. Metadata only re-ranks; the sole
// penalty is a chunk restricted to a different classification.
func (ix *VectorIndex) boost(meta ChunkMeta, articleRefs, sectionRefs []int, q VectorQuery) float64 {
	w := ix.weights
	var b float64

	for _, ref := range articleRefs {
		if meta.ArticleNum == ref {
			b += w.ExplicitArticle
			break
		}
	}
	for _, ref := range sectionRefs {
		if meta.SectionNum == ref {
			b += w.ExplicitSection
			break
		}
	}
	for _, num := range q.BoostArticles {
		if meta.ArticleNum == num {
			b += w.BoostArticle
			break
		}
	}

	if q.Classification != "" {
		switch {
		case strings.Contains(meta.AppliesTo, q.Classification):
			b += w.Classification
		case strings.Contains(meta.AppliesTo, "all"):
			// Applies to everyone: neither boost nor penalty.
		default:
			b -= w.ClassificationPenalty
		}
	}

	if q.Topic != "" && strings.Contains(meta.Topics, q.Topic) {
		b += w.Topic
	}

	if q.UrgencyTier == contract.UrgencyHighStakes && meta.IsHighStakes {
		b += w.HighStakes
	}

	return b
}

// Meta returns the flattened metadata stored for a chunk id.
func (ix *VectorIndex) Meta(id string) (ChunkMeta, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	m, ok := ix.meta[id]
	return m, ok
}

// Contains reports whether the id has a live vector.
func (ix *VectorIndex) Contains(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, exists := ix.idMap[id]
	return exists
}

// Count returns the number of live vectors (orphaned replacements
// excluded).
func (ix *VectorIndex) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.idMap)
}

// Close marks the index unusable. The graph holds no OS resources;
// Close exists so a swapped-out generation fails loudly if something
// still queries it.
func (ix *VectorIndex) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.closed = true
	return nil
}

// Save writes the graph to path and the sidecar to path + ".json",
// each via temp file + rename.
func (ix *VectorIndex) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create vector index file: %w", err)
	}
	if err := ix.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export vector graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close vector index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save vector index: %w", err)
	}

	side := vectorSidecar{
		Config:  ix.config,
		IDMap:   ix.idMap,
		NextKey: ix.nextKey,
		Meta:    ix.meta,
	}
	data, err := json.MarshalIndent(side, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal vector sidecar: %w", err)
	}

	sidePath := sidecarPath(path)
	tmpSide := sidePath + ".tmp"
	if err := os.WriteFile(tmpSide, data, 0644); err != nil {
		return fmt.Errorf("failed to write vector sidecar: %w", err)
	}
	if err := os.Rename(tmpSide, sidePath); err != nil {
		_ = os.Remove(tmpSide)
		return fmt.Errorf("failed to save vector sidecar: %w", err)
	}
	return nil
}

// LoadVectorIndex reads an index written by Save.
func LoadVectorIndex(path string) (*VectorIndex, error) {
	data, err := os.ReadFile(sidecarPath(path))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("vector index not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vector sidecar: %w", err)
	}

	var side vectorSidecar
	if err := json.Unmarshal(data, &side); err != nil {
		return nil, fmt.Errorf("failed to parse vector sidecar: %w", err)
	}

	ix, err := NewVectorIndex(side.Config)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("vector index not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := ix.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import vector graph: %w", err)
	}

	if side.IDMap != nil {
		ix.idMap = side.IDMap
	}
	if side.Meta != nil {
		ix.meta = side.Meta
	}
	ix.nextKey = side.NextKey
	for id, key := range ix.idMap {
		ix.keyMap[key] = id
	}
	return ix, nil
}

func sidecarPath(path string) string {
	return path + ".json"
}

// findRefs extracts the numbers captured by re from lowered text.
func findRefs(re *regexp.Regexp, lowered string) []int {
	matches := re.FindAllStringSubmatch(lowered, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		refs = append(refs, n)
	}
	return refs
}

// normalizeCopy returns a unit-length copy of vec; a zero vector is
// returned unchanged.
func normalizeCopy(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)

	var sum float64
	for _, v := range out {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i := range out {
		out[i] /= norm
	}
	return out
}
