package store

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/shopsteward/steward/internal/contract"
)

// BM25 parameters tuned for contract prose: k1 raised above the usual
// 1.2 so repeated terms in long legal sections keep earning score.
const (
	DefaultBM25K1 = 1.8
	DefaultBM25B  = 0.75
)

// defaultKeywordK bounds Search results when the caller passes no k.
const defaultKeywordK = 10

// tokenRe matches lowercase word tokens. Contract text is lowered
// before matching, so the class covers every alphanumeric run.
var tokenRe = regexp.MustCompile(`\b[a-z0-9]+\b`)

// KeywordHit is one BM25 match.
type KeywordHit struct {
	ChunkID string
	Score   float64
}

// KeywordIndex is an in-memory BM25 index over chunk searchable text
// (content + citation + article title, so "article 12" and a bare
// title word both hit chunks whose body never repeats them). Fields
// are exported for JSON persistence; use Build, Search, Save, and
// LoadKeywordIndex rather than mutating them directly.
type KeywordIndex struct {
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`

	// DocIDs preserves ingestion order so equal scores rank in
	// document position order.
	DocIDs     []string                  `json:"doc_ids"`
	DocLengths map[string]int            `json:"doc_lengths"`
	Postings   map[string]map[string]int `json:"postings"` // term -> chunk id -> frequency
	AvgDocLen  float64                   `json:"avg_doc_length"`
}

// NewKeywordIndex creates an empty index. Non-positive parameters
// fall back to the defaults.
func NewKeywordIndex(k1, b float64) *KeywordIndex {
	if k1 <= 0 {
		k1 = DefaultBM25K1
	}
	if b <= 0 {
		b = DefaultBM25B
	}
	return &KeywordIndex{
		K1:         k1,
		B:          b,
		DocLengths: make(map[string]int),
		Postings:   make(map[string]map[string]int),
	}
}

// Build indexes the chunks' searchable text, replacing any previous
// contents.
func (ix *KeywordIndex) Build(chunks []*contract.Chunk) {
	ix.DocIDs = make([]string, 0, len(chunks))
	ix.DocLengths = make(map[string]int, len(chunks))
	ix.Postings = make(map[string]map[string]int)

	total := 0
	for _, c := range chunks {
		tokens := tokenize(c.SearchableText())
		ix.DocIDs = append(ix.DocIDs, c.ChunkID)
		ix.DocLengths[c.ChunkID] = len(tokens)
		total += len(tokens)

		for _, tok := range tokens {
			docs := ix.Postings[tok]
			if docs == nil {
				docs = make(map[string]int)
				ix.Postings[tok] = docs
			}
			docs[c.ChunkID]++
		}
	}

	if len(ix.DocIDs) > 0 {
		ix.AvgDocLen = float64(total) / float64(len(ix.DocIDs))
	} else {
		ix.AvgDocLen = 0
	}
}

// Count returns the number of indexed documents.
func (ix *KeywordIndex) Count() int {
	return len(ix.DocIDs)
}

// Search scores every document against the query and returns the
// positive-scoring ones, best first. Equal scores keep document
// position order. The query should already carry any synonym
// expansion terms; the index does not expand. Non-positive k falls
// back to the default result count.
func (ix *KeywordIndex) Search(query string, k int) []KeywordHit {
	if k <= 0 {
		k = defaultKeywordK
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	hits := make([]KeywordHit, 0, k)
	for _, id := range ix.DocIDs {
		score := ix.scoreDoc(id, terms)
		if score > 0 {
			hits = append(hits, KeywordHit{ChunkID: id, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// scoreDoc sums the BM25 contribution of each query term occurrence.
// Terms repeated in the query contribute once per occurrence.
func (ix *KeywordIndex) scoreDoc(id string, terms []string) float64 {
	docLen, ok := ix.DocLengths[id]
	if !ok || ix.AvgDocLen == 0 {
		return 0
	}

	lenNorm := 1 - ix.B + ix.B*(float64(docLen)/ix.AvgDocLen)

	score := 0.0
	for _, term := range terms {
		tf := float64(ix.Postings[term][id])
		if tf == 0 {
			continue
		}
		score += ix.idf(term) * (tf * (ix.K1 + 1)) / (tf + ix.K1*lenNorm)
	}
	return score
}

// idf is the smoothed inverse document frequency; unseen terms score 0.
func (ix *KeywordIndex) idf(term string) float64 {
	n := float64(len(ix.Postings[term]))
	if n == 0 {
		return 0
	}
	total := float64(len(ix.DocIDs))
	return math.Log((total-n+0.5)/(n+0.5) + 1)
}

// tokenize lowers the text and extracts word tokens, dropping
// single-character fragments (possessive 's', initials, list labels).
func tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if len(t) >= 2 {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Save writes the index as JSON using a temp file + rename.
func (ix *KeywordIndex) Save(path string) error {
	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keyword index: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write keyword index: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save keyword index: %w", err)
	}
	return nil
}

// LoadKeywordIndex reads an index written by Save.
func LoadKeywordIndex(path string) (*KeywordIndex, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("keyword index not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword index: %w", err)
	}

	var ix KeywordIndex
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("failed to parse keyword index: %w", err)
	}
	if ix.K1 <= 0 {
		ix.K1 = DefaultBM25K1
	}
	if ix.B <= 0 {
		ix.B = DefaultBM25B
	}
	if ix.DocLengths == nil {
		ix.DocLengths = make(map[string]int)
	}
	if ix.Postings == nil {
		ix.Postings = make(map[string]map[string]int)
	}
	return &ix, nil
}
