package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Static is a hash-based embedder. It works without a key, a model
// download, or a network connection, and always produces the same
// vector for the same text. Quality is well below a learned model, but
// BM25 carries most of the retrieval weight when this backend is in
// play.
type Static struct {
	mu     sync.RWMutex
	closed bool
}

// contractStopWords are function words that dominate contract prose
// and carry no retrieval signal.
var contractStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "for": true, "on": true,
	"at": true, "by": true, "with": true, "as": true, "be": true,
	"is": true, "are": true, "was": true, "were": true, "been": true,
	"shall": true, "will": true, "such": true, "any": true,
	"each": true, "this": true, "that": true, "these": true,
	"those": true, "herein": true, "thereof": true,
}

// Weights for vector generation: whole words carry most of the
// signal, character trigrams smooth over inflection and typos.
const (
	staticTokenWeight = 0.7
	staticNgramWeight = 0.3
	staticNgramSize   = 3
)

// staticTokenRe matches alphanumeric sequences.
var staticTokenRe = regexp.MustCompile(`[a-z0-9]+`)

// NewStatic creates a deterministic hash embedder.
func NewStatic() *Static {
	return &Static{}
}

// Embed generates the embedding for a single text.
func (e *Static) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, DefaultDimensions), nil
	}
	return normalizeVector(e.generateVector(trimmed)), nil
}

func (e *Static) generateVector(text string) []float32 {
	vector := make([]float32, DefaultDimensions)

	for _, token := range staticTokens(text) {
		vector[hashToIndex(token, DefaultDimensions)] += staticTokenWeight
	}
	squashed := squashForNgrams(text)
	for _, ngram := range extractNgrams(squashed, staticNgramSize) {
		vector[hashToIndex(ngram, DefaultDimensions)] += staticNgramWeight
	}
	return vector
}

// staticTokens lowercases, splits on non-alphanumerics, and drops
// stop words.
func staticTokens(text string) []string {
	words := staticTokenRe.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if !contractStopWords[w] {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// squashForNgrams strips everything but letters and digits so
// trigrams span word boundaries consistently.
func squashForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// extractNgrams returns n-byte sliding windows.
func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

// hashToIndex maps a string onto a vector index with FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// EmbedBatch generates embeddings for multiple texts.
func (e *Static) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *Static) Dimensions() int {
	return DefaultDimensions
}

// ModelName returns the model identifier.
func (e *Static) ModelName() string {
	return "static"
}

// Available reports readiness (always true until closed).
func (e *Static) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *Static) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
