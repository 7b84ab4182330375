// Package embed generates vector embeddings for contract text. The
// Gemini backend calls the hosted embedding model; the static backend
// is a deterministic hash embedder that needs no key and no network,
// trading semantic quality for availability. Both produce unit-length
// vectors so cosine similarity reduces to a dot product downstream.
package embed

import (
	"context"
	"math"
)

// Task selects the asymmetric embedding mode: contract chunks are
// embedded as documents at ingest time, user questions as queries at
// search time. The static backend ignores it.
type Task string

const (
	TaskDocument Task = "RETRIEVAL_DOCUMENT"
	TaskQuery    Task = "RETRIEVAL_QUERY"
)

const (
	// DefaultDimensions is the vector width shared by the default
	// Gemini model and the static fallback, so an index stays
	// dimension-compatible across backends.
	DefaultDimensions = 768

	// DefaultBatchSize is texts per embedding request.
	DefaultBatchSize = 32

	// DefaultCacheSize is the query-embedding LRU capacity.
	DefaultCacheSize = 1000
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving
	// input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier recorded in the manifest.
	ModelName() string

	// Available reports whether the embedder can serve requests. It is
	// a local readiness check, not a network probe.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors pass
// through unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
