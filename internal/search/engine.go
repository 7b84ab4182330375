package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/shopsteward/steward/internal/concept"
	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/embed"
	"github.com/shopsteward/steward/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine implements hybrid search over one contract generation:
// semantic search against the vector index and keyword search against
// the BM25 index, run in parallel and fused with reciprocal rank
// fusion. Concept-index matches boost whole articles both inside the
// vector scoring ladder and after fusion.
type Engine struct {
	chunks   *store.ChunkStore
	vector   *store.VectorIndex
	keyword  *store.KeywordIndex
	embedder embed.Embedder
	concepts *concept.Index // optional vocabulary bridge
	cfg      config.RetrievalConfig
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithConceptIndex wires the concept index for boost-article lookup.
// Without it queries still work; they just lose the vocabulary bridge.
func WithConceptIndex(ix *concept.Index) EngineOption {
	return func(e *Engine) {
		e.concepts = ix
	}
}

// NewEngine creates a hybrid search engine over one loaded generation.
// Returns an error if any required dependency is nil. The vector
// index's boost ladder is configured here from retrieval config so
// every search sees the same weights.
func NewEngine(
	chunks *store.ChunkStore,
	vector *store.VectorIndex,
	keyword *store.KeywordIndex,
	embedder embed.Embedder,
	cfg config.RetrievalConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if chunks == nil {
		return nil, fmt.Errorf("%w: chunk store is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if keyword == nil {
		return nil, fmt.Errorf("%w: keyword index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	vector.SetWeights(store.BoostWeights{
		SimilarityFloor:       cfg.SimilarityFloor,
		ExplicitArticle:       cfg.ExplicitArticleBoost,
		ExplicitSection:       cfg.ExplicitSectionBoost,
		BoostArticle:          cfg.BoostArticleBonus,
		Classification:        cfg.ClassificationBoost,
		ClassificationPenalty: cfg.ClassificationPenalty,
		Topic:                 cfg.TopicBoost,
		HighStakes:            cfg.HighStakesBoost,
	})

	e := &Engine{
		chunks:   chunks,
		vector:   vector,
		keyword:  keyword,
		embedder: embedder,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Chunks exposes the generation's chunk store for direct article
// lookup and expansion.
func (e *Engine) Chunks() *store.ChunkStore { return e.chunks }

// Query describes one hybrid search. Text may already carry hypothesis
// or slang expansions; ConceptText should stay the worker's original
// question so concept matching is stable across runs.
type Query struct {
	Text        string
	ConceptText string
	K           int

	// RRF branch weights, both default 1.0.
	VectorWeight  float64
	KeywordWeight float64

	// BoostArticles are merged with concept-index matches and fed to
	// the vector boost ladder plus the post-fusion bonus.
	BoostArticles []int

	// Metadata boosts and filters handed through to the vector index.
	Classification string
	Topic          string
	UrgencyTier    string
	DocType        string
	ContractID     string
}

func (e *Engine) applyDefaults(q Query) Query {
	if q.K <= 0 {
		q.K = e.cfg.TopK
	}
	if q.VectorWeight <= 0 {
		q.VectorWeight = 1.0
	}
	if q.KeywordWeight <= 0 {
		q.KeywordWeight = 1.0
	}
	if q.ConceptText == "" {
		q.ConceptText = q.Text
	}
	return q
}

// Search runs the full hybrid pipeline for one query: concept boosts,
// synonym expansion, parallel vector+keyword fetch at 2k, RRF fusion,
// post-fusion concept bonus, truncation to k. Vector branch failure
// degrades to keyword-only results with a warning; an error is only
// returned when the context is cancelled.
func (e *Engine) Search(ctx context.Context, q Query) ([]*contract.ScoredChunk, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, nil
	}
	q = e.applyDefaults(q)

	boostArticles := mergeBoostArticles(e.conceptBoostArticles(q.ConceptText), q.BoostArticles)

	expanded := ExpandQuery(q.Text)
	keywordQuery := q.Text
	if len(expanded.Terms) > 0 {
		keywordQuery = q.Text + " " + strings.Join(expanded.Terms, " ")
	}

	fetch := q.K * 2
	g, gctx := errgroup.WithContext(ctx)

	var (
		vecHits []store.VectorHit
		kwHits  []store.KeywordHit
		vecErr  error
	)

	g.Go(func() error {
		vector, err := e.embedder.Embed(gctx, expanded.CombinedQuery)
		if err != nil {
			vecErr = err
			return nil
		}
		hits, err := e.vector.Search(store.VectorQuery{
			Text:           expanded.CombinedQuery,
			Vector:         vector,
			K:              fetch,
			ContractID:     q.ContractID,
			UrgencyTier:    q.UrgencyTier,
			DocType:        q.DocType,
			BoostArticles:  boostArticles,
			Classification: q.Classification,
			Topic:          q.Topic,
		})
		if err != nil {
			vecErr = err
			return nil
		}
		vecHits = hits
		return nil
	})

	g.Go(func() error {
		kwHits = e.keyword.Search(keywordQuery, fetch)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if vecErr != nil {
		slog.Warn("vector search failed, keyword-only results",
			slog.String("error", vecErr.Error()))
	}

	fused := fuseRRF(vecHits, kwHits, q.VectorWeight, q.KeywordWeight, e.cfg.RRFConstant)
	fused = e.applyConceptBoost(fused, boostArticles)

	if len(fused) > q.K {
		fused = fused[:q.K]
	}
	return e.toScoredChunks(fused), nil
}

// VectorOnly runs a bare semantic search with no expansion, fusion, or
// boosts. Multi-angle retrieval embeds hypothetical contract language
// this way: the hypothesis is already formal vocabulary, so keyword
// matching and expansion would only add noise.
func (e *Engine) VectorOnly(ctx context.Context, text string, k int) ([]*contract.ScoredChunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if k <= 0 {
		k = e.cfg.TopK
	}

	vector, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.vector.Search(store.VectorQuery{Text: text, Vector: vector, K: k})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]*contract.ScoredChunk, 0, len(hits))
	for i, hit := range hits {
		chunk, ok := e.chunks.Get(hit.ChunkID)
		if !ok {
			continue
		}
		results = append(results, &contract.ScoredChunk{
			Chunk:       chunk,
			Similarity:  hit.Similarity,
			VectorScore: hit.Similarity,
			VectorRank:  i + 1,
			KeywordRank: contract.RankMissing,
		})
	}
	return results, nil
}

// KeywordOnly runs a bare BM25 search with no expansion, fusion, or
// boosts. The search command exposes it for debugging the keyword
// branch in isolation.
func (e *Engine) KeywordOnly(text string, k int) []*contract.ScoredChunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if k <= 0 {
		k = e.cfg.TopK
	}

	hits := e.keyword.Search(text, k)
	results := make([]*contract.ScoredChunk, 0, len(hits))
	for i, hit := range hits {
		chunk, ok := e.chunks.Get(hit.ChunkID)
		if !ok {
			continue
		}
		results = append(results, &contract.ScoredChunk{
			Chunk:        chunk,
			Similarity:   hit.Score,
			KeywordScore: hit.Score,
			KeywordRank:  i + 1,
			VectorRank:   contract.RankMissing,
		})
	}
	return results
}

// conceptBoostArticles finds articles to boost for a query using the
// concept index: question matches first (more precise), then concept
// matches, five articles at most.
func (e *Engine) conceptBoostArticles(query string) []int {
	if e.concepts == nil {
		return nil
	}

	questionArticles := e.concepts.ArticlesByQuestion(query)
	conceptArticles := e.concepts.ArticlesByConcept(query)

	seen := make(map[int]struct{})
	var combined []int
	for _, list := range [][]int{questionArticles, conceptArticles} {
		for i, art := range list {
			if i == 5 {
				break
			}
			if _, dup := seen[art]; dup {
				continue
			}
			seen[art] = struct{}{}
			combined = append(combined, art)
		}
	}
	if len(combined) > 5 {
		combined = combined[:5]
	}
	return combined
}

// mergeBoostArticles unions concept-derived and caller-supplied boost
// articles, concept matches first.
func mergeBoostArticles(conceptArticles, callerArticles []int) []int {
	if len(conceptArticles) == 0 {
		return callerArticles
	}
	if len(callerArticles) == 0 {
		return conceptArticles
	}
	seen := make(map[int]struct{}, len(conceptArticles)+len(callerArticles))
	merged := make([]int, 0, len(conceptArticles)+len(callerArticles))
	for _, list := range [][]int{conceptArticles, callerArticles} {
		for _, art := range list {
			if _, dup := seen[art]; dup {
				continue
			}
			seen[art] = struct{}{}
			merged = append(merged, art)
		}
	}
	return merged
}

// applyConceptBoost adds the concept bonus to fused scores for chunks
// in boosted articles, then re-sorts. The bonus is large relative to
// typical RRF scores so topic-relevant articles surface reliably.
func (e *Engine) applyConceptBoost(fused []*Fused, boostArticles []int) []*Fused {
	if len(boostArticles) == 0 || e.cfg.ConceptBoost == 0 {
		return fused
	}
	boosted := make(map[int]struct{}, len(boostArticles))
	for _, a := range boostArticles {
		boosted[a] = struct{}{}
	}
	for _, f := range fused {
		chunk, ok := e.chunks.Get(f.ChunkID)
		if !ok {
			continue
		}
		if _, hit := boosted[chunk.ArticleNum]; hit {
			f.RRFScore += e.cfg.ConceptBoost
		}
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].RRFScore > fused[j].RRFScore
	})
	return fused
}

// toScoredChunks resolves fused ids against the chunk store. Ids with
// no chunk are skipped; the store is the source of truth and index
// orphans are harmless.
func (e *Engine) toScoredChunks(fused []*Fused) []*contract.ScoredChunk {
	results := make([]*contract.ScoredChunk, 0, len(fused))
	for _, f := range fused {
		chunk, ok := e.chunks.Get(f.ChunkID)
		if !ok {
			slog.Debug("fused result missing from chunk store, skipping",
				slog.String("chunk_id", f.ChunkID))
			continue
		}
		results = append(results, &contract.ScoredChunk{
			Chunk:        chunk,
			Similarity:   f.RRFScore,
			RRFScore:     f.RRFScore,
			VectorScore:  f.VectorScore,
			KeywordScore: f.KeywordScore,
			VectorRank:   f.VectorRank,
			KeywordRank:  f.KeywordRank,
		})
	}
	return results
}
