package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopsteward/steward/internal/concept"
	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/embed"
	"github.com/shopsteward/steward/internal/store"
)

// fakeEmbedder returns canned 4-dim vectors per exact text. Unknown
// texts embed far from every fixture chunk so they match nothing.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 4 }

func (f *fakeEmbedder) ModelName() string { return "fake" }

func (f *fakeEmbedder) Available(context.Context) bool { return true }

func (f *fakeEmbedder) Close() error { return nil }

// engineChunks is the shared fixture: a Sunday premium section, a
// vacation section, and a night crew section in separate articles.
func engineChunks() []*contract.Chunk {
	return []*contract.Chunk{
		{
			ChunkID:    "art12_s1",
			ArticleNum: 12,
			SectionNum: 1,
			Citation:   "Article 12, Section 1",
			Content:    "Employees shall receive Sunday premium pay for Sunday work.",
		},
		{
			ChunkID:    "art25_s1",
			ArticleNum: 25,
			SectionNum: 1,
			Citation:   "Article 25, Section 1",
			Content:    "Vacation accrual for employees with one year of service.",
		},
		{
			ChunkID:    "art30_s1",
			ArticleNum: 30,
			SectionNum: 1,
			Citation:   "Article 30, Section 1",
			Content:    "Night crew provisions.",
		},
	}
}

// engineVectors places the Sunday and night crew chunks near the probe
// direction and the vacation chunk orthogonal to it, so the floor
// drops it from every vector result.
func engineVectors() map[string][]float32 {
	return map[string][]float32{
		"art12_s1": {1, 0, 0, 0},
		"art25_s1": {0, 1, 0, 0},
		"art30_s1": {0.9, 0.1, 0, 0},
	}
}

func newTestEngine(t *testing.T, em embed.Embedder, chunks []*contract.Chunk, vectors map[string][]float32, opts ...EngineOption) *Engine {
	t.Helper()

	cs := store.NewChunkStore(chunks)
	vix, err := store.NewVectorIndex(store.DefaultVectorConfig(4))
	require.NoError(t, err)
	for id, vec := range vectors {
		meta := store.ChunkMeta{}
		if c, ok := cs.Get(id); ok {
			meta = store.MetaFromChunk(c)
		}
		require.NoError(t, vix.Add(id, vec, meta))
	}

	kix := store.NewKeywordIndex(store.DefaultBM25K1, store.DefaultBM25B)
	kix.Build(chunks)

	eng, err := NewEngine(cs, vix, kix, em, config.NewConfig().Retrieval, opts...)
	require.NoError(t, err)
	return eng
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	cs := store.NewChunkStore(engineChunks())
	vix, err := store.NewVectorIndex(store.DefaultVectorConfig(4))
	require.NoError(t, err)
	kix := store.NewKeywordIndex(0, 0)
	em := &fakeEmbedder{}

	_, err = NewEngine(nil, vix, kix, em, config.NewConfig().Retrieval)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(cs, nil, kix, em, config.NewConfig().Retrieval)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(cs, vix, nil, em, config.NewConfig().Retrieval)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(cs, vix, kix, nil, config.NewConfig().Retrieval)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestEngine_SearchFusesBothBranches(t *testing.T) {
	em := &fakeEmbedder{vectors: map[string][]float32{
		"sunday premium": {1, 0, 0, 0},
	}}
	eng := newTestEngine(t, em, engineChunks(), engineVectors())

	results, err := eng.Search(context.Background(), Query{Text: "sunday premium"})

	require.NoError(t, err)
	require.Len(t, results, 2)

	// The Sunday chunk hits both branches and wins.
	top := results[0]
	assert.Equal(t, "art12_s1", top.Chunk.ChunkID)
	assert.Equal(t, 1, top.VectorRank)
	assert.Equal(t, 1, top.KeywordRank)
	assert.InDelta(t, 2.0/61, top.RRFScore, 1e-9)
	assert.InDelta(t, top.RRFScore, top.Similarity, 1e-12)
	assert.InDelta(t, 1.0, top.VectorScore, 1e-6)
	assert.Greater(t, top.KeywordScore, 0.0)

	// The night crew chunk is vector-only.
	second := results[1]
	assert.Equal(t, "art30_s1", second.Chunk.ChunkID)
	assert.Equal(t, 2, second.VectorRank)
	assert.Equal(t, contract.RankMissing, second.KeywordRank)
	assert.InDelta(t, 0.9939, second.VectorScore, 1e-3)
	assert.Zero(t, second.KeywordScore)
}

func TestEngine_VectorFailureDegradesToKeywordOnly(t *testing.T) {
	em := &fakeEmbedder{err: errors.New("embedding backend down")}
	eng := newTestEngine(t, em, engineChunks(), engineVectors())

	results, err := eng.Search(context.Background(), Query{Text: "sunday premium"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "art12_s1", results[0].Chunk.ChunkID)
	assert.Equal(t, contract.RankMissing, results[0].VectorRank)
	assert.Equal(t, 1, results[0].KeywordRank)
	assert.InDelta(t, 1.0/61, results[0].Similarity, 1e-9)
}

func TestEngine_EmptyQueryReturnsNothing(t *testing.T) {
	eng := newTestEngine(t, &fakeEmbedder{}, engineChunks(), engineVectors())

	results, err := eng.Search(context.Background(), Query{Text: "   "})

	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestEngine_BoostArticlesReorderVectorBranch(t *testing.T) {
	em := &fakeEmbedder{vectors: map[string][]float32{
		"refrigeration certification": {1, 0, 0, 0},
	}}
	eng := newTestEngine(t, em, engineChunks(), engineVectors())

	// Unboosted, raw cosine order holds.
	results, err := eng.Search(context.Background(), Query{Text: "refrigeration certification"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "art12_s1", results[0].Chunk.ChunkID)

	// Boosting article 30 lifts the night crew chunk over the closer
	// cosine match.
	results, err = eng.Search(context.Background(), Query{
		Text:          "refrigeration certification",
		BoostArticles: []int{30},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "art30_s1", results[0].Chunk.ChunkID)
	assert.Equal(t, 1, results[0].VectorRank)
}

func TestEngine_ConceptIndexBoostsMatchedArticles(t *testing.T) {
	em := &fakeEmbedder{vectors: map[string][]float32{
		"night crew rules": {1, 0, 0, 0},
	}}
	concepts := &concept.Index{
		ConceptToArticles: map[string][]int{"night crew": {30}},
	}
	eng := newTestEngine(t, em, engineChunks(), engineVectors(), WithConceptIndex(concepts))

	results, err := eng.Search(context.Background(), Query{Text: "night crew rules"})

	require.NoError(t, err)
	require.Len(t, results, 2)

	// Article 30 rides the ladder bonus into vector rank 1, earns both
	// branch contributions, then the post-fusion concept bonus.
	top := results[0]
	assert.Equal(t, "art30_s1", top.Chunk.ChunkID)
	assert.Equal(t, 1, top.VectorRank)
	assert.Equal(t, 1, top.KeywordRank)
	assert.InDelta(t, 2.0/61+0.03, top.Similarity, 1e-9)

	assert.Equal(t, "art12_s1", results[1].Chunk.ChunkID)
	assert.InDelta(t, 1.0/62, results[1].Similarity, 1e-9)
}

func TestEngine_TruncatesToK(t *testing.T) {
	em := &fakeEmbedder{vectors: map[string][]float32{
		"sunday premium": {1, 0, 0, 0},
	}}
	eng := newTestEngine(t, em, engineChunks(), engineVectors())

	results, err := eng.Search(context.Background(), Query{Text: "sunday premium", K: 1})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "art12_s1", results[0].Chunk.ChunkID)
}

func TestEngine_SkipsIndexOrphans(t *testing.T) {
	vectors := engineVectors()
	vectors["ghost"] = []float32{1, 0, 0, 0}
	em := &fakeEmbedder{vectors: map[string][]float32{
		"refrigeration certification": {1, 0, 0, 0},
	}}
	eng := newTestEngine(t, em, engineChunks(), vectors)

	results, err := eng.Search(context.Background(), Query{Text: "refrigeration certification"})

	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, sc := range results {
		assert.NotEqual(t, "ghost", sc.Chunk.ChunkID)
	}
}

func TestEngine_VectorOnly(t *testing.T) {
	em := &fakeEmbedder{vectors: map[string][]float32{
		"hypothetical contract language": {1, 0, 0, 0},
	}}
	eng := newTestEngine(t, em, engineChunks(), engineVectors())

	results, err := eng.VectorOnly(context.Background(), "hypothetical contract language", 2)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "art12_s1", results[0].Chunk.ChunkID)
	assert.Equal(t, 1, results[0].VectorRank)
	assert.Equal(t, contract.RankMissing, results[0].KeywordRank)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.Equal(t, results[0].Similarity, results[0].VectorScore)

	assert.Equal(t, "art30_s1", results[1].Chunk.ChunkID)
	assert.Equal(t, 2, results[1].VectorRank)
}

func TestEngine_VectorOnlyEmptyText(t *testing.T) {
	eng := newTestEngine(t, &fakeEmbedder{}, engineChunks(), engineVectors())

	results, err := eng.VectorOnly(context.Background(), "", 3)

	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestEngine_KeywordOnly(t *testing.T) {
	eng := newTestEngine(t, &fakeEmbedder{}, engineChunks(), engineVectors())

	results := eng.KeywordOnly("Sunday premium pay", 3)

	require.NotEmpty(t, results)
	assert.Equal(t, "art12_s1", results[0].Chunk.ChunkID)
	assert.Equal(t, 1, results[0].KeywordRank)
	assert.Equal(t, contract.RankMissing, results[0].VectorRank)
	assert.Positive(t, results[0].KeywordScore)
	assert.Equal(t, results[0].KeywordScore, results[0].Similarity)
}

func TestEngine_KeywordOnlyEmptyText(t *testing.T) {
	eng := newTestEngine(t, &fakeEmbedder{}, engineChunks(), engineVectors())

	assert.Nil(t, eng.KeywordOnly("   ", 3))
}

func TestMergeBoostArticles(t *testing.T) {
	assert.Equal(t, []int{3, 7}, mergeBoostArticles(nil, []int{3, 7}))
	assert.Equal(t, []int{5, 9}, mergeBoostArticles([]int{5, 9}, nil))
	assert.Equal(t, []int{5, 9, 3}, mergeBoostArticles([]int{5, 9}, []int{9, 3}))
}
