package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopsteward/steward/internal/contract"
)

// Vectors in these tests are 4-dimensional and chosen so cosine
// similarities come out near 1.0, 0.9939, and 0.0: [1,0,0,0] against
// itself, against [0.9,0.1,0,0], and against [0,1,0,0].
func testVectorIndex(t *testing.T) *VectorIndex {
	t.Helper()
	ix, err := NewVectorIndex(DefaultVectorConfig(4))
	require.NoError(t, err)
	return ix
}

func TestVectorIndex_OrdersBySimilarity(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("near", []float32{1, 0, 0, 0}, ChunkMeta{}))
	require.NoError(t, ix.Add("close", []float32{0.9, 0.1, 0, 0}, ChunkMeta{}))
	require.NoError(t, ix.Add("far", []float32{0, 1, 0, 0}, ChunkMeta{}))

	hits, err := ix.Search(VectorQuery{Text: "vacation carryover", Vector: []float32{1, 0, 0, 0}, K: 5})
	require.NoError(t, err)

	// The orthogonal chunk sits below the similarity floor.
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ChunkID)
	assert.Equal(t, "close", hits[1].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-4)
	assert.InDelta(t, 0.9939, hits[1].Similarity, 1e-3)
}

func TestVectorIndex_TruncatesToK(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("a", []float32{1, 0, 0, 0}, ChunkMeta{}))
	require.NoError(t, ix.Add("b", []float32{0.9, 0.1, 0, 0}, ChunkMeta{}))
	require.NoError(t, ix.Add("c", []float32{0.8, 0.2, 0, 0}, ChunkMeta{}))

	hits, err := ix.Search(VectorQuery{Vector: []float32{1, 0, 0, 0}, K: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ChunkID)
}

func TestVectorIndex_ArticleReferenceBoost(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("art5", []float32{1, 0, 0, 0}, ChunkMeta{ArticleNum: 5}))
	require.NoError(t, ix.Add("art12", []float32{0.9, 0.1, 0, 0}, ChunkMeta{ArticleNum: 12}))

	hits, err := ix.Search(VectorQuery{
		Text:   "what does Article 12 say about overtime",
		Vector: []float32{1, 0, 0, 0},
		K:      5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// The named article outranks the raw nearest neighbor.
	assert.Equal(t, "art12", hits[0].ChunkID)
	assert.InDelta(t, 0.9939+0.3, hits[0].Similarity, 1e-3)
	assert.Equal(t, "art5", hits[1].ChunkID)
	assert.InDelta(t, 1.0, hits[1].Similarity, 1e-4)
}

func TestVectorIndex_SectionReferenceBoost(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("sec1", []float32{1, 0, 0, 0}, ChunkMeta{ArticleNum: 12, SectionNum: 1}))
	require.NoError(t, ix.Add("sec3", []float32{0.9, 0.1, 0, 0}, ChunkMeta{ArticleNum: 12, SectionNum: 3}))

	hits, err := ix.Search(VectorQuery{
		Text:   "what is in section 3",
		Vector: []float32{1, 0, 0, 0},
		K:      5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "sec3", hits[0].ChunkID)
	assert.InDelta(t, 0.9939+0.1, hits[0].Similarity, 1e-3)
}

func TestVectorIndex_BoostArticlesPromote(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("art5", []float32{1, 0, 0, 0}, ChunkMeta{ArticleNum: 5}))
	require.NoError(t, ix.Add("art7", []float32{0.9, 0.1, 0, 0}, ChunkMeta{ArticleNum: 7}))

	hits, err := ix.Search(VectorQuery{
		Vector:        []float32{1, 0, 0, 0},
		K:             5,
		BoostArticles: []int{7},
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "art7", hits[0].ChunkID)
	assert.InDelta(t, 0.9939+0.2, hits[0].Similarity, 1e-3)
}

func TestVectorIndex_ClassificationLadder(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("courtesy", []float32{1, 0, 0, 0}, ChunkMeta{AppliesTo: "courtesy_clerk"}))
	require.NoError(t, ix.Add("everyone", []float32{1, 0, 0, 0}, ChunkMeta{AppliesTo: "all"}))
	require.NoError(t, ix.Add("meat", []float32{1, 0, 0, 0}, ChunkMeta{AppliesTo: "meat_cutter"}))

	hits, err := ix.Search(VectorQuery{
		Vector:         []float32{1, 0, 0, 0},
		K:              5,
		Classification: "courtesy_clerk",
	})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "courtesy", hits[0].ChunkID)
	assert.InDelta(t, 1.15, hits[0].Similarity, 1e-3)
	assert.Equal(t, "everyone", hits[1].ChunkID)
	assert.InDelta(t, 1.0, hits[1].Similarity, 1e-3)
	assert.Equal(t, "meat", hits[2].ChunkID)
	assert.InDelta(t, 0.95, hits[2].Similarity, 1e-3)
}

func TestVectorIndex_TopicBoost(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("holiday", []float32{1, 0, 0, 0}, ChunkMeta{Topics: "holidays,personal_holidays"}))
	require.NoError(t, ix.Add("wages", []float32{1, 0, 0, 0}, ChunkMeta{Topics: "wages"}))

	// Substring match against the comma-joined topics.
	hits, err := ix.Search(VectorQuery{Vector: []float32{1, 0, 0, 0}, K: 5, Topic: "holiday"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "holiday", hits[0].ChunkID)
	assert.InDelta(t, 1.15, hits[0].Similarity, 1e-3)
}

func TestVectorIndex_HighStakesFilterAndBoost(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("discipline", []float32{1, 0, 0, 0}, ChunkMeta{
		UrgencyTier:  contract.UrgencyHighStakes,
		IsHighStakes: true,
	}))
	require.NoError(t, ix.Add("context", []float32{0.9, 0.1, 0, 0}, ChunkMeta{
		UrgencyTier: contract.UrgencyHighStakes,
	}))
	require.NoError(t, ix.Add("standard", []float32{1, 0, 0, 0}, ChunkMeta{
		UrgencyTier: contract.UrgencyStandard,
	}))

	hits, err := ix.Search(VectorQuery{
		Vector:      []float32{1, 0, 0, 0},
		K:           5,
		UrgencyTier: contract.UrgencyHighStakes,
	})
	require.NoError(t, err)

	// The tier is an equality filter and flagged chunks get the boost.
	require.Len(t, hits, 2)
	assert.Equal(t, "discipline", hits[0].ChunkID)
	assert.InDelta(t, 1.1, hits[0].Similarity, 1e-3)
	assert.Equal(t, "context", hits[1].ChunkID)
}

func TestVectorIndex_ContractAndDocTypeFilters(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("ours", []float32{1, 0, 0, 0}, ChunkMeta{
		ContractID: "safeway_pueblo_clerks_2022",
		DocType:    contract.DocTypeCBA,
	}))
	require.NoError(t, ix.Add("theirs", []float32{1, 0, 0, 0}, ChunkMeta{
		ContractID: "king_soopers_2023",
		DocType:    contract.DocTypeCBA,
	}))
	require.NoError(t, ix.Add("letter", []float32{1, 0, 0, 0}, ChunkMeta{
		ContractID: "safeway_pueblo_clerks_2022",
		DocType:    contract.DocTypeLOU,
	}))

	hits, err := ix.Search(VectorQuery{
		Vector:     []float32{1, 0, 0, 0},
		K:          5,
		ContractID: "safeway_pueblo_clerks_2022",
	})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = ix.Search(VectorQuery{
		Vector:     []float32{1, 0, 0, 0},
		K:          5,
		ContractID: "safeway_pueblo_clerks_2022",
		DocType:    contract.DocTypeCBA,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ours", hits[0].ChunkID)
}

func TestVectorIndex_FloorAppliesBeforeBoosts(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("art12_weak", []float32{0.05, 0.9987, 0, 0}, ChunkMeta{ArticleNum: 12}))
	require.NoError(t, ix.Add("art5_strong", []float32{1, 0, 0, 0}, ChunkMeta{ArticleNum: 5}))

	// The article-12 chunk would clear the floor with its +0.3 boost,
	// but the floor is checked on raw similarity first.
	hits, err := ix.Search(VectorQuery{
		Text:   "article 12",
		Vector: []float32{1, 0, 0, 0},
		K:      5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "art5_strong", hits[0].ChunkID)
}

func TestVectorIndex_CustomWeights(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("art12", []float32{1, 0, 0, 0}, ChunkMeta{ArticleNum: 12}))

	w := DefaultBoostWeights()
	w.ExplicitArticle = 0.5
	ix.SetWeights(w)

	hits, err := ix.Search(VectorQuery{Text: "article 12", Vector: []float32{1, 0, 0, 0}, K: 5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.5, hits[0].Similarity, 1e-3)
}

func TestVectorIndex_ReplaceUpdatesVectorAndMeta(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("c1", []float32{0, 1, 0, 0}, ChunkMeta{}))
	require.NoError(t, ix.Add("c2", []float32{0.9, 0.1, 0, 0}, ChunkMeta{}))
	require.NoError(t, ix.Add("c1", []float32{1, 0, 0, 0}, ChunkMeta{ArticleNum: 3}))

	assert.Equal(t, 2, ix.Count())

	hits, err := ix.Search(VectorQuery{Vector: []float32{1, 0, 0, 0}, K: 5})
	require.NoError(t, err)
	require.Len(t, hits, 2, "replaced chunk appears once")
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-4)
	assert.Equal(t, 3, hits[0].Meta.ArticleNum)
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	ix := testVectorIndex(t)

	err := ix.Add("bad", []float32{1, 0}, ChunkMeta{})
	var dimErr *DimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Want)
	assert.Equal(t, 2, dimErr.Got)

	_, err = ix.Search(VectorQuery{Vector: []float32{1}, K: 3})
	require.ErrorAs(t, err, &dimErr)
}

func TestVectorIndex_EmptySearch(t *testing.T) {
	ix := testVectorIndex(t)

	hits, err := ix.Search(VectorQuery{Vector: []float32{1, 0, 0, 0}, K: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorIndex_ClosedErrors(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Close())

	require.Error(t, ix.Add("c1", []float32{1, 0, 0, 0}, ChunkMeta{}))
	_, err := ix.Search(VectorQuery{Vector: []float32{1, 0, 0, 0}, K: 5})
	require.Error(t, err)
}

func TestVectorIndex_SaveLoad(t *testing.T) {
	ix := testVectorIndex(t)
	require.NoError(t, ix.Add("art5", []float32{1, 0, 0, 0}, ChunkMeta{ArticleNum: 5}))
	require.NoError(t, ix.Add("art12", []float32{0.9, 0.1, 0, 0}, ChunkMeta{ArticleNum: 12, Topics: "overtime"}))

	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	require.NoError(t, ix.Save(path))

	loaded, err := LoadVectorIndex(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Count())
	assert.Equal(t, 4, loaded.Dimensions())

	m, ok := loaded.Meta("art12")
	require.True(t, ok)
	assert.Equal(t, 12, m.ArticleNum)
	assert.Equal(t, "overtime", m.Topics)

	query := VectorQuery{Text: "article 12 overtime", Vector: []float32{1, 0, 0, 0}, K: 5}
	before, err := ix.Search(query)
	require.NoError(t, err)
	after, err := loaded.Search(query)
	require.NoError(t, err)

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ChunkID, after[i].ChunkID)
		assert.InDelta(t, before[i].Similarity, after[i].Similarity, 1e-6)
	}
}

func TestLoadVectorIndex_Missing(t *testing.T) {
	_, err := LoadVectorIndex(filepath.Join(t.TempDir(), "nope.hnsw"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector index not found")
}

func TestMetaFromChunk(t *testing.T) {
	m := MetaFromChunk(&contract.Chunk{
		ChunkID:      "art25_s2",
		ContractID:   "safeway_pueblo_clerks_2022",
		Citation:     "Article 25, Section 2",
		ArticleNum:   25,
		ArticleTitle: "REST PERIODS",
		SectionNum:   2,
		UrgencyTier:  contract.UrgencyStandard,
		DocType:      contract.DocTypeCBA,
		AppliesTo:    []string{"courtesy_clerk", "all_purpose_clerk"},
		Topics:       []string{"breaks", "scheduling"},
		IsHighStakes: false,
	})

	assert.Equal(t, "safeway_pueblo_clerks_2022", m.ContractID)
	assert.Equal(t, "Article 25, Section 2", m.Citation)
	assert.Equal(t, 25, m.ArticleNum)
	assert.Equal(t, 2, m.SectionNum)
	assert.Equal(t, "courtesy_clerk,all_purpose_clerk", m.AppliesTo)
	assert.Equal(t, "breaks,scheduling", m.Topics)
	assert.False(t, m.IsHighStakes)
}
