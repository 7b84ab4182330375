package search

import (
	"sort"

	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/store"
)

// DefaultRRFConstant is the standard rank-fusion smoothing parameter,
// validated across domains (Azure AI Search, OpenSearch use the same).
const DefaultRRFConstant = 60

// Fused is one chunk after reciprocal rank fusion, with per-branch
// provenance kept for explainability.
type Fused struct {
	ChunkID      string
	RRFScore     float64
	VectorScore  float64 // boosted similarity from the vector branch, 0 if absent
	VectorRank   int     // 1-indexed, contract.RankMissing if absent
	KeywordScore float64 // BM25 score, 0 if absent
	KeywordRank  int     // 1-indexed, contract.RankMissing if absent
	InBoth       bool
}

// fuseRRF merges the branch rankings: each branch contributes
// weight/(k+rank) for the chunks it returned; a chunk missing from a
// branch gets nothing from it. Results sort by fused score with
// deterministic tie-breaking.
func fuseRRF(vector []store.VectorHit, keyword []store.KeywordHit, vectorWeight, keywordWeight float64, k int) []*Fused {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(vector) == 0 && len(keyword) == 0 {
		return []*Fused{}
	}

	byID := make(map[string]*Fused, len(vector)+len(keyword))
	order := make([]string, 0, len(vector)+len(keyword))
	get := func(id string) *Fused {
		if f, ok := byID[id]; ok {
			return f
		}
		f := &Fused{
			ChunkID:     id,
			VectorRank:  contract.RankMissing,
			KeywordRank: contract.RankMissing,
		}
		byID[id] = f
		order = append(order, id)
		return f
	}

	for i, hit := range vector {
		f := get(hit.ChunkID)
		f.VectorScore = hit.Similarity
		f.VectorRank = i + 1
		f.RRFScore += vectorWeight / float64(k+i+1)
	}
	for i, hit := range keyword {
		f := get(hit.ChunkID)
		f.KeywordScore = hit.Score
		f.KeywordRank = i + 1
		f.RRFScore += keywordWeight / float64(k+i+1)
		if f.VectorRank != contract.RankMissing {
			f.InBoth = true
		}
	}

	results := make([]*Fused, 0, len(order))
	for _, id := range order {
		results = append(results, byID[id])
	}
	sort.SliceStable(results, func(i, j int) bool {
		return fusedBefore(results[i], results[j])
	})
	return results
}

// fusedBefore orders by fused score, then breaks ties: chunks found by
// both branches first, then the stronger keyword score (an exact-match
// signal), then chunk id.
func fusedBefore(a, b *Fused) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBoth != b.InBoth {
		return a.InBoth
	}
	if a.KeywordScore != b.KeywordScore {
		return a.KeywordScore > b.KeywordScore
	}
	return a.ChunkID < b.ChunkID
}
