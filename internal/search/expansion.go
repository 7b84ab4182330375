package search

import (
	"sort"

	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/store"
)

// expandFullArticle appends the complete text of the "winning" article
// to the results. The winner is the article appearing most often in
// the top topN results; ties keep the first seen. Expansion is skipped
// when no article repeats at least trigger times, so one-off matches
// never drag in a whole article. Appended chunks are ordered by
// section (unnumbered material last) and marked as supplemental
// context with a fixed low similarity.
func expandFullArticle(all *store.ChunkStore, results []*contract.ScoredChunk, topN, trigger, maxTotal int, similarity float64) []*contract.ScoredChunk {
	if len(results) == 0 {
		return results
	}

	top := results
	if len(top) > topN {
		top = top[:topN]
	}

	counts := make(map[int]int)
	var order []int
	for _, sc := range top {
		art := sc.Chunk.ArticleNum
		if art == 0 {
			continue
		}
		if _, seen := counts[art]; !seen {
			order = append(order, art)
		}
		counts[art]++
	}
	if len(order) == 0 {
		return results
	}

	winner := order[0]
	for _, art := range order[1:] {
		if counts[art] > counts[winner] {
			winner = art
		}
	}
	if counts[winner] < trigger {
		return results
	}

	slots := maxTotal - len(results)
	if slots <= 0 {
		return results
	}

	existing := chunkIDSet(results)
	var candidates []*contract.Chunk
	for _, chunk := range all.Article(winner) {
		if _, dup := existing[chunk.ChunkID]; dup {
			continue
		}
		candidates = append(candidates, chunk)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := sectionOrLast(candidates[i].SectionNum), sectionOrLast(candidates[j].SectionNum)
		if si != sj {
			return si < sj
		}
		return candidates[i].Subsection < candidates[j].Subsection
	})

	if len(candidates) > slots {
		candidates = candidates[:slots]
	}
	for _, chunk := range candidates {
		results = append(results, &contract.ScoredChunk{
			Chunk:                chunk,
			Similarity:           similarity,
			IsFullArticleContext: true,
		})
	}
	return results
}

// expandSiblings appends up to perArticle neighboring sections from
// each article already represented in the results, earliest sections
// first since those usually hold definitions. Articles are visited in
// the order they appear in the results. Stops adding once the combined
// list would reach maxTotal.
func expandSiblings(all *store.ChunkStore, results []*contract.ScoredChunk, perArticle, maxTotal int, similarity float64) []*contract.ScoredChunk {
	if len(results) == 0 {
		return results
	}

	existing := chunkIDSet(results)
	seen := make(map[int]struct{})
	var articles []int
	for _, sc := range results {
		art := sc.Chunk.ArticleNum
		if art == 0 {
			continue
		}
		if _, dup := seen[art]; dup {
			continue
		}
		seen[art] = struct{}{}
		articles = append(articles, art)
	}

	var related []*contract.ScoredChunk
	for _, art := range articles {
		var candidates []*contract.Chunk
		for _, chunk := range all.Article(art) {
			if _, dup := existing[chunk.ChunkID]; dup {
				continue
			}
			candidates = append(candidates, chunk)
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return sectionOrLast(candidates[i].SectionNum) < sectionOrLast(candidates[j].SectionNum)
		})

		if len(candidates) > perArticle {
			candidates = candidates[:perArticle]
		}
		for _, chunk := range candidates {
			if len(results)+len(related) >= maxTotal {
				break
			}
			related = append(related, &contract.ScoredChunk{
				Chunk:      chunk,
				Similarity: similarity,
				IsRelated:  true,
			})
		}
	}
	return append(results, related...)
}

func chunkIDSet(results []*contract.ScoredChunk) map[string]struct{} {
	ids := make(map[string]struct{}, len(results))
	for _, sc := range results {
		ids[sc.Chunk.ChunkID] = struct{}{}
	}
	return ids
}

// sectionOrLast orders unnumbered sections after every numbered one.
func sectionOrLast(section int) int {
	if section == 0 {
		return 999
	}
	return section
}
