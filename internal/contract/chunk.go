// Package contract defines the domain records shared by the ingestion
// pipeline and the retrieval engine: contract chunks, scored retrieval
// results, the contract manifest, and the topic/classification taxonomy.
package contract

import (
	"sort"
	"strconv"
	"strings"
)

// ChunkType identifies how a chunk was carved from the contract text.
type ChunkType string

const (
	// ChunkTypeArticle is a whole article small enough to stay in one piece.
	ChunkTypeArticle ChunkType = "article"
	// ChunkTypeIntro is the text of an article before its first subsection.
	ChunkTypeIntro ChunkType = "article_intro"
	// ChunkTypeSection is a single numbered section of an article.
	ChunkTypeSection ChunkType = "section"
	// ChunkTypeSubsection is a lettered or numbered subsection split.
	ChunkTypeSubsection ChunkType = "subsection"
	// ChunkTypePart is a paragraph-boundary split of an oversized passage.
	ChunkTypePart ChunkType = "part"
	// ChunkTypeLOU is a Letter of Understanding appended to the contract.
	ChunkTypeLOU ChunkType = "lou"
)

// Urgency tiers. High-stakes chunks cover discipline, discharge, and
// similar provisions where a wrong answer hurts someone.
const (
	UrgencyHighStakes = "high_stakes"
	UrgencyStandard   = "standard"
)

// Document types distinguish main contract text from side letters and
// the wage appendix.
const (
	DocTypeCBA      = "cba"
	DocTypeLOU      = "lou"
	DocTypeAppendix = "appendix"
)

// Chunk is a retrievable unit of contract text with its citation trail
// and enrichment metadata. Article and section numbers use 0 for "none"
// (intros have no section, LOUs have no article).
type Chunk struct {
	ChunkID    string `json:"chunk_id"`    // e.g. "art12_sec3" or "lou4"
	ContractID string `json:"contract_id"` // e.g. "safeway_pueblo_clerks_2022"
	Content    string `json:"content"`

	// Citation trail
	Citation        string    `json:"citation"`                   // "Article 12, Section 3"
	ArticleNum      int       `json:"article_num,omitempty"`      // 0 for LOUs
	ArticleTitle    string    `json:"article_title,omitempty"`    // "OVERTIME"
	SectionNum      int       `json:"section_num,omitempty"`      // 0 for intros/whole articles
	Subsection      string    `json:"subsection,omitempty"`       // "a", "3-5" for grouped items, "part2"
	SubsectionTitle string    `json:"subsection_title,omitempty"` // "DRIVE UP AND GO"
	ParentContext   string    `json:"parent_context,omitempty"`   // "Article 12 (OVERTIME) > Section 3 (...)"
	ChunkType       ChunkType `json:"chunk_type"`

	CharCount int `json:"char_count"` // content length, for size monitoring

	// Routing metadata
	UrgencyTier string `json:"urgency_tier"` // high_stakes or standard
	DocType     string `json:"doc_type"`     // cba, lou, or appendix

	// Enrichment (rule-based plus optional LLM pass)
	Topics            []string `json:"topics,omitempty"`              // from the closed topic vocabulary
	AppliesTo         []string `json:"applies_to,omitempty"`          // classifications, or ["all"]
	Summary           string   `json:"summary,omitempty"`             // one-sentence plain-language summary
	IsDefinition      bool     `json:"is_definition,omitempty"`       // defines a term or classification
	IsException       bool     `json:"is_exception,omitempty"`        // contains except/unless/notwithstanding language
	IsHighStakes      bool     `json:"is_high_stakes,omitempty"`      // discipline/discharge/safety content
	HireDateSensitive bool     `json:"hire_date_sensitive,omitempty"` // rules differ by hire date
	CrossReferences   []string `json:"cross_references,omitempty"`    // other chunk id prefixes ("art43")
	WorkerQuestions   []string `json:"worker_questions,omitempty"`    // questions this chunk answers
	AlternativeNames  []string `json:"alternative_names,omitempty"`   // everyday names for this provision
}

// SearchableText returns the text the keyword index scores: content
// plus citation plus article title, so "article 12" and "OVERTIME"
// both hit even when the body never repeats them.
func (c *Chunk) SearchableText() string {
	var b strings.Builder
	b.WriteString(c.Content)
	b.WriteString(" ")
	b.WriteString(c.Citation)
	if c.ArticleTitle != "" {
		b.WriteString(" ")
		b.WriteString(c.ArticleTitle)
	}
	return b.String()
}

// FlatMetadata flattens the chunk's routing metadata to scalar values
// for the vector store: lists are comma-joined, missing numbers are 0.
// Boost and filter logic matches against these flattened forms, so
// topic matching is substring-based ("holiday" matches
// "holidays,personal_holidays").
func (c *Chunk) FlatMetadata() map[string]any {
	return map[string]any{
		"contract_id":         c.ContractID,
		"citation":            c.Citation,
		"article_num":         c.ArticleNum,
		"article_title":       c.ArticleTitle,
		"section_num":         c.SectionNum,
		"subsection":          c.Subsection,
		"parent_context":      c.ParentContext,
		"chunk_type":          string(c.ChunkType),
		"char_count":          c.CharCount,
		"urgency_tier":        c.UrgencyTier,
		"doc_type":            c.DocType,
		"topics":              strings.Join(c.Topics, ","),
		"applies_to":          strings.Join(c.AppliesTo, ","),
		"summary":             c.Summary,
		"is_definition":       c.IsDefinition,
		"is_exception":        c.IsException,
		"is_high_stakes":      c.IsHighStakes,
		"hire_date_sensitive": c.HireDateSensitive,
		"cross_references":    strings.Join(c.CrossReferences, ","),
	}
}

// AppliesToAll reports whether the chunk applies to every classification.
// An empty applies_to list is treated the same as ["all"].
func (c *Chunk) AppliesToAll() bool {
	if len(c.AppliesTo) == 0 {
		return true
	}
	for _, a := range c.AppliesTo {
		if a == "all" {
			return true
		}
	}
	return false
}

// ArticleKey returns the cross-reference key for the chunk's article
// ("art12"), or "" for chunks outside any article.
func (c *Chunk) ArticleKey() string {
	if c.ArticleNum == 0 {
		return ""
	}
	return "art" + strconv.Itoa(c.ArticleNum)
}

// SortChunksByPosition orders chunks for display: by article, then
// section (intros first), then subsection label.
func SortChunksByPosition(chunks []*Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.ArticleNum != b.ArticleNum {
			return a.ArticleNum < b.ArticleNum
		}
		if a.SectionNum != b.SectionNum {
			return a.SectionNum < b.SectionNum
		}
		return a.Subsection < b.Subsection
	})
}

// RankMissing is the sentinel rank recorded when a chunk was absent
// from one retrieval branch. Ranks are otherwise 1-indexed.
const RankMissing = 999

// ScoredChunk is a chunk with its retrieval scores and provenance.
type ScoredChunk struct {
	Chunk *Chunk `json:"chunk"`

	// Similarity is the headline score: cosine similarity plus boosts
	// for vector hits, the fused RRF score after hybrid merge, and the
	// blended score after reranking.
	Similarity float64 `json:"similarity"`

	// Fusion provenance
	RRFScore     float64 `json:"rrf_score,omitempty"`
	VectorRank   int     `json:"vector_rank,omitempty"`   // 1-indexed, RankMissing if absent
	KeywordRank  int     `json:"keyword_rank,omitempty"`  // 1-indexed, RankMissing if absent
	VectorScore  float64 `json:"vector_score,omitempty"`  // branch similarity, 0 if absent
	KeywordScore float64 `json:"keyword_score,omitempty"` // branch BM25 score, 0 if absent

	// Reranking provenance
	OriginalSimilarity float64 `json:"original_similarity,omitempty"` // pre-rerank score
	RerankScore        float64 `json:"rerank_score,omitempty"`        // normalized LLM relevance, 0-1

	// Expansion and multi-angle provenance
	TitleBoosted         bool   `json:"title_boosted,omitempty"`           // hypothesis matched the article title
	IsFullArticleContext bool   `json:"is_full_article_context,omitempty"` // added by full-article expansion
	IsRelated            bool   `json:"is_related,omitempty"`              // added by sibling-section expansion
	SearchAngle          string `json:"search_angle,omitempty"`            // which query angle surfaced it
}

// SortScoredBySimilarity orders results best-first.
func SortScoredBySimilarity(results []*ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}
