package mcp

import (
	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/search"
	"github.com/shopsteward/steward/internal/wage"
)

// ContractSearchInput defines the input schema for the contract_search tool.
type ContractSearchInput struct {
	Query          string `json:"query" jsonschema:"the worker's question, in their own words"`
	Classification string `json:"classification,omitempty" jsonschema:"worker's job classification for routing and wage lookups, e.g. 'all purpose clerk'"`
	HoursWorked    int    `json:"hours_worked,omitempty" jsonschema:"total hours worked, selects the wage progression step"`
	MonthsEmployed int    `json:"months_employed,omitempty" jsonschema:"months employed, selects month-based progression steps"`
	TopK           int    `json:"top_k,omitempty" jsonschema:"maximum number of provisions to return, default 5"`
	MultiAngle     *bool  `json:"multi_angle,omitempty" jsonschema:"search the question from several angles, default true"`
}

// ContractSearchOutput defines the output schema for the contract_search tool.
type ContractSearchOutput struct {
	Results            []ProvisionResult `json:"results" jsonschema:"matching provisions, best first"`
	Intent             *search.Intent    `json:"intent" jsonschema:"how the question was classified and routed"`
	WageInfo           *wage.Info        `json:"wage_info,omitempty" jsonschema:"resolved pay rate when the question was a wage question with a known classification"`
	EscalationRequired bool              `json:"escalation_required" jsonschema:"true when the worker should talk to their steward, not just read the contract"`
	QueryExpansions    []string          `json:"query_expansions,omitempty" jsonschema:"slang translated to contract terms"`
	SearchAngles       int               `json:"search_angles_used,omitempty" jsonschema:"how many query angles ran"`
	Generation         string            `json:"generation" jsonschema:"index generation that answered"`
}

// ProvisionResult is a single scored contract provision.
type ProvisionResult struct {
	ChunkID      string  `json:"chunk_id" jsonschema:"stable provision id, e.g. art12_sec3"`
	Citation     string  `json:"citation" jsonschema:"human-readable citation, e.g. 'Article 12, Section 3'"`
	ArticleTitle string  `json:"article_title,omitempty"`
	Content      string  `json:"content" jsonschema:"full provision text"`
	Summary      string  `json:"summary,omitempty" jsonschema:"plain-language summary when available"`
	Similarity   float64 `json:"similarity" jsonschema:"relevance score between 0 and 1"`
	IsContext    bool    `json:"is_context,omitempty" jsonschema:"included as surrounding context rather than as a direct match"`
	SearchAngle  string  `json:"search_angle,omitempty" jsonschema:"which query angle surfaced this provision"`
}

// WageLookupInput defines the input schema for the wage_lookup tool.
type WageLookupInput struct {
	Classification string `json:"classification" jsonschema:"job classification to look up, e.g. 'courtesy clerk'"`
	HoursWorked    int    `json:"hours_worked,omitempty" jsonschema:"total hours worked, selects the progression step"`
	MonthsEmployed int    `json:"months_employed,omitempty" jsonschema:"months employed, for month-based progressions"`
	EffectiveDate  string `json:"effective_date,omitempty" jsonschema:"rate period selector, YYYY-MM-DD; the latest period when omitted"`
}

// WageLookupOutput defines the output schema for the wage_lookup tool.
// An unknown classification is a miss, not an error: Found is false and
// KnownClassifications lists what the table does have.
type WageLookupOutput struct {
	Found                bool       `json:"found"`
	Wage                 *wage.Info `json:"wage,omitempty"`
	KnownClassifications []string   `json:"known_classifications,omitempty" jsonschema:"classifications the wage table knows, returned on a miss"`
	Note                 string     `json:"note,omitempty"`
}

// GetArticleInput defines the input schema for the get_article tool.
type GetArticleInput struct {
	ArticleNum int `json:"article_num" jsonschema:"article number; 0 returns the letters of understanding"`
}

// GetArticleOutput defines the output schema for the get_article tool.
type GetArticleOutput struct {
	ArticleNum   int              `json:"article_num"`
	ArticleTitle string           `json:"article_title,omitempty"`
	Sections     []ArticleSection `json:"sections" jsonschema:"the article's provisions in reading order"`
}

// ArticleSection is one provision of an article.
type ArticleSection struct {
	SectionNum int    `json:"section_num,omitempty"`
	Subsection string `json:"subsection,omitempty"`
	Citation   string `json:"citation"`
	Content    string `json:"content"`
	Summary    string `json:"summary,omitempty"`
}

// ContractInfoInput defines the input schema for the contract_info tool
// (no parameters).
type ContractInfoInput struct{}

// ContractInfoOutput defines the output schema for the contract_info tool.
type ContractInfoOutput struct {
	ContractID      string         `json:"contract_id"`
	Employer        string         `json:"employer,omitempty"`
	UnionLocal      string         `json:"union_local,omitempty"`
	BargainingUnit  string         `json:"bargaining_unit,omitempty"`
	TermStart       string         `json:"term_start,omitempty"`
	TermEnd         string         `json:"term_end,omitempty"`
	Articles        []ArticleEntry `json:"articles" jsonschema:"article numbers and titles, ascending"`
	TotalArticles   int            `json:"total_articles"`
	TotalSections   int            `json:"total_sections"`
	Classifications []string       `json:"classifications,omitempty" jsonschema:"job classifications named in the contract"`
	TopicsCovered   []string       `json:"topics_covered,omitempty"`
	HasWageTable    bool           `json:"has_wage_table"`
	Generation      string         `json:"generation"`
	IngestedAt      string         `json:"ingested_at,omitempty"`
	Chunks          int            `json:"chunks"`
	EmbedModel      string         `json:"embed_model,omitempty"`
}

// ArticleEntry pairs an article number with its title.
type ArticleEntry struct {
	Num   int    `json:"num"`
	Title string `json:"title"`
}

// toProvisionResult converts a scored chunk to the tool output shape.
func toProvisionResult(sc *contract.ScoredChunk) ProvisionResult {
	c := sc.Chunk
	return ProvisionResult{
		ChunkID:      c.ChunkID,
		Citation:     c.Citation,
		ArticleTitle: c.ArticleTitle,
		Content:      c.Content,
		Summary:      c.Summary,
		Similarity:   sc.Similarity,
		IsContext:    sc.IsFullArticleContext || sc.IsRelated,
		SearchAngle:  sc.SearchAngle,
	}
}
