package search

import (
	"time"

	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/wage"
)

// Intent type labels. High-stakes outranks wage outranks contract when
// a query matches more than one.
const (
	IntentContract   = "contract"
	IntentWage       = "wage"
	IntentHighStakes = "high_stakes"
	IntentUnknown    = "unknown"
)

// Intent is the classified intent of a worker question. It drives
// routing: wage intents trigger the structured wage lookup, high-stakes
// intents flag steward escalation, and RelevantArticles feed the
// article boost in the hybrid searcher.
type Intent struct {
	// Type is one of the Intent* labels.
	Type string `json:"intent_type"`

	// Confidence in [0,1]. 0.9/0.7 for high-stakes (multiple vs single
	// pattern), 0.8/0.6 for wage (with vs without a known
	// classification), 0.7 for plain contract questions.
	Confidence float64 `json:"confidence"`

	// Classification is the detected or user-supplied job
	// classification, empty when unknown.
	Classification string `json:"classification,omitempty"`

	// Topic is the detected topic from the closed vocabulary, empty
	// when none matched. Always "wages" for wage intents.
	Topic string `json:"topic,omitempty"`

	// RequiresEscalation is set only for active high-stakes situations
	// ("I'm being fired"), not informational ones ("what counts as just
	// cause").
	RequiresEscalation bool `json:"requires_escalation"`

	// KeywordsMatched records what triggered the classification, for
	// telemetry and explain output.
	KeywordsMatched []string `json:"keywords_matched,omitempty"`

	// RelevantArticles are the manifest-routed articles for the
	// detected topic and classification.
	RelevantArticles []int `json:"relevant_articles,omitempty"`
}

// Interpretation is the structured reading of a query produced by the
// LLM interpreter, plus the degraded fallbacks when the model is
// unavailable or returns garbage.
type Interpretation struct {
	// Query is the original question.
	Query string `json:"original_query"`

	// Intent is the model's free-text reading ("find_limit",
	// "understand_process"), or one of unknown/parse_error/error in
	// degraded modes.
	Intent string `json:"intent"`

	// KeyConcepts are the main concepts to search for.
	KeyConcepts []string `json:"key_concepts,omitempty"`

	// Entities maps entity types to values ({"actor": "vendor"}).
	Entities map[string]string `json:"entities,omitempty"`

	// HypotheticalAnswers are 1-2 sentence snippets written to sound
	// like contract text, embedded directly for HyDE-style matching.
	HypotheticalAnswers []string `json:"hypothetical_answers,omitempty"`

	// SearchQueries are alternative phrasings mixing worker slang and
	// contract vocabulary.
	SearchQueries []string `json:"search_queries,omitempty"`

	// LikelySections are contract section titles that might hold the
	// answer.
	LikelySections []string `json:"likely_sections,omitempty"`

	// ExplicitArticles are article numbers named in the query, merged
	// from regex extraction and the model's own list.
	ExplicitArticles []int `json:"explicit_articles,omitempty"`

	// Elapsed is the wall time of the interpretation call.
	Elapsed time.Duration `json:"elapsed,omitempty"`

	// Success is false in every degraded mode; the pipeline continues
	// either way.
	Success bool `json:"success"`

	// Error describes the degradation when Success is false.
	Error string `json:"error,omitempty"`

	// Model is the model that produced the interpretation.
	Model string `json:"model_used,omitempty"`
}

// HypothesisResult carries the section titles the hypothesis layer
// predicted for a query.
type HypothesisResult struct {
	// Titles are the predicted contract section titles, best first.
	Titles []string `json:"hypothesized_titles,omitempty"`

	// QueryExpansion is the query with the titles appended in
	// parentheses, used as the search text when generation succeeds.
	QueryExpansion string `json:"query_expansion"`

	// Elapsed is the wall time of the generation call.
	Elapsed time.Duration `json:"elapsed,omitempty"`

	// Model is the model that produced the titles.
	Model string `json:"model_used,omitempty"`

	// Success is false when generation failed; the search proceeds
	// without expansion or title boosts.
	Success bool `json:"success"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
}

// RerankerResult carries the reordered chunks and scoring metadata
// from the LLM reranker. On failure Chunks holds the input order
// unchanged and Success is false.
type RerankerResult struct {
	// Chunks in final order: reranked candidates first, then any
	// overflow chunks beyond the candidate cap in their original order.
	Chunks []*contract.ScoredChunk `json:"chunks"`

	// Scores maps prompt position (as a string) to the normalized
	// 0-1 LLM relevance score.
	Scores map[string]float64 `json:"scores,omitempty"`

	// PositionChanges counts candidate positions whose chunk changed.
	PositionChanges int `json:"position_changes"`

	// Elapsed is the wall time of the rerank call.
	Elapsed time.Duration `json:"elapsed,omitempty"`

	// Model is the model that scored the chunks.
	Model string `json:"model_used,omitempty"`

	// Success is false on any failure; the caller keeps its own order.
	Success bool `json:"success"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
}

// Options are the per-request retrieval knobs.
type Options struct {
	// TopK is the result count, 0 for the configured default.
	TopK int

	// Classification is the worker's job classification from their
	// profile; it overrides detection from the query text.
	Classification string

	// HoursWorked and MonthsEmployed select the wage step on wage
	// lookups.
	HoursWorked    int
	MonthsEmployed int

	// EffectiveDate selects the wage rate period, "YYYY-MM-DD". Empty
	// picks the latest period.
	EffectiveDate string

	// Intent skips classification when the caller already classified
	// the query.
	Intent *Intent
}

// Response is the result of one retrieval, single- or multi-angle.
type Response struct {
	// Chunks are the scored results, best first, including any
	// expansion context appended at the tail.
	Chunks []*contract.ScoredChunk `json:"chunks"`

	// WageInfo is set when the intent was a wage question with a known
	// classification and the wage table had a row for it.
	WageInfo *wage.Info `json:"wage_info,omitempty"`

	// Intent is the classification used for routing.
	Intent *Intent `json:"intent"`

	// EscalationRequired mirrors Intent.RequiresEscalation for callers
	// that only render the response.
	EscalationRequired bool `json:"escalation_required"`

	// QueryExpansions lists the slang expansions applied,
	// "slang -> contract term".
	QueryExpansions []string `json:"query_expansions,omitempty"`

	// Hypothesis is the hypothesis-layer result, single-angle path
	// only.
	Hypothesis *HypothesisResult `json:"hypothesis_result,omitempty"`

	// Interpretation is the interpreter output, multi-angle path only.
	Interpretation *Interpretation `json:"interpretation,omitempty"`

	// SearchAngles is how many query angles ran, multi-angle path only.
	SearchAngles int `json:"search_angles_used,omitempty"`

	// ExplicitArticles are article numbers fetched directly because the
	// query named them.
	ExplicitArticles []int `json:"explicit_articles_fetched,omitempty"`

	// Reranker is the rerank result, multi-angle path only.
	Reranker *RerankerResult `json:"reranker_result,omitempty"`
}
