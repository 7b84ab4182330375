package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/llm"
)

const hypothesisSystemPrompt = `You are a labor law expert who specializes in union collective bargaining agreements.

Your task: Given a worker's question, predict which section TITLES in a union contract would contain the answer.

Union contracts use formal legal terminology. Workers often use informal language.

Examples of vocabulary mapping:
- "break" -> "Relief Periods", "Rest Periods", "Meal Periods"
- "fired" -> "Discharge", "Termination", "Just Cause"
- "pay raise" -> "Wage Progression", "Step Increases", "Wages"
- "schedule" -> "Hours of Work", "Weekly Schedule", "Scheduling"
- "laid off" -> "Layoff", "Reduction in Force", "Recall Rights"
- "overtime" -> "Overtime", "Premium Pay", "Hours of Work"
- "vacation" -> "Vacations", "Vacation Pay", "Time Off"
- "sick" -> "Sick Leave", "Health and Welfare", "Leaves of Absence"
- "union rep" -> "Stewards", "Union Representation", "Weingarten Rights"
- "grievance" -> "Grievance Procedure", "Dispute Resolution", "Arbitration"

Output ONLY the section titles, one per line, no numbers or bullets.
Output exactly %d titles, ordered by likelihood of containing the answer.`

// HypothesisGenerator predicts which contract section titles would
// answer a worker's question, bridging the gap between informal
// phrasing and the formal legal titles the contract actually uses.
// The predicted titles feed the search query and boost matching
// chunks after retrieval.
type HypothesisGenerator struct {
	client    llm.Client
	timeout   time.Duration
	maxTitles int
}

// NewHypothesisGenerator builds a generator producing at most
// maxTitles hypotheses per query. A nil client degrades every call to
// a failed result carrying the raw query.
func NewHypothesisGenerator(client llm.Client, timeout time.Duration, maxTitles int) *HypothesisGenerator {
	if maxTitles <= 0 {
		maxTitles = 3
	}
	return &HypothesisGenerator{client: client, timeout: timeout, maxTitles: maxTitles}
}

// Generate hypothesizes section titles for a query. It never returns
// an error: failures produce Success=false with QueryExpansion set to
// the raw query so retrieval proceeds unexpanded.
func (g *HypothesisGenerator) Generate(ctx context.Context, query string) *HypothesisResult {
	start := time.Now()

	if g == nil || g.client == nil {
		return &HypothesisResult{
			QueryExpansion: query,
			Model:          "none",
			Success:        false,
			Error:          "LLM client not available",
		}
	}

	raw, err := g.client.Generate(ctx, llm.Request{
		System:      fmt.Sprintf(hypothesisSystemPrompt, g.maxTitles),
		Prompt:      fmt.Sprintf("Worker's question: \"%s\"\n\nList %d likely section titles that would contain this answer:", query, g.maxTitles),
		Temperature: 0.3,
		MaxTokens:   100,
		Timeout:     g.timeout,
	})
	if err != nil {
		return &HypothesisResult{
			QueryExpansion: query,
			Elapsed:        time.Since(start),
			Model:          g.client.Model(),
			Success:        false,
			Error:          err.Error(),
		}
	}

	titles := parseTitles(raw, g.maxTitles)
	expansion := query
	if len(titles) > 0 {
		expansion = query + " (" + strings.Join(titles, " ") + ")"
	}

	return &HypothesisResult{
		Titles:         titles,
		QueryExpansion: expansion,
		Elapsed:        time.Since(start),
		Model:          g.client.Model(),
		Success:        true,
	}
}

// parseTitles splits a model response into clean section titles, one
// per line, stripping bullet markers the model sometimes adds anyway.
func parseTitles(raw string, max int) []string {
	var titles []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) <= 2 {
			continue
		}
		trimmed = strings.TrimSpace(strings.Trim(trimmed, " \t-*•"))
		if trimmed == "" {
			continue
		}
		titles = append(titles, trimmed)
		if len(titles) == max {
			break
		}
	}
	return titles
}

// ApplyTitleBoosting raises the score of chunks whose article title
// fuzzy-matches a hypothesized title, then re-sorts. Chunks with no
// article title never match. The match is deliberately loose: word
// containment either direction, or substring either direction.
func ApplyTitleBoosting(chunks []*contract.ScoredChunk, titles []string, boost float64) []*contract.ScoredChunk {
	if len(chunks) == 0 || len(titles) == 0 {
		return chunks
	}

	normalized := make([]string, 0, len(titles))
	for _, t := range titles {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(t)))
	}

	for _, sc := range chunks {
		title := strings.ToLower(sc.Chunk.ArticleTitle)
		if title == "" {
			continue
		}
		if titleMatchesAny(title, normalized) {
			sc.Similarity += boost
			sc.TitleBoosted = true
		}
	}

	contract.SortScoredBySimilarity(chunks)
	return chunks
}

func titleMatchesAny(title string, hypotheses []string) bool {
	for _, hyp := range hypotheses {
		if titleMatches(title, hyp) {
			return true
		}
	}
	return false
}

func titleMatches(title, hypothesis string) bool {
	hypWords := significantWords(hypothesis)
	if len(hypWords) > 0 && allContained(title, hypWords) {
		return true
	}
	titleWords := significantWords(title)
	if len(titleWords) >= 2 && allContained(hypothesis, titleWords[:2]) {
		return true
	}
	return strings.Contains(title, hypothesis) || strings.Contains(hypothesis, title)
}

func significantWords(s string) []string {
	var words []string
	for _, w := range strings.Fields(s) {
		if len(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

func allContained(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}
