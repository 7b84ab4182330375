package search

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopsteward/steward/internal/llm"
)

const interpreterSystemPrompt = `You are a union contract expert who helps interpret worker questions.

Your task: Analyze a worker's question and extract structured information to help find the answer in a collective bargaining agreement.

You must output valid JSON with this exact structure:
{
  "intent": "brief description of what they want to know",
  "key_concepts": ["list", "of", "main", "concepts"],
  "entities": {"type": "value"},
  "hypothetical_answers": [
    "What the contract text might say if it answers this question. Write 1-2 sentences that SOUND like contract language."
  ],
  "search_queries": [
    "2-3 different ways to search for this information",
    "using different vocabulary and angles"
  ],
  "likely_sections": ["Section titles that might contain the answer"],
  "explicit_articles": [list of article numbers if mentioned, empty otherwise]
}

CRITICAL RULES:
1. hypothetical_answers should sound like LEGAL CONTRACT TEXT, not casual speech
2. search_queries should use BOTH worker slang AND formal contract terms
3. If the query mentions "Article X" explicitly, include X in explicit_articles
4. Think about what SECTION TITLES in a union contract would contain this info

VOCABULARY GUIDE (worker term -> contract term):
- vendor/vendor work -> recognition, work jurisdiction, bargaining unit work
- reset/major reset -> vendor work, merchandising, stocking
- fired/canned -> discharge, termination
- write up -> discipline, warning
- break -> rest period, relief period
- overtime/OT -> overtime, premium pay
- floater -> personal holiday
- steward/rep -> union representative

Example input: "Can a vendor stock the shelves?"
Example output:
{
  "intent": "understand vendor work restrictions",
  "key_concepts": ["vendor", "stocking", "work restrictions", "bargaining unit"],
  "entities": {"actor": "vendor", "action": "stocking shelves"},
  "hypothetical_answers": [
    "Vendors shall be permitted to perform stocking and merchandising work under the following conditions...",
    "Work performed by vendors shall not displace bargaining unit employees..."
  ],
  "search_queries": [
    "vendor stocking work permitted",
    "recognition bargaining unit work jurisdiction",
    "outside work vendor restrictions"
  ],
  "likely_sections": ["Recognition", "Work Jurisdiction", "Vendor Work"],
  "explicit_articles": []
}`

var explicitArticlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`article\s+(\d+)`),
	regexp.MustCompile(`art\.?\s*(\d+)`),
}

// Interpreter performs deep semantic analysis of a worker question
// before retrieval: intent, key concepts, hypothetical contract
// language for embedding search, and alternative search queries.
type Interpreter struct {
	client  llm.Client
	timeout time.Duration
}

// NewInterpreter builds an interpreter on the given client. A nil
// client is allowed; interpretation then degrades to regex article
// extraction plus the raw query.
func NewInterpreter(client llm.Client, timeout time.Duration) *Interpreter {
	return &Interpreter{client: client, timeout: timeout}
}

// interpretationPayload mirrors the JSON structure the model is asked
// to produce. explicit_articles stays loose because models emit both
// numbers and digit strings.
type interpretationPayload struct {
	Intent              string            `json:"intent"`
	KeyConcepts         []string          `json:"key_concepts"`
	Entities            map[string]string `json:"entities"`
	HypotheticalAnswers []string          `json:"hypothetical_answers"`
	SearchQueries       []string          `json:"search_queries"`
	LikelySections      []string          `json:"likely_sections"`
	ExplicitArticles    []any             `json:"explicit_articles"`
}

// Interpret analyzes a query. It never returns an error: when the
// model is unavailable or its output is unusable the result carries
// Success=false and enough fallback fields (raw query, regex-extracted
// articles) for retrieval to proceed single-angle.
func (in *Interpreter) Interpret(ctx context.Context, query string) *Interpretation {
	start := time.Now()
	regexArticles := extractExplicitArticles(query)

	if in == nil || in.client == nil {
		return &Interpretation{
			Query:            query,
			Intent:           "unknown",
			KeyConcepts:      firstWords(query, 5),
			SearchQueries:    []string{query},
			ExplicitArticles: regexArticles,
			Elapsed:          time.Since(start),
			Success:          false,
			Error:            "LLM client not available",
		}
	}

	raw, err := in.client.Generate(ctx, llm.Request{
		System:      interpreterSystemPrompt,
		Prompt:      fmt.Sprintf("Analyze this worker question and output JSON:\n\nQuestion: \"%s\"\n\nJSON:", query),
		Temperature: 0.2,
		MaxTokens:   500,
		JSON:        true,
		Timeout:     in.timeout,
	})
	if err != nil {
		return &Interpretation{
			Query:            query,
			Intent:           "error",
			SearchQueries:    []string{query},
			ExplicitArticles: regexArticles,
			Elapsed:          time.Since(start),
			Success:          false,
			Error:            err.Error(),
			Model:            in.client.Model(),
		}
	}

	var payload interpretationPayload
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return &Interpretation{
			Query:            query,
			Intent:           "parse_error",
			SearchQueries:    []string{query},
			ExplicitArticles: regexArticles,
			Elapsed:          time.Since(start),
			Success:          false,
			Error:            fmt.Sprintf("JSON parse error: %v", err),
			Model:            in.client.Model(),
		}
	}

	intent := payload.Intent
	if intent == "" {
		intent = "unknown"
	}
	queries := payload.SearchQueries
	if len(queries) == 0 {
		queries = []string{query}
	}

	return &Interpretation{
		Query:               query,
		Intent:              intent,
		KeyConcepts:         payload.KeyConcepts,
		Entities:            payload.Entities,
		HypotheticalAnswers: payload.HypotheticalAnswers,
		SearchQueries:       queries,
		LikelySections:      payload.LikelySections,
		ExplicitArticles:    mergeArticles(regexArticles, payload.ExplicitArticles),
		Elapsed:             time.Since(start),
		Success:             true,
		Model:               in.client.Model(),
	}
}

// SearchAngles expands an interpretation into the ordered list of
// queries to search: the original question first, then hypothetical
// answers, then alternative queries, deduplicated. Callers cap the
// list; the interpretation itself does not.
func SearchAngles(in *Interpretation) []string {
	angles := []string{in.Query}
	seen := map[string]struct{}{in.Query: {}}
	for _, list := range [][]string{in.HypotheticalAnswers, in.SearchQueries} {
		for _, q := range list {
			if q == "" {
				continue
			}
			if _, dup := seen[q]; dup {
				continue
			}
			seen[q] = struct{}{}
			angles = append(angles, q)
		}
	}
	return angles
}

// extractExplicitArticles pulls "Article 12" style references out of
// the query text, deduplicated in first-seen order.
func extractExplicitArticles(query string) []int {
	lower := strings.ToLower(query)
	var articles []int
	seen := make(map[int]struct{})
	for _, p := range explicitArticlePatterns {
		for _, m := range p.FindAllStringSubmatch(lower, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			articles = append(articles, n)
		}
	}
	return articles
}

// mergeArticles folds model-reported article numbers into the regex
// extractions, keeping regex results first and coercing digit strings.
func mergeArticles(regexArticles []int, llmArticles []any) []int {
	out := make([]int, len(regexArticles))
	copy(out, regexArticles)
	seen := make(map[int]struct{}, len(out))
	for _, a := range out {
		seen[a] = struct{}{}
	}
	for _, v := range llmArticles {
		var n int
		switch a := v.(type) {
		case float64:
			n = int(a)
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(a))
			if err != nil {
				continue
			}
			n = parsed
		default:
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// firstWords returns up to n lowercased words of s.
func firstWords(s string, n int) []string {
	words := strings.Fields(strings.ToLower(s))
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// extractJSONObject strips markdown fences and any prose around the
// outermost JSON object in a model response.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
