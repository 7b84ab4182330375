package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/llm"
)

const rerankerSystemPrompt = `You are a relevance scorer for union contract document retrieval.

Your task: Given a worker's question and contract excerpts, score each excerpt's relevance to answering the question.

SCORING SCALE (1-10):
- 10: Directly and completely answers the question
- 8-9: Highly relevant, contains key information needed
- 6-7: Partially relevant, provides useful context
- 4-5: Tangentially related, mentions related topics
- 1-3: Not relevant to this specific question

SCORING TIPS:
- A definition section is relevant if the question uses that term
- Procedural sections are relevant for "how do I" questions
- Exception clauses are relevant for eligibility/limit questions
- Look for SEMANTIC relevance, not just keyword matches
- Consider what the worker actually needs to know

Output valid JSON mapping chunk IDs to scores. Example:
{"0": 8, "1": 5, "2": 9}

Score EVERY chunk. Do not skip any.`

// Reranker reorders retrieved chunks with an LLM relevance pass. It
// runs after multi-angle merge and before article expansion. Any
// failure returns the original order; retrieval never breaks because
// reranking did.
type Reranker struct {
	client         llm.Client
	timeout        time.Duration
	maxChunks      int
	truncateChars  int
	originalWeight float64
	llmWeight      float64
}

// NewReranker builds a reranker scoring at most maxChunks chunks per
// call, truncating chunk content at truncateChars in the prompt. The
// final score blends the retrieval similarity and the normalized LLM
// score by the two weights.
func NewReranker(client llm.Client, timeout time.Duration, maxChunks, truncateChars int, originalWeight, llmWeight float64) *Reranker {
	if maxChunks <= 0 {
		maxChunks = 15
	}
	if truncateChars <= 0 {
		truncateChars = 500
	}
	return &Reranker{
		client:         client,
		timeout:        timeout,
		maxChunks:      maxChunks,
		truncateChars:  truncateChars,
		originalWeight: originalWeight,
		llmWeight:      llmWeight,
	}
}

// Rerank scores chunks against the query and reorders by the blended
// score. The interpretation, when present, adds intent and key
// concepts to the prompt. Chunks beyond the cap keep their pre-rerank
// order at the tail. Never returns an error; callers check Success
// before trusting the new order.
func (r *Reranker) Rerank(ctx context.Context, query string, chunks []*contract.ScoredChunk, in *Interpretation) *RerankerResult {
	if len(chunks) == 0 {
		return &RerankerResult{Chunks: chunks, Model: "none", Success: true}
	}
	if r == nil || r.client == nil {
		return &RerankerResult{
			Chunks:  chunks,
			Model:   "none",
			Success: false,
			Error:   "LLM client not available",
		}
	}

	start := time.Now()

	ranked := chunks
	if len(ranked) > r.maxChunks {
		ranked = ranked[:r.maxChunks]
	}

	raw, err := r.client.Generate(ctx, llm.Request{
		System: rerankerSystemPrompt,
		Prompt: fmt.Sprintf("Worker's question: \"%s\"\n%sContract excerpts to score:\n\n%s\n\nJSON scores (chunk ID -> relevance 1-10):",
			query, interpretationContext(in), r.formatChunks(ranked)),
		Temperature: 0.1,
		MaxTokens:   1024,
		JSON:        true,
		Timeout:     r.timeout,
	})
	if err != nil {
		slog.Warn("reranker failed, keeping original order",
			slog.String("error", err.Error()))
		return &RerankerResult{
			Chunks:  chunks,
			Elapsed: time.Since(start),
			Model:   r.client.Model(),
			Success: false,
			Error:   err.Error(),
		}
	}

	scores := parseRerankScores(raw, len(ranked))
	reordered, changes := r.applyScores(ranked, scores)

	if len(chunks) > r.maxChunks {
		reordered = append(reordered, chunks[r.maxChunks:]...)
	}

	normalized := make(map[string]float64, len(scores))
	for k, v := range scores {
		normalized[k] = float64(v) / 10.0
	}

	slog.Debug("reranker completed",
		slog.Int("chunks", len(ranked)),
		slog.Int("position_changes", changes),
		slog.Duration("elapsed", time.Since(start)))

	return &RerankerResult{
		Chunks:          reordered,
		Scores:          normalized,
		PositionChanges: changes,
		Elapsed:         time.Since(start),
		Model:           r.client.Model(),
		Success:         true,
	}
}

// formatChunks renders the ranked chunks as numbered excerpt blocks.
func (r *Reranker) formatChunks(chunks []*contract.ScoredChunk) string {
	blocks := make([]string, 0, len(chunks))
	for i, sc := range chunks {
		content := sc.Chunk.Content
		if len(content) > r.truncateChars {
			content = content[:r.truncateChars] + "..."
		}
		citation := sc.Chunk.Citation
		if citation == "" {
			citation = fmt.Sprintf("Chunk %d", i)
		}
		blocks = append(blocks, fmt.Sprintf("---\nID: %d\nCitation: %s\nContent: %s\n---", i, citation, content))
	}
	return strings.Join(blocks, "\n")
}

// interpretationContext summarizes the interpretation for the prompt.
func interpretationContext(in *Interpretation) string {
	if in == nil {
		return ""
	}
	var parts []string
	if in.Intent != "" {
		parts = append(parts, "Intent: "+in.Intent)
	}
	if len(in.KeyConcepts) > 0 {
		concepts := in.KeyConcepts
		if len(concepts) > 5 {
			concepts = concepts[:5]
		}
		parts = append(parts, "Key concepts: "+strings.Join(concepts, ", "))
	}
	if len(parts) == 0 {
		return ""
	}
	return "\n" + strings.Join(parts, "\n") + "\n"
}

// parseRerankScores extracts per-chunk scores from a model response.
// It never fails: unparseable responses and missing ids default every
// chunk to the neutral 5, which preserves the retrieval order.
func parseRerankScores(raw string, numChunks int) map[string]int {
	result := make(map[string]int, numChunks)

	var payload map[string]any
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		slog.Warn("failed to parse reranker scores, using defaults",
			slog.String("error", err.Error()))
	} else {
		for key, value := range payload {
			var score int
			switch v := value.(type) {
			case float64:
				score = int(v)
			case string:
				parsed, err := strconv.Atoi(strings.TrimSpace(v))
				if err != nil {
					continue
				}
				score = parsed
			default:
				continue
			}
			if score < 1 {
				score = 1
			}
			if score > 10 {
				score = 10
			}
			result[key] = score
		}
	}

	for i := 0; i < numChunks; i++ {
		if _, ok := result[strconv.Itoa(i)]; !ok {
			result[strconv.Itoa(i)] = 5
		}
	}
	return result
}

// applyScores blends LLM scores into the chunks and reorders. Works on
// a copied slice so the caller's order survives when the result is
// rejected. Returns the reordered chunks and how many positions
// changed.
func (r *Reranker) applyScores(ranked []*contract.ScoredChunk, scores map[string]int) ([]*contract.ScoredChunk, int) {
	originalOrder := make([]string, len(ranked))
	for i, sc := range ranked {
		originalOrder[i] = sc.Chunk.ChunkID
	}

	reordered := make([]*contract.ScoredChunk, len(ranked))
	copy(reordered, ranked)

	for i, sc := range reordered {
		llmScore := float64(scores[strconv.Itoa(i)]) / 10.0
		sc.OriginalSimilarity = sc.Similarity
		sc.RerankScore = llmScore
		sc.Similarity = r.originalWeight*sc.OriginalSimilarity + r.llmWeight*llmScore
	}

	sort.SliceStable(reordered, func(i, j int) bool {
		return reordered[i].Similarity > reordered[j].Similarity
	})

	changes := 0
	for i, sc := range reordered {
		if originalOrder[i] != sc.Chunk.ChunkID {
			changes++
		}
	}
	return reordered, changes
}
