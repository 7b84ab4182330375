package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/errors"
	"github.com/shopsteward/steward/internal/llm"
)

const (
	defaultBatchSize  = 10
	defaultBatchDelay = 2 * time.Second

	// maxPromptContent caps chunk text sent to the model.
	maxPromptContent = 3000
	// maxSummaryLen caps model summaries stored on chunks.
	maxSummaryLen = 150
)

const enrichmentPrompt = `You are analyzing a union contract provision for a RAG search system.

Contract: %s
Citation: %s
Parent Context: %s

Content:
%s

---

Analyze this provision and respond with a JSON object containing:

1. "applies_to": Which job classifications does this SPECIFICALLY mention or apply to?
   - Choose from: %s
   - Use "all" ONLY if it genuinely applies to all employees with no exceptions
   - Be specific - if it mentions "Courtesy Clerks", include "courtesy_clerk"
   - If it mentions DUG/Drive Up & Go, include "dug_shopper"

2. "topics": What topics does this cover?
   - Choose from: %s
   - Can select multiple
   - Be comprehensive - a vacation scheduling section might have both "vacation" and "scheduling"

3. "cross_references": Does this explicitly reference other Articles, Sections, or Appendices?
   - Format as list: ["art40_sec116", "appendix_a"]
   - Only include EXPLICIT references in the text
   - If none, use empty list []

4. "summary": One sentence (max 100 chars) describing what this provision does
   - Be specific and actionable
   - Example: "Defines night premium as $2/hr for hours between midnight and 6am"

5. "worker_questions": 3-5 questions a worker would actually ask that this provision answers
   - Use everyday words, not contract language
   - Example: ["When do I get a break?", "Can they cut my hours?"]

6. "alternative_names": Slang and everyday terms workers use for what this covers
   - Example: ["break", "ten", "rest break"]
   - If none, use empty list []

7. "is_definition": Does this define a term, role, or classification? (true/false)
   - True for sections that define what something IS

8. "is_exception": Does this contain override language like "except", "notwithstanding", "shall not apply", "unless"? (true/false)

9. "hire_date_sensitive": Are there different rules for employees hired before/after a specific cutoff date? (true/false)

10. "is_high_stakes": Does this involve discipline, termination, harassment, discrimination, safety hazards, or grievance procedures? (true/false)

Respond with ONLY valid JSON, no markdown or explanation.`

// LLMEnricher refines rule tags with model judgment and adds the
// worker-question and alternative-name bridges the concept index is
// built from. A chunk whose call fails keeps its rule-based tags.
type LLMEnricher struct {
	client       llm.Client
	contractName string
	batchSize    int
	delay        time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

// LLMOption configures an LLMEnricher.
type LLMOption func(*LLMEnricher)

// WithBatch sets chunks per batch and the pause between batches.
func WithBatch(size int, delay time.Duration) LLMOption {
	return func(e *LLMEnricher) {
		if size > 0 {
			e.batchSize = size
		}
		if delay >= 0 {
			e.delay = delay
		}
	}
}

// WithTimeout bounds each enrichment call.
func WithTimeout(d time.Duration) LLMOption {
	return func(e *LLMEnricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LLMOption {
	return func(e *LLMEnricher) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewLLMEnricher creates the model-backed enricher. contractName is the
// display identity shown in the prompt header, e.g.
// "Safeway Pueblo Clerks 2022-2025 (UFCW Local 7)".
func NewLLMEnricher(client llm.Client, contractName string, opts ...LLMOption) *LLMEnricher {
	e := &LLMEnricher{
		client:       client,
		contractName: contractName,
		batchSize:    defaultBatchSize,
		delay:        defaultBatchDelay,
		timeout:      30 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats summarizes an enrichment run.
type Stats struct {
	Enriched int
	Failed   int
	Total    int
}

// EnrichChunk runs one chunk through the model and applies the
// validated response in place.
func (e *LLMEnricher) EnrichChunk(ctx context.Context, c *contract.Chunk) error {
	resp, err := e.client.Generate(ctx, llm.Request{
		Prompt:      e.buildPrompt(c),
		Temperature: 0.2,
		MaxTokens:   1024,
		JSON:        true,
		Timeout:     e.timeout,
	})
	if err != nil {
		return errors.New(errors.ErrCodeEnrichmentFailed, "enrichment call failed", err).
			WithDetail("chunk", c.ChunkID)
	}

	var payload enrichmentPayload
	if err := json.Unmarshal([]byte(stripFences(resp)), &payload); err != nil {
		return errors.New(errors.ErrCodeLLMResponseInvalid, "enrichment response was not valid JSON", err).
			WithDetail("chunk", c.ChunkID)
	}

	e.apply(c, &payload)
	return nil
}

// EnrichAll processes chunks in batches with a pause between batches
// for rate limits. progress may be nil.
func (e *LLMEnricher) EnrichAll(ctx context.Context, chunks []*contract.Chunk, progress func(done, total int)) (Stats, error) {
	stats := Stats{Total: len(chunks)}

	for i, c := range chunks {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if err := e.EnrichChunk(ctx, c); err != nil {
			stats.Failed++
			e.logger.Warn("enrichment failed, keeping rule tags",
				slog.String("chunk", c.ChunkID),
				slog.String("error", err.Error()))
		} else {
			stats.Enriched++
		}
		if progress != nil {
			progress(i+1, len(chunks))
		}

		if (i+1)%e.batchSize == 0 && i+1 < len(chunks) {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(e.delay):
			}
		}
	}
	return stats, nil
}

func (e *LLMEnricher) buildPrompt(c *contract.Chunk) string {
	return fmt.Sprintf(enrichmentPrompt,
		e.contractName,
		c.Citation,
		c.ParentContext,
		truncateRunes(c.Content, maxPromptContent),
		strings.Join(contract.Classifications, ", "),
		strings.Join(contract.Topics, ", "),
	)
}

// enrichmentPayload is the model's JSON response shape.
type enrichmentPayload struct {
	AppliesTo         flexList `json:"applies_to"`
	Topics            flexList `json:"topics"`
	CrossReferences   flexList `json:"cross_references"`
	Summary           string   `json:"summary"`
	WorkerQuestions   flexList `json:"worker_questions"`
	AlternativeNames  flexList `json:"alternative_names"`
	IsDefinition      bool     `json:"is_definition"`
	IsException       bool     `json:"is_exception"`
	HireDateSensitive bool     `json:"hire_date_sensitive"`
	IsHighStakes      bool     `json:"is_high_stakes"`
}

// apply merges a validated response onto the chunk. Taxonomy fields
// only replace rule tags when the filtered result is non-empty, and
// flags only ever turn on: the model may add signal, never erase it.
func (e *LLMEnricher) apply(c *contract.Chunk, p *enrichmentPayload) {
	if applies := contract.FilterClassifications(p.AppliesTo); len(applies) > 0 {
		c.AppliesTo = applies
	}
	if topics := contract.FilterTopics(p.Topics); len(topics) > 0 {
		c.Topics = topics
	}
	if len(p.CrossReferences) > 0 {
		c.CrossReferences = p.CrossReferences
	}
	if summary := strings.TrimSpace(p.Summary); summary != "" {
		c.Summary = truncateRunes(summary, maxSummaryLen)
	}
	if len(p.WorkerQuestions) > 0 {
		c.WorkerQuestions = p.WorkerQuestions
	}
	if len(p.AlternativeNames) > 0 {
		c.AlternativeNames = p.AlternativeNames
	}

	c.IsDefinition = c.IsDefinition || p.IsDefinition
	c.IsException = c.IsException || p.IsException
	c.HireDateSensitive = c.HireDateSensitive || p.HireDateSensitive
	c.IsHighStakes = c.IsHighStakes || p.IsHighStakes
}

// flexList tolerates a model returning a bare string where a list
// belongs.
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = nil
		} else {
			*f = []string{s}
		}
		return nil
	}
	return fmt.Errorf("expected string or list of strings")
}

// stripFences peels a markdown code fence off a response.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	parts := strings.SplitN(s, "```", 3)
	if len(parts) < 2 {
		return s
	}
	body := strings.TrimPrefix(parts[1], "json")
	return strings.TrimSpace(body)
}
