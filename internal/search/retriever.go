package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/errors"
	"github.com/shopsteward/steward/internal/wage"
)

// explicitArticleSimilarity scores chunks fetched because the worker
// named the article outright. High enough to outrank fused scores, low
// enough that reranking can still demote filler sections.
const explicitArticleSimilarity = 0.95

// Retriever orchestrates the full question-answering pipeline over one
// contract generation: slang expansion, intent classification,
// hypothesis generation, hybrid search, title boosting, article and
// sibling expansion, and wage lookup. The multi-angle path adds query
// interpretation and LLM reranking on top.
//
// A retriever is immutable after construction; per-request work happens
// on fresh result slices, so one instance serves concurrent queries.
type Retriever struct {
	engine     *Engine
	intents    *IntentClassifier
	hypothesis *HypothesisGenerator
	interp     *Interpreter
	reranker   *Reranker
	wages      *wage.Table
	cfg        config.RetrievalConfig
}

// RetrieverOption configures optional pipeline stages.
type RetrieverOption func(*Retriever)

// WithHypothesis wires the pre-retrieval hypothesis layer.
func WithHypothesis(g *HypothesisGenerator) RetrieverOption {
	return func(r *Retriever) { r.hypothesis = g }
}

// WithInterpreter wires the query interpreter enabling multi-angle
// retrieval. Without it MultiAngle falls back to the single-angle path.
func WithInterpreter(in *Interpreter) RetrieverOption {
	return func(r *Retriever) { r.interp = in }
}

// WithReranker wires the post-merge LLM reranker.
func WithReranker(rr *Reranker) RetrieverOption {
	return func(r *Retriever) { r.reranker = rr }
}

// WithWageTable wires the wage table for pay-rate lookups.
func WithWageTable(t *wage.Table) RetrieverOption {
	return func(r *Retriever) { r.wages = t }
}

// NewRetriever builds the retrieval orchestrator. Engine and intent
// classifier are required; everything else is optional and degrades
// gracefully when absent.
func NewRetriever(engine *Engine, intents *IntentClassifier, cfg config.RetrievalConfig, opts ...RetrieverOption) (*Retriever, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: search engine is required", ErrNilDependency)
	}
	if intents == nil {
		return nil, fmt.Errorf("%w: intent classifier is required", ErrNilDependency)
	}
	r := &Retriever{engine: engine, intents: intents, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve answers a query with the single-angle pipeline.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}

	k := opts.TopK
	if k <= 0 {
		k = r.cfg.TopK
	}

	expanded, expansions := r.intents.ExpandSlang(query)

	intent := opts.Intent
	if intent == nil {
		intent = r.intents.Classify(expanded, opts.Classification)
	}

	// Hypothesis runs on the raw question: the model predicts section
	// titles from what the worker actually said, and its expansion
	// replaces the slang one when it succeeds.
	searchText := expanded
	var hr *HypothesisResult
	if r.hypothesis != nil {
		hr = r.hypothesis.Generate(ctx, query)
		if hr.Success && len(hr.Titles) > 0 {
			searchText = hr.QueryExpansion
		}
	}

	chunks, err := r.engine.Search(ctx, Query{
		Text:          searchText,
		ConceptText:   query,
		K:             k,
		VectorWeight:  r.cfg.VectorWeight,
		KeywordWeight: r.cfg.KeywordWeight,
		BoostArticles: intent.RelevantArticles,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	if hr != nil && hr.Success {
		chunks = ApplyTitleBoosting(chunks, hr.Titles, r.cfg.TitleBoost)
	}

	chunks = expandFullArticle(r.engine.Chunks(), chunks, k, r.cfg.FullArticleTrigger, r.cfg.FullArticleCap, r.cfg.FullArticleSimilarity)
	chunks = expandSiblings(r.engine.Chunks(), chunks, r.cfg.SiblingsPerArticle, k, r.cfg.SiblingSimilarity)

	return &Response{
		Chunks:             chunks,
		WageInfo:           r.lookupWage(intent, opts),
		Intent:             intent,
		EscalationRequired: intent.RequiresEscalation,
		QueryExpansions:    expansions,
		Hypothesis:         hr,
	}, nil
}

// MultiAngle answers a query by interpreting it first and searching
// from several angles: the original question, hypothetical contract
// language (embedded directly), and the interpreter's alternative
// queries. Results merge per chunk keeping the best score. Without an
// interpreter this is just Retrieve.
func (r *Retriever) MultiAngle(ctx context.Context, query string, opts Options) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if r.interp == nil {
		return r.Retrieve(ctx, query, opts)
	}

	k := opts.TopK
	if k <= 0 {
		k = r.cfg.TopK
	}

	in := r.interp.Interpret(ctx, query)

	angles := SearchAngles(in)
	if len(angles) > r.cfg.MaxAngles {
		angles = angles[:r.cfg.MaxAngles]
	}

	merge := newAngleMerge()

	// Explicitly named articles come first with a fixed high score.
	for _, art := range in.ExplicitArticles {
		articleChunks := r.engine.Chunks().Article(art)
		if len(articleChunks) > r.cfg.PerAngleK {
			articleChunks = articleChunks[:r.cfg.PerAngleK]
		}
		for _, chunk := range articleChunks {
			merge.add(&contract.ScoredChunk{
				Chunk:       chunk,
				Similarity:  explicitArticleSimilarity,
				SearchAngle: fmt.Sprintf("explicit_article_%d", art),
			})
		}
	}

	for i, angle := range angles {
		var angleChunks []*contract.ScoredChunk
		var err error

		// Hypothetical answers are already contract language, so they
		// embed directly; hybrid fusion would distort their scores.
		if i > 0 && i <= len(in.HypotheticalAnswers) {
			angleChunks, err = r.engine.VectorOnly(ctx, angle, r.cfg.PerAngleK)
		} else {
			var resp *Response
			resp, err = r.Retrieve(ctx, angle, Options{
				TopK:           r.cfg.PerAngleK,
				Classification: opts.Classification,
				Intent:         opts.Intent,
			})
			if resp != nil {
				angleChunks = resp.Chunks
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			slog.Warn("search angle failed, skipping",
				slog.Int("angle", i),
				slog.String("error", err.Error()))
			continue
		}

		tag := angleTag(i, angle)
		for _, sc := range angleChunks {
			tagged := *sc
			tagged.SearchAngle = tag
			merge.add(&tagged)
		}
	}

	final := merge.items
	contract.SortScoredBySimilarity(final)
	if len(final) > r.cfg.MultiAngleCap {
		final = final[:r.cfg.MultiAngleCap]
	}

	var rr *RerankerResult
	if r.reranker != nil {
		rr = r.reranker.Rerank(ctx, query, final, in)
		if rr.Success {
			final = rr.Chunks
		}
	}

	final = expandFullArticle(r.engine.Chunks(), final, k, r.cfg.FullArticleTrigger, r.cfg.FullArticleCap, r.cfg.FullArticleSimilarity)
	final = expandSiblings(r.engine.Chunks(), final, r.cfg.SiblingsPerArticle, r.cfg.MultiAngleSiblingCap, r.cfg.SiblingSimilarity)

	intent := opts.Intent
	if intent == nil {
		text := query
		if len(in.KeyConcepts) > 0 {
			text = query + " " + strings.Join(in.KeyConcepts, " ")
		}
		intent = r.intents.Classify(text, opts.Classification)
	}

	return &Response{
		Chunks:             final,
		WageInfo:           r.lookupWage(intent, opts),
		Intent:             intent,
		EscalationRequired: intent.RequiresEscalation,
		Interpretation:     in,
		SearchAngles:       len(angles),
		ExplicitArticles:   in.ExplicitArticles,
		Reranker:           rr,
	}, nil
}

// lookupWage resolves the wage path: only wage-intent queries with a
// known classification get a table lookup.
func (r *Retriever) lookupWage(intent *Intent, opts Options) *wage.Info {
	if r.wages == nil || intent == nil {
		return nil
	}
	if intent.Type != IntentWage || intent.Classification == "" {
		return nil
	}
	return r.wages.Lookup(intent.Classification, opts.HoursWorked, opts.MonthsEmployed, opts.EffectiveDate)
}

// angleMerge deduplicates chunks across search angles, keeping the
// highest-scoring instance in its first-seen position.
type angleMerge struct {
	pos   map[string]int
	items []*contract.ScoredChunk
}

func newAngleMerge() *angleMerge {
	return &angleMerge{pos: make(map[string]int)}
}

func (m *angleMerge) add(sc *contract.ScoredChunk) {
	id := sc.Chunk.ChunkID
	if i, ok := m.pos[id]; ok {
		if sc.Similarity > m.items[i].Similarity {
			m.items[i] = sc
		}
		return
	}
	m.pos[id] = len(m.items)
	m.items = append(m.items, sc)
}
