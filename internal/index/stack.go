package index

import (
	"time"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/embed"
	stewerrors "github.com/shopsteward/steward/internal/errors"
	"github.com/shopsteward/steward/internal/llm"
	"github.com/shopsteward/steward/internal/search"
)

// QueryStack is the retrieval pipeline composed over one pinned
// generation. The MCP server and the CLI both build one of these,
// answer requests from it, and replace it wholesale when a new
// generation is published.
type QueryStack struct {
	Snapshot  *Snapshot
	Engine    *search.Engine
	Intents   *search.IntentClassifier
	Retriever *search.Retriever
}

// NewQueryStack composes engine, intent classifier, and retriever over
// a loaded snapshot. A nil llm client skips the hypothesis,
// interpreter, and reranker stages; retrieval degrades to the
// heuristic path.
func NewQueryStack(snap *Snapshot, embedder embed.Embedder, client llm.Client, cfg *config.Config) (*QueryStack, error) {
	if snap == nil {
		return nil, stewerrors.New(stewerrors.ErrCodeInternal, "snapshot is required", nil)
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	engine, err := search.NewEngine(
		snap.Chunks,
		snap.Vectors,
		snap.Keyword,
		embedder,
		cfg.Retrieval,
		search.WithConceptIndex(snap.Concepts),
	)
	if err != nil {
		return nil, err
	}

	intents := search.NewIntentClassifier(snap.Manifest)

	opts := []search.RetrieverOption{
		search.WithWageTable(snap.Wages),
	}
	if client != nil {
		opts = append(opts,
			search.WithHypothesis(search.NewHypothesisGenerator(
				client,
				config.DurationOr(cfg.LLM.HypothesisTimeout, 2*time.Second),
				0,
			)),
			search.WithInterpreter(search.NewInterpreter(
				client,
				config.DurationOr(cfg.LLM.InterpreterTimeout, 15*time.Second),
			)),
		)
		if cfg.Retrieval.RerankEnabled {
			opts = append(opts, search.WithReranker(search.NewReranker(
				client,
				config.DurationOr(cfg.LLM.RerankerTimeout, 10*time.Second),
				cfg.Retrieval.RerankCandidates,
				cfg.Retrieval.RerankTruncateChars,
				cfg.Retrieval.RerankOriginalWeight,
				cfg.Retrieval.RerankLLMWeight,
			)))
		}
	}

	retriever, err := search.NewRetriever(engine, intents, cfg.Retrieval, opts...)
	if err != nil {
		return nil, err
	}

	return &QueryStack{
		Snapshot:  snap,
		Engine:    engine,
		Intents:   intents,
		Retriever: retriever,
	}, nil
}

// LoadQueryStack loads the CURRENT generation and composes the
// pipeline over it.
func LoadQueryStack(gens *Generations, embedder embed.Embedder, client llm.Client, cfg *config.Config) (*QueryStack, error) {
	snap, err := LoadCurrent(gens)
	if err != nil {
		return nil, err
	}
	stack, err := NewQueryStack(snap, embedder, client, cfg)
	if err != nil {
		_ = snap.Close()
		return nil, err
	}
	return stack, nil
}

// Close releases the pinned snapshot. Callers that hand the stack to a
// long-lived server should let the old stack be garbage collected on
// swap instead, because in-flight requests may still be reading it.
func (s *QueryStack) Close() error {
	if s.Snapshot == nil {
		return nil
	}
	return s.Snapshot.Close()
}
