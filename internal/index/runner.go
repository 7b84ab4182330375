package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shopsteward/steward/internal/chunk"
	"github.com/shopsteward/steward/internal/concept"
	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/contract"
	"github.com/shopsteward/steward/internal/embed"
	"github.com/shopsteward/steward/internal/enrich"
	stewerrors "github.com/shopsteward/steward/internal/errors"
	"github.com/shopsteward/steward/internal/store"
	"github.com/shopsteward/steward/internal/ui"
	"github.com/shopsteward/steward/internal/wage"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// RunnerConfig configures one ingest run.
type RunnerConfig struct {
	// Source is the contract markdown file to ingest.
	Source string

	// ContractID overrides the id derived from the source filename.
	ContractID string

	// SkipEnrich skips the LLM enrichment stage even when an enricher
	// is wired. Rule-based tags are always applied.
	SkipEnrich bool
}

// RunnerResult is the outcome of a completed ingest.
type RunnerResult struct {
	Generation          string
	ContractID          string
	Chunks              int
	Articles            int
	WageClassifications int
	Duration            time.Duration
	Errors              int
	Warnings            int
	Stages              ui.StageTimings
}

// RunnerDependencies are the injected collaborators for a Runner.
type RunnerDependencies struct {
	// Config is the loaded configuration (required).
	Config *config.Config

	// Embedder produces chunk vectors (required).
	Embedder embed.Embedder

	// Enricher refines chunk tags with model judgment. Optional; nil
	// leaves rule-based tags in place.
	Enricher *enrich.LLMEnricher

	// Renderer shows ingest progress (required).
	Renderer ui.Renderer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Runner executes the ingest pipeline: parse, wage extraction,
// enrichment, embedding, index builds, and atomic publish of the
// resulting generation.
type Runner struct {
	config   *config.Config
	embedder embed.Embedder
	enricher *enrich.LLMEnricher
	renderer ui.Renderer
	logger   *slog.Logger
	gens     *Generations
	status   *StatusWriter
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrNilDependency)
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if deps.Renderer == nil {
		return nil, fmt.Errorf("%w: renderer is required", ErrNilDependency)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dataDir := deps.Config.Storage.DataDir
	return &Runner{
		config:   deps.Config,
		embedder: deps.Embedder,
		enricher: deps.Enricher,
		renderer: deps.Renderer,
		logger:   logger,
		gens:     NewGenerations(dataDir),
		status:   NewStatusWriter(dataDir),
	}, nil
}

// Run executes the full ingest pipeline for one contract. Artifacts
// are written into a fresh generation; CURRENT is only flipped after
// every artifact is durable, so a failure at any stage leaves the
// live generation serving.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	if cfg.Source == "" {
		return nil, stewerrors.New(stewerrors.ErrCodeInvalidPath, "no contract file given", nil).
			WithSuggestion("usage: steward ingest <contract.md>")
	}

	startTime := time.Now()
	var errorCount, warnCount int
	var timing ui.StageTimings

	lock := NewIngestLock(r.config.Storage.DataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, stewerrors.New(stewerrors.ErrCodeFilePermission, "cannot take ingest lock", err).
			WithDetail("lock", lock.Path())
	}
	if !acquired {
		return nil, stewerrors.New(stewerrors.ErrCodeIngestLockHeld, "another ingest is already running", nil).
			WithDetail("lock", lock.Path()).
			WithSuggestion("wait for the running ingest to finish")
	}
	defer func() { _ = lock.Unlock() }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contractID := cfg.ContractID
	if contractID == "" {
		contractID = deriveContractID(cfg.Source)
	}

	paths, err := r.gens.Allocate()
	if err != nil {
		return nil, err
	}
	// From here any failure removes the partial generation and leaves
	// CURRENT pointing at the previous one.
	fail := func(stage string, err error) (*RunnerResult, error) {
		r.renderer.AddError(ui.ErrorEvent{Section: stage, Err: err})
		_ = r.status.Fail(err)
		_ = os.RemoveAll(paths.Root)
		r.logger.Error("ingest_failed",
			slog.String("stage", stage),
			slog.String("generation", paths.ID),
			slog.String("error", err.Error()))
		return nil, err
	}

	_ = r.status.Begin(paths.ID, contractID, cfg.Source)
	r.logger.Info("ingest_started",
		slog.String("source", cfg.Source),
		slog.String("contract", contractID),
		slog.String("generation", paths.ID))

	// Stage 1: parse the contract into chunks.
	parseStart := time.Now()
	_ = r.status.StartStage("parse", 0)
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageParsing,
		Message: fmt.Sprintf("Reading %s...", filepath.Base(cfg.Source)),
	})

	raw, err := os.ReadFile(cfg.Source)
	if err != nil {
		return fail("parse", stewerrors.New(stewerrors.ErrCodeFileNotFound, "cannot read contract file", err).
			WithDetail("path", cfg.Source))
	}
	content := chunk.Clean(string(raw))

	manifest := chunk.NewManifestExtractor().Extract(content, contractID)
	chunker := chunk.NewChunkerWithSizes(contractID, chunk.Sizes{
		MinChars:    r.config.Ingest.MinChunkChars,
		TargetChars: r.config.Ingest.TargetChunkChars,
		MaxChars:    r.config.Ingest.MaxChunkChars,
	})
	chunks := chunker.Parse(content)
	if len(chunks) == 0 {
		return fail("parse", stewerrors.New(stewerrors.ErrCodeChunkingFailed, "no provisions recognized in contract", nil).
			WithDetail("path", cfg.Source).
			WithSuggestion("the file must be converted markdown with ## ARTICLE headings"))
	}
	timing.Parse = time.Since(parseStart)
	_ = r.status.FinishStage()
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageParsing,
		Current: len(chunks),
		Total:   len(chunks),
		Message: fmt.Sprintf("%d chunks across %d articles", len(chunks), manifest.TotalArticles),
	})
	r.logger.Info("ingest_parse_complete",
		slog.Int("chunks", len(chunks)),
		slog.Int("articles", manifest.TotalArticles))

	// Stage 2: wage tables. The grid's own date row names the rate
	// columns, so the extractor harvests dates itself.
	wageStart := time.Now()
	_ = r.status.StartStage("wage", 0)
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageWages,
		Message: "Extracting wage tables...",
	})
	wages := wage.NewExtractor(contractID, nil).Extract(content)
	if len(wages.Classifications) == 0 {
		warnCount++
		r.renderer.AddError(ui.ErrorEvent{
			Section: "Appendix A",
			Err:     errors.New("no wage grid recognized, wage lookups will be empty"),
			IsWarn:  true,
		})
		r.logger.Warn("ingest_no_wage_grid", slog.String("contract", contractID))
	}
	timing.Wage = time.Since(wageStart)
	_ = r.status.FinishStage()

	// Stage 3: enrichment. Rule tags always; model refinement when an
	// enricher is wired. Per-chunk model failures keep rule tags.
	enrichStart := time.Now()
	_ = r.status.StartStage("enrich", len(chunks))
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageEnriching,
		Total:   len(chunks),
		Message: "Applying rule-based tags...",
	})
	enrich.NewRuleEnricher().EnrichAll(chunks)

	if r.enricher != nil && !cfg.SkipEnrich {
		stats, err := r.enricher.EnrichAll(ctx, chunks, func(done, total int) {
			r.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageEnriching,
				Current:     done,
				Total:       total,
				CurrentItem: chunks[done-1].Citation,
			})
			_ = r.status.Progress(done)
		})
		if err != nil {
			return fail("enrich", err)
		}
		if stats.Failed > 0 {
			warnCount++
			r.renderer.AddError(ui.ErrorEvent{
				Section: "enrichment",
				Err:     fmt.Errorf("%d of %d chunks kept rule tags only", stats.Failed, stats.Total),
				IsWarn:  true,
			})
		}
		r.logger.Info("ingest_enrichment_complete",
			slog.Int("enriched", stats.Enriched),
			slog.Int("failed", stats.Failed))
	}
	timing.Enrich = time.Since(enrichStart)
	_ = r.status.FinishStage()

	// Stage 4: embeddings.
	embedStart := time.Now()
	_ = r.status.StartStage("embed", len(chunks))
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage: ui.StageEmbedding,
		Total: len(chunks),
	})
	vectors, err := r.embedChunks(ctx, chunks)
	if err != nil {
		return fail("embed", err)
	}
	timing.Embed = time.Since(embedStart)
	_ = r.status.FinishStage()

	// Stage 5: index builds.
	indexStart := time.Now()
	_ = r.status.StartStage("index", 0)
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageIndexing,
		Message: "Building keyword, vector, and concept indexes...",
	})

	keyword := store.NewKeywordIndex(r.config.Retrieval.BM25K1, r.config.Retrieval.BM25B)
	keyword.Build(chunks)

	vecIdx, err := store.NewVectorIndex(store.DefaultVectorConfig(r.embedder.Dimensions()))
	if err != nil {
		return fail("index", err)
	}
	for i, c := range chunks {
		if err := vecIdx.Add(c.ChunkID, vectors[i], store.MetaFromChunk(c)); err != nil {
			return fail("index", stewerrors.New(stewerrors.ErrCodeIndexFailed, "cannot add chunk to vector index", err).
				WithDetail("chunk", c.ChunkID))
		}
	}
	concepts := concept.Build(chunks)

	assembleRouting(manifest, chunks)
	if carried := r.carrySlang(manifest, contractID); carried > 0 {
		r.logger.Info("ingest_slang_carried", slog.Int("terms", carried))
	}
	timing.Index = time.Since(indexStart)
	_ = r.status.FinishStage()

	// Stage 6: write artifacts and flip CURRENT.
	publishStart := time.Now()
	_ = r.status.StartStage("publish", 0)
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StagePublishing,
		Message: "Publishing " + paths.ID + "...",
	})

	if err := store.NewChunkStore(chunks).Save(paths.Chunks); err != nil {
		return fail("publish", err)
	}
	if err := keyword.Save(paths.Keyword); err != nil {
		return fail("publish", err)
	}
	if err := vecIdx.Save(paths.Vectors); err != nil {
		return fail("publish", err)
	}
	if err := concepts.Save(paths.ConceptIndex); err != nil {
		return fail("publish", err)
	}
	if err := wages.Save(paths.WageTables); err != nil {
		return fail("publish", err)
	}
	if err := manifest.Save(paths.ManifestFor(contractID)); err != nil {
		return fail("publish", err)
	}
	meta := &Meta{
		Generation:          paths.ID,
		ContractID:          contractID,
		Source:              cfg.Source,
		CreatedAt:           time.Now().UTC(),
		Chunks:              len(chunks),
		Articles:            manifest.TotalArticles,
		WageClassifications: len(wages.Classifications),
		EmbedModel:          r.embedder.ModelName(),
		EmbedDimensions:     r.embedder.Dimensions(),
	}
	if err := meta.Save(paths.Meta); err != nil {
		return fail("publish", err)
	}
	if err := r.gens.Publish(paths.ID); err != nil {
		return fail("publish", err)
	}

	if removed, err := r.gens.Prune(r.config.Storage.GenerationsToKeep); err != nil {
		// The new generation is already live; a prune failure only
		// costs disk space.
		warnCount++
		r.renderer.AddError(ui.ErrorEvent{Section: "prune", Err: err, IsWarn: true})
		r.logger.Warn("ingest_prune_failed", slog.String("error", err.Error()))
	} else if len(removed) > 0 {
		r.logger.Info("ingest_pruned", slog.String("generations", strings.Join(removed, ",")))
	}
	timing.Publish = time.Since(publishStart)
	_ = r.status.Complete()

	duration := time.Since(startTime)
	model := r.embedder.ModelName()
	backend := "gemini"
	if model == "static" {
		backend = "static"
	}

	r.renderer.Complete(ui.CompletionStats{
		Chunks:      len(chunks),
		Articles:    manifest.TotalArticles,
		WageClasses: len(wages.Classifications),
		Generation:  paths.ID,
		Duration:    duration,
		Errors:      errorCount,
		Warnings:    warnCount,
		Stages:      timing,
		Embedder: ui.EmbedderInfo{
			Backend:    backend,
			Model:      model,
			Dimensions: r.embedder.Dimensions(),
		},
	})

	chunksPerSec := 0.0
	if timing.Embed.Seconds() > 0 {
		chunksPerSec = float64(len(chunks)) / timing.Embed.Seconds()
	}
	r.logger.Info("ingest_complete",
		slog.String("generation", paths.ID),
		slog.String("contract", contractID),
		slog.Int("chunks", len(chunks)),
		slog.Int("articles", manifest.TotalArticles),
		slog.Int("wage_classifications", len(wages.Classifications)),
		slog.String("duration_total", duration.String()),
		slog.Int64("duration_total_ms", duration.Milliseconds()),
		slog.Int64("duration_parse_ms", timing.Parse.Milliseconds()),
		slog.Int64("duration_wage_ms", timing.Wage.Milliseconds()),
		slog.Int64("duration_enrich_ms", timing.Enrich.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.Embed.Milliseconds()),
		slog.Int64("duration_index_ms", timing.Index.Milliseconds()),
		slog.Int64("duration_publish_ms", timing.Publish.Milliseconds()),
		slog.String("embedder_backend", backend),
		slog.String("embedder_model", model),
		slog.Float64("chunks_per_sec", chunksPerSec))

	return &RunnerResult{
		Generation:          paths.ID,
		ContractID:          contractID,
		Chunks:              len(chunks),
		Articles:            manifest.TotalArticles,
		WageClassifications: len(wages.Classifications),
		Duration:            duration,
		Errors:              errorCount,
		Warnings:            warnCount,
		Stages:              timing,
	}, nil
}

// embedChunks produces one vector per chunk. Batches run in parallel
// bounded by EmbedWorkers; each batch writes into its own slice
// region, so the only shared state is the progress counter.
func (r *Runner) embedChunks(ctx context.Context, chunks []*contract.Chunk) ([][]float32, error) {
	batchSize := r.config.Embeddings.BatchSize
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}
	workers := r.config.Ingest.EmbedWorkers
	if workers <= 0 {
		workers = 1
	}

	vectors := make([][]float32, len(chunks))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			texts := make([]string, end-start)
			for i, c := range chunks[start:end] {
				texts[i] = c.Content
			}
			embs, err := r.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return stewerrors.New(stewerrors.ErrCodeEmbeddingFailed,
					fmt.Sprintf("embedding batch %d-%d failed", start, end), err)
			}
			if len(embs) != end-start {
				return stewerrors.New(stewerrors.ErrCodeEmbeddingFailed,
					fmt.Sprintf("embedder returned %d vectors for %d texts", len(embs), end-start), nil)
			}
			copy(vectors[start:end], embs)

			n := int(done.Add(int64(end - start)))
			r.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageEmbedding,
				Current:     n,
				Total:       len(chunks),
				CurrentItem: chunks[end-1].Citation,
			})
			_ = r.status.Progress(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// assembleRouting fills the manifest's routing tables from the
// enriched chunks: topics and classifications each map to the sorted
// articles whose chunks carry them. LOU and appendix chunks have no
// article number and do not route.
func assembleRouting(m *contract.Manifest, chunks []*contract.Chunk) {
	topics := make(map[string]map[int]bool)
	classes := make(map[string]map[int]bool)

	for _, c := range chunks {
		if c.ArticleNum == 0 {
			continue
		}
		for _, t := range c.Topics {
			if topics[t] == nil {
				topics[t] = make(map[int]bool)
			}
			topics[t][c.ArticleNum] = true
		}
		for _, cl := range c.AppliesTo {
			if cl == "all" {
				continue
			}
			if classes[cl] == nil {
				classes[cl] = make(map[int]bool)
			}
			classes[cl][c.ArticleNum] = true
		}
	}

	m.QueryRouting.TopicToArticles = sortedArticleMap(topics)
	m.QueryRouting.ClassificationToArticles = sortedArticleMap(classes)
}

func sortedArticleMap(sets map[string]map[int]bool) map[string][]int {
	if len(sets) == 0 {
		return nil
	}
	out := make(map[string][]int, len(sets))
	for key, set := range sets {
		arts := make([]int, 0, len(set))
		for a := range set {
			arts = append(arts, a)
		}
		sort.Ints(arts)
		out[key] = arts
	}
	return out
}

// carrySlang copies the slang overlay from the live generation's
// manifest into the new one, so curated worker-vocabulary mappings
// survive re-ingestion. Returns how many terms were carried.
func (r *Runner) carrySlang(m *contract.Manifest, contractID string) int {
	currentID, err := r.gens.Current()
	if err != nil {
		return 0
	}
	prev, err := contract.LoadManifest(r.gens.Paths(currentID).ManifestFor(contractID))
	if err != nil {
		return 0
	}

	carried := 0
	for term, meaning := range prev.QueryRouting.SlangToContract {
		if m.QueryRouting.SlangToContract == nil {
			m.QueryRouting.SlangToContract = make(map[string]string)
		}
		if _, exists := m.QueryRouting.SlangToContract[term]; !exists {
			m.QueryRouting.SlangToContract[term] = meaning
			carried++
		}
	}
	return carried
}

var nonIDRe = regexp.MustCompile(`[^a-z0-9]+`)

// deriveContractID slugs a source filename:
// "Safeway Pueblo Clerks 2022.md" becomes "safeway_pueblo_clerks_2022".
func deriveContractID(source string) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	id := nonIDRe.ReplaceAllString(strings.ToLower(base), "_")
	id = strings.Trim(id, "_")
	if id == "" {
		return "contract"
	}
	return id
}
