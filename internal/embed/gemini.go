package embed

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/shopsteward/steward/internal/errors"
	"github.com/shopsteward/steward/internal/llm"
)

// defaultEmbedModel is the hosted embedding model.
const defaultEmbedModel = "text-embedding-004"

// defaultEmbedTimeout bounds a single embedding request attempt.
const defaultEmbedTimeout = 30 * time.Second

// defaultBatchDelay is the pause between consecutive batch requests to
// stay under the API rate limit during ingestion.
const defaultBatchDelay = 100 * time.Millisecond

// Gemini embeds text through the hosted Gemini embedding API.
type Gemini struct {
	client     *genai.Client
	model      string
	dims       int
	task       Task
	batchSize  int
	batchDelay time.Duration
	timeout    time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// GeminiOption configures the Gemini embedder.
type GeminiOption func(*Gemini)

// WithModel overrides the embedding model name.
func WithModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithTask sets the asymmetric embedding mode.
func WithTask(task Task) GeminiOption {
	return func(g *Gemini) {
		if task != "" {
			g.task = task
		}
	}
}

// WithDimensions overrides the requested vector width.
func WithDimensions(dims int) GeminiOption {
	return func(g *Gemini) {
		if dims > 0 {
			g.dims = dims
		}
	}
}

// WithBatchSize sets texts per request.
func WithBatchSize(size int) GeminiOption {
	return func(g *Gemini) {
		if size > 0 {
			g.batchSize = size
		}
	}
}

// WithBatchDelay sets the pause between batch requests.
func WithBatchDelay(d time.Duration) GeminiOption {
	return func(g *Gemini) {
		if d >= 0 {
			g.batchDelay = d
		}
	}
}

// WithTimeout bounds a single request attempt.
func WithTimeout(d time.Duration) GeminiOption {
	return func(g *Gemini) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) GeminiOption {
	return func(g *Gemini) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGemini creates a Gemini-backed embedder. The API key is required;
// callers that cannot supply one should fall back to the static
// backend via the factory.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.ConfigError("Gemini embeddings require an API key", nil).
			WithSuggestion("set GEMINI_API_KEY or switch embeddings.provider to static")
	}

	g := &Gemini{
		model:      defaultEmbedModel,
		dims:       DefaultDimensions,
		task:       TaskDocument,
		batchSize:  DefaultBatchSize,
		batchDelay: defaultBatchDelay,
		timeout:    defaultEmbedTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.ConfigError("failed to create Gemini embedding client", err)
	}
	g.client = client
	return g, nil
}

// Embed generates the embedding for a single text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving input
// order. Requests are split into batches; rate-limit and timeout
// failures retry with backoff.
func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return nil, errors.InternalError("embedder is closed", nil)
	}
	g.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := g.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)

		if end < len(texts) && g.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.batchDelay):
			}
		}
	}
	return results, nil
}

// embedOnce sends one batch with retry on retryable failures.
func (g *Gemini) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := errors.RetryIfRetryable(ctx, errors.LLMRetryConfig(), func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		vectors, err := g.embed(attemptCtx, texts)
		if err != nil {
			return err
		}
		out = vectors
		return nil
	})
	if err != nil {
		g.logger.Warn("embedding request failed",
			slog.String("model", g.model),
			slog.Int("texts", len(texts)),
			slog.String("error", err.Error()))
		return nil, err
	}
	return out, nil
}

func (g *Gemini) embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{
		TaskType:             string(g.task),
		OutputDimensionality: genai.Ptr(int32(g.dims)),
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, llm.ClassifyAPIError(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, errors.New(errors.ErrCodeLLMResponseInvalid,
			"embedding count mismatch", nil).
			WithDetail("want", strconv.Itoa(len(texts))).
			WithDetail("got", strconv.Itoa(len(resp.Embeddings)))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, errors.New(errors.ErrCodeLLMResponseInvalid,
				"empty embedding in response", nil).
				WithDetail("index", strconv.Itoa(i))
		}
		vectors[i] = normalizeVector(emb.Values)
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (g *Gemini) Dimensions() int {
	return g.dims
}

// ModelName returns the model identifier.
func (g *Gemini) ModelName() string {
	return g.model
}

// Available reports local readiness. Network reachability is checked
// separately by the doctor command.
func (g *Gemini) Available(_ context.Context) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return !g.closed && g.client != nil
}

// Close releases resources.
func (g *Gemini) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}
