package llm

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/shopsteward/steward/internal/errors"
)

const defaultModel = "gemini-2.0-flash-lite"

// Gemini calls the Gemini API. Rate limits retry with 2s/4s/8s backoff;
// three consecutive failures open a circuit breaker for 30s so a dead
// API degrades retrieval instead of stalling every query on it.
type Gemini struct {
	client         *genai.Client
	model          string
	breaker        *errors.CircuitBreaker
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// GeminiOption configures a Gemini client.
type GeminiOption func(*Gemini)

// WithDefaultTimeout sets the deadline used when a request carries none.
func WithDefaultTimeout(d time.Duration) GeminiOption {
	return func(g *Gemini) {
		if d > 0 {
			g.defaultTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GeminiOption {
	return func(g *Gemini) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithBreaker tunes the circuit breaker thresholds.
func WithBreaker(maxFailures int, resetTimeout time.Duration) GeminiOption {
	return func(g *Gemini) {
		g.breaker = errors.NewCircuitBreaker("gemini",
			errors.WithMaxFailures(maxFailures),
			errors.WithResetTimeout(resetTimeout))
	}
}

// NewGemini creates a Gemini client. The API key is required; model
// defaults to gemini-2.0-flash-lite.
func NewGemini(ctx context.Context, apiKey, model string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.ConfigError("no Gemini API key configured", nil).
			WithSuggestion("set GEMINI_API_KEY (or the variable named by llm.api_key_env)")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.NetworkError("failed to create Gemini client", err)
	}

	g := &Gemini{
		client:         client,
		model:          model,
		breaker:        errors.NewCircuitBreaker("gemini"),
		defaultTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Generate runs one completion through the breaker. Each attempt gets
// its own deadline so a retried call does not inherit a spent one.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.defaultTimeout
	}

	return errors.CircuitExecuteWithResult(g.breaker, func() (string, error) {
		var out string
		err := errors.RetryIfRetryable(ctx, errors.LLMRetryConfig(), func() error {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			text, err := g.generate(callCtx, req)
			if err != nil {
				return err
			}
			out = text
			return nil
		})
		if err != nil {
			g.logger.Warn("generation failed",
				slog.String("model", g.model),
				slog.String("error", err.Error()))
			return "", err
		}
		return out, nil
	}, func() (string, error) {
		return "", errors.New(errors.ErrCodeNetworkUnavailable,
			"LLM circuit open, skipping call", errors.ErrCircuitOpen)
	})
}

func (g *Gemini) generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", ClassifyAPIError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New(errors.ErrCodeLLMResponseInvalid, "empty response from model", nil)
	}
	return text, nil
}

// ClassifyAPIError maps transport failures onto the retry taxonomy:
// rate limits and timeouts retry, everything else surfaces as-is.
func ClassifyAPIError(err error) error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "429"),
		strings.Contains(lower, "quota"),
		strings.Contains(lower, "resource_exhausted"):
		return errors.RateLimitError("Gemini rate limited", err)
	case stderrors.Is(err, context.DeadlineExceeded),
		strings.Contains(lower, "deadline exceeded"),
		strings.Contains(lower, "timeout"):
		return errors.NetworkError("Gemini request timed out", err)
	default:
		return errors.New(errors.ErrCodeLLMResponseInvalid, "Gemini request failed", err)
	}
}
