// Package llm wraps Gemini text generation behind a small client
// interface. Every retrieval component that talks to the model
// (interpreter, reranker, hypothesis, enrichment) goes through Client,
// so tests swap in a scripted fake and a dead API degrades cleanly.
package llm

import (
	"context"
	"time"
)

// Request carries the knobs for one generation call.
type Request struct {
	// System is the system instruction, empty for none.
	System string
	// Prompt is the user prompt.
	Prompt string
	// Temperature in [0,1]; callers always set it explicitly.
	Temperature float32
	// MaxTokens caps the response, 0 for the model default.
	MaxTokens int32
	// JSON requests an application/json response.
	JSON bool
	// Timeout bounds this call; 0 uses the client default.
	Timeout time.Duration
}

// Client generates text completions.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}
