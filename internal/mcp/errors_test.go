package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stewerrors "github.com/shopsteward/steward/internal/errors"
)

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_GenerationMissing(t *testing.T) {
	err := stewerrors.New(stewerrors.ErrCodeGenerationMissing, "no generation published", nil)

	mcpErr := MapError(err)
	require.NotNil(t, mcpErr)
	assert.Equal(t, ErrCodeNoGeneration, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "steward ingest")
}

func TestMapError_CorruptIndexCarriesSuggestion(t *testing.T) {
	err := stewerrors.New(stewerrors.ErrCodeCorruptIndex, "chunk snapshot is unreadable", nil).
		WithSuggestion("re-run 'steward ingest' to publish a fresh generation")

	mcpErr := MapError(err)
	require.NotNil(t, mcpErr)
	assert.Equal(t, ErrCodeCorruptGeneration, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "chunk snapshot is unreadable")
	assert.Contains(t, mcpErr.Message, "re-run 'steward ingest'")
}

func TestMapError_StorageDefaultIsInternal(t *testing.T) {
	err := stewerrors.New(stewerrors.ErrCodeFileNotFound, "contract file missing", nil)

	mcpErr := MapError(err)
	assert.Equal(t, ErrCodeInternalError, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "contract file missing")
}

func TestMapError_ValidationIsInvalidParams(t *testing.T) {
	err := stewerrors.New(stewerrors.ErrCodeQueryEmpty, "query cannot be empty", nil)

	mcpErr := MapError(err)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "query cannot be empty")
}

func TestMapError_NetworkIsTimeout(t *testing.T) {
	err := stewerrors.New(stewerrors.ErrCodeNetworkTimeout, "model call timed out", nil)

	mcpErr := MapError(err)
	assert.Equal(t, ErrCodeTimeout, mcpErr.Code)
}

func TestMapError_ConfigIsInternal(t *testing.T) {
	err := stewerrors.New(stewerrors.ErrCodeConfigInvalid, "bad config", nil)

	mcpErr := MapError(err)
	assert.Equal(t, ErrCodeInternalError, mcpErr.Code)
}

func TestMapError_WrappedStewardErrorUnwraps(t *testing.T) {
	inner := stewerrors.New(stewerrors.ErrCodeGenerationMissing, "no generation published", nil)
	wrapped := fmt.Errorf("loading stack: %w", inner)

	mcpErr := MapError(wrapped)
	assert.Equal(t, ErrCodeNoGeneration, mcpErr.Code)
}

func TestMapError_Sentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"no generation", ErrNoGeneration, ErrCodeNoGeneration},
		{"wrapped no generation", fmt.Errorf("serve: %w", ErrNoGeneration), ErrCodeNoGeneration},
		{"article not found", ErrArticleNotFound, ErrCodeArticleNotFound},
		{"deadline exceeded", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"unknown", errors.New("boom"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mcpErr := MapError(tt.err)
			require.NotNil(t, mcpErr)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}
}

func TestMCPError_ErrorString(t *testing.T) {
	err := &MCPError{Code: ErrCodeInvalidParams, Message: "query is required"}
	assert.Equal(t, "MCP error -32602: query is required", err.Error())
}

func TestNewInvalidParamsError(t *testing.T) {
	err := NewInvalidParamsError("top_k out of range")
	assert.Equal(t, ErrCodeInvalidParams, err.Code)
	assert.Equal(t, "top_k out of range", err.Message)
}

func TestNewArticleNotFoundError(t *testing.T) {
	err := NewArticleNotFoundError(7)
	assert.Equal(t, ErrCodeArticleNotFound, err.Code)
	assert.Contains(t, err.Message, "Article 7")
	assert.Contains(t, err.Message, "contract_info")
}

func TestNewResourceNotFoundError(t *testing.T) {
	err := NewResourceNotFoundError("contract://article/99")
	assert.Equal(t, ErrCodeMethodNotFound, err.Code)
	assert.Contains(t, err.Message, "contract://article/99")
}
