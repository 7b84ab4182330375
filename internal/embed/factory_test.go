package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopsteward/steward/internal/config"
	"github.com/shopsteward/steward/internal/errors"
)

var (
	_ Embedder = (*Static)(nil)
	_ Embedder = (*Gemini)(nil)
	_ Embedder = (*Cached)(nil)
)

func TestNew_AutoDetectsStaticWithoutKey(t *testing.T) {
	e, err := New(context.Background(), config.EmbeddingsConfig{}, "", TaskQuery, nil)
	require.NoError(t, err)

	assert.Equal(t, "static", e.ModelName())
	assert.Equal(t, DefaultDimensions, e.Dimensions())

	cached, ok := e.(*Cached)
	require.True(t, ok)
	assert.IsType(t, &Static{}, cached.Inner())
}

func TestNew_AutoDetectsGeminiWithKey(t *testing.T) {
	e, err := New(context.Background(), config.EmbeddingsConfig{}, "test-key", TaskDocument, nil)
	require.NoError(t, err)

	assert.Equal(t, defaultEmbedModel, e.ModelName())
	assert.Equal(t, DefaultDimensions, e.Dimensions())

	cached, ok := e.(*Cached)
	require.True(t, ok)
	assert.IsType(t, &Gemini{}, cached.Inner())
}

func TestNew_ExplicitStaticIgnoresKey(t *testing.T) {
	cfg := config.EmbeddingsConfig{Provider: "static"}

	e, err := New(context.Background(), cfg, "test-key", TaskQuery, nil)
	require.NoError(t, err)
	assert.Equal(t, "static", e.ModelName())
}

func TestNew_GeminiRequiresKey(t *testing.T) {
	cfg := config.EmbeddingsConfig{Provider: "gemini"}

	_, err := New(context.Background(), cfg, "", TaskQuery, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := config.EmbeddingsConfig{Provider: "chroma"}

	_, err := New(context.Background(), cfg, "test-key", TaskQuery, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestNew_AppliesConfigOverrides(t *testing.T) {
	cfg := config.EmbeddingsConfig{
		Provider:   "gemini",
		Model:      "gemini-embedding-001",
		Dimensions: 1536,
	}

	e, err := New(context.Background(), cfg, "test-key", TaskDocument, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini-embedding-001", e.ModelName())
	assert.Equal(t, 1536, e.Dimensions())
}

func TestParseProvider(t *testing.T) {
	assert.Equal(t, ProviderGemini, ParseProvider("gemini"))
	assert.Equal(t, ProviderGemini, ParseProvider("  GEMINI "))
	assert.Equal(t, ProviderStatic, ParseProvider("static"))
	assert.Equal(t, Provider(""), ParseProvider(""))
	assert.Equal(t, Provider(""), ParseProvider("chroma"))
}
