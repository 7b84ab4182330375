package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder delegates to the static embedder while recording
// how often the inner backend is actually hit.
type countingEmbedder struct {
	inner      *Static
	name       string
	embedCalls int
	batchCalls int
	lastBatch  []string
}

func newCountingEmbedder(name string) *countingEmbedder {
	return &countingEmbedder{inner: NewStatic(), name: name}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedCalls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	c.lastBatch = texts
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *countingEmbedder) ModelName() string                  { return c.name }
func (c *countingEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }
func (c *countingEmbedder) Close() error                       { return c.inner.Close() }

func TestCached_EmbedHitsCache(t *testing.T) {
	counting := newCountingEmbedder("test-model")
	cached := NewCached(counting, 10)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "overtime rate")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "overtime rate")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, counting.embedCalls)
}

func TestCached_BatchOnlyForwardsMisses(t *testing.T) {
	counting := newCountingEmbedder("test-model")
	cached := NewCached(counting, 10)
	ctx := context.Background()

	warm, err := cached.Embed(ctx, "vacation")
	require.NoError(t, err)

	results, err := cached.EmbedBatch(ctx, []string{"vacation", "holiday", "seniority"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Only the two misses reach the backend; the cached entry keeps
	// its slot in the output.
	assert.Equal(t, []string{"holiday", "seniority"}, counting.lastBatch)
	assert.Equal(t, warm, results[0])
	assert.NotNil(t, results[1])
	assert.NotNil(t, results[2])
}

func TestCached_FullyCachedBatchSkipsBackend(t *testing.T) {
	counting := newCountingEmbedder("test-model")
	cached := NewCached(counting, 10)
	ctx := context.Background()

	texts := []string{"grievance", "arbitration"}
	first, err := cached.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	second, err := cached.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, counting.batchCalls)
}

func TestCached_KeyIncludesModel(t *testing.T) {
	a := NewCached(newCountingEmbedder("model-a"), 10)
	b := NewCached(newCountingEmbedder("model-b"), 10)

	assert.NotEqual(t, a.cacheKey("overtime"), b.cacheKey("overtime"))
}

func TestCached_Passthroughs(t *testing.T) {
	counting := newCountingEmbedder("test-model")
	cached := NewCached(counting, 0)

	assert.Equal(t, DefaultDimensions, cached.Dimensions())
	assert.Equal(t, "test-model", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, counting, cached.Inner())

	require.NoError(t, cached.Close())
	assert.False(t, cached.Available(context.Background()))
}
