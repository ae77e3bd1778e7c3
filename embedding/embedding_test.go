package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	t.Parallel()

	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashEmbedder_DefaultDims(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultDims, NewHashEmbedder(0).Dims())
	assert.Equal(t, DefaultDims, NewHashEmbedder(-5).Dims())
	assert.Equal(t, 128, NewHashEmbedder(128).Dims())
}

func TestHashEmbedder_Normalized(t *testing.T) {
	t.Parallel()

	e := NewHashEmbedder(DefaultDims)
	vec, err := e.Embed(context.Background(), "normalize this sentence please")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashEmbedder_SharedTokensAreCloser(t *testing.T) {
	t.Parallel()

	e := NewHashEmbedder(DefaultDims)
	ctx := context.Background()

	base, err := e.Embed(ctx, "the cat sat on the mat")
	require.NoError(t, err)
	similar, err := e.Embed(ctx, "the cat sat on a mat")
	require.NoError(t, err)
	distant, err := e.Embed(ctx, "quarterly revenue projections spreadsheet")
	require.NoError(t, err)

	assert.Greater(t, dot(base, similar), dot(base, distant))
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	t.Parallel()

	e := NewHashEmbedder(32)
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, vec, 32)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestHashEmbedder_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHashEmbedder(32).Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
