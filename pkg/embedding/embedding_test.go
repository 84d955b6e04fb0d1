package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

func TestRenderSourceText(t *testing.T) {
	payload := types.Payload{
		"title": types.StringValue("Hello"),
		"body":  types.StringValue("World"),
		"age":   types.IntValue(21),
		"score": types.FloatValue(1.5),
		"ok":    types.BoolValue(true),
		"nul":   types.NullValue(),
	}

	assert.Equal(t, "Hello\nWorld", RenderSourceText(payload, []string{"title", "body"}))
	assert.Equal(t, "21\n1.5\ntrue", RenderSourceText(payload, []string{"age", "score", "ok"}))
	// Missing and null columns render empty but keep their slot.
	assert.Equal(t, "\nHello\n", RenderSourceText(payload, []string{"missing", "title", "nul"}))
}

func TestContentHashStability(t *testing.T) {
	p1 := types.Payload{"title": types.StringValue("Hello"), "body": types.StringValue("World")}
	p2 := types.Payload{"body": types.StringValue("World"), "title": types.StringValue("Hello")}
	p3 := types.Payload{"title": types.StringValue("Hi"), "body": types.StringValue("World")}

	cols := []string{"title", "body"}
	assert.Equal(t, ContentHash(p1, cols), ContentHash(p2, cols))
	assert.NotEqual(t, ContentHash(p1, cols), ContentHash(p3, cols))
}

func TestContentHashIgnoresNonSourceColumns(t *testing.T) {
	p1 := types.Payload{"title": types.StringValue("Hello"), "views": types.IntValue(1)}
	p2 := types.Payload{"title": types.StringValue("Hello"), "views": types.IntValue(99)}
	assert.Equal(t, ContentHash(p1, []string{"title"}), ContentHash(p2, []string{"title"}))
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e, err := NewHashEmbedder(64)
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimension())

	v1, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	require.Len(t, v1, 64)

	v3, err := e.Embed(context.Background(), "something else entirely")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v3)
}

func TestHashEmbedderUnitNorm(t *testing.T) {
	e, err := NewHashEmbedder(32)
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "the quick brown fox jumps over the lazy dog")
	require.NoError(t, err)

	var norm float64
	for _, f := range vec {
		norm += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestHashEmbedderEmptyText(t *testing.T) {
	e, err := NewHashEmbedder(16)
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	for _, f := range vec {
		assert.Equal(t, float32(0), f)
		assert.False(t, math.IsNaN(float64(f)))
	}
}

func TestHashEmbedderRejectsBadDimension(t *testing.T) {
	_, err := NewHashEmbedder(0)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	_, err = NewHashEmbedder(-3)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestFuncEmbedder(t *testing.T) {
	fe := FuncEmbedder{
		Fn:  func(_ context.Context, _ string) ([]float32, error) { return []float32{1, 2, 3}, nil },
		Dim: 3,
	}
	vec, err := fe.Embed(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, 3, fe.Dimension())
}
