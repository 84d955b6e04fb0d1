// Package embedding defines the pluggable embedder contract and the
// deterministic hashing embedder the engine ships with, plus the
// content-hash and text-rendering helpers the job engine uses to
// decide when a row needs re-embedding.
package embedding

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/sarveshkapre/embeddb/pkg/types"
)

// Embedder converts text into a fixed-dimension vector. It is treated
// as an external, potentially fallible function; the job engine maps
// its failures into retry/backoff state rather than surfacing them to
// the mutation caller.
type Embedder interface {
	// Embed returns the vector for text. Must return vectors of a
	// single consistent dimension for the lifetime of the value.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the length of the vectors Embed produces.
	Dimension() int
}

// FuncEmbedder adapts a plain function into an Embedder, so a host
// can plug in a model client without declaring a named type.
type FuncEmbedder struct {
	Fn  func(ctx context.Context, text string) ([]float32, error)
	Dim int
}

func (f FuncEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.Fn(ctx, text)
}

func (f FuncEmbedder) Dimension() int { return f.Dim }

// RenderSourceText concatenates the string renderings of a row's
// embedding source columns, in spec order, separated by a newline.
// Missing or null columns render as empty strings so the text (and
// therefore the content hash) stays stable across schema-compatible
// payloads.
func RenderSourceText(payload types.Payload, sourceColumns []string) string {
	parts := make([]string, len(sourceColumns))
	for i, col := range sourceColumns {
		parts[i] = renderValue(payload[col])
	}
	return strings.Join(parts, "\n")
}

func renderValue(v types.Value) string {
	switch v.Kind {
	case types.KindNull:
		return ""
	case types.KindInt64:
		return strconv.FormatInt(v.Int, 10)
	case types.KindFloat64:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case types.KindBool:
		return strconv.FormatBool(v.Bool)
	case types.KindString:
		return v.Str
	case types.KindBytes:
		return string(v.Bytes)
	default:
		return ""
	}
}

// ContentHash computes the stable 64-bit hash of a row's rendered
// source text. Equal hashes mean the row does not need re-embedding.
func ContentHash(payload types.Payload, sourceColumns []string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(RenderSourceText(payload, sourceColumns)))
	return h.Sum64()
}
