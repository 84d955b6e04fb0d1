package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/sarveshkapre/embeddb/pkg/errors"
)

// DefaultDimension is the vector size HashEmbedder produces unless
// configured otherwise.
const DefaultDimension = 128

// HashEmbedder is the deterministic default embedder: each whitespace
// token is feature-hashed into one of dim buckets with a ±1 sign, and
// the resulting vector is L2-normalized. Identical text always yields
// an identical unit-norm vector, which is what checkpoint/restore
// round-trip tests and local-first use need; it makes no claim to
// semantic quality.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder with the given dimension.
func NewHashEmbedder(dim int) (*HashEmbedder, error) {
	if dim <= 0 {
		return nil, errors.InvalidArgument("embedder dimension must be positive, got %d", dim)
	}
	return &HashEmbedder{dim: dim}, nil
}

// Dimension returns the configured vector size.
func (e *HashEmbedder) Dimension() int { return e.dim }

// Embed feature-hashes text into a unit-norm vector. The zero vector
// (empty or all-whitespace text) is returned as-is rather than
// normalized, so callers never see NaNs from a 0/0.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dim))
		if sum&(1<<63) != 0 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}

	var norm float64
	for _, f := range vec {
		norm += float64(f) * float64(f)
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}
	return vec, nil
}
