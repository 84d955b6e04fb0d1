// Package search implements brute-force kNN over stored vectors with
// cosine or L2 distance, an optional scalar filter, and an ordering
// that is total even in the presence of NaN distances.
package search

import (
	"math"

	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

// DistanceFunc computes the distance between two equal-length vectors.
// Smaller is closer for both supported metrics.
type DistanceFunc func(a, b []float32) float64

// Provider returns the distance function for a metric.
func Provider(metric types.Metric) (DistanceFunc, error) {
	switch metric {
	case types.MetricCosine:
		return CosineDistance, nil
	case types.MetricL2:
		return L2Distance, nil
	default:
		return nil, errors.InvalidArgument("unknown distance metric %d", metric)
	}
}

// CosineDistance returns 1 - cos(a, b). A zero-magnitude input yields
// NaN, which the NaN-last ordering keeps out of winning positions.
func CosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// L2Distance returns the Euclidean distance between a and b.
func L2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Less is the total order used to rank results: finite distances
// ascend, and non-finite distances (NaN, ±Inf from pathological
// inputs) sort strictly after every finite one, so they never win
// over a finite result.
func Less(a, b float64) bool {
	aBad := math.IsNaN(a) || math.IsInf(a, 0)
	bBad := math.IsNaN(b) || math.IsInf(b, 0)
	if aBad != bBad {
		return bBad
	}
	if aBad {
		return false
	}
	return a < b
}
