package search

import (
	"sort"

	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

// Candidate is one row offered to TopK: its id, its Ready vector, and
// the payload the filter evaluates against.
type Candidate struct {
	RowID   int64
	Vector  []float32
	Payload types.Payload
}

// Result is one kNN hit.
type Result struct {
	RowID    int64
	Distance float64
}

// TopK ranks candidates against query and returns the k nearest that
// pass the filter, ordered by the NaN-last total order (ties broken
// by row id for stable output). Candidates whose vector length
// differs from the query's are a caller error.
func TopK(query []float32, candidates []Candidate, k int, metric types.Metric, filter Filter) ([]Result, error) {
	if k < 0 {
		return nil, errors.InvalidArgument("k must be non-negative, got %d", k)
	}
	dist, err := Provider(metric)
	if err != nil {
		return nil, err
	}
	if k == 0 || len(candidates) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(query) {
			return nil, errors.InvalidArgument(
				"dimension mismatch: query has %d, row %d has %d", len(query), c.RowID, len(c.Vector))
		}
		ok, err := filter.Matches(c.Payload)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		results = append(results, Result{RowID: c.RowID, Distance: dist(query, c.Vector)})
	}

	sort.Slice(results, func(i, j int) bool {
		di, dj := results[i].Distance, results[j].Distance
		if Less(di, dj) {
			return true
		}
		if Less(dj, di) {
			return false
		}
		return results[i].RowID < results[j].RowID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
