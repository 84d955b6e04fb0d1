package engine

import (
	"context"
	"sort"

	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/search"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

// SearchRequest describes one kNN query. Exactly one of Vector and
// Text must be set; Text is embedded with the engine's embedder
// before ranking. Metric nil means the table's default metric.
type SearchRequest struct {
	Table  string
	Vector []float32
	Text   string
	K      int
	Metric *types.Metric
	Filter search.Filter
}

// SearchResult is one kNN hit with the row's payload attached.
type SearchResult struct {
	RowID    int64
	Distance float64
	Payload  types.Payload
}

// Search runs a brute-force kNN over the table's Ready vectors.
// Candidates pass through the shared visibility rule, so tombstoned
// rows and superseded versions never rank. Results come back in
// non-decreasing distance order under the NaN-last total order.
func (e *Engine) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	t, err := e.getTable(req.Table)
	if err != nil {
		return nil, err
	}
	if t.spec == nil {
		return nil, errors.InvalidArgument("table %q has no embedding spec", req.Table)
	}
	if req.K < 0 {
		return nil, errors.InvalidArgument("k must be non-negative, got %d", req.K)
	}

	query := req.Vector
	switch {
	case query != nil && req.Text != "":
		return nil, errors.InvalidArgument("search takes a vector or text, not both")
	case query == nil && req.Text == "":
		return nil, errors.InvalidArgument("search requires a vector or text")
	case query == nil:
		query, err = e.embedder.Embed(ctx, req.Text)
		if err != nil {
			return nil, errors.Embedder("embedding query text: %v", err)
		}
	}

	metric := t.spec.DefaultMetric
	if req.Metric != nil {
		metric = *req.Metric
	}

	rowIDs := make([]int64, 0, len(t.embedding))
	for rowID, m := range t.embedding {
		if m.Status == types.JobReady && m.Vector != nil {
			rowIDs = append(rowIDs, rowID)
		}
	}
	sort.Slice(rowIDs, func(i, j int) bool { return rowIDs[i] < rowIDs[j] })

	candidates := make([]search.Candidate, 0, len(rowIDs))
	payloads := make(map[int64]types.Payload, len(rowIDs))
	for _, rowID := range rowIDs {
		entry, found, err := e.lookupRow(t, rowID)
		if err != nil {
			return nil, err
		}
		if !found || entry.IsTombstone() {
			continue
		}
		candidates = append(candidates, search.Candidate{
			RowID:   rowID,
			Vector:  t.embedding[rowID].Vector,
			Payload: entry.Payload,
		})
		payloads[rowID] = entry.Payload
	}

	hits, err := search.TopK(query, candidates, req.K, metric, req.Filter)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{
			RowID:    h.RowID,
			Distance: h.Distance,
			Payload:  payloads[h.RowID].Clone(),
		})
	}
	return results, nil
}
