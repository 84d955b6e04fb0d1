package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	// Zero vector yields NaN, never a panic.
	assert.True(t, math.IsNaN(CosineDistance([]float32{0, 0}, []float32{1, 0})))
}

func TestL2Distance(t *testing.T) {
	assert.InDelta(t, 0, L2Distance([]float32{1, 2}, []float32{1, 2}), 1e-9)
	assert.InDelta(t, 5, L2Distance([]float32{0, 0}, []float32{3, 4}), 1e-9)
}

func TestProvider(t *testing.T) {
	_, err := Provider(types.MetricCosine)
	assert.NoError(t, err)
	_, err = Provider(types.MetricL2)
	assert.NoError(t, err)
	_, err = Provider(types.Metric(99))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestLessNaNLast(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)
	assert.True(t, Less(1.0, 2.0))
	assert.False(t, Less(2.0, 1.0))
	assert.True(t, Less(5.0, nan))
	assert.False(t, Less(nan, 5.0))
	assert.True(t, Less(5.0, inf))
	assert.False(t, Less(nan, nan))
	assert.False(t, Less(nan, inf))
}

func candidateSet() []Candidate {
	return []Candidate{
		{RowID: 1, Vector: []float32{1, 0}, Payload: types.Payload{"age": types.IntValue(30)}},
		{RowID: 2, Vector: []float32{0, 1}, Payload: types.Payload{"age": types.IntValue(18)}},
		{RowID: 3, Vector: []float32{0.9, 0.1}, Payload: types.Payload{"age": types.IntValue(25)}},
	}
}

func TestTopKOrdering(t *testing.T) {
	results, err := TopK([]float32{1, 0}, candidateSet(), 3, types.MetricCosine, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(1), results[0].RowID)
	assert.Equal(t, int64(3), results[1].RowID)
	assert.Equal(t, int64(2), results[2].RowID)
	for i := 1; i < len(results); i++ {
		assert.False(t, Less(results[i].Distance, results[i-1].Distance))
	}
}

func TestTopKZeroK(t *testing.T) {
	results, err := TopK([]float32{1, 0}, candidateSet(), 0, types.MetricCosine, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTopKNegativeK(t *testing.T) {
	_, err := TopK([]float32{1, 0}, candidateSet(), -1, types.MetricCosine, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestTopKLargerThanCandidates(t *testing.T) {
	results, err := TopK([]float32{1, 0}, candidateSet(), 10, types.MetricL2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestTopKEmptyCandidates(t *testing.T) {
	results, err := TopK([]float32{1, 0}, nil, 5, types.MetricCosine, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTopKDimensionMismatch(t *testing.T) {
	_, err := TopK([]float32{1, 0, 0}, candidateSet(), 2, types.MetricCosine, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestTopKWithFilter(t *testing.T) {
	filter := Filter{{Column: "age", Op: OpGte, Value: types.IntValue(21)}}
	results, err := TopK([]float32{1, 0}, candidateSet(), 3, types.MetricCosine, filter)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].RowID)
	assert.Equal(t, int64(3), results[1].RowID)
}

func TestTopKAllFilteredOut(t *testing.T) {
	filter := Filter{{Column: "age", Op: OpGt, Value: types.IntValue(100)}}
	results, err := TopK([]float32{1, 0}, candidateSet(), 3, types.MetricCosine, filter)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTopKNaNCandidateSortsLast(t *testing.T) {
	candidates := append(candidateSet(), Candidate{
		RowID: 4, Vector: []float32{0, 0}, // NaN cosine distance
		Payload: types.Payload{"age": types.IntValue(40)},
	})

	results, err := TopK([]float32{1, 0}, candidates, 3, types.MetricCosine, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NotEqual(t, int64(4), r.RowID)
	}

	// With k covering every candidate, the NaN row appears strictly last.
	results, err = TopK([]float32{1, 0}, candidates, 4, types.MetricCosine, nil)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, int64(4), results[3].RowID)
	assert.True(t, math.IsNaN(results[3].Distance))
}

func TestFilterNumericPromotion(t *testing.T) {
	payload := types.Payload{"score": types.FloatValue(2.5)}

	ok, err := Filter{{Column: "score", Op: OpGt, Value: types.IntValue(2)}}.Matches(payload)
	require.NoError(t, err)
	assert.True(t, ok)

	payload = types.Payload{"count": types.IntValue(3)}
	ok, err = Filter{{Column: "count", Op: OpLte, Value: types.FloatValue(3.0)}}.Matches(payload)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilterStringVsNumericRejected(t *testing.T) {
	payload := types.Payload{"name": types.StringValue("bob")}
	_, err := Filter{{Column: "name", Op: OpEq, Value: types.IntValue(1)}}.Matches(payload)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestFilterStringComparison(t *testing.T) {
	payload := types.Payload{"name": types.StringValue("bob")}

	ok, err := Filter{{Column: "name", Op: OpEq, Value: types.StringValue("bob")}}.Matches(payload)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Filter{{Column: "name", Op: OpLt, Value: types.StringValue("carol")}}.Matches(payload)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilterBoolOnlyEquality(t *testing.T) {
	payload := types.Payload{"done": types.BoolValue(true)}

	ok, err := Filter{{Column: "done", Op: OpEq, Value: types.BoolValue(true)}}.Matches(payload)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Filter{{Column: "done", Op: OpLt, Value: types.BoolValue(false)}}.Matches(payload)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestFilterMissingColumn(t *testing.T) {
	payload := types.Payload{"age": types.IntValue(30)}

	ok, err := Filter{{Column: "missing", Op: OpEq, Value: types.IntValue(1)}}.Matches(payload)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Filter{{Column: "missing", Op: OpNe, Value: types.IntValue(1)}}.Matches(payload)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilterConjunction(t *testing.T) {
	payload := types.Payload{"age": types.IntValue(30), "name": types.StringValue("bob")}
	filter := Filter{
		{Column: "age", Op: OpGte, Value: types.IntValue(21)},
		{Column: "name", Op: OpEq, Value: types.StringValue("bob")},
	}
	ok, err := filter.Matches(payload)
	require.NoError(t, err)
	assert.True(t, ok)

	filter[1].Value = types.StringValue("carol")
	ok, err = filter.Matches(payload)
	require.NoError(t, err)
	assert.False(t, ok)
}
