package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inventory-sim/inventory-sim/sim/internal/testutil"
)

func int64Ptr(v int64) *int64 { return &v }

func stepTrainingSet(t *testing.T, n int, seed uint64) *TrainingSet {
	t.Helper()
	x, y := testutil.StepDemand(n, seed)
	ts, err := NewTrainingSetFromRows(x, y)
	require.NoError(t, err)
	return ts
}

func testForestConfig(wf WeightFunction) ForestConfig {
	return ForestConfig{NEstimators: 20, RandomState: int64Ptr(42), WeightFunction: wf, MinSamplesLeaf: 2}
}

func TestUniformWeighter_EqualWeights(t *testing.T) {
	// GIVEN a uniform weighter fitted on four samples
	ts, err := NewTrainingSetFromRows([][]float64{{1}, {2}, {3}, {4}}, [][]float64{{1}, {2}, {3}, {4}})
	require.NoError(t, err)
	w := &UniformWeighter{}
	require.NoError(t, w.Fit(ts))

	// WHEN computing weights for any query
	d1, err := w.ComputeWeights([]float64{100})
	require.NoError(t, err)
	d2, err := w.ComputeWeights(nil)
	require.NoError(t, err)

	// THEN every sample has weight 1/N and the query is ignored
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, d1.Weights)
	assert.Equal(t, []int{0, 1, 2, 3}, d1.Indices)
	assert.Equal(t, d1, d2)
}

func TestUniformWeighter_NotFitted(t *testing.T) {
	_, err := (&UniformWeighter{}).ComputeWeights([]float64{1})
	assert.ErrorIs(t, err, ErrModelNotFitted)
}

func TestNewSampleWeighter_UnknownKind(t *testing.T) {
	_, err := NewSampleWeighter("knn", ForestConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewSampleWeighter_InvalidForestConfig(t *testing.T) {
	_, err := NewSampleWeighter(WeighterRandomForest, ForestConfig{MinSamplesSplit: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCoOccurrenceWeights_W1AndW2(t *testing.T) {
	// GIVEN two trees; the query lands in leaf 1 of tree 0 (3 training
	// samples) and leaf 3 of tree 1 (2 training samples)
	train := [][]int{{1, 3}, {1, 4}, {1, 5}, {2, 3}, {9, 9}}
	query := []int{1, 3}

	// WHEN normalising per tree (w1)
	w1 := coOccurrenceWeights(train, query, WeightFunctionW1)

	// THEN each tree votes 1/leaf size and trees are averaged
	assert.Equal(t, []int{0, 1, 2, 3}, w1.Indices)
	assert.InDeltaSlice(t, []float64{5.0 / 12, 1.0 / 6, 1.0 / 6, 1.0 / 4}, w1.Weights, 1e-12)

	// WHEN normalising by the global match count (w2)
	w2 := coOccurrenceWeights(train, query, WeightFunctionW2)

	// THEN every match counts the same
	assert.Equal(t, []int{0, 1, 2, 3}, w2.Indices)
	assert.InDeltaSlice(t, []float64{0.4, 0.2, 0.2, 0.2}, w2.Weights, 1e-12)
}

func TestModelDrivenWeighter_WeightsSumToOne(t *testing.T) {
	ts := stepTrainingSet(t, 200, 1)
	for _, wf := range []WeightFunction{WeightFunctionW1, WeightFunctionW2} {
		t.Run(string(wf), func(t *testing.T) {
			// GIVEN a random-forest weighter fitted on step demand
			w, err := NewSampleWeighter(WeighterRandomForest, testForestConfig(wf))
			require.NoError(t, err)
			require.NoError(t, w.Fit(ts))

			for _, q := range []float64{0.5, 4.9, 5.1, 9.5} {
				// WHEN computing weights for a query
				d, err := w.ComputeWeights([]float64{q})
				require.NoError(t, err)

				// THEN weights are positive, indices ascending and the total is 1
				require.NotZero(t, d.Len())
				for i, wt := range d.Weights {
					assert.Greater(t, wt, 0.0)
					if i > 0 {
						assert.Greater(t, d.Indices[i], d.Indices[i-1])
					}
				}
				testutil.AssertFloat64Equal(t, "weight sum", 1, d.Sum(), 1e-9)
			}
		})
	}
}

func TestModelDrivenWeighter_QueryShapeAndState(t *testing.T) {
	w, err := NewSampleWeighter(WeighterDecisionTree, ForestConfig{RandomState: int64Ptr(1)})
	require.NoError(t, err)

	_, err = w.ComputeWeights([]float64{1})
	assert.ErrorIs(t, err, ErrModelNotFitted)

	require.NoError(t, w.Fit(stepTrainingSet(t, 50, 2)))
	_, err = w.ComputeWeights([]float64{1, 2})
	assert.ErrorIs(t, err, ErrInvalidShape)

	mw := w.(*ModelDrivenWeighter)
	assert.Equal(t, 1, mw.Model().NumEstimators())
	assert.Len(t, mw.TrainLeafIndices(), 50)
}

func TestModelDrivenWeighter_WeightsFollowTheRegime(t *testing.T) {
	// GIVEN demand near 10 below feature 5 and near 50 above
	ts := stepTrainingSet(t, 300, 3)
	w, err := NewSampleWeighter(WeighterRandomForest, testForestConfig(WeightFunctionW1))
	require.NoError(t, err)
	require.NoError(t, w.Fit(ts))

	// WHEN weighting a query deep in the high regime
	d, err := w.ComputeWeights([]float64{8})
	require.NoError(t, err)

	// THEN the median of the weighted outcomes is a high-regime demand
	q, err := SolveWeightedQuantiles(d.Weights, d.Indices, []float64{0.5}, ts.Y())
	require.NoError(t, err)
	assert.Greater(t, q[0], 40.0)
}
