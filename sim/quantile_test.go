package sim

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/inventory-sim/inventory-sim/sim/internal/testutil"
)

var scenarioErrors = map[string]error{
	"quantile_not_found": ErrQuantileNotFound,
	"invalid_shape":      ErrInvalidShape,
	"invalid_argument":   ErrInvalidArgument,
}

func TestSolveWeightedQuantiles_Scenarios(t *testing.T) {
	for _, sc := range testutil.LoadQuantileScenarios(t).Scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			y, err := DenseFromRows(sc.Y)
			require.NoError(t, err)

			got, err := SolveWeightedQuantiles(sc.Weights, sc.Indices, sc.Levels, y)

			if sc.WantErr != "" {
				want, ok := scenarioErrors[sc.WantErr]
				require.True(t, ok, "unknown want_err %q", sc.WantErr)
				assert.ErrorIs(t, err, want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, sc.Want, got)
		})
	}
}

func TestSolveWeightedQuantiles_ServiceLevelOneBelowTotal(t *testing.T) {
	// GIVEN weights whose sum is 0.999999999 because of rounding
	weights := []float64{0.5, 0.499999999}
	y := mat.NewDense(2, 1, []float64{3, 7})

	// WHEN solving at service level exactly 1.0
	_, err := SolveWeightedQuantiles(weights, []int{0, 1}, []float64{1.0}, y)

	// THEN a typed ErrQuantileNotFound is returned instead of an index panic
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuantileNotFound))
	assert.Contains(t, err.Error(), "total weight")
}

func TestSolveWeightedQuantiles_ShapeErrors(t *testing.T) {
	y := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	tests := []struct {
		name    string
		weights []float64
		indices []int
		levels  []float64
		y       *mat.Dense
	}{
		{"length mismatch", []float64{1}, []int{0, 1}, []float64{0.5}, y},
		{"nil targets", []float64{1}, []int{0}, []float64{0.5}, nil},
		{"negative index", []float64{1}, []int{-1}, []float64{0.5}, y},
		{"level count mismatch", []float64{1}, []int{0}, []float64{0.5, 0.5, 0.5}, y},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SolveWeightedQuantiles(tt.weights, tt.indices, tt.levels, tt.y)
			assert.ErrorIs(t, err, ErrInvalidShape)
		})
	}
}

func TestSolveWeightedQuantiles_RejectsBadLevelsAndWeights(t *testing.T) {
	y := mat.NewDense(2, 1, []float64{1, 2})
	_, err := SolveWeightedQuantiles([]float64{0.5, 0.5}, []int{0, 1}, []float64{1.5}, y)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = SolveWeightedQuantiles([]float64{-0.5, 1.5}, []int{0, 1}, []float64{0.5}, y)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSolveWeightedQuantiles_ReturnsObservedValue(t *testing.T) {
	// GIVEN random positive weights over random targets
	rng := rand.New(rand.NewPCG(11, 0))
	n := 50
	y := mat.NewDense(n, 2, nil)
	weights := make([]float64, n)
	indices := make([]int, n)
	for i := 0; i < n; i++ {
		y.Set(i, 0, rng.NormFloat64()*10)
		y.Set(i, 1, float64(rng.IntN(20)))
		weights[i] = rng.Float64() + 0.01
		indices[i] = i
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	for i := range weights {
		weights[i] /= total
	}

	for _, level := range []float64{0, 0.1, 0.33, 0.5, 0.9, 0.99} {
		// WHEN solving at each level
		q, err := SolveWeightedQuantiles(weights, indices, []float64{level}, y)
		require.NoError(t, err)

		// THEN every decision is one of the observed target values
		for k := 0; k < 2; k++ {
			col := mat.Col(nil, k, y)
			assert.True(t, slices.Contains(col, q[k]), "level %v output %d: %v not observed", level, k, q[k])
		}
	}
}

func TestSolveWeightedQuantiles_MonotoneInServiceLevel(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 0))
	n := 40
	y := mat.NewDense(n, 1, nil)
	weights := make([]float64, n)
	indices := make([]int, n)
	for i := 0; i < n; i++ {
		y.Set(i, 0, rng.Float64()*100)
		weights[i] = 1 / float64(n)
		indices[i] = i
	}

	prev := -1.0
	for level := 0.0; level <= 0.95; level += 0.05 {
		q, err := SolveWeightedQuantiles(weights, indices, []float64{level}, y)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, q[0], prev, "decision decreased at level %v", level)
		prev = q[0]
	}
}

func TestSolveWeightedQuantiles_UniformMatchesEmpiricalQuantile(t *testing.T) {
	// GIVEN uniform weights over 20 targets
	rng := rand.New(rand.NewPCG(5, 0))
	n := 20
	values := make([]float64, n)
	weights := make([]float64, n)
	indices := make([]int, n)
	for i := range values {
		values[i] = float64(rng.IntN(1000))
		weights[i] = 1 / float64(n)
		indices[i] = i
	}
	y := mat.NewDense(n, 1, append([]float64(nil), values...))
	sorted := append([]float64(nil), values...)
	slices.Sort(sorted)

	// Levels strictly between k/n grid points, so cumulative rounding cannot
	// move the crossing point.
	for _, level := range []float64{0.01, 0.27, 0.5 + 0.01, 0.73, 0.97} {
		// WHEN solving with uniform weights
		q, err := SolveWeightedQuantiles(weights, indices, []float64{level}, y)
		require.NoError(t, err)

		// THEN the decision equals the empirical (inverse CDF) quantile
		want := stat.Quantile(level, stat.Empirical, sorted, nil)
		assert.Equal(t, want, q[0], "level %v", level)
	}
}

func TestSolveWeightedQuantiles_ConstantTargetsReturnThatValue(t *testing.T) {
	// GIVEN equal target values
	y := mat.NewDense(3, 1, []float64{5, 5, 5})

	// WHEN solving at any level in (0, 1)
	q, err := SolveWeightedQuantiles([]float64{0.2, 0.3, 0.5}, []int{0, 1, 2}, []float64{0.4}, y)

	// THEN the shared value is returned
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, q)
}

func TestSolveWeightedQuantiles_TenthsDoNotReachOne(t *testing.T) {
	// GIVEN ten weights of 0.1, whose left-to-right sum is 0.9999999999999999
	weights := make([]float64, 10)
	indices := make([]int, 10)
	y := mat.NewDense(10, 1, nil)
	for i := range weights {
		weights[i] = 0.1
		indices[i] = i
		y.Set(i, 0, float64(i+1))
	}

	// WHEN solving at service level 1.0
	_, err := SolveWeightedQuantiles(weights, indices, []float64{1.0}, y)

	// THEN no observed value reaches the level
	assert.ErrorIs(t, err, ErrQuantileNotFound)

	// AND just below 1.0 the largest value is returned
	q, err := SolveWeightedQuantiles(weights, indices, []float64{0.99}, y)
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, q)
}

func TestSolveWeightedQuantiles_RejectsNonFiniteTargets(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		// GIVEN one non-finite target among finite ones
		y := mat.NewDense(5, 1, []float64{5, bad, 1, 9, 3})

		// WHEN solving with uniform weights
		_, err := SolveWeightedQuantiles([]float64{0.2, 0.2, 0.2, 0.2, 0.2}, []int{0, 1, 2, 3, 4}, []float64{0.3}, y)

		// THEN the target is rejected rather than sorted
		assert.ErrorIs(t, err, ErrInvalidArgument, "target %v", bad)
	}
}

func TestWeightDistribution_LenAndSum(t *testing.T) {
	d := WeightDistribution{Weights: []float64{0.25, 0.75}, Indices: []int{1, 3}}
	assert.Equal(t, 2, d.Len())
	testutil.AssertFloat64Equal(t, "sum", 1, d.Sum(), 1e-12)
}
