package sim

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// WeightDistribution is a sparse weighting of the training sample:
// Weights[i] belongs to training row Indices[i]. Entries are strictly
// positive and, for a normalised distribution, sum to 1.
type WeightDistribution struct {
	Weights []float64
	Indices []int
}

// Len returns the number of positively weighted samples.
func (d WeightDistribution) Len() int { return len(d.Indices) }

// Sum returns the total weight.
func (d WeightDistribution) Sum() float64 { return floats.Sum(d.Weights) }

// SolveWeightedQuantiles returns, for every output column k of y, the smallest
// observed value y[j,k] (j over indices) whose cumulative weight in ascending
// value order reaches levels[k].
//
// Values are sorted with a stable sort, so equal values keep the order in
// which they appear in indices and their weight is accumulated in that order.
// levels may hold one entry (shared) or one per output.
//
// If the cumulative weight never reaches the level, ErrQuantileNotFound is
// returned; this happens at level 1.0 when rounding leaves the total weight
// just below 1, and for an empty distribution.
func SolveWeightedQuantiles(weights []float64, indices []int, levels []float64, y *mat.Dense) ([]float64, error) {
	if len(weights) != len(indices) {
		return nil, fmt.Errorf("%d weights for %d indices: %w", len(weights), len(indices), ErrInvalidShape)
	}
	if y == nil || y.IsEmpty() {
		return nil, fmt.Errorf("y must be a non-empty (n_samples, n_outputs) matrix: %w", ErrInvalidShape)
	}
	n, nOutputs := y.Dims()
	sl, err := broadcastLevels(levels, nOutputs)
	if err != nil {
		return nil, err
	}
	for i, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("index %d at position %d outside [0, %d): %w", idx, i, n, ErrInvalidShape)
		}
	}
	for i, w := range weights {
		if !(w > 0) {
			return nil, fmt.Errorf("weight %v at position %d is not strictly positive: %w", w, i, ErrInvalidArgument)
		}
	}

	values := make([]float64, len(indices))
	order := make([]int, len(indices))
	sorted := make([]float64, len(indices))
	cum := make([]float64, len(indices))
	q := make([]float64, nOutputs)

	for k := 0; k < nOutputs; k++ {
		for i, idx := range indices {
			v := y.At(idx, k)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("output %d: target %v at row %d is not finite: %w", k, v, idx, ErrInvalidArgument)
			}
			values[i] = v
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })
		for j, o := range order {
			sorted[j] = weights[o]
		}
		// Summed left to right so the level-1.0 boundary does not depend
		// on the platform's vector kernels.
		acc := 0.0
		for j, w := range sorted {
			acc += w
			cum[j] = acc
		}

		// Weights are positive, so cum is non-decreasing and binary search
		// finds the first position reaching the level.
		j := sort.Search(len(cum), func(i int) bool { return cum[i] >= sl[k] })
		if j == len(cum) {
			total := 0.0
			if len(cum) > 0 {
				total = cum[len(cum)-1]
			}
			return nil, fmt.Errorf("output %d: service level %v above total weight %v: %w",
				k, sl[k], total, ErrQuantileNotFound)
		}
		q[k] = values[order[j]]
	}
	return q, nil
}
