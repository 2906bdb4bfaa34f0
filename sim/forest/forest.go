// Package forest provides the CART regression forest behind the "rf" and
// "dt" sample weighters. The LeafModel interface is defined in sim/ (parent
// package); register.go wires the constructor into sim.NewLeafModelFunc.
package forest

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/inventory-sim/inventory-sim/sim"
)

// Forest is a bagged ensemble of regression trees.
//
// Each tree draws its bootstrap sample and feature permutations from its own
// RNG, derived from (random_state, tree index) before any tree is grown, so
// the fitted forest is identical for every NJobs.
type Forest struct {
	cfg         sim.ForestConfig
	trees       []*Tree
	numFeatures int
	numOutputs  int
}

// New validates cfg and returns an unfitted forest.
func New(cfg sim.ForestConfig) (*Forest, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Forest{cfg: cfg}, nil
}

// Config returns the configuration the forest was built with.
func (f *Forest) Config() sim.ForestConfig { return f.cfg }

// Trees returns the fitted trees. The slice is shared.
func (f *Forest) Trees() []*Tree { return f.trees }

func (f *Forest) NumEstimators() int { return len(f.trees) }

func (f *Forest) NumFeatures() int { return f.numFeatures }

// NumOutputs returns the number of target columns seen by Fit.
func (f *Forest) NumOutputs() int { return f.numOutputs }

// Fit grows cfg.NEstimators trees on (x, y) using up to cfg.NJobs workers.
// Any earlier fit is discarded.
func (f *Forest) Fit(x, y *mat.Dense) error {
	f.trees = nil
	f.numFeatures, f.numOutputs = 0, 0
	if x == nil || y == nil || x.IsEmpty() || y.IsEmpty() {
		return fmt.Errorf("forest: empty training matrices: %w", sim.ErrInvalidShape)
	}
	n, nf := x.Dims()
	ny, no := y.Dims()
	if n != ny {
		return fmt.Errorf("forest: X has %d rows, Y has %d: %w", n, ny, sim.ErrInvalidShape)
	}
	if err := checkFinite("X", x); err != nil {
		return err
	}
	if err := checkFinite("Y", y); err != nil {
		return err
	}

	key := sim.ClockExperimentKey()
	if f.cfg.RandomState != nil {
		key = sim.NewExperimentKey(*f.cfg.RandomState)
	}
	rngs := sim.NewPartitionedRNG(key)

	bootstrap := f.cfg.BootstrapEnabled()
	params := treeParams{
		minSamplesSplit: f.cfg.MinSamplesSplit,
		minSamplesLeaf:  f.cfg.MinSamplesLeaf,
		maxFeatures:     f.cfg.MaxFeatures.Resolve(nf),
	}
	if f.cfg.MaxDepth != nil {
		params.maxDepth = *f.cfg.MaxDepth
	}

	trees := make([]*Tree, f.cfg.NEstimators)
	var g errgroup.Group
	g.SetLimit(f.cfg.NJobs)
	for i := range trees {
		rng := rngs.ForSubsystem(sim.SubsystemTree(i))
		g.Go(func() error {
			w := make([]float64, n)
			if bootstrap {
				for range n {
					w[rng.IntN(n)]++
				}
			} else {
				for j := range w {
					w[j] = 1
				}
			}
			p := params
			total := 0.0
			for _, wj := range w {
				total += wj
			}
			p.minWeightLeaf = f.cfg.MinWeightFractionLeaf * total
			trees[i] = buildTree(x, y, w, p, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.numFeatures = nf
	f.numOutputs = no
	return nil
}

// Apply returns the leaf index reached by x in every tree.
func (f *Forest) Apply(x []float64) ([]int, error) {
	if err := f.checkQuery(x); err != nil {
		return nil, err
	}
	leaves := make([]int, len(f.trees))
	for t, tree := range f.trees {
		leaves[t] = tree.Leaf(x)
	}
	return leaves, nil
}

// Predict returns the forest's mean prediction for x, one entry per output.
func (f *Forest) Predict(x []float64) ([]float64, error) {
	if err := f.checkQuery(x); err != nil {
		return nil, err
	}
	out := make([]float64, f.numOutputs)
	for _, tree := range f.trees {
		for k, v := range tree.Predict(x) {
			out[k] += v
		}
	}
	for k := range out {
		out[k] /= float64(len(f.trees))
	}
	return out, nil
}

func (f *Forest) checkQuery(x []float64) error {
	if len(f.trees) == 0 {
		return fmt.Errorf("forest: %w", sim.ErrModelNotFitted)
	}
	if len(x) != f.numFeatures {
		return fmt.Errorf("forest: query has %d features, want %d: %w", len(x), f.numFeatures, sim.ErrInvalidShape)
	}
	return nil
}

func checkFinite(name string, m *mat.Dense) error {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j, v := range m.RawRowView(i)[:c] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("forest: %s[%d,%d] = %v is not finite: %w", name, i, j, v, sim.ErrInvalidArgument)
			}
		}
	}
	return nil
}
