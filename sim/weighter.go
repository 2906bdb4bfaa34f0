package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// WeighterKind names a sample-weighting strategy.
type WeighterKind string

const (
	// WeighterSAA weights every training outcome equally (plain SAA).
	WeighterSAA WeighterKind = "saa"
	// WeighterRandomForest weights outcomes by random-forest leaf co-occurrence.
	WeighterRandomForest WeighterKind = "rf"
	// WeighterDecisionTree weights outcomes by leaf co-occurrence in a single tree.
	WeighterDecisionTree WeighterKind = "dt"
)

// WeightFunction selects how leaf co-occurrence is normalised.
type WeightFunction string

const (
	// WeightFunctionW1 normalises per tree by the query leaf's population, then
	// averages over trees, giving every tree the same vote.
	WeightFunctionW1 WeightFunction = "w1"
	// WeightFunctionW2 normalises by the global count of matching
	// (sample, tree) pairs, so trees with populous leaves weigh more.
	WeightFunctionW2 WeightFunction = "w2"
)

// SampleWeighter turns a query feature vector into a weighting of the
// training sample.
type SampleWeighter interface {
	Kind() WeighterKind

	// Fit prepares the weighter on a training set, replacing earlier state.
	Fit(ts *TrainingSet) error

	// ComputeWeights returns the weight distribution for x.
	// Returns ErrModelNotFitted before Fit.
	ComputeWeights(x []float64) (WeightDistribution, error)
}

// LeafModel is a fitted ensemble that routes a feature vector to one
// terminal leaf per estimator.
type LeafModel interface {
	Fit(x, y *mat.Dense) error
	// Apply returns the leaf id reached by x in every estimator.
	Apply(x []float64) ([]int, error)
	NumEstimators() int
	NumFeatures() int
}

// NewLeafModelFunc constructs leaf models for the model-driven weighters.
// Set by sim/forest's init(); nil until that package is imported.
var NewLeafModelFunc func(kind WeighterKind, cfg ForestConfig) (LeafModel, error)

// NewSampleWeighter creates a weighter by kind. Unknown kinds fail with
// ErrInvalidConfig.
func NewSampleWeighter(kind WeighterKind, cfg ForestConfig) (SampleWeighter, error) {
	if !ValidWeighters[string(kind)] {
		return nil, fmt.Errorf("unknown weighter %q: %w", kind, ErrInvalidConfig)
	}
	if kind == WeighterSAA {
		return &UniformWeighter{}, nil
	}
	if NewLeafModelFunc == nil {
		return nil, fmt.Errorf("weighter %q: no leaf model registered (import sim/forest): %w", kind, ErrInvalidConfig)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := NewLeafModelFunc(kind, cfg)
	if err != nil {
		return nil, err
	}
	return NewModelDrivenWeighter(kind, model, cfg.WeightFunction), nil
}

// UniformWeighter is plain SAA: every training sample gets weight 1/N and
// the query features are ignored.
type UniformWeighter struct {
	n int
}

func (w *UniformWeighter) Kind() WeighterKind { return WeighterSAA }

func (w *UniformWeighter) Fit(ts *TrainingSet) error {
	if ts == nil {
		return fmt.Errorf("uniform weighter: nil training set: %w", ErrInvalidShape)
	}
	w.n = ts.N()
	return nil
}

func (w *UniformWeighter) ComputeWeights(_ []float64) (WeightDistribution, error) {
	if w.n == 0 {
		return WeightDistribution{}, fmt.Errorf("uniform weighter: %w", ErrModelNotFitted)
	}
	d := WeightDistribution{
		Weights: make([]float64, w.n),
		Indices: make([]int, w.n),
	}
	for i := range d.Weights {
		d.Weights[i] = 1 / float64(w.n)
		d.Indices[i] = i
	}
	return d, nil
}

// ModelDrivenWeighter derives weights from leaf co-occurrence in a fitted
// LeafModel: a training sample is similar to the query in a tree when both
// land in the same leaf.
type ModelDrivenWeighter struct {
	kind           WeighterKind
	model          LeafModel
	weightFunction WeightFunction

	// trainLeaves[i][t] is the leaf of training sample i in estimator t.
	trainLeaves [][]int
	fitted      bool
}

// NewModelDrivenWeighter wraps an unfitted leaf model.
func NewModelDrivenWeighter(kind WeighterKind, model LeafModel, wf WeightFunction) *ModelDrivenWeighter {
	if wf == "" {
		wf = WeightFunctionW1
	}
	return &ModelDrivenWeighter{kind: kind, model: model, weightFunction: wf}
}

func (w *ModelDrivenWeighter) Kind() WeighterKind { return w.kind }

// Model returns the underlying leaf model.
func (w *ModelDrivenWeighter) Model() LeafModel { return w.model }

// WeightFunction returns the configured normalisation.
func (w *ModelDrivenWeighter) WeightFunction() WeightFunction { return w.weightFunction }

// TrainLeafIndices returns the N × n_estimators leaf matrix recorded by Fit.
// The returned slices are shared and must not be modified.
func (w *ModelDrivenWeighter) TrainLeafIndices() [][]int { return w.trainLeaves }

func (w *ModelDrivenWeighter) Fit(ts *TrainingSet) error {
	if ts == nil {
		return fmt.Errorf("%s weighter: nil training set: %w", w.kind, ErrInvalidShape)
	}
	w.fitted = false
	w.trainLeaves = nil
	if err := w.model.Fit(ts.X(), ts.Y()); err != nil {
		return fmt.Errorf("%s weighter: fitting model: %w", w.kind, err)
	}
	leaves := make([][]int, ts.N())
	for i := range leaves {
		l, err := w.model.Apply(ts.FeatureRow(i))
		if err != nil {
			return fmt.Errorf("%s weighter: routing training row %d: %w", w.kind, i, err)
		}
		leaves[i] = l
	}
	w.trainLeaves = leaves
	w.fitted = true
	return nil
}

func (w *ModelDrivenWeighter) ComputeWeights(x []float64) (WeightDistribution, error) {
	if !w.fitted {
		return WeightDistribution{}, fmt.Errorf("%s weighter: %w", w.kind, ErrModelNotFitted)
	}
	if len(x) != w.model.NumFeatures() {
		return WeightDistribution{}, fmt.Errorf("%s weighter: query has %d features, model has %d: %w",
			w.kind, len(x), w.model.NumFeatures(), ErrInvalidShape)
	}
	query, err := w.model.Apply(x)
	if err != nil {
		return WeightDistribution{}, fmt.Errorf("%s weighter: %w", w.kind, err)
	}
	return coOccurrenceWeights(w.trainLeaves, query, w.weightFunction), nil
}

// restore installs a fitted model and its training leaf matrix (used by Load).
func (w *ModelDrivenWeighter) restore(leaves [][]int) error {
	nTrees := w.model.NumEstimators()
	for i, row := range leaves {
		if len(row) != nTrees {
			return fmt.Errorf("training row %d has %d leaves, model has %d estimators: %w",
				i, len(row), nTrees, ErrInvalidShape)
		}
	}
	w.trainLeaves = leaves
	w.fitted = true
	return nil
}

// coOccurrenceWeights computes the sparse weight distribution of the query
// with leaves query[t] against the training leaf matrix.
//
// Under w1 a tree whose query leaf holds no training sample contributes
// nothing, so the weights then sum to less than 1. That cannot happen for a
// model routed on the same X it was fitted on.
func coOccurrenceWeights(train [][]int, query []int, wf WeightFunction) WeightDistribution {
	counts := make([]int, len(query))
	for _, row := range train {
		for t, leaf := range row {
			if leaf == query[t] {
				counts[t]++
			}
		}
	}

	weights := make([]float64, len(train))
	switch wf {
	case WeightFunctionW2:
		total := 0
		for _, c := range counts {
			total += c
		}
		if total > 0 {
			for i, row := range train {
				matches := 0
				for t, leaf := range row {
					if leaf == query[t] {
						matches++
					}
				}
				weights[i] = float64(matches) / float64(total)
			}
		}
	default:
		nTrees := float64(len(query))
		for i, row := range train {
			var sum float64
			for t, leaf := range row {
				if leaf == query[t] {
					sum += 1 / float64(counts[t])
				}
			}
			weights[i] = sum / nTrees
		}
	}

	var d WeightDistribution
	for i, w := range weights {
		if w > 0 {
			d.Weights = append(d.Weights, w)
			d.Indices = append(d.Indices, i)
		}
	}
	return d
}
