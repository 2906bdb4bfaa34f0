// register.go wires the forest constructor into the sim package's
// registration variable (NewLeafModelFunc). This init() runs when any
// package imports sim/forest; test code in package sim uses
// forest_import_test.go for the blank import.
package forest

import (
	"fmt"

	"github.com/inventory-sim/inventory-sim/sim"
)

func init() {
	sim.NewLeafModelFunc = NewLeafModel
}

// NewLeafModel builds the leaf model for a model-driven weighter kind.
// "dt" is a single tree grown on the full sample with every feature.
func NewLeafModel(kind sim.WeighterKind, cfg sim.ForestConfig) (sim.LeafModel, error) {
	switch kind {
	case sim.WeighterRandomForest:
		return New(cfg)
	case sim.WeighterDecisionTree:
		noBootstrap := false
		cfg.NEstimators = 1
		cfg.Bootstrap = &noBootstrap
		cfg.MaxFeatures = sim.MaxFeatures{}
		cfg.NJobs = 1
		return New(cfg)
	default:
		return nil, fmt.Errorf("no leaf model for weighter %q: %w", kind, sim.ErrInvalidConfig)
	}
}
