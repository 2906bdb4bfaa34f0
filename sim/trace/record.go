// Package trace provides decision-trace recording for comparing agents.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// FitRecord captures one agent fit.
type FitRecord struct {
	Agent    string `json:"agent"`
	Weighter string `json:"weighter"`
	Samples  int    `json:"samples"`
	Features int    `json:"features"`
}

// DecisionRecord captures one order decision and its realized outcome.
type DecisionRecord struct {
	Agent    string    `json:"agent"`
	Period   int       `json:"period"`   // row index in the evaluation split
	Quantity []float64 `json:"quantity"` // postprocessed order per SKU
	Demand   []float64 `json:"demand"`   // realized demand per SKU (nil if unknown)
	Cost     float64   `json:"cost"`     // total newsvendor cost across SKUs
	Support  int       `json:"support"`  // positively weighted training samples
	Fallback bool      `json:"fallback"` // zero decision from an unfitted agent
}
