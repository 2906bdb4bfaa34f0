// Package sim provides data-driven newsvendor decision agents.
//
// # Reading Guide
//
// Start with these three files to understand a decision:
//   - weighter.go: how training rows are weighted for a query (SAA, forest co-occurrence)
//   - quantile.go: the weighted-quantile solver turning weights into order quantities
//   - agent.go: the agent state machine (unfitted → fitted) and the decide path
//
// # Architecture
//
// The sim package defines interfaces and bridge types; implementations live in
// sub-packages:
//   - sim/forest/: CART regression forest behind the "rf" and "dt" weighters
//   - sim/dataset/: CSV loading, chronological splits, synthetic demand
//   - sim/evaluation/: pinball-cost benchmarking of several agents on one test split
//   - sim/trace/: Decision trace recording
//
// Sub-packages register their implementations via init() functions that set
// package-level factory variables (NewLeafModelFunc).
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - SampleWeighter: fit on a TrainingSet, return the weight distribution for a query
//   - LeafModel: map a feature vector to one leaf id per estimator
//   - Postprocessor: adjust a raw decision (clip, round)
package sim
