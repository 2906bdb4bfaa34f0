package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inventory-sim/inventory-sim/sim"
)

func writeExperimentYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadExperimentConfig_ValidYAML(t *testing.T) {
	path := writeExperimentYAML(t, `
seed: 11
underage_cost: [9]
overage_cost: [1]
trace_level: decisions
data:
  synthetic:
    rows: 200
    skus: 1
    features: 3
    noise:
      type: poisson
      params: {lambda: 2}
  test_fraction: 0.25
agents:
  - weighter: saa
  - name: forest
    weighter: rf
    forest:
      n_estimators: 20
      max_features: sqrt
`)
	cfg, err := LoadExperimentConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(11), cfg.Seed)
	assert.Equal(t, 0.25, cfg.Data.TestFraction)
	require.NotNil(t, cfg.Data.Synthetic)
	assert.Equal(t, "poisson", cfg.Data.Synthetic.Noise.Type)
	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, "forest", cfg.Agents[1].Name)
	assert.Equal(t, sim.MaxFeatures{Mode: "sqrt"}, cfg.Agents[1].Forest.MaxFeatures)
}

func TestLoadExperimentConfig_RejectsUnknownKeys(t *testing.T) {
	path := writeExperimentYAML(t, "seed: 1\nhorizon: 10\n")
	_, err := LoadExperimentConfig(path)
	assert.Error(t, err)
}

func TestResolvedAgents_InheritCostsAndSeed(t *testing.T) {
	// GIVEN one agent without costs and one with its own
	own := int64(99)
	cfg := &ExperimentConfig{
		Seed:     5,
		Underage: []float64{3},
		Overage:  []float64{1},
		Agents: []sim.AgentConfig{
			{Weighter: sim.WeighterRandomForest},
			{Name: "custom", Weighter: sim.WeighterDecisionTree, Underage: []float64{1}, Overage: []float64{1},
				Forest: sim.ForestConfig{RandomState: &own}},
		},
	}

	// WHEN resolving
	agents := cfg.ResolvedAgents()

	// THEN the first inherits the experiment's values and the second keeps its own
	assert.Equal(t, "rf", agents[0].Name)
	assert.Equal(t, []float64{3}, agents[0].Underage)
	require.NotNil(t, agents[0].Forest.RandomState)
	assert.Equal(t, int64(5), *agents[0].Forest.RandomState)
	assert.Equal(t, []float64{1}, agents[1].Underage)
	assert.Equal(t, int64(99), *agents[1].Forest.RandomState)

	// AND the input configs are untouched
	assert.Nil(t, cfg.Agents[0].Underage)
}

func TestExperimentConfig_Validate(t *testing.T) {
	synthetic := func() DataConfig { return syntheticExperiment().Data }
	tests := []struct {
		name   string
		mutate func(*ExperimentConfig)
	}{
		{"no agents", func(c *ExperimentConfig) { c.Agents = nil }},
		{"no data", func(c *ExperimentConfig) { c.Data = DataConfig{} }},
		{"no costs", func(c *ExperimentConfig) { c.Underage = nil }},
		{"both data sources", func(c *ExperimentConfig) { c.Data = synthetic(); c.Data.X, c.Data.Y = "x.csv", "y.csv" }},
		{"bad trace level", func(c *ExperimentConfig) { c.TraceLevel = "verbose" }},
		{"duplicate names", func(c *ExperimentConfig) { c.Agents = append(c.Agents, sim.AgentConfig{Weighter: sim.WeighterSAA}) }},
		{"unknown weighter", func(c *ExperimentConfig) { c.Agents[0].Weighter = "knn" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := syntheticExperiment()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), sim.ErrInvalidConfig)
		})
	}
}

func TestAgentsFromKinds(t *testing.T) {
	agents, err := AgentsFromKinds("saa, rf,dt")
	require.NoError(t, err)
	require.Len(t, agents, 3)
	assert.Equal(t, sim.WeighterDecisionTree, agents[2].Weighter)

	_, err = AgentsFromKinds("saa,knn")
	assert.ErrorIs(t, err, sim.ErrInvalidConfig)
	_, err = AgentsFromKinds(" , ")
	assert.ErrorIs(t, err, sim.ErrInvalidConfig)
}
