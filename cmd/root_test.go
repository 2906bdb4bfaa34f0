package cmd

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inventory-sim/inventory-sim/sim"
	"github.com/inventory-sim/inventory-sim/sim/dataset"
)

// syntheticExperiment returns a small two-agent experiment on generated data.
func syntheticExperiment() *ExperimentConfig {
	return &ExperimentConfig{
		Seed:       7,
		Underage:   []float64{9},
		Overage:    []float64{1},
		TraceLevel: "decisions",
		Data:       DataConfig{Synthetic: &dataset.SyntheticConfig{Rows: 120, SKUs: 1, Features: 2}},
		Agents: []sim.AgentConfig{
			{Weighter: sim.WeighterSAA},
			{Weighter: sim.WeighterRandomForest, Forest: sim.ForestConfig{NEstimators: 10, NJobs: 2}},
		},
	}
}

func TestRunExperiment_SyntheticEndToEnd(t *testing.T) {
	// GIVEN a validated synthetic experiment and a metrics registry
	cfg := syntheticExperiment()
	require.NoError(t, cfg.Validate())
	reg := prometheus.NewRegistry()
	metrics := sim.NewDecisionMetrics(reg)
	dir := t.TempDir()

	// WHEN running it with a save directory
	report, err := runExperiment(cfg, sim.Observer{Metrics: metrics}, dir)
	require.NoError(t, err)

	// THEN both agents are evaluated on the 24 held-out rows
	require.Len(t, report.Agents, 2)
	assert.NotEmpty(t, report.RunID)
	for _, res := range report.Agents {
		assert.Equal(t, 24, res.Periods, res.Agent)
		assert.Zero(t, res.Fallbacks, res.Agent)
		assert.False(t, math.IsNaN(res.MeanCost), res.Agent)
		assert.GreaterOrEqual(t, res.TotalCost, 0.0, res.Agent)
	}
	assert.NotNil(t, report.Best())

	// AND the trace summary covers every fit and decision
	require.NotNil(t, report.Summary)
	assert.Equal(t, 2, report.Summary.TotalFits)
	assert.Equal(t, 48, report.Summary.TotalDecisions)
	assert.Equal(t, []string{"rf", "saa"}, report.Summary.Agents)

	// AND metrics and saved models are in place
	assert.Equal(t, 24.0, promtest.ToFloat64(metrics.Decisions.WithLabelValues("rf", "rf")))
	assert.FileExists(t, filepath.Join(dir, "saa", sim.QuantilesFileName))
	assert.FileExists(t, filepath.Join(dir, "rf", sim.ModelFileName))
	assert.FileExists(t, filepath.Join(dir, "rf", agentConfigFile))
}

func TestRunExperiment_SameSeedSameCosts(t *testing.T) {
	a, err := runExperiment(syntheticExperiment(), sim.Observer{}, "")
	require.NoError(t, err)
	b, err := runExperiment(syntheticExperiment(), sim.Observer{}, "")
	require.NoError(t, err)

	for i := range a.Agents {
		assert.Equal(t, a.Agents[i].TotalCost, b.Agents[i].TotalCost, a.Agents[i].Agent)
	}
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestRunExperiment_CSVData(t *testing.T) {
	// GIVEN CSV tables written by generate
	dir := t.TempDir()
	xPath, yPath := filepath.Join(dir, "x.csv"), filepath.Join(dir, "y.csv")
	require.NoError(t, generateTables(dataset.SyntheticConfig{Rows: 60, SKUs: 2, Features: 2}, 3, xPath, yPath))

	test := 50
	cfg := &ExperimentConfig{
		Underage: []float64{2, 4},
		Overage:  []float64{1},
		Data:     DataConfig{X: xPath, Y: yPath, TestStart: &test},
		Agents:   []sim.AgentConfig{{Weighter: sim.WeighterDecisionTree}},
	}
	require.NoError(t, cfg.Validate())

	// WHEN running the experiment
	report, err := runExperiment(cfg, sim.Observer{}, "")

	// THEN the explicit test split and both SKUs are used; tracing is off
	require.NoError(t, err)
	require.Len(t, report.Agents, 1)
	assert.Equal(t, 10, report.Agents[0].Periods)
	assert.Len(t, report.Agents[0].CostPerSKU, 2)
	assert.Nil(t, report.Summary)
}

func TestRunExperiment_NoTestRows(t *testing.T) {
	cfg := syntheticExperiment()
	cfg.Data.Synthetic.Rows = 3
	cfg.Data.TestFraction = 0.1

	_, err := runExperiment(cfg, sim.Observer{}, "")
	assert.ErrorIs(t, err, sim.ErrInvalidArgument)
}

func TestDecideOnce_LoadsSavedAgents(t *testing.T) {
	// GIVEN agents saved by run
	dir := t.TempDir()
	_, err := runExperiment(syntheticExperiment(), sim.Observer{}, dir)
	require.NoError(t, err)

	for _, name := range []string{"saa", "rf"} {
		// WHEN deciding from the saved directory
		dec, err := decideOnce(filepath.Join(dir, name), []float64{5, 5})

		// THEN a single non-negative order comes back
		require.NoError(t, err, name)
		require.Len(t, dec.Quantity, 1, name)
		assert.GreaterOrEqual(t, dec.Quantity[0], 0.0, name)
		assert.False(t, dec.Fallback, name)
	}

	_, err = decideOnce(filepath.Join(dir, "rf"), []float64{5})
	assert.ErrorIs(t, err, sim.ErrInvalidShape)
	_, err = decideOnce(filepath.Join(dir, "missing"), []float64{5, 5})
	assert.Error(t, err)
}

func TestWriteJSON_Report(t *testing.T) {
	report, err := runExperiment(syntheticExperiment(), sim.Observer{}, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, report))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "run_id")
	assert.Contains(t, decoded, "agents")
	assert.Contains(t, decoded, "trace_summary")
}

func TestGenerateTables(t *testing.T) {
	dir := t.TempDir()
	xPath, yPath := filepath.Join(dir, "x.csv"), filepath.Join(dir, "y.csv")
	require.NoError(t, generateTables(dataset.SyntheticConfig{Rows: 25, SKUs: 3, Features: 4}, 1, xPath, yPath))

	x, names, err := dataset.LoadMatrixCSV(xPath, true)
	require.NoError(t, err)
	r, c := x.Dims()
	assert.Equal(t, 25, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, "x_0", names[0])

	raw, err := os.ReadFile(yPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("sku_0,sku_1,sku_2\n")))
}
