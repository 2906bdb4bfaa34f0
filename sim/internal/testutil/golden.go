// Package testutil provides shared test infrastructure for the decision
// engine: fixture loading, float assertions and small synthetic datasets used
// across sim/ and its sub-packages.
package testutil

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// QuantileScenarios represents the structure of testdata/quantile_scenarios.json.
type QuantileScenarios struct {
	Scenarios []QuantileScenario `json:"scenarios"`
}

// QuantileScenario is one hand-checked weighted-quantile case. WantErr names
// the expected failure ("quantile_not_found", "invalid_shape",
// "invalid_argument"); Want is ignored when it is set.
type QuantileScenario struct {
	Name    string      `json:"name"`
	Weights []float64   `json:"weights"`
	Indices []int       `json:"indices"`
	Y       [][]float64 `json:"y"`
	Levels  []float64   `json:"levels"`
	Want    []float64   `json:"want"`
	WantErr string      `json:"want_err"`
}

// LoadQuantileScenarios loads the scenario fixtures from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadQuantileScenarios(t *testing.T) *QuantileScenarios {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "quantile_scenarios.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read quantile scenarios: %v", err)
	}

	var scenarios QuantileScenarios
	if err := json.Unmarshal(data, &scenarios); err != nil {
		t.Fatalf("Failed to parse quantile scenarios: %v", err)
	}

	return &scenarios
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertSliceEqual compares two float64 slices element-wise with relative tolerance.
func AssertSliceEqual(t *testing.T, name string, want, got []float64, relTol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Errorf("%s: got %d values, want %d", name, len(got), len(want))
		return
	}
	for i := range want {
		AssertFloat64Equal(t, name, want[i], got[i], relTol)
	}
}

// StepDemand returns n rows of a noisy step function: one feature drawn
// uniformly from [0, 10), and a demand around 10 below 5 and around 50 above.
// Deterministic for a given seed.
func StepDemand(n int, seed uint64) (x, y [][]float64) {
	rng := rand.New(rand.NewPCG(seed, 0))
	x = make([][]float64, n)
	y = make([][]float64, n)
	for i := range x {
		f := rng.Float64() * 10
		base := 10.0
		if f >= 5 {
			base = 50
		}
		x[i] = []float64{f}
		y[i] = []float64{base + rng.Float64()*4 - 2}
	}
	return x, y
}
