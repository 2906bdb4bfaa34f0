package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/inventory-sim/inventory-sim/sim"
	"github.com/inventory-sim/inventory-sim/sim/dataset"
	"github.com/inventory-sim/inventory-sim/sim/trace"
)

// ExperimentConfig is the YAML file accepted by `run --config`.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type ExperimentConfig struct {
	Seed       int64             `yaml:"seed"`
	Underage   []float64         `yaml:"underage_cost"`
	Overage    []float64         `yaml:"overage_cost"`
	TraceLevel string            `yaml:"trace_level"`
	Data       DataConfig        `yaml:"data"`
	Agents     []sim.AgentConfig `yaml:"agents"`
}

// DataConfig selects CSV files or a synthetic table, and the split.
type DataConfig struct {
	X         string `yaml:"x"`
	Y         string `yaml:"y"`
	Header    *bool  `yaml:"header"` // nil = true
	ValStart  *int   `yaml:"val_index_start"`
	TestStart *int   `yaml:"test_index_start"`
	// TestFraction places the test split at the end when TestStart is unset.
	TestFraction float64                  `yaml:"test_fraction"`
	Synthetic    *dataset.SyntheticConfig `yaml:"synthetic"`
}

const defaultTestFraction = 0.2

// LoadExperimentConfig reads an experiment file. Unknown keys are rejected.
func LoadExperimentConfig(path string) (*ExperimentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment config: %w", err)
	}
	var cfg ExperimentConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing experiment config: %w", err)
	}
	return &cfg, nil
}

// AgentsFromKinds builds one default agent per comma-separated weighter kind.
func AgentsFromKinds(list string) ([]sim.AgentConfig, error) {
	var agents []sim.AgentConfig
	for _, kind := range strings.Split(list, ",") {
		kind = strings.TrimSpace(kind)
		if kind == "" {
			continue
		}
		if !sim.ValidWeighters[kind] {
			return nil, fmt.Errorf("unknown weighter %q in --agents: %w", kind, sim.ErrInvalidConfig)
		}
		agents = append(agents, sim.AgentConfig{Weighter: sim.WeighterKind(kind)})
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("no agents requested: %w", sim.ErrInvalidConfig)
	}
	return agents, nil
}

// ResolvedAgents returns the agent configs with the experiment's costs and
// seed filled in where the agent leaves them unset.
func (c *ExperimentConfig) ResolvedAgents() []sim.AgentConfig {
	out := make([]sim.AgentConfig, len(c.Agents))
	for i, a := range c.Agents {
		if a.Underage == nil {
			a.Underage = c.Underage
		}
		if a.Overage == nil {
			a.Overage = c.Overage
		}
		if a.Forest.RandomState == nil {
			seed := c.Seed
			a.Forest.RandomState = &seed
		}
		if a.Name == "" {
			a.Name = string(a.Weighter)
		}
		out[i] = a
	}
	return out
}

// Validate checks the experiment before any data is touched.
func (c *ExperimentConfig) Validate() error {
	if !trace.IsValidTraceLevel(c.TraceLevel) {
		return fmt.Errorf("unknown trace level %q: %w", c.TraceLevel, sim.ErrInvalidConfig)
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("experiment has no agents: %w", sim.ErrInvalidConfig)
	}
	if len(c.Underage) == 0 || len(c.Overage) == 0 {
		return fmt.Errorf("experiment needs underage_cost and overage_cost for evaluation: %w", sim.ErrInvalidConfig)
	}
	if c.Data.Synthetic == nil && (c.Data.X == "" || c.Data.Y == "") {
		return fmt.Errorf("experiment needs data.x and data.y, or data.synthetic: %w", sim.ErrInvalidConfig)
	}
	if c.Data.Synthetic != nil && (c.Data.X != "" || c.Data.Y != "") {
		return fmt.Errorf("data.synthetic cannot be combined with data.x/data.y: %w", sim.ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.ResolvedAgents() {
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name %q: %w", a.Name, sim.ErrInvalidConfig)
		}
		seen[a.Name] = true
		if err := a.Validate(); err != nil {
			return fmt.Errorf("agent %s: %w", a.Name, err)
		}
	}
	return nil
}

// loadData reads or generates the experiment table and applies the split.
func (c *ExperimentConfig) loadData() (*dataset.XYData, error) {
	d := c.Data
	var (
		x, y *mat.Dense
		err  error
	)
	if d.Synthetic != nil {
		x, y, err = dataset.GenerateSynthetic(*d.Synthetic, sim.NewExperimentKey(c.Seed))
		if err != nil {
			return nil, err
		}
	} else {
		header := d.Header == nil || *d.Header
		if x, _, err = dataset.LoadMatrixCSV(d.X, header); err != nil {
			return nil, fmt.Errorf("features: %w", err)
		}
		if y, _, err = dataset.LoadMatrixCSV(d.Y, header); err != nil {
			return nil, fmt.Errorf("targets: %w", err)
		}
	}

	valStart, testStart := d.ValStart, d.TestStart
	if testStart == nil {
		frac := d.TestFraction
		if frac == 0 {
			frac = defaultTestFraction
		}
		n, _ := x.Dims()
		if _, testStart, err = dataset.SplitByFraction(n, 0, frac); err != nil {
			return nil, err
		}
	}
	return dataset.NewXYData(x, y, valStart, testStart)
}
