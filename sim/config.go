package sim

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentConfig configures one newsvendor decision agent. Loadable from YAML.
// Nil pointer fields mean "not set"; zero values are replaced by defaults in
// NewAgent.
type AgentConfig struct {
	Name            string            `yaml:"name"`
	Weighter        WeighterKind      `yaml:"weighter"`
	Underage        []float64         `yaml:"underage_cost"`
	Overage         []float64         `yaml:"overage_cost"`
	Unfitted        UnfittedPolicy    `yaml:"unfitted"`
	WeightCacheSize int               `yaml:"weight_cache_size"`
	Forest          ForestConfig      `yaml:"forest"`
	Postprocess     PostprocessConfig `yaml:"postprocess"`
}

// ForestConfig is passed through to the tree-ensemble leaf model.
type ForestConfig struct {
	NEstimators           int            `yaml:"n_estimators"`
	MaxDepth              *int           `yaml:"max_depth,omitempty"` // nil = unbounded
	MinSamplesSplit       int            `yaml:"min_samples_split"`
	MinSamplesLeaf        int            `yaml:"min_samples_leaf"`
	MinWeightFractionLeaf float64        `yaml:"min_weight_fraction_leaf"`
	MaxFeatures           MaxFeatures    `yaml:"max_features,omitempty"`
	Bootstrap             *bool          `yaml:"bootstrap,omitempty"`    // nil = true
	RandomState           *int64         `yaml:"random_state,omitempty"` // nil = seeded from the clock
	NJobs                 int            `yaml:"n_jobs"`
	WeightFunction        WeightFunction `yaml:"weight_function"`
}

// PostprocessConfig configures the action postprocessors applied by
// DrawAction. Each slice holds one value shared by all outputs or one per
// output; nil disables the step.
type PostprocessConfig struct {
	ClipLow   []float64 `yaml:"clip_low,omitempty"`
	ClipHigh  []float64 `yaml:"clip_high,omitempty"`
	RoundUnit []float64 `yaml:"round_unit,omitempty"`
}

// ValidWeighters is the set of recognized weighter names.
var ValidWeighters = map[string]bool{"saa": true, "rf": true, "dt": true}

// ValidWeightFunctions is the set of recognized leaf co-occurrence normalisations.
var ValidWeightFunctions = map[string]bool{"": true, "w1": true, "w2": true}

// ValidUnfittedPolicies is the set of recognized unfitted-agent policies.
var ValidUnfittedPolicies = map[string]bool{"": true, "zero": true, "error": true}

// DefaultForestConfig mirrors the usual random-forest regressor defaults.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		NJobs:           1,
		WeightFunction:  WeightFunctionW1,
	}
}

// WithDefaults fills zero-valued fields with DefaultForestConfig values.
func (c ForestConfig) WithDefaults() ForestConfig {
	d := DefaultForestConfig()
	if c.NEstimators == 0 {
		c.NEstimators = d.NEstimators
	}
	if c.MinSamplesSplit == 0 {
		c.MinSamplesSplit = d.MinSamplesSplit
	}
	if c.MinSamplesLeaf == 0 {
		c.MinSamplesLeaf = d.MinSamplesLeaf
	}
	if c.NJobs == 0 {
		c.NJobs = d.NJobs
	}
	if c.WeightFunction == "" {
		c.WeightFunction = d.WeightFunction
	}
	return c
}

// BootstrapEnabled reports whether trees are fitted on bootstrap resamples.
func (c ForestConfig) BootstrapEnabled() bool {
	return c.Bootstrap == nil || *c.Bootstrap
}

// Validate checks parameter ranges. Call after WithDefaults.
func (c ForestConfig) Validate() error {
	if c.NEstimators < 1 {
		return fmt.Errorf("n_estimators must be >= 1, got %d: %w", c.NEstimators, ErrInvalidConfig)
	}
	if c.MaxDepth != nil && *c.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be >= 1 or unset, got %d: %w", *c.MaxDepth, ErrInvalidConfig)
	}
	if c.MinSamplesSplit < 2 {
		return fmt.Errorf("min_samples_split must be >= 2, got %d: %w", c.MinSamplesSplit, ErrInvalidConfig)
	}
	if c.MinSamplesLeaf < 1 {
		return fmt.Errorf("min_samples_leaf must be >= 1, got %d: %w", c.MinSamplesLeaf, ErrInvalidConfig)
	}
	if math.IsNaN(c.MinWeightFractionLeaf) || c.MinWeightFractionLeaf < 0 || c.MinWeightFractionLeaf > 0.5 {
		return fmt.Errorf("min_weight_fraction_leaf must be in [0, 0.5], got %v: %w", c.MinWeightFractionLeaf, ErrInvalidConfig)
	}
	if err := c.MaxFeatures.Validate(); err != nil {
		return err
	}
	if c.NJobs < 1 {
		return fmt.Errorf("n_jobs must be >= 1, got %d: %w", c.NJobs, ErrInvalidConfig)
	}
	if !ValidWeightFunctions[string(c.WeightFunction)] {
		return fmt.Errorf("unknown weight function %q: %w", c.WeightFunction, ErrInvalidConfig)
	}
	return nil
}

// Validate checks names and parameter ranges of the agent configuration.
func (c AgentConfig) Validate() error {
	if !ValidWeighters[string(c.Weighter)] {
		return fmt.Errorf("unknown weighter %q: %w", c.Weighter, ErrInvalidConfig)
	}
	if !ValidUnfittedPolicies[string(c.Unfitted)] {
		return fmt.Errorf("unknown unfitted policy %q: %w", c.Unfitted, ErrInvalidConfig)
	}
	if c.WeightCacheSize < 0 {
		return fmt.Errorf("weight_cache_size must be non-negative, got %d: %w", c.WeightCacheSize, ErrInvalidConfig)
	}
	return c.Forest.WithDefaults().Validate()
}

// LoadAgentConfig reads and parses a YAML agent configuration file.
// Unknown keys are rejected.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent config: %w", err)
	}
	var cfg AgentConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config: %w", err)
	}
	return &cfg, nil
}

// MaxFeatures selects how many features each split considers.
// The zero value means all features.
type MaxFeatures struct {
	Mode     string  // "", "sqrt" or "log2"
	Count    int     // absolute number of features when > 0
	Fraction float64 // fraction of features when > 0
}

var validMaxFeaturesModes = map[string]bool{"": true, "sqrt": true, "log2": true}

// ParseMaxFeatures parses "sqrt", "log2", an integer count or a float fraction.
// The empty string and "all" mean all features.
func ParseMaxFeatures(s string) (MaxFeatures, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "all", "none":
		return MaxFeatures{}, nil
	case "sqrt", "log2":
		return MaxFeatures{Mode: s}, nil
	}
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return MaxFeatures{}, fmt.Errorf("max_features %q: %w", s, ErrInvalidConfig)
		}
		return MaxFeatures{Fraction: f}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return MaxFeatures{}, fmt.Errorf("max_features %q: %w", s, ErrInvalidConfig)
	}
	return MaxFeatures{Count: n}, nil
}

// Validate rejects unknown modes and non-positive counts or fractions.
func (m MaxFeatures) Validate() error {
	if !validMaxFeaturesModes[m.Mode] {
		return fmt.Errorf("unknown max_features mode %q: %w", m.Mode, ErrInvalidConfig)
	}
	if m.Count < 0 {
		return fmt.Errorf("max_features count must be positive, got %d: %w", m.Count, ErrInvalidConfig)
	}
	if math.IsNaN(m.Fraction) || m.Fraction < 0 || m.Fraction > 1 {
		return fmt.Errorf("max_features fraction must be in (0, 1], got %v: %w", m.Fraction, ErrInvalidConfig)
	}
	return nil
}

// Resolve returns the number of features to try per split, in [1, nFeatures].
func (m MaxFeatures) Resolve(nFeatures int) int {
	var k int
	switch {
	case m.Mode == "sqrt":
		k = int(math.Sqrt(float64(nFeatures)))
	case m.Mode == "log2":
		k = int(math.Log2(float64(nFeatures)))
	case m.Count > 0:
		k = m.Count
	case m.Fraction > 0:
		k = int(m.Fraction * float64(nFeatures))
	default:
		k = nFeatures
	}
	return min(max(k, 1), nFeatures)
}

func (m MaxFeatures) String() string {
	switch {
	case m.Mode != "":
		return m.Mode
	case m.Count > 0:
		return strconv.Itoa(m.Count)
	case m.Fraction > 0:
		return strconv.FormatFloat(m.Fraction, 'g', -1, 64)
	default:
		return "all"
	}
}

// UnmarshalYAML accepts an integer, a float, "sqrt"/"log2"/"all" or null.
func (m *MaxFeatures) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("max_features must be a scalar (line %d): %w", node.Line, ErrInvalidConfig)
	}
	switch node.Tag {
	case "!!null":
		*m = MaxFeatures{}
		return nil
	case "!!float":
		f, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return fmt.Errorf("max_features %q: %w", node.Value, ErrInvalidConfig)
		}
		*m = MaxFeatures{Fraction: f}
		return nil
	}
	parsed, err := ParseMaxFeatures(node.Value)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalYAML writes the same forms UnmarshalYAML accepts.
func (m MaxFeatures) MarshalYAML() (interface{}, error) {
	switch {
	case m.Mode != "":
		return m.Mode, nil
	case m.Count > 0:
		return m.Count, nil
	case m.Fraction > 0:
		// Always with a decimal point, otherwise 1.0 reads back as a count.
		v := strconv.FormatFloat(m.Fraction, 'f', -1, 64)
		if !strings.Contains(v, ".") {
			v += ".0"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: v}, nil
	default:
		return nil, nil
	}
}
