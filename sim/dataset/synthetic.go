package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/inventory-sim/inventory-sim/sim"
)

// SyntheticConfig describes a feature-dependent demand table.
//
// Features are uniform on [0, 10). SKU k has demand
//
//	max(0, Base + 5k + sum_j coef_kj * x_j + noise)
//
// with coef_kj uniform on [0, 3) drawn once per table.
type SyntheticConfig struct {
	Rows     int      `yaml:"rows"`
	SKUs     int      `yaml:"skus"`
	Features int      `yaml:"features"`
	Base     float64  `yaml:"base"`
	Noise    DistSpec `yaml:"noise"`
}

// DefaultNoise is zero-mean normal noise with std 2.
func DefaultNoise() DistSpec {
	low := math.Inf(-1)
	return DistSpec{Type: "normal", Params: map[string]float64{"mean": 0, "std": 2}, Low: &low}
}

func (c SyntheticConfig) withDefaults() SyntheticConfig {
	if c.SKUs == 0 {
		c.SKUs = 1
	}
	if c.Features == 0 {
		c.Features = 1
	}
	if c.Base == 0 {
		c.Base = 10
	}
	if c.Noise.Type == "" {
		c.Noise = DefaultNoise()
	}
	return c
}

// GenerateSynthetic draws X (Rows × Features) and Y (Rows × SKUs). Features,
// coefficients and noise come from separate RNG subsystems of key.
func GenerateSynthetic(cfg SyntheticConfig, key sim.ExperimentKey) (x, y *mat.Dense, err error) {
	cfg = cfg.withDefaults()
	if cfg.Rows < 1 || cfg.SKUs < 1 || cfg.Features < 1 {
		return nil, nil, fmt.Errorf("synthetic data needs rows, skus and features >= 1, got %d/%d/%d: %w",
			cfg.Rows, cfg.SKUs, cfg.Features, sim.ErrInvalidConfig)
	}
	noise, err := NewDemandSampler(cfg.Noise)
	if err != nil {
		return nil, nil, fmt.Errorf("synthetic noise: %w", err)
	}

	rngs := sim.NewPartitionedRNG(key)
	coefRNG := rngs.ForSubsystem(sim.SubsystemData)
	featRNG := rngs.ForSubsystem(sim.SubsystemFeatures)
	noiseRNG := rngs.ForSubsystem(sim.SubsystemNoise)

	coef := mat.NewDense(cfg.SKUs, cfg.Features, nil)
	for k := 0; k < cfg.SKUs; k++ {
		for j := 0; j < cfg.Features; j++ {
			coef.Set(k, j, 3*coefRNG.Float64())
		}
	}

	x = mat.NewDense(cfg.Rows, cfg.Features, nil)
	for i := 0; i < cfg.Rows; i++ {
		for j := 0; j < cfg.Features; j++ {
			x.Set(i, j, 10*featRNG.Float64())
		}
	}

	// mean = X · coefᵀ
	y = mat.NewDense(cfg.Rows, cfg.SKUs, nil)
	y.Mul(x, coef.T())
	for i := 0; i < cfg.Rows; i++ {
		for k := 0; k < cfg.SKUs; k++ {
			d := y.At(i, k) + cfg.Base + 5*float64(k) + noise.Sample(noiseRNG)
			y.Set(i, k, math.Max(0, d))
		}
	}
	return x, y, nil
}

// SampleDemand draws an n × len(specs) table of independent demand, one
// distribution per SKU, from the data subsystem of key.
func SampleDemand(specs []DistSpec, n int, key sim.ExperimentKey) (*mat.Dense, error) {
	if n < 1 || len(specs) == 0 {
		return nil, fmt.Errorf("demand sampling needs n >= 1 and at least one distribution: %w", sim.ErrInvalidConfig)
	}
	samplers := make([]DemandSampler, len(specs))
	for k, spec := range specs {
		s, err := NewDemandSampler(spec)
		if err != nil {
			return nil, fmt.Errorf("sku %d: %w", k, err)
		}
		samplers[k] = s
	}
	rng := sim.NewPartitionedRNG(key).ForSubsystem(sim.SubsystemData)
	y := mat.NewDense(n, len(specs), nil)
	for i := 0; i < n; i++ {
		for k, s := range samplers {
			y.Set(i, k, s.Sample(rng))
		}
	}
	return y, nil
}
