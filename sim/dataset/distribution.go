package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inventory-sim/inventory-sim/sim"
)

// DistSpec parameterizes a demand distribution.
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
	// Low and High truncate samples by rejection. A nil Low defaults to 0.
	Low  *float64 `yaml:"low,omitempty"`
	High *float64 `yaml:"high,omitempty"`
}

// DemandSampler draws a non-negative demand value.
type DemandSampler interface {
	Sample(rng *rand.Rand) float64
}

// maxRejections bounds truncated sampling; past it the sample is clamped.
const maxRejections = 1000

type distSampler struct {
	draw      func(src rand.Source) float64
	low, high float64
}

func (s *distSampler) Sample(rng *rand.Rand) float64 {
	var v float64
	for range maxRejections {
		v = s.draw(rng)
		if v >= s.low && v <= s.high {
			return v
		}
	}
	return math.Min(math.Max(v, s.low), s.high)
}

type constantSampler struct{ value float64 }

func (s *constantSampler) Sample(_ *rand.Rand) float64 { return s.value }

// NewDemandSampler builds a sampler for normal, poisson, gamma, lognormal,
// uniform or constant demand.
func NewDemandSampler(spec DistSpec) (DemandSampler, error) {
	low, high := 0.0, math.Inf(1)
	if spec.Low != nil {
		low = *spec.Low
	}
	if spec.High != nil {
		high = *spec.High
	}
	if !(low <= high) {
		return nil, fmt.Errorf("distribution truncation low %v above high %v: %w", low, high, sim.ErrInvalidConfig)
	}

	p := spec.Params
	var draw func(src rand.Source) float64
	switch spec.Type {
	case "normal":
		if err := requireParam(p, "mean", "std"); err != nil {
			return nil, err
		}
		if p["std"] < 0 {
			return nil, fmt.Errorf("normal std %v must be non-negative: %w", p["std"], sim.ErrInvalidConfig)
		}
		draw = func(src rand.Source) float64 {
			return distuv.Normal{Mu: p["mean"], Sigma: p["std"], Src: src}.Rand()
		}
	case "poisson":
		if err := requireParam(p, "lambda"); err != nil {
			return nil, err
		}
		if p["lambda"] <= 0 {
			return nil, fmt.Errorf("poisson lambda %v must be positive: %w", p["lambda"], sim.ErrInvalidConfig)
		}
		draw = func(src rand.Source) float64 {
			return distuv.Poisson{Lambda: p["lambda"], Src: src}.Rand()
		}
	case "gamma":
		if err := requireParam(p, "alpha", "beta"); err != nil {
			return nil, err
		}
		if p["alpha"] <= 0 || p["beta"] <= 0 {
			return nil, fmt.Errorf("gamma alpha and beta must be positive: %w", sim.ErrInvalidConfig)
		}
		draw = func(src rand.Source) float64 {
			return distuv.Gamma{Alpha: p["alpha"], Beta: p["beta"], Src: src}.Rand()
		}
	case "lognormal":
		if err := requireParam(p, "mu", "sigma"); err != nil {
			return nil, err
		}
		if p["sigma"] < 0 {
			return nil, fmt.Errorf("lognormal sigma %v must be non-negative: %w", p["sigma"], sim.ErrInvalidConfig)
		}
		draw = func(src rand.Source) float64 {
			return distuv.LogNormal{Mu: p["mu"], Sigma: p["sigma"], Src: src}.Rand()
		}
	case "uniform":
		if err := requireParam(p, "min", "max"); err != nil {
			return nil, err
		}
		if p["min"] >= p["max"] {
			return nil, fmt.Errorf("uniform min %v must be below max %v: %w", p["min"], p["max"], sim.ErrInvalidConfig)
		}
		draw = func(src rand.Source) float64 {
			return distuv.Uniform{Min: p["min"], Max: p["max"], Src: src}.Rand()
		}
	case "constant":
		if err := requireParam(p, "value"); err != nil {
			return nil, err
		}
		return &constantSampler{value: math.Min(math.Max(p["value"], low), high)}, nil
	default:
		return nil, fmt.Errorf("unknown distribution type %q: %w", spec.Type, sim.ErrInvalidConfig)
	}
	return &distSampler{draw: draw, low: low, high: high}, nil
}

func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		v, ok := params[k]
		if !ok {
			return fmt.Errorf("distribution requires parameter %q: %w", k, sim.ErrInvalidConfig)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("distribution parameter %q must be finite, got %v: %w", k, v, sim.ErrInvalidConfig)
		}
	}
	return nil
}
