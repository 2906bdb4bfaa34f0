package sim

import (
	"fmt"
	"math"
)

// Postprocessor transforms a raw decision into the action handed to the
// surrounding control loop.
type Postprocessor interface {
	Apply(action []float64) ([]float64, error)
}

// ClipAction clamps each output to [Lower, Upper]. A nil bound is open; a
// length-1 bound applies to every output.
type ClipAction struct {
	Lower []float64
	Upper []float64
}

func (c *ClipAction) Apply(action []float64) ([]float64, error) {
	if err := checkBroadcast("clip lower bound", c.Lower, len(action)); err != nil {
		return nil, err
	}
	if err := checkBroadcast("clip upper bound", c.Upper, len(action)); err != nil {
		return nil, err
	}
	out := make([]float64, len(action))
	for i, v := range action {
		if c.Lower != nil {
			v = math.Max(v, broadcastAt(c.Lower, i))
		}
		if c.Upper != nil {
			v = math.Min(v, broadcastAt(c.Upper, i))
		}
		out[i] = v
	}
	return out, nil
}

// RoundAction rounds each output to the nearest multiple of its unit size.
type RoundAction struct {
	unit []float64
}

// NewRoundAction validates that every unit size is positive.
func NewRoundAction(unit []float64) (*RoundAction, error) {
	if len(unit) == 0 {
		return nil, fmt.Errorf("round action: unit size required: %w", ErrInvalidShape)
	}
	for i, u := range unit {
		if !(u > 0) || math.IsInf(u, 0) {
			return nil, fmt.Errorf("round action: unit size %v at %d must be positive: %w", u, i, ErrInvalidArgument)
		}
	}
	return &RoundAction{unit: append([]float64(nil), unit...)}, nil
}

func (r *RoundAction) Apply(action []float64) ([]float64, error) {
	if err := checkBroadcast("round unit", r.unit, len(action)); err != nil {
		return nil, err
	}
	out := make([]float64, len(action))
	for i, v := range action {
		u := broadcastAt(r.unit, i)
		out[i] = math.RoundToEven(v/u) * u
	}
	return out, nil
}

// NewPostprocessors builds the clip-then-round chain described by cfg.
// Empty slices disable their step like nil ones.
func NewPostprocessors(cfg PostprocessConfig) ([]Postprocessor, error) {
	cfg.ClipLow = nilIfEmpty(cfg.ClipLow)
	cfg.ClipHigh = nilIfEmpty(cfg.ClipHigh)
	cfg.RoundUnit = nilIfEmpty(cfg.RoundUnit)
	var chain []Postprocessor
	if cfg.ClipLow != nil || cfg.ClipHigh != nil {
		low, high := cfg.ClipLow, cfg.ClipHigh
		for i := 0; low != nil && high != nil && i < max(len(low), len(high)); i++ {
			// Unequal per-output lengths are a shape error caught in Apply.
			if !broadcastable(low, i) || !broadcastable(high, i) {
				break
			}
			if lo, hi := broadcastAt(low, i), broadcastAt(high, i); lo > hi {
				return nil, fmt.Errorf("clip bounds: output %d low %v above high %v: %w", i, lo, hi, ErrInvalidConfig)
			}
		}
		chain = append(chain, &ClipAction{Lower: cfg.ClipLow, Upper: cfg.ClipHigh})
	}
	if cfg.RoundUnit != nil {
		r, err := NewRoundAction(cfg.RoundUnit)
		if err != nil {
			return nil, err
		}
		chain = append(chain, r)
	}
	return chain, nil
}

func checkBroadcast(name string, v []float64, n int) error {
	if v != nil && len(v) != 1 && len(v) != n {
		return fmt.Errorf("%s has %d entries for %d outputs: %w", name, len(v), n, ErrInvalidShape)
	}
	return nil
}

func broadcastable(v []float64, i int) bool {
	return len(v) == 1 || i < len(v)
}

func nilIfEmpty(v []float64) []float64 {
	if len(v) == 0 {
		return nil
	}
	return v
}
