package sim

import (
	"fmt"
	"math"
)

// ServiceLevel is the critical ratio cu/(cu+co), either one value shared by
// every output or one value per output.
type ServiceLevel []float64

// NewServiceLevel derives the service level from underage (cu) and overage
// (co) costs. A length-1 slice broadcasts against the other argument.
// Costs must be finite and non-negative, and cu+co must be positive.
func NewServiceLevel(underage, overage []float64) (ServiceLevel, error) {
	if len(underage) == 0 || len(overage) == 0 {
		return nil, fmt.Errorf("service level: underage and overage costs are required: %w", ErrInvalidShape)
	}
	n := max(len(underage), len(overage))
	if (len(underage) != 1 && len(underage) != n) || (len(overage) != 1 && len(overage) != n) {
		return nil, fmt.Errorf("service level: %d underage costs vs %d overage costs: %w",
			len(underage), len(overage), ErrInvalidShape)
	}
	sl := make(ServiceLevel, n)
	for i := range sl {
		cu, co := broadcastAt(underage, i), broadcastAt(overage, i)
		if !validCost(cu) || !validCost(co) {
			return nil, fmt.Errorf("service level: costs must be finite and non-negative, got cu=%v co=%v: %w",
				cu, co, ErrInvalidArgument)
		}
		if cu+co == 0 {
			return nil, fmt.Errorf("service level: cu+co must be positive at output %d: %w", i, ErrInvalidArgument)
		}
		sl[i] = cu / (cu + co)
	}
	return sl, nil
}

// Resolve expands the service level to exactly nOutputs entries.
func (sl ServiceLevel) Resolve(nOutputs int) ([]float64, error) {
	return broadcastLevels(sl, nOutputs)
}

func broadcastLevels(levels []float64, nOutputs int) ([]float64, error) {
	if len(levels) != 1 && len(levels) != nOutputs {
		return nil, fmt.Errorf("%d service levels for %d outputs: %w", len(levels), nOutputs, ErrInvalidShape)
	}
	out := make([]float64, nOutputs)
	for k := range out {
		v := broadcastAt(levels, k)
		if math.IsNaN(v) || v < 0 || v > 1 {
			return nil, fmt.Errorf("service level %v at output %d outside [0, 1]: %w", v, k, ErrInvalidArgument)
		}
		out[k] = v
	}
	return out, nil
}

func broadcastAt(v []float64, i int) float64 {
	if len(v) == 1 {
		return v[0]
	}
	return v[i]
}

func validCost(c float64) bool {
	return c >= 0 && !math.IsInf(c, 0)
}
