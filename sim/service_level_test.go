package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceLevel_CriticalRatio(t *testing.T) {
	tests := []struct {
		name     string
		underage []float64
		overage  []float64
		want     ServiceLevel
	}{
		{"scalar", []float64{9}, []float64{1}, ServiceLevel{0.9}},
		{"broadcast underage", []float64{1}, []float64{1, 3}, ServiceLevel{0.5, 0.25}},
		{"broadcast overage", []float64{3, 1}, []float64{1}, ServiceLevel{0.75, 0.5}},
		{"zero underage", []float64{0}, []float64{2}, ServiceLevel{0}},
		{"zero overage", []float64{2}, []float64{0}, ServiceLevel{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sl, err := NewServiceLevel(tt.underage, tt.overage)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, sl, 1e-12)
		})
	}
}

func TestNewServiceLevel_Errors(t *testing.T) {
	tests := []struct {
		name     string
		underage []float64
		overage  []float64
		want     error
	}{
		{"missing costs", nil, []float64{1}, ErrInvalidShape},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, ErrInvalidShape},
		{"negative cost", []float64{-1}, []float64{1}, ErrInvalidArgument},
		{"infinite cost", []float64{math.Inf(1)}, []float64{1}, ErrInvalidArgument},
		{"NaN cost", []float64{math.NaN()}, []float64{1}, ErrInvalidArgument},
		{"both zero", []float64{0}, []float64{0}, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServiceLevel(tt.underage, tt.overage)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestServiceLevel_Resolve(t *testing.T) {
	// GIVEN a shared level
	sl := ServiceLevel{0.8}

	// WHEN resolving for three outputs
	got, err := sl.Resolve(3)

	// THEN it is broadcast
	require.NoError(t, err)
	assert.Equal(t, []float64{0.8, 0.8, 0.8}, got)

	// AND a per-output level of the wrong length is rejected
	_, err = ServiceLevel{0.1, 0.2}.Resolve(3)
	assert.ErrorIs(t, err, ErrInvalidShape)
}
