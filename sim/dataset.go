package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// TrainingSet is an immutable (X, Y) pair with one row per historical period.
// X is N × n_features, Y is N × n_outputs (one column per SKU).
type TrainingSet struct {
	x *mat.Dense
	y *mat.Dense
}

// NewTrainingSet validates shapes and copies both matrices.
// Fails with ErrInvalidShape on nil/empty matrices or a row-count mismatch,
// and with ErrInvalidArgument on NaN or infinite entries.
func NewTrainingSet(x, y mat.Matrix) (*TrainingSet, error) {
	if isEmpty(x) {
		return nil, fmt.Errorf("training set: X is empty: %w", ErrInvalidShape)
	}
	if isEmpty(y) {
		return nil, fmt.Errorf("training set: Y is empty: %w", ErrInvalidShape)
	}
	xr, _ := x.Dims()
	yr, _ := y.Dims()
	if xr != yr {
		return nil, fmt.Errorf("training set: X has %d rows, Y has %d: %w", xr, yr, ErrInvalidShape)
	}
	ts := &TrainingSet{x: mat.DenseCopyOf(x), y: mat.DenseCopyOf(y)}
	if err := requireFinite("X", ts.x); err != nil {
		return nil, err
	}
	if err := requireFinite("Y", ts.y); err != nil {
		return nil, err
	}
	return ts, nil
}

func requireFinite(name string, m *mat.Dense) error {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j, v := range m.RawRowView(i)[:c] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("training set: %s[%d,%d] = %v is not finite: %w", name, i, j, v, ErrInvalidArgument)
			}
		}
	}
	return nil
}

// NewTrainingSetFromRows builds a TrainingSet from row slices.
func NewTrainingSetFromRows(x, y [][]float64) (*TrainingSet, error) {
	xm, err := DenseFromRows(x)
	if err != nil {
		return nil, fmt.Errorf("training set X: %w", err)
	}
	ym, err := DenseFromRows(y)
	if err != nil {
		return nil, fmt.Errorf("training set Y: %w", err)
	}
	return NewTrainingSet(xm, ym)
}

// N returns the number of training samples.
func (ts *TrainingSet) N() int {
	r, _ := ts.x.Dims()
	return r
}

// NumFeatures returns the number of feature columns.
func (ts *TrainingSet) NumFeatures() int {
	_, c := ts.x.Dims()
	return c
}

// NumOutputs returns the number of target columns.
func (ts *TrainingSet) NumOutputs() int {
	_, c := ts.y.Dims()
	return c
}

// X returns the feature matrix. Callers must not mutate it.
func (ts *TrainingSet) X() *mat.Dense { return ts.x }

// Y returns the target matrix. Callers must not mutate it.
func (ts *TrainingSet) Y() *mat.Dense { return ts.y }

// FeatureRow returns a copy of feature row i.
func (ts *TrainingSet) FeatureRow(i int) []float64 {
	return mat.Row(nil, i, ts.x)
}

// DenseFromRows converts rectangular row slices into a matrix.
// Ragged or empty input fails with ErrInvalidShape.
func DenseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("no rows or no columns: %w", ErrInvalidShape)
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), cols, ErrInvalidShape)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// FlattenTimeDim turns per-sample lag windows (sequence_length × features)
// into one row per sample, concatenating the window row-major (oldest step
// first). All windows must share the same shape.
func FlattenTimeDim(windows [][][]float64) (*mat.Dense, error) {
	if len(windows) == 0 || len(windows[0]) == 0 || len(windows[0][0]) == 0 {
		return nil, fmt.Errorf("flatten: empty windows: %w", ErrInvalidShape)
	}
	steps, feats := len(windows[0]), len(windows[0][0])
	data := make([]float64, 0, len(windows)*steps*feats)
	for i, w := range windows {
		if len(w) != steps {
			return nil, fmt.Errorf("flatten: sample %d has %d steps, want %d: %w", i, len(w), steps, ErrInvalidShape)
		}
		for s, step := range w {
			if len(step) != feats {
				return nil, fmt.Errorf("flatten: sample %d step %d has %d features, want %d: %w",
					i, s, len(step), feats, ErrInvalidShape)
			}
			data = append(data, step...)
		}
	}
	return mat.NewDense(len(windows), steps*feats, data), nil
}

func isEmpty(m mat.Matrix) bool {
	if m == nil {
		return true
	}
	if d, ok := m.(*mat.Dense); ok && (d == nil || d.IsEmpty()) {
		return true
	}
	r, c := m.Dims()
	return r == 0 || c == 0
}
