package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/inventory-sim/inventory-sim/sim"
)

// XYData holds aligned feature and target tables split chronologically into
// train [0, trainEnd], validation [valStart, testStart) and test
// [testStart, N). A nil split start means that split is empty.
type XYData struct {
	x, y      *mat.Dense
	valStart  *int
	testStart *int
}

// NewXYData validates 0 < valStart < testStart < N for the starts that are set.
func NewXYData(x, y *mat.Dense, valStart, testStart *int) (*XYData, error) {
	if x == nil || y == nil || x.IsEmpty() || y.IsEmpty() {
		return nil, fmt.Errorf("xy data: empty matrices: %w", sim.ErrInvalidShape)
	}
	n, _ := x.Dims()
	ny, _ := y.Dims()
	if n != ny {
		return nil, fmt.Errorf("xy data: X has %d rows, Y has %d: %w", n, ny, sim.ErrInvalidShape)
	}
	lo := 1
	for _, s := range []struct {
		name  string
		start *int
	}{{"val", valStart}, {"test", testStart}} {
		if s.start == nil {
			continue
		}
		if *s.start < lo || *s.start >= n {
			return nil, fmt.Errorf("xy data: %s start %d outside [%d, %d): %w", s.name, *s.start, lo, n, sim.ErrInvalidArgument)
		}
		lo = *s.start + 1
	}
	return &XYData{x: x, y: y, valStart: valStart, testStart: testStart}, nil
}

// SplitByFraction places the validation and test splits at the end of n rows.
// Either fraction may be zero. At least one row stays in train.
func SplitByFraction(n int, valFrac, testFrac float64) (valStart, testStart *int, err error) {
	if valFrac < 0 || testFrac < 0 || valFrac+testFrac >= 1 || math.IsNaN(valFrac+testFrac) {
		return nil, nil, fmt.Errorf("split fractions %v/%v must be non-negative and sum below 1: %w", valFrac, testFrac, sim.ErrInvalidArgument)
	}
	nTest := int(math.Round(testFrac * float64(n)))
	nVal := int(math.Round(valFrac * float64(n)))
	if nTest > 0 {
		t := n - nTest
		testStart = &t
	}
	if nVal > 0 {
		v := n - nTest - nVal
		valStart = &v
	}
	if n-nTest-nVal < 1 {
		return nil, nil, fmt.Errorf("split leaves no training rows out of %d: %w", n, sim.ErrInvalidArgument)
	}
	return valStart, testStart, nil
}

// Len returns the total number of rows.
func (d *XYData) Len() int {
	n, _ := d.x.Dims()
	return n
}

// LenTrain returns trainEnd+1.
func (d *XYData) LenTrain() int {
	switch {
	case d.valStart != nil:
		return *d.valStart
	case d.testStart != nil:
		return *d.testStart
	default:
		return d.Len()
	}
}

// LenVal returns the number of validation rows.
func (d *XYData) LenVal() int {
	if d.valStart == nil {
		return 0
	}
	return d.valEnd() - *d.valStart
}

// LenTest returns the number of test rows.
func (d *XYData) LenTest() int {
	if d.testStart == nil {
		return 0
	}
	return d.Len() - *d.testStart
}

func (d *XYData) valEnd() int {
	if d.testStart != nil {
		return *d.testStart
	}
	return d.Len()
}

// Train returns copies of the training rows.
func (d *XYData) Train() (x, y *mat.Dense) {
	return d.rows(0, d.LenTrain())
}

// Val returns copies of the validation rows, or nil matrices if there are none.
func (d *XYData) Val() (x, y *mat.Dense) {
	if d.LenVal() == 0 {
		return nil, nil
	}
	return d.rows(*d.valStart, d.valEnd())
}

// Test returns copies of the test rows, or nil matrices if there are none.
func (d *XYData) Test() (x, y *mat.Dense) {
	if d.LenTest() == 0 {
		return nil, nil
	}
	return d.rows(*d.testStart, d.Len())
}

// TrainingSet builds the training set from the train split.
func (d *XYData) TrainingSet() (*sim.TrainingSet, error) {
	x, y := d.Train()
	return sim.NewTrainingSet(x, y)
}

func (d *XYData) rows(from, to int) (x, y *mat.Dense) {
	_, xc := d.x.Dims()
	_, yc := d.y.Dims()
	return mat.DenseCopyOf(d.x.Slice(from, to, 0, xc)), mat.DenseCopyOf(d.y.Slice(from, to, 0, yc))
}
