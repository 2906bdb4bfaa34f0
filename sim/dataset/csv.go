// Package dataset loads and generates the (X, Y) tables the agents are fitted
// and evaluated on.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/inventory-sim/inventory-sim/sim"
)

// LoadMatrixCSV reads a numeric CSV file into a matrix. When header is true
// the first record is returned as column names instead of parsed.
func LoadMatrixCSV(path string, header bool) (*mat.Dense, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()
	return ReadMatrixCSV(file, header)
}

// ReadMatrixCSV is LoadMatrixCSV over an arbitrary reader.
func ReadMatrixCSV(r io.Reader, header bool) (*mat.Dense, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	var names []string
	if header {
		rec, err := reader.Read()
		if err != nil {
			return nil, nil, fmt.Errorf("reading csv header: %w", err)
		}
		names = rec
	}

	var data []float64
	rows, cols := 0, -1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, csv.ErrFieldCount) {
			return nil, nil, fmt.Errorf("csv row %d: %v: %w", rows, err, sim.ErrInvalidShape)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading csv row %d: %w", rows, err)
		}
		if cols < 0 {
			cols = len(record)
		}
		for c, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("csv row %d column %d: %q is not a number: %w", rows, c, field, sim.ErrInvalidArgument)
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 || cols == 0 {
		return nil, nil, fmt.Errorf("csv has no data rows: %w", sim.ErrInvalidShape)
	}
	if names != nil && len(names) != cols {
		return nil, nil, fmt.Errorf("csv header has %d names for %d columns: %w", len(names), cols, sim.ErrInvalidShape)
	}
	return mat.NewDense(rows, cols, data), names, nil
}

// WriteMatrixCSV writes m with an optional header row.
func WriteMatrixCSV(path string, m mat.Matrix, header []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := writeMatrix(file, m, header); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeMatrix(w io.Writer, m mat.Matrix, header []string) error {
	writer := csv.NewWriter(w)
	rows, cols := m.Dims()
	if header != nil {
		if len(header) != cols {
			return fmt.Errorf("%d header names for %d columns: %w", len(header), cols, sim.ErrInvalidShape)
		}
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ColumnNames returns prefix_0 … prefix_{n-1}.
func ColumnNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = prefix + "_" + strconv.Itoa(i)
	}
	return names
}
