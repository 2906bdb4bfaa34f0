package sim

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is; every error returned by
// this package wraps exactly one of them.
var (
	// ErrInvalidShape reports inputs whose dimensions or lengths do not line up.
	ErrInvalidShape = errors.New("invalid shape")

	// ErrInvalidArgument reports values outside their domain (negative costs,
	// non-positive weights, NaN).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidConfig reports unknown weighter/policy names and out-of-range
	// configuration parameters.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrModelNotFitted is returned when weights or decisions are requested
	// before a successful Fit (or Load).
	ErrModelNotFitted = errors.New("model not fitted")

	// ErrQuantileNotFound is returned when the cumulative weight never reaches
	// the service level, typically service level 1.0 against a cumulative sum
	// that floating-point rounding left just below 1.
	ErrQuantileNotFound = errors.New("weighted quantile not found")

	// ErrFileExists is returned by Save when the target exists and overwrite is off.
	ErrFileExists = errors.New("file already exists")

	// ErrFileNotFound is returned by Load when the expected file is absent.
	ErrFileNotFound = errors.New("file not found")

	// ErrDecode is returned by Load when a persisted file cannot be decoded.
	ErrDecode = errors.New("decode failed")
)

// PersistenceError annotates a save/load failure with the file involved.
type PersistenceError struct {
	Op   string // "save" or "load"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
