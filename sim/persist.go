package sim

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

const (
	// QuantilesFileName holds the unconditional quantiles of a saa agent.
	QuantilesFileName = "saa_quantiles.bin"
	// ModelFileName holds the leaf model and training state of rf/dt agents.
	ModelFileName = "model.msgpack"

	modelFormatVersion = 1
)

// modelEnvelope is the on-disk form of a model-driven agent. Model is the
// leaf model's own msgpack encoding.
type modelEnvelope struct {
	Version        int                `msgpack:"version"`
	Kind           WeighterKind       `msgpack:"kind"`
	WeightFunction WeightFunction     `msgpack:"weight_function"`
	NumFeatures    int                `msgpack:"num_features"`
	Y              [][]float64        `msgpack:"y"`
	TrainLeaves    [][]int            `msgpack:"train_leaves"`
	Model          msgpack.RawMessage `msgpack:"model"`
}

// PersistedFileName returns the file Save writes for the given weighter kind.
func PersistedFileName(kind WeighterKind) string {
	if kind == WeighterSAA {
		return QuantilesFileName
	}
	return ModelFileName
}

// Save writes the fitted state to dir. The directory is created if needed.
// An existing file is only replaced when overwrite is true.
func (a *Agent) Save(dir string, overwrite bool) error {
	path := filepath.Join(dir, PersistedFileName(a.Kind()))
	if !a.fitted {
		return &PersistenceError{Op: "save", Path: path, Err: ErrModelNotFitted}
	}
	switch _, err := os.Stat(path); {
	case err == nil:
		if !overwrite {
			return &PersistenceError{Op: "save", Path: path, Err: ErrFileExists}
		}
		a.logger().WithField("path", path).Warn("overwriting persisted agent")
	case !errors.Is(err, fs.ErrNotExist):
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}

	var buf bytes.Buffer
	if a.Kind() == WeighterSAA {
		if _, err := mat.NewVecDense(len(a.quantiles), a.quantiles).MarshalBinaryTo(&buf); err != nil {
			return &PersistenceError{Op: "save", Path: path, Err: err}
		}
	} else {
		data, err := a.encodeModel()
		if err != nil {
			return &PersistenceError{Op: "save", Path: path, Err: err}
		}
		buf.Write(data)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}
	a.logger().WithField("path", path).Info("agent saved")
	return nil
}

func (a *Agent) encodeModel() ([]byte, error) {
	mw, ok := a.weighter.(*ModelDrivenWeighter)
	if !ok {
		return nil, fmt.Errorf("weighter %s has no leaf model", a.Kind())
	}
	model, err := msgpack.Marshal(mw.Model())
	if err != nil {
		return nil, fmt.Errorf("encoding leaf model: %w", err)
	}
	rows, _ := a.y.Dims()
	y := make([][]float64, rows)
	for i := range y {
		y[i] = mat.Row(nil, i, a.y)
	}
	return msgpack.Marshal(&modelEnvelope{
		Version:        modelFormatVersion,
		Kind:           a.Kind(),
		WeightFunction: mw.WeightFunction(),
		NumFeatures:    a.nFeatures,
		Y:              y,
		TrainLeaves:    mw.TrainLeafIndices(),
		Model:          model,
	})
}

// Load restores state written by Save and moves the agent to Fitted. The
// service level is recomputed from this agent's costs, not read from disk.
// On failure the agent is left Unfitted.
func (a *Agent) Load(dir string) error {
	path := filepath.Join(dir, PersistedFileName(a.Kind()))
	a.reset()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &PersistenceError{Op: "load", Path: path, Err: ErrFileNotFound}
		}
		return &PersistenceError{Op: "load", Path: path, Err: err}
	}
	if a.Kind() == WeighterSAA {
		err = a.loadQuantiles(data)
	} else {
		err = a.loadModel(data)
	}
	if err != nil {
		a.reset()
		return &PersistenceError{Op: "load", Path: path, Err: err}
	}
	a.fitted = true
	a.logger().WithFields(logrus.Fields{"path": path}).Info("agent loaded")
	return nil
}

func (a *Agent) loadQuantiles(data []byte) error {
	var v mat.VecDense
	if err := v.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	q := mat.Col(nil, 0, &v)
	levels, err := a.sl.Resolve(len(q))
	if err != nil {
		return err
	}
	a.quantiles = q
	a.levels = levels
	return nil
}

func (a *Agent) loadModel(data []byte) error {
	var env modelEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.Version != modelFormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrDecode, env.Version)
	}
	if env.Kind != a.Kind() {
		return fmt.Errorf("%w: file holds a %q model, agent is %q", ErrDecode, env.Kind, a.Kind())
	}
	if !ValidWeightFunctions[string(env.WeightFunction)] {
		return fmt.Errorf("%w: unknown weight function %q", ErrDecode, env.WeightFunction)
	}
	y, err := DenseFromRows(env.Y)
	if err != nil {
		return fmt.Errorf("%w: targets: %v", ErrDecode, err)
	}
	if len(env.TrainLeaves) != len(env.Y) {
		return fmt.Errorf("%w: %d leaf rows for %d targets", ErrDecode, len(env.TrainLeaves), len(env.Y))
	}
	if NewLeafModelFunc == nil {
		return fmt.Errorf("no leaf model registered (import sim/forest): %w", ErrInvalidConfig)
	}
	model, err := NewLeafModelFunc(a.Kind(), a.cfg.Forest.WithDefaults())
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(env.Model, model); err != nil {
		return fmt.Errorf("%w: leaf model: %v", ErrDecode, err)
	}
	if model.NumFeatures() != env.NumFeatures {
		return fmt.Errorf("%w: model has %d features, envelope %d", ErrDecode, model.NumFeatures(), env.NumFeatures)
	}
	mw := NewModelDrivenWeighter(a.Kind(), model, env.WeightFunction)
	if err := mw.restore(env.TrainLeaves); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	_, nOutputs := y.Dims()
	levels, err := a.sl.Resolve(nOutputs)
	if err != nil {
		return err
	}
	a.weighter = mw
	a.y = y
	a.levels = levels
	a.nFeatures = env.NumFeatures
	a.nTrain = len(env.Y)
	return nil
}
