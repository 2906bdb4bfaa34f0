package forest

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/inventory-sim/inventory-sim/sim"
)

type wireForest struct {
	NumFeatures int     `msgpack:"num_features"`
	NumOutputs  int     `msgpack:"num_outputs"`
	Trees       []*Tree `msgpack:"trees"`
}

// EncodeMsgpack implements msgpack.CustomEncoder. Growth parameters are not
// stored; only the fitted trees are needed for routing.
func (f *Forest) EncodeMsgpack(enc *msgpack.Encoder) error {
	if len(f.trees) == 0 {
		return fmt.Errorf("forest: %w", sim.ErrModelNotFitted)
	}
	return enc.Encode(&wireForest{
		NumFeatures: f.numFeatures,
		NumOutputs:  f.numOutputs,
		Trees:       f.trees,
	})
}

// DecodeMsgpack implements msgpack.CustomDecoder and rejects structurally
// invalid trees with sim.ErrDecode.
func (f *Forest) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w wireForest
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("forest: %w: %v", sim.ErrDecode, err)
	}
	if w.NumFeatures < 1 || w.NumOutputs < 1 || len(w.Trees) == 0 {
		return fmt.Errorf("forest: %w: %d trees, %d features, %d outputs",
			sim.ErrDecode, len(w.Trees), w.NumFeatures, w.NumOutputs)
	}
	for t, tree := range w.Trees {
		if err := validateTree(tree, w.NumFeatures, w.NumOutputs); err != nil {
			return fmt.Errorf("forest: tree %d: %w: %v", t, sim.ErrDecode, err)
		}
	}
	f.trees = w.Trees
	f.numFeatures = w.NumFeatures
	f.numOutputs = w.NumOutputs
	return nil
}

// validateTree checks the preorder layout: children come after their parent,
// so routing always terminates.
func validateTree(t *Tree, nFeatures, nOutputs int) error {
	if t == nil || len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			if len(n.Value) != nOutputs {
				return fmt.Errorf("leaf %d has %d values, want %d", i, len(n.Value), nOutputs)
			}
			continue
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has children %d/%d outside (%d, %d)", i, n.Left, n.Right, i, len(t.Nodes))
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, nFeatures)
		}
	}
	return nil
}
