package forest

// Node is one node of a regression tree. Nodes are stored flat in preorder;
// a node is a leaf when Left is -1.
type Node struct {
	Feature   int       `msgpack:"f"`
	Threshold float64   `msgpack:"t"`
	Left      int       `msgpack:"l"`
	Right     int       `msgpack:"r"`
	Samples   int       `msgpack:"n"` // distinct training rows reaching the node
	Weight    float64   `msgpack:"w"` // weighted row count (bootstrap multiplicity)
	Value     []float64 `msgpack:"v"` // weighted mean target, leaves only
}

// IsLeaf reports whether n is terminal.
func (n *Node) IsLeaf() bool { return n.Left < 0 }

// Tree is a binary regression tree. Leaf ids are node indices.
type Tree struct {
	Nodes []Node `msgpack:"nodes"`
}

// Leaf drops x down the tree and returns the index of the leaf it reaches.
// x[Feature] <= Threshold goes left. The caller checks len(x).
func (t *Tree) Leaf(x []float64) int {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		n := &t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// Predict returns the leaf value reached by x.
func (t *Tree) Predict(x []float64) []float64 {
	return t.Nodes[t.Leaf(x)].Value
}

// NumLeaves counts terminal nodes.
func (t *Tree) NumLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// Depth returns the length of the longest root-to-leaf path (a lone leaf has
// depth 0).
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	return t.depthFrom(0)
}

func (t *Tree) depthFrom(i int) int {
	n := &t.Nodes[i]
	if n.IsLeaf() {
		return 0
	}
	return 1 + max(t.depthFrom(n.Left), t.depthFrom(n.Right))
}
