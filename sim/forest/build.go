package forest

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	// featureThreshold is the minimum gap between two feature values for a
	// split to be placed between them.
	featureThreshold = 1e-7

	// impurityEpsilon is float64 machine epsilon; nodes at or below it are pure.
	impurityEpsilon = 2.220446049250313e-16
)

// treeParams are the per-tree growth limits resolved from sim.ForestConfig.
type treeParams struct {
	maxDepth        int // 0 means unbounded
	minSamplesSplit int
	minSamplesLeaf  int
	minWeightLeaf   float64 // absolute, already scaled by the total weight
	maxFeatures     int
}

// builder grows one CART regression tree with the multi-output squared-error
// criterion. Rows with zero weight are excluded from the tree.
type builder struct {
	x, y      *mat.Dense
	w         []float64
	p         treeParams
	rng       *rand.Rand
	nFeatures int
	nOutputs  int
	nodes     []Node

	leftSum  []float64
	totalSum []float64
}

type split struct {
	feature   int
	threshold float64
	proxy     float64
}

type featureValue struct {
	v float64
	s int
}

func buildTree(x, y *mat.Dense, w []float64, p treeParams, rng *rand.Rand) *Tree {
	_, nf := x.Dims()
	_, no := y.Dims()
	b := &builder{
		x:         x,
		y:         y,
		w:         w,
		p:         p,
		rng:       rng,
		nFeatures: nf,
		nOutputs:  no,
		leftSum:   make([]float64, no),
		totalSum:  make([]float64, no),
	}
	var samples []int
	for i, wi := range w {
		if wi > 0 {
			samples = append(samples, i)
		}
	}
	b.grow(samples, 0)
	return &Tree{Nodes: b.nodes}
}

// grow appends the subtree for samples in preorder and returns its root index.
func (b *builder) grow(samples []int, depth int) int {
	idx := len(b.nodes)
	weight, value, impurity := b.stats(samples)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Samples: len(samples), Weight: weight})

	n := len(samples)
	leaf := (b.p.maxDepth > 0 && depth >= b.p.maxDepth) ||
		n < b.p.minSamplesSplit ||
		n < 2*b.p.minSamplesLeaf ||
		weight < 2*b.p.minWeightLeaf ||
		impurity <= impurityEpsilon
	if !leaf {
		if s, ok := b.bestSplit(samples, weight); ok {
			left, right := b.partition(samples, s)
			l := b.grow(left, depth+1)
			r := b.grow(right, depth+1)
			node := &b.nodes[idx]
			node.Feature = s.feature
			node.Threshold = s.threshold
			node.Left = l
			node.Right = r
			return idx
		}
	}
	b.nodes[idx].Value = value
	return idx
}

// stats returns the node weight, weighted mean per output and the summed
// per-output weighted variance.
func (b *builder) stats(samples []int) (weight float64, mean []float64, impurity float64) {
	mean = make([]float64, b.nOutputs)
	for _, s := range samples {
		ws := b.w[s]
		weight += ws
		row := b.y.RawRowView(s)
		for k, v := range row {
			mean[k] += ws * v
		}
	}
	for k := range mean {
		mean[k] /= weight
	}
	for _, s := range samples {
		ws := b.w[s]
		row := b.y.RawRowView(s)
		for k, v := range row {
			d := v - mean[k]
			impurity += ws * d * d
		}
	}
	return weight, mean, impurity / weight
}

// bestSplit sweeps up to maxFeatures non-constant features in random order
// and returns the split maximising the squared-error proxy
// sum_k SL_k²/WL + SR_k²/WR. The first best split wins ties.
func (b *builder) bestSplit(samples []int, totalWeight float64) (split, bool) {
	for k := range b.totalSum {
		b.totalSum[k] = 0
	}
	for _, s := range samples {
		ws := b.w[s]
		for k, v := range b.y.RawRowView(s) {
			b.totalSum[k] += ws * v
		}
	}

	n := len(samples)
	sorted := make([]featureValue, n)
	best := split{proxy: math.Inf(-1)}
	found := false
	visited := 0

	for _, f := range b.rng.Perm(b.nFeatures) {
		if visited >= b.p.maxFeatures {
			break
		}
		for i, s := range samples {
			sorted[i] = featureValue{v: b.x.At(s, f), s: s}
		}
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].v < sorted[j].v })
		if sorted[n-1].v <= sorted[0].v+featureThreshold {
			continue
		}
		visited++

		for k := range b.leftSum {
			b.leftSum[k] = 0
		}
		leftWeight := 0.0
		for i := 0; i < n-1; i++ {
			fv := sorted[i]
			ws := b.w[fv.s]
			leftWeight += ws
			for k, v := range b.y.RawRowView(fv.s) {
				b.leftSum[k] += ws * v
			}
			next := sorted[i+1].v
			if next <= fv.v+featureThreshold {
				continue
			}
			nLeft, nRight := i+1, n-i-1
			if nLeft < b.p.minSamplesLeaf || nRight < b.p.minSamplesLeaf {
				continue
			}
			rightWeight := totalWeight - leftWeight
			if leftWeight < b.p.minWeightLeaf || rightWeight < b.p.minWeightLeaf {
				continue
			}
			proxy := 0.0
			for k, sl := range b.leftSum {
				sr := b.totalSum[k] - sl
				proxy += sl*sl/leftWeight + sr*sr/rightWeight
			}
			if proxy > best.proxy {
				best = split{feature: f, threshold: midpoint(fv.v, next), proxy: proxy}
				found = true
			}
		}
	}
	return best, found
}

func (b *builder) partition(samples []int, s split) (left, right []int) {
	for _, i := range samples {
		if b.x.At(i, s.feature) <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

// midpoint places the threshold halfway between a < b, falling back to a
// when rounding would put it on b.
func midpoint(a, b float64) float64 {
	t := a/2 + b/2
	if t >= b || math.IsInf(t, 0) {
		return a
	}
	return t
}
