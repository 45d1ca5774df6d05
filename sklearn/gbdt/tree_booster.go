package gbdt

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/histboost/core/arena"
	"github.com/YuminosukeSato/histboost/core/parallel"
	"github.com/YuminosukeSato/histboost/pkg/errors"
)

// TreeParams controls the growth of a single tree.
type TreeParams struct {
	MaxDepth    int     // nodes at this depth become leaves
	MinSamples  int     // nodes with fewer rows become leaves
	WeightDecay float64 // minimum hessian sum on each side of a split
	RegLambda   float64 // L2 penalty on leaf values
	Gamma       float64 // minimum gain of an accepted split
}

// Node is a tree node. A leaf has no children and Split.Feature == -1.
type Node struct {
	Split Split
	Value float64
	Left  *Node
	Right *Node
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return n.Left == nil || n.Right == nil
}

func (n *Node) makeLeaf() {
	n.Split = noSplit()
	n.Left, n.Right = nil, nil
}

// Partition is the range [Start, End) of Index that belongs to one node.
// Gradient and hessian slices passed alongside it are aligned with Index.
type Partition struct {
	Index []int
	Start int
	End   int
}

// Size returns the number of rows in the partition.
func (p Partition) Size() int { return p.End - p.Start }

// partitionData reorders part so rows whose code for the split feature is at
// most splitBin come first, swapping g and h along with Index. It returns the
// first position of the right side.
func partitionData(codes []uint8, splitBin int, part Partition, g, h []float64) int {
	bin := uint8(splitBin)
	idx := part.Index
	i, j := part.Start, part.End-1
	for i <= j {
		if codes[idx[i]] <= bin {
			i++
			continue
		}
		if codes[idx[j]] > bin {
			j--
			continue
		}
		idx[i], idx[j] = idx[j], idx[i]
		g[i], g[j] = g[j], g[i]
		h[i], h[j] = h[j], h[i]
		i++
		j--
	}
	return i
}

// TreeBooster grows one regression tree on gradient statistics. Histogram
// buffers come from an arena the booster does not own; the caller clears it
// once the tree is built.
type TreeBooster struct {
	Root   *Node
	Params TreeParams

	arena *arena.Arena
	pool  *parallel.Pool
}

// NewTreeBooster returns an empty tree that allocates from a and searches
// splits on pool.
func NewTreeBooster(params TreeParams, a *arena.Arena, pool *parallel.Pool) *TreeBooster {
	return &TreeBooster{Params: params, arena: a, pool: pool}
}

// Fit grows the tree over the rows of part. g and h are aligned with
// part.Index and are reordered in place together with it.
func (t *TreeBooster) Fit(ts *TrainingSet, g, h []float64, part Partition) error {
	if len(g) != len(part.Index) || len(h) != len(part.Index) {
		return errors.NewDimensionError("TreeBooster.Fit", len(part.Index), min(len(g), len(h)), 0)
	}
	if part.Start < 0 || part.Start > part.End || part.End > len(part.Index) {
		return errors.NewValueError("TreeBooster.Fit", "partition out of range")
	}

	hist, err := newHistogram(t.arena, ts.Features())
	if err != nil {
		return err
	}
	gs := floats.Sum(g[part.Start:part.End])
	hs := floats.Sum(h[part.Start:part.End])
	root := &Node{Split: noSplit(), Value: -gs / (hs + t.Params.RegLambda)}

	if part.Size() > 0 && !t.stops(part, 0) {
		root.Split, err = findBestSplit(t.pool, ts, g, h, part, false, hist, t.Params)
		if err != nil {
			return err
		}
	}
	if err := t.fitNode(root, ts, g, h, part, hist, 0); err != nil {
		return err
	}
	t.Root = root
	return nil
}

// stops reports whether a node over part at depth becomes a leaf regardless
// of its split.
func (t *TreeBooster) stops(part Partition, depth int) bool {
	return depth >= t.Params.MaxDepth || part.Size() < t.Params.MinSamples
}

// fitNode splits node, whose split was found by its parent, and recurses.
// hist holds the histogram of part on entry and is reused for the larger
// child, whose histogram is the parent's minus the smaller child's.
func (t *TreeBooster) fitNode(node *Node, ts *TrainingSet, g, h []float64, part Partition, hist *Histogram, depth int) error {
	if t.stops(part, depth) || !node.Split.Valid() {
		node.makeLeaf()
		return nil
	}

	mid := partitionData(ts.Binned.Row(node.Split.Feature), node.Split.Bin, part, g, h)
	if mid == part.Start || mid == part.End {
		node.makeLeaf()
		return nil
	}

	left := &Node{Split: noSplit(), Value: node.Split.LeftValue}
	right := &Node{Split: noSplit(), Value: node.Split.RightValue}
	leftPart := Partition{Index: part.Index, Start: part.Start, End: mid}
	rightPart := Partition{Index: part.Index, Start: mid, End: part.End}

	smallNode, largeNode := left, right
	smallPart, largePart := leftPart, rightPart
	leftIsSmall := leftPart.Size() <= rightPart.Size()
	if !leftIsSmall {
		smallNode, largeNode = right, left
		smallPart, largePart = rightPart, leftPart
	}

	// Children that will stop need no split. The small histogram is still
	// built when the large child needs it for subtraction.
	smallStops, largeStops := t.stops(smallPart, depth+1), t.stops(largePart, depth+1)
	var small *Histogram
	if !smallStops || !largeStops {
		var err error
		if small, err = newHistogram(t.arena, ts.Features()); err != nil {
			return err
		}
		if smallStops {
			err = buildHistogram(t.pool, ts, g, h, smallPart, small)
		} else {
			smallNode.Split, err = findBestSplit(t.pool, ts, g, h, smallPart, false, small, t.Params)
		}
		if err != nil {
			return err
		}
	}
	if !largeStops {
		subtractHistogram(hist, small)
		var err error
		if largeNode.Split, err = findBestSplit(t.pool, ts, g, h, largePart, true, hist, t.Params); err != nil {
			return err
		}
	}

	node.Left, node.Right = left, right
	leftHist, rightHist := small, hist
	if !leftIsSmall {
		leftHist, rightHist = hist, small
	}
	if err := t.fitNode(left, ts, g, h, leftPart, leftHist, depth+1); err != nil {
		return err
	}
	return t.fitNode(right, ts, g, h, rightPart, rightHist, depth+1)
}

// PredictRow routes x from the root: left when x[f] <= threshold, right when
// greater. A NaN stops at the current node and returns its value.
func (t *TreeBooster) PredictRow(x []float64) float64 {
	n := t.Root
	if n == nil {
		return 0
	}
	for !n.IsLeaf() {
		v := x[n.Split.Feature]
		switch {
		case v <= n.Split.Threshold:
			n = n.Left
		case v > n.Split.Threshold:
			n = n.Right
		default:
			return n.Value
		}
	}
	return n.Value
}

// Predict returns one output per row of X.
func (t *TreeBooster) Predict(X mat.Matrix) []float64 {
	r, c := X.Dims()
	out := make([]float64, r)
	row := make([]float64, c)
	for i := range out {
		out[i] = t.PredictRow(mat.Row(row, i, X))
	}
	return out
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *TreeBooster) Depth() int {
	return nodeDepth(t.Root)
}

func nodeDepth(n *Node) int {
	if n == nil || n.IsLeaf() {
		return 0
	}
	return 1 + max(nodeDepth(n.Left), nodeDepth(n.Right))
}

// NumLeaves returns the number of leaves.
func (t *TreeBooster) NumLeaves() int {
	return countLeaves(t.Root)
}

func countLeaves(n *Node) int {
	if n == nil {
		return 0
	}
	if n.IsLeaf() {
		return 1
	}
	return countLeaves(n.Left) + countLeaves(n.Right)
}

// finiteValues reports whether every node value in the tree is finite.
func finiteValues(n *Node) bool {
	if n == nil {
		return true
	}
	if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
		return false
	}
	return finiteValues(n.Left) && finiteValues(n.Right)
}
