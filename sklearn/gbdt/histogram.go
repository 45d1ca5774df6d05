package gbdt

import (
	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/histboost/core/arena"
	"github.com/YuminosukeSato/histboost/core/parallel"
	"github.com/YuminosukeSato/histboost/preprocessing"
)

const (
	// NumBins is the number of histogram slots per feature.
	NumBins = preprocessing.MaxBins

	// splitShards is the number of pool tasks a split search fans out to.
	splitShards = 32
)

// TrainingSet is the binned view of a training matrix together with the
// shelves that produced it.
type TrainingSet struct {
	Binned  *preprocessing.BinnedMatrix
	Shelves []preprocessing.Shelf
}

// Features returns the number of features.
func (ts *TrainingSet) Features() int { return ts.Binned.Features }

// Samples returns the number of rows.
func (ts *TrainingSet) Samples() int { return ts.Binned.Samples }

// Split is the best split found for a node. Feature is -1 when no split
// improves on the gain threshold.
type Split struct {
	Feature    int
	Bin        int
	Threshold  float64
	Gain       float64
	LeftValue  float64
	RightValue float64
}

func noSplit() Split {
	return Split{Feature: -1}
}

// Valid reports whether s names a feature.
func (s Split) Valid() bool { return s.Feature >= 0 }

// Histogram holds per-feature gradient and hessian sums by bin code. G[f] and
// H[f] have NumBins slots and live in arena memory owned by the tree builder.
type Histogram struct {
	G [][]float64
	H [][]float64
}

// newHistogram carves a zeroed histogram for features out of a. Each
// feature's buffer is a whole number of cache-line blocks, so shards writing
// adjacent features never share a line.
func newHistogram(a *arena.Arena, features int) (*Histogram, error) {
	buf, err := arena.Slice[float64](a, 2*features*NumBins)
	if err != nil {
		return nil, err
	}
	hist := &Histogram{
		G: make([][]float64, features),
		H: make([][]float64, features),
	}
	for f := 0; f < features; f++ {
		g := buf[2*f*NumBins:]
		hist.G[f] = g[:NumBins:NumBins]
		hist.H[f] = g[NumBins : 2*NumBins : 2*NumBins]
	}
	return hist, nil
}

// subtractHistogram overwrites parent with parent - small. The result is the
// histogram of the sibling of small.
func subtractHistogram(parent, small *Histogram) {
	for f := range parent.G {
		floats.Sub(parent.G[f], small.G[f])
		floats.Sub(parent.H[f], small.H[f])
	}
}

// accumulate adds the gradients of the rows in part to the bins of one
// feature. g and h are aligned with part.Index.
func accumulate(codes []uint8, part Partition, g, h, gBin, hBin []float64) {
	clear(gBin)
	clear(hBin)
	for j := part.Start; j < part.End; j++ {
		b := codes[part.Index[j]]
		gBin[b] += g[j]
		hBin[b] += h[j]
	}
}

// splitGain is the second-order gain of splitting (gs, hs) into left and right.
func splitGain(gl, hl, gr, hr, gs, hs, lambda float64) float64 {
	return 0.5 * (gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - gs*gs/(hs+lambda))
}

// scanFeature walks the prefix sums of one feature's histogram and updates
// best with any boundary that beats it. Prefix sums use Kahan compensation.
func scanFeature(f int, gBin, hBin []float64, shelf *preprocessing.Shelf, gs, hs float64, p TreeParams, best *Split) {
	limit := min(NumBins-1, len(shelf.Bounds))
	var gl, hl, gc, hc float64
	for j := 0; j < limit; j++ {
		y := gBin[j] - gc
		t := gl + y
		gc = (t - gl) - y
		gl = t

		y = hBin[j] - hc
		t = hl + y
		hc = (t - hl) - y
		hl = t

		// bin 0 only holds values below the training minimum
		if j == 0 {
			continue
		}
		gr, hr := gs-gl, hs-hl
		if hl < p.WeightDecay || hr < p.WeightDecay {
			continue
		}
		gain := splitGain(gl, hl, gr, hr, gs, hs, p.RegLambda)
		// written positively so a NaN gain from an empty side with lambda 0 is rejected
		if !(gain > p.Gamma && gain > best.Gain) {
			continue
		}
		*best = Split{
			Feature:    f,
			Bin:        j,
			Threshold:  shelf.Bounds[j],
			Gain:       gain,
			LeftValue:  -gl / (hl + p.RegLambda),
			RightValue: -gr / (hr + p.RegLambda),
		}
	}
}

// buildHistogram accumulates the histogram of part into hist without scanning
// it, sharded over features like findBestSplit.
func buildHistogram(pool *parallel.Pool, ts *TrainingSet, g, h []float64, part Partition, hist *Histogram) error {
	_, err := parallel.ForEachShard(pool, ts.Features(), splitShards, func(_ *arena.Arena, r parallel.Range) (struct{}, error) {
		for f := r.Start; f < r.End; f++ {
			accumulate(ts.Binned.Row(f), part, g, h, hist.G[f], hist.H[f])
		}
		return struct{}{}, nil
	})
	return err
}

// findBestSplit searches every feature for the best split of the rows in
// part. Features are divided into splitShards contiguous ranges, one pool task
// each. When cached is false the histogram of each feature is rebuilt from g
// and h before scanning; otherwise hist is read as is. Shards only touch their
// own features' buffers, and the per-shard winners are reduced in feature
// order so ties resolve to the lowest feature.
func findBestSplit(pool *parallel.Pool, ts *TrainingSet, g, h []float64, part Partition, cached bool, hist *Histogram, p TreeParams) (Split, error) {
	gs := floats.Sum(g[part.Start:part.End])
	hs := floats.Sum(h[part.Start:part.End])

	results, err := parallel.ForEachShard(pool, ts.Features(), splitShards, func(_ *arena.Arena, r parallel.Range) (Split, error) {
		best := noSplit()
		for f := r.Start; f < r.End; f++ {
			gBin, hBin := hist.G[f], hist.H[f]
			if !cached {
				accumulate(ts.Binned.Row(f), part, g, h, gBin, hBin)
			}
			scanFeature(f, gBin, hBin, &ts.Shelves[f], gs, hs, p, &best)
		}
		return best, nil
	})
	if err != nil {
		return noSplit(), err
	}

	best := noSplit()
	for _, s := range results {
		if s.Gain > best.Gain {
			best = s
		}
	}
	return best, nil
}
