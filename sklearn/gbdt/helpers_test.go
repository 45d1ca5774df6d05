package gbdt

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/histboost/core/arena"
	"github.com/YuminosukeSato/histboost/core/parallel"
	"github.com/YuminosukeSato/histboost/core/random"
	"github.com/YuminosukeSato/histboost/pkg/log"
	"github.com/YuminosukeSato/histboost/preprocessing"
)

func newTestPool(t *testing.T, workers int) *parallel.Pool {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelError)
	p, err := parallel.NewPool(parallel.Config{Workers: workers, ArenaBlocks: 256, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return p
}

func newTestArena(t *testing.T) *arena.Arena {
	t.Helper()
	a, err := arena.New(1024)
	require.NoError(t, err)
	t.Cleanup(a.Free)
	return a
}

func newTestServices(t *testing.T, workers int, seed uint64) Services {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelError)
	return Services{
		Pool:   newTestPool(t, workers),
		RNG:    random.NewRegistryWithSeed(seed),
		Logger: logger,
	}
}

// randomData returns an n x features matrix of uniform values and a label
// that depends non-linearly on the first two features.
func randomData(n, features int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	X := mat.NewDense(n, features, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for f := 0; f < features; f++ {
			X.Set(i, f, rng.Float64()*10)
		}
		v := X.At(i, 0) * 2
		if features > 1 && X.At(i, 1) > 5 {
			v += 7
		}
		y.Set(i, 0, v+rng.NormFloat64()*0.1)
	}
	return X, y
}

// linearData returns x = 0..n-1 as a single feature with y = x.
func linearData(n int) (*mat.Dense, *mat.Dense) {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	return mat.NewDense(n, 1, xs), mat.NewDense(n, 1, append([]float64(nil), xs...))
}

func newTrainingSet(t *testing.T, pool *parallel.Pool, X mat.Matrix, numBins int) *TrainingSet {
	t.Helper()
	b, err := preprocessing.NewBinner(pool, numBins, preprocessing.Quantile)
	require.NoError(t, err)
	binned, err := b.FitTransform(X)
	require.NoError(t, err)
	return &TrainingSet{Binned: binned, Shelves: b.Shelves()}
}

// gradients returns MSE gradients and hessians at a zero prediction for every
// row, aligned with an identity index.
func gradients(y *mat.Dense) (idx []int, g, h []float64) {
	n, _ := y.Dims()
	idx = make([]int, n)
	g = make([]float64, n)
	h = make([]float64, n)
	for i := range idx {
		idx[i] = i
		g[i] = -y.At(i, 0)
		h[i] = 1
	}
	return idx, g, h
}
