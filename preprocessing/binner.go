// Package preprocessing discretizes continuous features into 8-bit bin codes
// for histogram-based tree building.
package preprocessing

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/histboost/core/arena"
	"github.com/YuminosukeSato/histboost/core/model"
	"github.com/YuminosukeSato/histboost/core/parallel"
	"github.com/YuminosukeSato/histboost/pkg/errors"
	"github.com/YuminosukeSato/histboost/pkg/log"
)

// MaxBins is the largest supported bin count; codes fit in a uint8.
const MaxBins = 256

// BinStrategy selects how bin boundaries are placed.
type BinStrategy string

const (
	// Quantile places boundaries at empirical quantiles so bins hold roughly
	// equal numbers of samples.
	Quantile BinStrategy = "quantile"
	// Uniform splits [min, max] into equal-width bins.
	Uniform BinStrategy = "uniform"
)

// ParseBinStrategy validates a strategy name.
func ParseBinStrategy(s string) (BinStrategy, error) {
	switch BinStrategy(s) {
	case Quantile, "":
		return Quantile, nil
	case Uniform:
		return Uniform, nil
	default:
		return "", errors.NewValidationError("bin_strategy", "must be quantile or uniform", s)
	}
}

// Shelf is the boundary table of one feature. Bin j holds values in
// (Bounds[j-1], Bounds[j]]; the last bin is unbounded above. Consequently
// Bin(v) <= j exactly when v <= Bounds[j], which is the comparison trees use
// at prediction time. Bounds[0] lies just below the training minimum, so bin 0
// only receives values smaller than anything seen in Fit.
type Shelf struct {
	NumBins int       `json:"num_bins"`
	Bounds  []float64 `json:"bounds"` // non-decreasing, length NumBins-1
	Counts  []int     `json:"counts"` // training samples per bin
}

// Bin returns the bin code of v. NaN maps to the last bin.
func (s *Shelf) Bin(v float64) uint8 {
	return uint8(sort.SearchFloat64s(s.Bounds, v))
}

// BinnedMatrix stores bin codes feature-major: the codes of feature f for all
// samples are contiguous.
type BinnedMatrix struct {
	Features int
	Samples  int
	Codes    []uint8
}

// NewBinnedMatrix allocates a zeroed matrix.
func NewBinnedMatrix(features, samples int) *BinnedMatrix {
	return &BinnedMatrix{Features: features, Samples: samples, Codes: make([]uint8, features*samples)}
}

// Row returns the codes of feature f.
func (b *BinnedMatrix) Row(f int) []uint8 {
	return b.Codes[f*b.Samples : (f+1)*b.Samples]
}

// At returns the code of sample i for feature f.
func (b *BinnedMatrix) At(f, i int) uint8 {
	return b.Codes[f*b.Samples+i]
}

// Binner learns one Shelf per feature and maps raw matrices to bin codes.
// Per-feature work runs on the worker pool.
type Binner struct {
	NumBins  int
	Strategy BinStrategy
	Logger   log.Logger

	pool    *parallel.Pool
	state   *model.StateManager
	shelves []Shelf
}

// MinBins is the smallest usable bin count: the reserved bin 0 plus two data bins.
const MinBins = 3

// NewBinner returns an unfitted binner. numBins must lie in [MinBins, MaxBins].
func NewBinner(pool *parallel.Pool, numBins int, strategy BinStrategy) (*Binner, error) {
	if numBins < MinBins || numBins > MaxBins {
		return nil, errors.NewValidationError("num_bins", "must be in [3, 256]", numBins)
	}
	if _, err := ParseBinStrategy(string(strategy)); err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, errors.NewValueError("NewBinner", "worker pool is required")
	}
	if strategy == "" {
		strategy = Quantile
	}
	return &Binner{
		NumBins:  numBins,
		Strategy: strategy,
		Logger:   log.GetLoggerWithName("preprocessing"),
		pool:     pool,
		state:    model.NewStateManager(),
	}, nil
}

// Fit computes the shelves of every column of X. NaN values are ignored; a
// column with no finite value is an error.
func (b *Binner) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("Binner.Fit", "empty data", errors.ErrEmptyData)
	}

	shards := min(c, 4*b.pool.Workers())
	parts, err := parallel.ForEachShard(b.pool, c, shards, func(a *arena.Arena, rg parallel.Range) ([]Shelf, error) {
		out := make([]Shelf, 0, rg.Len())
		for f := rg.Start; f < rg.End; f++ {
			shelf, err := b.fitFeature(a, X, f)
			if err != nil {
				return nil, err
			}
			out = append(out, shelf)
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	shelves := make([]Shelf, 0, c)
	for _, p := range parts {
		shelves = append(shelves, p...)
	}
	b.shelves = shelves
	b.state.SetFitted(c, r)

	b.Logger.Debug("binner fitted",
		log.OperationKey, "bin",
		log.SamplesKey, r,
		log.FeaturesKey, c,
		log.BinsKey, b.NumBins,
		"strategy", string(b.Strategy),
	)
	return nil
}

// fitFeature sorts column f in the worker's arena and derives its shelf.
func (b *Binner) fitFeature(a *arena.Arena, X mat.Matrix, f int) (Shelf, error) {
	r, _ := X.Dims()
	col, err := arena.Slice[float64](a, r)
	if err != nil {
		return Shelf{}, err
	}
	n := 0
	for i := 0; i < r; i++ {
		v := X.At(i, f)
		if math.IsNaN(v) {
			continue
		}
		if math.IsInf(v, 0) {
			return Shelf{}, errors.NewValidationError("X", "feature has an infinite value", f)
		}
		col[n] = v
		n++
	}
	if n == 0 {
		return Shelf{}, errors.NewValidationError("X", "feature has no non-NaN values", f)
	}
	col = col[:n]
	sort.Float64s(col)

	// Data bins are 1..NumBins-1, delimited by Bounds[1:].
	lo, hi := col[0], col[n-1]
	dataBins := b.NumBins - 1
	bounds := make([]float64, b.NumBins-1)
	bounds[0] = math.Nextafter(lo, math.Inf(-1))
	if math.IsInf(bounds[0], -1) {
		bounds[0] = lo
	}
	switch b.Strategy {
	case Uniform:
		// interpolate rather than step so hi-lo cannot overflow
		for j := 1; j < len(bounds); j++ {
			w := float64(j) / float64(dataBins)
			bounds[j] = max(lo*(1-w)+hi*w, bounds[j-1])
		}
	default:
		for j := 1; j < len(bounds); j++ {
			bounds[j] = stat.Quantile(float64(j)/float64(dataBins), stat.Empirical, col, nil)
		}
	}

	shelf := Shelf{NumBins: b.NumBins, Bounds: bounds, Counts: make([]int, b.NumBins)}
	for _, v := range col {
		shelf.Counts[shelf.Bin(v)]++
	}
	return shelf, nil
}

// Shelves returns the fitted shelves, one per feature.
func (b *Binner) Shelves() []Shelf {
	return b.shelves
}

// Transform maps X to bin codes using the fitted shelves.
func (b *Binner) Transform(X mat.Matrix) (*BinnedMatrix, error) {
	if err := b.state.RequireFitted("Binner", "Transform"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := b.state.RequireFeatures("Binner.Transform", c); err != nil {
		return nil, err
	}
	return ApplyShelves(b.pool, X, b.shelves)
}

// FitTransform fits on X and returns its bin codes.
func (b *Binner) FitTransform(X mat.Matrix) (*BinnedMatrix, error) {
	if err := b.Fit(X); err != nil {
		return nil, err
	}
	return b.Transform(X)
}

// ApplyShelves bins every column of X with the matching shelf. Features are
// processed in parallel; each task writes only its own rows of the result.
func ApplyShelves(pool *parallel.Pool, X mat.Matrix, shelves []Shelf) (*BinnedMatrix, error) {
	r, c := X.Dims()
	if c != len(shelves) {
		return nil, errors.NewDimensionError("ApplyShelves", len(shelves), c, 1)
	}
	out := NewBinnedMatrix(c, r)
	if r == 0 || c == 0 {
		return out, nil
	}
	_, err := parallel.ForEachShard(pool, c, min(c, 4*pool.Workers()), func(_ *arena.Arena, rg parallel.Range) (struct{}, error) {
		for f := rg.Start; f < rg.End; f++ {
			row := out.Row(f)
			shelf := &shelves[f]
			for i := range row {
				row[i] = shelf.Bin(X.At(i, f))
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
