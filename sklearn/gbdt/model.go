package gbdt

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/histboost/core/arena"
	"github.com/YuminosukeSato/histboost/core/model"
	"github.com/YuminosukeSato/histboost/core/parallel"
	"github.com/YuminosukeSato/histboost/core/random"
	"github.com/YuminosukeSato/histboost/pkg/errors"
	"github.com/YuminosukeSato/histboost/pkg/log"
	"github.com/YuminosukeSato/histboost/preprocessing"
)

// Services are the process-wide collaborators a model trains with. Pool is
// required. A nil RNG gets a private registry with the default seed and a nil
// Logger selects the "gbdt" component logger.
type Services struct {
	Pool   *parallel.Pool
	RNG    *random.Registry
	Logger log.Logger
}

// GBModel is a gradient-boosted ensemble of histogram trees. Fit and Predict
// must not run concurrently on the same model; Predict alone may be called
// from several goroutines.
type GBModel struct {
	params     Params
	loss       LossProfile
	activation Activation

	learners    []*TreeBooster
	lossHistory []float64

	svc    Services
	state  *model.StateManager
	logger log.Logger
}

var (
	_ model.Regressor       = (*GBModel)(nil)
	_ model.ParameterGetter = (*GBModel)(nil)
	_ model.ParameterSetter = (*GBModel)(nil)
	_ model.Persistable     = (*GBModel)(nil)
)

// NewGBModel validates params and resolves the loss and activation names.
func NewGBModel(params Params, svc Services) (*GBModel, error) {
	if svc.Pool == nil {
		return nil, errors.NewValueError("NewGBModel", "worker pool is required")
	}
	if svc.RNG == nil {
		svc.RNG = random.NewRegistry()
	}
	if svc.Logger == nil {
		svc.Logger = log.GetLoggerWithName("gbdt")
	}
	m := &GBModel{
		svc:    svc,
		state:  model.NewStateManager(),
		logger: svc.Logger.With(log.ModelNameKey, "GBModel"),
	}
	if err := m.configure(params); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *GBModel) configure(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	loss, err := GetLossProfile(params.Loss)
	if err != nil {
		return err
	}
	activation, err := GetActivation(params.Activation)
	if err != nil {
		return err
	}
	m.params, m.loss, m.activation = params, loss, activation
	return nil
}

// Params returns the model's configuration.
func (m *GBModel) Params() Params { return m.params }

// GetParams implements model.ParameterGetter.
func (m *GBModel) GetParams() map[string]interface{} { return m.params.GetParams() }

// SetParams implements model.ParameterSetter. The new values take effect on
// the next Fit; an invalid combination leaves the model unchanged.
func (m *GBModel) SetParams(params map[string]interface{}) error {
	next := m.params
	if err := next.SetParams(params); err != nil {
		return err
	}
	return m.configure(next)
}

// Fit trains NLearners trees on X and the single-column y. Every round draws
// its subsample from the RNG stream whose id is the round number, after the
// registry state is reset, so refitting with the same seed, params and data
// reproduces the ensemble exactly.
func (m *GBModel) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GBModel.Fit")

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("GBModel.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("Fit", 1, yCols, 1)
	}
	labels := mat.Col(nil, 0, y)

	start := time.Now()
	m.svc.RNG.ResetState()
	m.state.Reset()

	binner, err := preprocessing.NewBinner(m.svc.Pool, m.params.NumBins, preprocessing.BinStrategy(m.params.BinStrategy))
	if err != nil {
		return err
	}
	binner.Logger = m.logger
	binned, err := binner.FitTransform(X)
	if err != nil {
		return err
	}
	ts := &TrainingSet{Binned: binned, Shelves: binner.Shelves()}

	a, err := arena.New(m.params.ArenaBlocks)
	if err != nil {
		return err
	}
	defer a.Free()

	sampleSize := rows
	if m.params.Subsample < 1 {
		sampleSize = max(int(math.Floor(m.params.Subsample*float64(rows))), 1)
	}
	idx := make([]int, sampleSize)
	g := make([]float64, sampleSize)
	h := make([]float64, sampleSize)
	preds := make([]float64, rows)

	learners := make([]*TreeBooster, 0, m.params.NLearners)
	history := make([]float64, 0, m.params.NLearners)

	logRound := m.logger.Debug
	if m.params.Verbosity > 0 {
		logRound = m.logger.Info
	}

	m.logger.Info("training started",
		log.OperationKey, "fit",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.LearnersKey, m.params.NLearners,
		log.SubsampleKey, sampleSize,
		log.LossNameKey, m.loss.Name,
		log.SeedKey, m.svc.RNG.Seed(),
	)

	for round := 0; round < m.params.NLearners; round++ {
		tree, err := m.fitRound(round, ts, labels, preds, idx, g, h, a)
		if err != nil {
			return err
		}
		if err := m.addScaled(tree, X, preds); err != nil {
			return err
		}
		fallbacks := a.Fallbacks()
		a.Clear()

		loss := m.loss.Loss(labels, preds)
		if err := errors.CheckScalar("training loss", loss, round); err != nil {
			return err
		}
		learners = append(learners, tree)
		history = append(history, loss)

		logRound("boosting round",
			log.IterationKey, round,
			log.LossKey, loss,
			log.DepthKey, tree.Depth(),
			log.LeavesKey, tree.NumLeaves(),
			log.FallbacksKey, fallbacks,
		)
	}

	m.learners = learners
	m.lossHistory = history
	m.state.SetFitted(cols, rows)

	m.logger.Info("training completed",
		log.OperationKey, "fit",
		log.LearnersKey, len(learners),
		log.LossKey, history[len(history)-1],
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// fitRound draws the round's subsample, computes its gradients at the current
// predictions and grows one tree on them.
func (m *GBModel) fitRound(round int, ts *TrainingSet, labels, preds []float64, idx []int, g, h []float64, a *arena.Arena) (*TreeBooster, error) {
	stream, release, err := m.svc.RNG.Acquire(uint64(round))
	if err != nil {
		return nil, err
	}
	defer release()

	if len(idx) == len(labels) {
		for i := range idx {
			idx[i] = i
		}
	} else if err := stream.SampleWithoutReplacement(idx, len(labels)); err != nil {
		return nil, err
	}

	if err := GradientsHessians(labels, preds, idx, g, h, m.loss); err != nil {
		return nil, err
	}
	if err := errors.CheckNumericalStability("gradient", g, round); err != nil {
		return nil, err
	}
	if err := errors.CheckNumericalStability("hessian", h, round); err != nil {
		return nil, err
	}

	tree := NewTreeBooster(m.params.treeParams(), a, m.svc.Pool)
	if err := tree.Fit(ts, g, h, Partition{Index: idx, Start: 0, End: len(idx)}); err != nil {
		return nil, err
	}
	if !finiteValues(tree.Root) {
		return nil, errors.NewNumericalInstabilityError("tree fit", []float64{tree.Root.Value}, round)
	}
	return tree, nil
}

// addScaled adds LearningRate * tree(x) to preds for every row of X. Rows are
// sharded over the pool; each shard writes only its own range of preds.
func (m *GBModel) addScaled(tree *TreeBooster, X mat.Matrix, preds []float64) error {
	rows, cols := X.Dims()
	lr := m.params.LearningRate
	_, err := parallel.ForEachShard(m.svc.Pool, rows, m.rowShards(rows), func(_ *arena.Arena, r parallel.Range) (struct{}, error) {
		row := make([]float64, cols)
		for i := r.Start; i < r.End; i++ {
			preds[i] += lr * tree.PredictRow(mat.Row(row, i, X))
		}
		return struct{}{}, nil
	})
	return err
}

func (m *GBModel) rowShards(rows int) int {
	return min(rows, 4*m.svc.Pool.Workers())
}

// PredictRaw returns the ensemble score before the activation: the sum over
// trees of LearningRate * tree(x), one row per input row.
func (m *GBModel) PredictRaw(X mat.Matrix) (*mat.Dense, error) {
	if err := m.state.RequireFitted("GBModel", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := m.state.RequireFeatures("Predict", cols); err != nil {
		return nil, err
	}
	if rows == 0 {
		return &mat.Dense{}, nil
	}
	out := make([]float64, rows)
	lr := m.params.LearningRate
	_, err := parallel.ForEachShard(m.svc.Pool, rows, m.rowShards(rows), func(_ *arena.Arena, r parallel.Range) (struct{}, error) {
		row := make([]float64, cols)
		for i := r.Start; i < r.End; i++ {
			mat.Row(row, i, X)
			var sum float64
			for _, tree := range m.learners {
				sum += lr * tree.PredictRow(row)
			}
			out[i] = sum
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	return mat.NewDense(rows, 1, out), nil
}

// Predict returns the activated ensemble output, one row per input row.
func (m *GBModel) Predict(X mat.Matrix) (*mat.Dense, error) {
	raw, err := m.PredictRaw(X)
	if err != nil {
		return nil, err
	}
	rows, _ := raw.Dims()
	for i := 0; i < rows; i++ {
		raw.Set(i, 0, m.activation(raw.At(i, 0)))
	}
	return raw, nil
}

// Score evaluates the configured loss on (X, y). Losses are defined on raw
// scores, so the activation is not applied.
func (m *GBModel) Score(X, y mat.Matrix) (float64, error) {
	raw, err := m.PredictRaw(X)
	if err != nil {
		return 0, err
	}
	rows, _ := X.Dims()
	yRows, yCols := y.Dims()
	if yRows != rows {
		return 0, errors.NewDimensionError("Score", rows, yRows, 0)
	}
	if yCols != 1 {
		return 0, errors.NewDimensionError("Score", 1, yCols, 1)
	}
	return ComputeLoss(mat.Col(nil, 0, y), mat.Col(nil, 0, raw), m.loss)
}

// LossHistory returns the training loss after each round.
func (m *GBModel) LossHistory() []float64 {
	return append([]float64(nil), m.lossHistory...)
}

// NumTrees returns the number of fitted trees.
func (m *GBModel) NumTrees() int { return len(m.learners) }

// Trees returns the fitted trees in boosting order.
func (m *GBModel) Trees() []*TreeBooster { return m.learners }

// IsFitted reports whether Fit or Load completed.
func (m *GBModel) IsFitted() bool { return m.state.IsFitted() }

// NFeatures returns the feature count seen by Fit.
func (m *GBModel) NFeatures() int {
	n, _ := m.state.Dimensions()
	return n
}
