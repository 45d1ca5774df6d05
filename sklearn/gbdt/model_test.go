package gbdt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/histboost/core/random"
	"github.com/YuminosukeSato/histboost/pkg/errors"
	"github.com/YuminosukeSato/histboost/pkg/log"
)

func TestFitIdentity(t *testing.T) {
	svc := newTestServices(t, 4, random.DefaultSeed)
	params := DefaultParams()
	params.NLearners = 200
	params.LearningRate = 0.5
	params.Subsample = 1
	params.MaxDepth = 8
	params.MinSamples = 2

	m, err := NewGBModel(params, svc)
	require.NoError(t, err)

	X, y := linearData(100)
	require.NoError(t, m.Fit(X, y))
	assert.Equal(t, 200, m.NumTrees())

	pred, err := m.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		assert.InDelta(t, y.At(i, 0), pred.At(i, 0), 1.0, "x=%d", i)
	}

	history := m.LossHistory()
	require.Len(t, history, 200)
	assert.Less(t, history[len(history)-1], history[0])
}

func TestFitWithoutRegularization(t *testing.T) {
	svc := newTestServices(t, 2, random.DefaultSeed)
	params := DefaultParams()
	params.NLearners = 100
	params.Subsample = 1
	params.RegLambda = 0
	params.WeightDecay = 0

	m, err := NewGBModel(params, svc)
	require.NoError(t, err)
	X, y := linearData(100)
	require.NoError(t, m.Fit(X, y))

	for i, tree := range m.Trees() {
		require.Greater(t, tree.Depth(), 0, "tree %d", i)
	}
	pred, err := m.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		assert.InDelta(t, y.At(i, 0), pred.At(i, 0), 1.0, "x=%d", i)
	}
}

func TestFitWithSubsampleReducesLoss(t *testing.T) {
	svc := newTestServices(t, 3, 7)
	params := DefaultParams()
	params.NLearners = 60

	m, err := NewGBModel(params, svc)
	require.NoError(t, err)
	X, y := randomData(400, 3, 1)
	require.NoError(t, m.Fit(X, y))

	history := m.LossHistory()
	assert.Less(t, history[len(history)-1], history[0]/4)

	score, err := m.Score(X, y)
	require.NoError(t, err)
	assert.InDelta(t, history[len(history)-1], score, 1e-9)
}

func TestFitIsDeterministic(t *testing.T) {
	X, y := randomData(300, 4, 2)
	params := DefaultParams()
	params.NLearners = 25
	params.Subsample = 0.5

	fit := func(workers int, seed uint64) *mat.Dense {
		m, err := NewGBModel(params, newTestServices(t, workers, seed))
		require.NoError(t, err)
		require.NoError(t, m.Fit(X, y))
		pred, err := m.Predict(X)
		require.NoError(t, err)
		return pred
	}

	a := fit(1, 99)
	b := fit(4, 99)
	assert.True(t, mat.EqualApprox(a, b, 1e-12), "worker count must not change the model")

	c := fit(2, 100)
	assert.False(t, mat.Equal(a, c), "different seeds draw different subsamples")
}

func TestRefitResetsStreams(t *testing.T) {
	X, y := randomData(200, 2, 4)
	params := DefaultParams()
	params.NLearners = 10

	m, err := NewGBModel(params, newTestServices(t, 2, 5))
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, y))
	first, err := m.Predict(X)
	require.NoError(t, err)

	require.NoError(t, m.Fit(X, y))
	second, err := m.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(first, second))
}

func TestBinaryCrossEntropy(t *testing.T) {
	svc := newTestServices(t, 2, 1)
	params := DefaultParams()
	params.Loss = "BCE"
	params.Activation = "sigmoid"
	params.NLearners = 50
	params.LearningRate = 0.3
	params.Subsample = 1

	n := 200
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		if i >= n/2 {
			y.Set(i, 0, 1)
		}
	}

	m, err := NewGBModel(params, svc)
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, y))

	pred, err := m.Predict(X)
	require.NoError(t, err)
	correct := 0
	for i := 0; i < n; i++ {
		p := pred.At(i, 0)
		require.True(t, p > 0 && p < 1)
		if (p >= 0.5) == (y.At(i, 0) == 1) {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, n*95/100)

	raw, err := m.PredictRaw(X)
	require.NoError(t, err)
	assert.InDelta(t, Sigmoid(raw.At(0, 0)), pred.At(0, 0), 1e-12)
}

func TestPredictErrors(t *testing.T) {
	m, err := NewGBModel(DefaultParams(), newTestServices(t, 1, 1))
	require.NoError(t, err)

	_, err = m.Predict(mat.NewDense(1, 1, []float64{1}))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	X, y := linearData(20)
	require.NoError(t, m.Fit(X, y))

	_, err = m.Predict(mat.NewDense(1, 2, []float64{1, 2}))
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))

	pred, err := m.Predict(mat.NewDense(1, 1, []float64{math.NaN()}))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(pred.At(0, 0)), "NaN features fall back to node values")
}

func TestFitValidatesInput(t *testing.T) {
	m, err := NewGBModel(DefaultParams(), newTestServices(t, 1, 1))
	require.NoError(t, err)

	err = m.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(2, 1, []float64{1, 2}))
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))

	err = m.Fit(mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	assert.True(t, errors.As(err, &dim))

	err = m.Fit(&mat.Dense{}, &mat.Dense{})
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	y := mat.NewDense(3, 1, []float64{1, math.Inf(1), 3})
	err = m.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), y)
	var ni *errors.NumericalInstabilityError
	assert.True(t, errors.As(err, &ni))
	assert.False(t, m.IsFitted())
}

func TestNewGBModelValidation(t *testing.T) {
	svc := newTestServices(t, 1, 1)

	_, err := NewGBModel(DefaultParams(), Services{})
	assert.Error(t, err)

	for _, mutate := range []func(*Params){
		func(p *Params) { p.Loss = "Huber" },
		func(p *Params) { p.Activation = "relu" },
		func(p *Params) { p.NLearners = 0 },
		func(p *Params) { p.Subsample = 1.5 },
		func(p *Params) { p.NumBins = 300 },
		func(p *Params) { p.BinStrategy = "kmeans" },
	} {
		p := DefaultParams()
		mutate(&p)
		_, err := NewGBModel(p, svc)
		assert.Error(t, err)
	}
}

func TestGBModelParams(t *testing.T) {
	m, err := NewGBModel(DefaultParams(), newTestServices(t, 1, 1))
	require.NoError(t, err)

	require.NoError(t, m.SetParams(map[string]interface{}{
		"n_learners":    float64(12),
		"learning_rate": 0.05,
		"loss":          "RMSE",
	}))
	assert.Equal(t, 12, m.Params().NLearners)
	assert.Equal(t, "RMSE", m.GetParams()["loss"])

	assert.Error(t, m.SetParams(map[string]interface{}{"n_learners": 1.5}))
	assert.Error(t, m.SetParams(map[string]interface{}{"colsample": 0.5}))
	assert.Error(t, m.SetParams(map[string]interface{}{"loss": "Huber"}))
	assert.Equal(t, "RMSE", m.Params().Loss, "failed updates leave params unchanged")
}

func TestFitLogsRounds(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	svc := newTestServices(t, 2, 1)
	svc.Logger = logger

	params := DefaultParams()
	params.NLearners = 3
	m, err := NewGBModel(params, svc)
	require.NoError(t, err)
	X, y := linearData(50)
	require.NoError(t, m.Fit(X, y))

	assert.True(t, logger.ContainsMessage("training started"))
	assert.True(t, logger.ContainsMessage("training completed"))
	assert.True(t, logger.ContainsField(log.IterationKey, float64(2)))
	assert.True(t, logger.ContainsField(log.ModelNameKey, "GBModel"))
}
