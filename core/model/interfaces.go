package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter is implemented by models trained on a feature matrix and a
// single-column label matrix.
type Fitter interface {
	Fit(X, y mat.Matrix) error
}

// Predictor is implemented by fitted models.
type Predictor interface {
	// Predict returns one row per input row.
	Predict(X mat.Matrix) (*mat.Dense, error)
}

// Scorer is implemented by models that evaluate their configured loss.
type Scorer interface {
	Score(X, y mat.Matrix) (float64, error)
}

// Regressor combines Fitter, Predictor and Scorer.
type Regressor interface {
	Fitter
	Predictor
	Scorer
}

// ParameterGetter exposes hyperparameters as a flat map.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter updates hyperparameters from a flat map.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}

// Persistable is implemented by models that can be written to disk.
type Persistable interface {
	Save(path string) error
}
