package gbdt

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/YuminosukeSato/histboost/core/parallel"
	"github.com/YuminosukeSato/histboost/pkg/errors"
	"github.com/YuminosukeSato/histboost/preprocessing"
)

// Params configures a GBModel. The JSON form is the one read by the CLI's
// -config flag and written into saved models.
type Params struct {
	Loss         string  `json:"loss"`
	NLearners    int     `json:"n_learners"`
	LearningRate float64 `json:"learning_rate"`
	Subsample    float64 `json:"subsample"`
	MaxDepth     int     `json:"max_depth"`
	MinSamples   int     `json:"min_samples"`
	Activation   string  `json:"activation"`
	WeightDecay  float64 `json:"weight_decay"`
	RegLambda    float64 `json:"reg_lambda"`
	Gamma        float64 `json:"gamma"`
	NumBins      int     `json:"num_bins"`
	BinStrategy  string  `json:"bin_strategy"`
	ArenaBlocks  int     `json:"arena_blocks"`

	// Verbosity > 0 logs every boosting round at info level.
	Verbosity int `json:"verbosity"`
}

// DefaultParams returns the default configuration.
func DefaultParams() Params {
	return Params{
		Loss:         "MSE",
		NLearners:    200,
		LearningRate: 0.1,
		Subsample:    0.25,
		MaxDepth:     5,
		MinSamples:   3,
		Activation:   "",
		WeightDecay:  0,
		RegLambda:    1,
		Gamma:        0,
		NumBins:      preprocessing.MaxBins,
		BinStrategy:  string(preprocessing.Quantile),
		ArenaBlocks:  parallel.DefaultArenaBlocks,
	}
}

// LoadParams reads a JSON parameter file. Fields absent from the file keep
// their default values.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, errors.Wrapf(err, "read params %s", path)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, errors.Wrapf(err, "parse params %s", path)
	}
	return p, p.Validate()
}

// Validate checks every field and returns the first ValidationError found.
func (p Params) Validate() error {
	if _, err := GetLossProfile(p.Loss); err != nil {
		return errors.NewValidationError("loss", "must be MSE, RMSE or BCE", p.Loss)
	}
	if _, err := GetActivation(p.Activation); err != nil {
		return errors.NewValidationError("activation", "must be empty, identity or sigmoid", p.Activation)
	}
	switch {
	case p.NLearners < 1:
		return errors.NewValidationError("n_learners", "must be >= 1", p.NLearners)
	case p.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be > 0", p.LearningRate)
	case p.Subsample <= 0 || p.Subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", p.Subsample)
	case p.MaxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0", p.MaxDepth)
	case p.MinSamples < 0:
		return errors.NewValidationError("min_samples", "must be >= 0", p.MinSamples)
	case p.WeightDecay < 0:
		return errors.NewValidationError("weight_decay", "must be >= 0", p.WeightDecay)
	case p.RegLambda < 0:
		return errors.NewValidationError("reg_lambda", "must be >= 0", p.RegLambda)
	case p.Gamma < 0:
		return errors.NewValidationError("gamma", "must be >= 0", p.Gamma)
	case p.NumBins < preprocessing.MinBins || p.NumBins > preprocessing.MaxBins:
		return errors.NewValidationError("num_bins", "must be in [3, 256]", p.NumBins)
	case p.ArenaBlocks < 0:
		return errors.NewValidationError("arena_blocks", "must be >= 0", p.ArenaBlocks)
	}
	if _, err := preprocessing.ParseBinStrategy(p.BinStrategy); err != nil {
		return err
	}
	return nil
}

// treeParams extracts the per-tree settings.
func (p Params) treeParams() TreeParams {
	return TreeParams{
		MaxDepth:    p.MaxDepth,
		MinSamples:  p.MinSamples,
		WeightDecay: p.WeightDecay,
		RegLambda:   p.RegLambda,
		Gamma:       p.Gamma,
	}
}

// GetParams returns the parameters keyed by their JSON names.
func (p Params) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"loss":          p.Loss,
		"n_learners":    p.NLearners,
		"learning_rate": p.LearningRate,
		"subsample":     p.Subsample,
		"max_depth":     p.MaxDepth,
		"min_samples":   p.MinSamples,
		"activation":    p.Activation,
		"weight_decay":  p.WeightDecay,
		"reg_lambda":    p.RegLambda,
		"gamma":         p.Gamma,
		"num_bins":      p.NumBins,
		"bin_strategy":  p.BinStrategy,
		"arena_blocks":  p.ArenaBlocks,
		"verbosity":     p.Verbosity,
	}
}

// SetParams updates fields by JSON name. Integer fields accept int or a
// whole float64 (as decoded from JSON); float fields accept either. Unknown
// keys and mistyped values are errors and leave p unchanged.
func (p *Params) SetParams(params map[string]interface{}) error {
	next := *p
	for key, value := range params {
		var err error
		switch key {
		case "loss":
			next.Loss, err = asString(key, value)
		case "activation":
			next.Activation, err = asString(key, value)
		case "bin_strategy":
			next.BinStrategy, err = asString(key, value)
		case "n_learners":
			next.NLearners, err = asInt(key, value)
		case "max_depth":
			next.MaxDepth, err = asInt(key, value)
		case "min_samples":
			next.MinSamples, err = asInt(key, value)
		case "num_bins":
			next.NumBins, err = asInt(key, value)
		case "arena_blocks":
			next.ArenaBlocks, err = asInt(key, value)
		case "verbosity":
			next.Verbosity, err = asInt(key, value)
		case "learning_rate":
			next.LearningRate, err = asFloat(key, value)
		case "subsample":
			next.Subsample, err = asFloat(key, value)
		case "weight_decay":
			next.WeightDecay, err = asFloat(key, value)
		case "reg_lambda":
			next.RegLambda, err = asFloat(key, value)
		case "gamma":
			next.Gamma, err = asFloat(key, value)
		default:
			err = errors.NewValueError("SetParams", fmt.Sprintf("unknown parameter %q", key))
		}
		if err != nil {
			return err
		}
	}
	*p = next
	return nil
}

func asString(key string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.NewValidationError(key, "must be a string", v)
	}
	return s, nil
}

func asInt(key string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x == float64(int(x)) {
			return int(x), nil
		}
	}
	return 0, errors.NewValidationError(key, "must be an integer", v)
}

func asFloat(key string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	}
	return 0, errors.NewValidationError(key, "must be a number", v)
}
