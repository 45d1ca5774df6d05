package gbdt

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/histboost/pkg/errors"
)

// bceClip bounds sigmoid outputs away from 0 and 1 inside the log.
const bceClip = 1e-4

// LossFunc evaluates a loss over aligned label and raw prediction slices.
type LossFunc func(y, pred []float64) float64

// GHFunc is a per-sample gradient or hessian of a loss with respect to the raw
// prediction.
type GHFunc func(y, pred float64) float64

// LossProfile bundles a loss with its first and second derivatives.
type LossProfile struct {
	Name     string
	Loss     LossFunc
	Gradient GHFunc
	Hessian  GHFunc
}

// GetLossProfile looks a loss up by name: "MSE", "RMSE" or "BCE". BCE expects
// raw scores and applies the sigmoid itself.
func GetLossProfile(name string) (LossProfile, error) {
	switch name {
	case "MSE":
		return LossProfile{Name: name, Loss: mseLoss, Gradient: mseGradient, Hessian: mseHessian}, nil
	case "RMSE":
		return LossProfile{Name: name, Loss: rmseLoss, Gradient: mseGradient, Hessian: mseHessian}, nil
	case "BCE":
		return LossProfile{Name: name, Loss: bceLoss, Gradient: bceGradient, Hessian: bceHessian}, nil
	default:
		return LossProfile{}, errors.NewValueError("GetLossProfile", fmt.Sprintf("loss function %q not found", name))
	}
}

func mseLoss(y, pred []float64) float64 {
	var sum float64
	for i := range y {
		d := y[i] - pred[i]
		sum += d * d
	}
	return sum / float64(len(y))
}

func mseGradient(y, pred float64) float64 { return pred - y }

func mseHessian(_, _ float64) float64 { return 1 }

func rmseLoss(y, pred []float64) float64 {
	return math.Sqrt(mseLoss(y, pred))
}

func bceLoss(y, pred []float64) float64 {
	var sum float64
	for i := range y {
		p := errors.ClipValue(Sigmoid(pred[i]), bceClip, 1-bceClip)
		sum += y[i]*math.Log(p) + (1-y[i])*math.Log(1-p)
	}
	return -sum / float64(len(y))
}

func bceGradient(y, pred float64) float64 { return Sigmoid(pred) - y }

func bceHessian(_, pred float64) float64 {
	s := Sigmoid(pred)
	return s * (1 - s)
}

// Activation maps a raw ensemble score to an output.
type Activation func(float64) float64

// Sigmoid is the logistic function.
func Sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func identity(v float64) float64 { return v }

// GetActivation looks an activation up by name. "" and "identity" leave
// scores unchanged; "sigmoid" applies the logistic function.
func GetActivation(name string) (Activation, error) {
	switch name {
	case "", "identity":
		return identity, nil
	case "sigmoid":
		return Sigmoid, nil
	default:
		return nil, errors.NewValueError("GetActivation", fmt.Sprintf("activation function %q not found", name))
	}
}

// GradientsHessians fills g[k] and h[k] with the derivatives of the loss at
// sample positions[k]. g and h are aligned with positions, not with y.
func GradientsHessians(y, pred []float64, positions []int, g, h []float64, profile LossProfile) error {
	if len(y) != len(pred) {
		return errors.NewDimensionError("GradientsHessians", len(y), len(pred), 0)
	}
	if len(g) != len(positions) || len(h) != len(positions) {
		return errors.NewDimensionError("GradientsHessians", len(positions), min(len(g), len(h)), 0)
	}
	for k, i := range positions {
		g[k] = profile.Gradient(y[i], pred[i])
		h[k] = profile.Hessian(y[i], pred[i])
	}
	return nil
}

// ComputeLoss evaluates profile's loss, checking that y and pred align.
func ComputeLoss(y, pred []float64, profile LossProfile) (float64, error) {
	if len(y) != len(pred) {
		return 0, errors.NewDimensionError("ComputeLoss", len(y), len(pred), 0)
	}
	if len(y) == 0 {
		return 0, errors.WithStack(errors.ErrEmptyData)
	}
	return profile.Loss(y, pred), nil
}
