package metrics

import (
	"gonum.org/v1/gonum/mat"
)

// Report collects the metrics printed by the CLI's eval command.
type Report struct {
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2,omitempty"`

	// Set only for binary reports.
	Accuracy float64 `json:"accuracy,omitempty"`
	LogLoss  float64 `json:"log_loss,omitempty"`
	AUC      float64 `json:"auc,omitempty"`
}

// Evaluate computes a Report for single-column label and prediction
// matrices. With binary set, predictions are read as probabilities. R2 and
// AUC are left at zero when they are undefined for the labels.
func Evaluate(yTrue, yPred mat.Matrix, binary bool) (Report, error) {
	t, err := Column("Evaluate", yTrue)
	if err != nil {
		return Report{}, err
	}
	p, err := Column("Evaluate", yPred)
	if err != nil {
		return Report{}, err
	}

	var r Report
	if r.MSE, err = MSE(t, p); err != nil {
		return Report{}, err
	}
	if r.RMSE, err = RMSE(t, p); err != nil {
		return Report{}, err
	}
	if r.MAE, err = MAE(t, p); err != nil {
		return Report{}, err
	}
	if r2, err := R2Score(t, p); err == nil {
		r.R2 = r2
	}
	if !binary {
		return r, nil
	}
	if r.Accuracy, err = Accuracy(t, p); err != nil {
		return Report{}, err
	}
	if r.LogLoss, err = LogLoss(t, p); err != nil {
		return Report{}, err
	}
	if auc, err := AUC(t, p); err == nil {
		r.AUC = auc
	}
	return r, nil
}
