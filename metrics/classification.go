package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/histboost/pkg/errors"
)

// probClip keeps log loss finite for confident predictions.
const probClip = 1e-15

// Accuracy is the fraction of rows where the probability thresholded at 0.5
// matches the 0/1 label.
func Accuracy(yTrue, yProb []float64) (float64, error) {
	if err := checkPair("Accuracy", yTrue, yProb); err != nil {
		return 0, err
	}
	correct := 0
	for i, y := range yTrue {
		if (yProb[i] >= 0.5) == (y >= 0.5) {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// LogLoss is the mean binary cross-entropy of probabilities against 0/1
// labels.
func LogLoss(yTrue, yProb []float64) (float64, error) {
	if err := checkPair("LogLoss", yTrue, yProb); err != nil {
		return 0, err
	}
	var sum float64
	for i, y := range yTrue {
		p := errors.ClipValue(yProb[i], probClip, 1-probClip)
		sum += y*math.Log(p) + (1-y)*math.Log(1-p)
	}
	return -sum / float64(len(yTrue)), nil
}

// AUC is the area under the ROC curve, computed from score ranks with ties
// sharing their average rank.
func AUC(yTrue, yScore []float64) (float64, error) {
	if err := checkPair("AUC", yTrue, yScore); err != nil {
		return 0, err
	}
	n := len(yTrue)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return yScore[order[a]] < yScore[order[b]] })

	var pos, neg, rankSum float64
	for i := 0; i < n; {
		j := i
		for j < n && yScore[order[j]] == yScore[order[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			if yTrue[order[k]] >= 0.5 {
				rankSum += avg
				pos++
			} else {
				neg++
			}
		}
		i = j
	}
	if pos == 0 || neg == 0 {
		return 0, errors.NewValueError("AUC", "labels contain a single class")
	}
	return (rankSum - pos*(pos+1)/2) / (pos * neg), nil
}
