package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/histboost/core/random"
	"github.com/YuminosukeSato/histboost/dataset"
	"github.com/YuminosukeSato/histboost/metrics"
	"github.com/YuminosukeSato/histboost/pkg/errors"
	"github.com/YuminosukeSato/histboost/pkg/log"
	"github.com/YuminosukeSato/histboost/sklearn/gbdt"
)

// splitStream is the RNG stream id used for the train/test split. Boosting
// rounds use ids from 0, so the split draws from a stream no round touches.
const splitStream = 1 << 62

func cmdTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	var (
		c        common
		data     = fs.String("data", "", "training CSV (required)")
		testData = fs.String("test-data", "", "optional held-out CSV evaluated after training")
		config   = fs.String("config", "", "JSON parameter file")
		seed     = fs.Uint64("seed", random.DefaultSeed, "global RNG seed")
		testFrac = fs.Float64("test", 0, "fraction of -data held out for evaluation")
		out      = fs.String("out", "", "model output path (required)")
		lossPlot = fs.String("loss-plot", "", "write the training loss curve to this image")
		set      = paramFlags{}
	)
	c.register(fs)
	fs.Var(&set, "set", "override a parameter, e.g. -set n_learners=50 (repeatable)")
	_ = fs.Parse(args)

	if *data == "" || *out == "" {
		fs.Usage()
		return errors.New("-data and -out are required")
	}
	if *testFrac > 0 && *testData != "" {
		return errors.New("-test and -test-data are mutually exclusive")
	}

	pool, sep, err := c.setup()
	if err != nil {
		return err
	}
	defer pool.Shutdown()
	logger := log.GetLoggerWithName("cli")

	params := gbdt.DefaultParams()
	if *config != "" {
		if params, err = gbdt.LoadParams(*config); err != nil {
			return err
		}
	}
	if err := params.SetParams(set.values); err != nil {
		return err
	}

	var X, y, XTest, yTest *mat.Dense
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() (err error) {
		X, y, err = dataset.LoadCSV(*data, sep)
		return err
	})
	if *testData != "" {
		g.Go(func() (err error) {
			XTest, yTest, err = dataset.LoadCSV(*testData, sep)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rng := random.NewRegistryWithSeed(*seed)
	if *testFrac > 0 {
		X, XTest, y, yTest, err = dataset.TrainTestSplit(X, y, *testFrac, rng.Stream(splitStream))
		if err != nil {
			return err
		}
	}

	model, err := gbdt.NewGBModel(params, gbdt.Services{Pool: pool, RNG: rng, Logger: logger})
	if err != nil {
		return err
	}
	if err := model.Fit(X, y); err != nil {
		return err
	}
	if err := model.Save(*out); err != nil {
		return err
	}

	if *lossPlot != "" {
		if err := plotLoss(*lossPlot, params.Loss, model.LossHistory()); err != nil {
			return err
		}
		logger.Info("loss curve written", log.PathKey, *lossPlot)
	}

	if XTest != nil {
		return report(os.Stdout, model, XTest, yTest)
	}
	return nil
}

// report prints the metrics of model on (X, y).
func report(w io.Writer, model *gbdt.GBModel, X, y mat.Matrix) error {
	pred, err := model.Predict(X)
	if err != nil {
		return err
	}
	binary := model.Params().Loss == "BCE"
	r, err := metrics.Evaluate(y, pred, binary)
	if err != nil {
		return err
	}
	score, err := model.Score(X, y)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %.6f\n", model.Params().Loss, score)
	fmt.Fprintf(w, "mse:  %.6f\nrmse: %.6f\nmae:  %.6f\nr2:   %.6f\n", r.MSE, r.RMSE, r.MAE, r.R2)
	if binary {
		fmt.Fprintf(w, "accuracy: %.4f\nlog_loss: %.6f\nauc:      %.4f\n", r.Accuracy, r.LogLoss, r.AUC)
	}
	return nil
}
