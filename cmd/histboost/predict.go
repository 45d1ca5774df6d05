package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/histboost/core/parallel"
	"github.com/YuminosukeSato/histboost/dataset"
	"github.com/YuminosukeSato/histboost/pkg/errors"
	"github.com/YuminosukeSato/histboost/pkg/log"
	"github.com/YuminosukeSato/histboost/sklearn/gbdt"
)

// loadModelAndData reads the model and the CSV concurrently.
func loadModelAndData(pool *parallel.Pool, modelPath, dataPath string, sep rune) (*gbdt.GBModel, *mat.Dense, *mat.Dense, error) {
	var (
		model *gbdt.GBModel
		X, y  *mat.Dense
	)
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() (err error) {
		model, err = gbdt.Load(modelPath, gbdt.Services{Pool: pool, Logger: log.GetLoggerWithName("cli")})
		return err
	})
	g.Go(func() (err error) {
		X, y, err = dataset.LoadCSV(dataPath, sep)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return model, X, y, nil
}

func cmdPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	var (
		c         common
		modelPath = fs.String("model", "", "saved model (required)")
		data      = fs.String("data", "", "CSV to predict; its last column is ignored (required)")
		out       = fs.String("out", "", "output CSV (default stdout)")
	)
	c.register(fs)
	_ = fs.Parse(args)
	if *modelPath == "" || *data == "" {
		fs.Usage()
		return errors.New("-model and -data are required")
	}

	pool, sep, err := c.setup()
	if err != nil {
		return err
	}
	defer pool.Shutdown()

	model, X, _, err := loadModelAndData(pool, *modelPath, *data, sep)
	if err != nil {
		return err
	}
	pred, err := model.Predict(X)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return writePredictions(w, pred)
}

func writePredictions(w io.Writer, pred mat.Matrix) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"prediction"}); err != nil {
		return err
	}
	rows, _ := pred.Dims()
	for i := 0; i < rows; i++ {
		if err := cw.Write([]string{strconv.FormatFloat(pred.At(i, 0), 'g', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cmdEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	var (
		c         common
		modelPath = fs.String("model", "", "saved model (required)")
		data      = fs.String("data", "", "labelled CSV (required)")
	)
	c.register(fs)
	_ = fs.Parse(args)
	if *modelPath == "" || *data == "" {
		fs.Usage()
		return errors.New("-model and -data are required")
	}

	pool, sep, err := c.setup()
	if err != nil {
		return err
	}
	defer pool.Shutdown()

	model, X, y, err := loadModelAndData(pool, *modelPath, *data, sep)
	if err != nil {
		return err
	}
	return report(os.Stdout, model, X, y)
}
