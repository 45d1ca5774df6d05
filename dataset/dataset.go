// Package dataset loads labelled CSV data and splits it for training.
package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/histboost/core/model"
	"github.com/YuminosukeSato/histboost/core/random"
	"github.com/YuminosukeSato/histboost/pkg/errors"
)

// LoadCSV reads a delimited file whose last column is the label. A first row
// whose label does not parse as a number is treated as a header and skipped.
// Empty fields, "NaN" and "nan" load as NaN. Files ending in .zst, .lz4 or
// .sz are decompressed first.
func LoadCSV(path string, sep rune) (X, y *mat.Dense, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}
	data, err := model.Decompress(model.CompressionFor(path), raw)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "decompress %s", path)
	}
	X, y, err = ReadCSV(bytes.NewReader(data), sep)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "load %s", path)
	}
	return X, y, nil
}

// ReadCSV parses CSV records from r as LoadCSV does.
func ReadCSV(r io.Reader, sep rune) (X, y *mat.Dense, err error) {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var xs, ys []float64
	cols := -1
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "line %d", line)
		}
		if cols < 0 {
			if len(rec) < 2 {
				return nil, nil, errors.NewValueError("ReadCSV", "need at least one feature column and a label")
			}
			if _, perr := parseField(rec[len(rec)-1]); perr != nil {
				continue
			}
			cols = len(rec) - 1
		}
		if len(rec) != cols+1 {
			return nil, nil, errors.NewDimensionError("ReadCSV", cols+1, len(rec), 1)
		}
		for j, field := range rec {
			v, perr := parseField(field)
			if perr != nil {
				return nil, nil, errors.NewValueError("ReadCSV",
					fmt.Sprintf("line %d column %d: %q is not a number", line, j+1, field))
			}
			if j == cols {
				ys = append(ys, v)
			} else {
				xs = append(xs, v)
			}
		}
	}
	if len(ys) == 0 {
		return nil, nil, errors.WithStack(errors.ErrEmptyData)
	}
	return mat.NewDense(len(ys), cols, xs), mat.NewDense(len(ys), 1, ys), nil
}

func parseField(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return strconv.ParseFloat("NaN", 64)
	}
	return strconv.ParseFloat(s, 64)
}

// TrainTestSplit shuffles the rows with stream and puts round(testFrac*n)
// of them, at least one, in the test set. testFrac must lie in (0, 1) and
// leave at least one training row.
func TrainTestSplit(X, y mat.Matrix, testFrac float64, stream *random.Stream) (XTrain, XTest, yTrain, yTest *mat.Dense, err error) {
	n, c := X.Dims()
	yn, _ := y.Dims()
	if n != yn {
		return nil, nil, nil, nil, errors.NewDimensionError("TrainTestSplit", n, yn, 0)
	}
	if testFrac <= 0 || testFrac >= 1 {
		return nil, nil, nil, nil, errors.NewValidationError("test_frac", "must be in (0, 1)", testFrac)
	}
	nTest := max(int(testFrac*float64(n)+0.5), 1)
	if nTest >= n {
		return nil, nil, nil, nil, errors.NewValidationError("test_frac", "leaves no training rows", testFrac)
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	stream.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	take := func(rows []int) (*mat.Dense, *mat.Dense) {
		xs := mat.NewDense(len(rows), c, nil)
		ys := mat.NewDense(len(rows), 1, nil)
		for k, i := range rows {
			for j := 0; j < c; j++ {
				xs.Set(k, j, X.At(i, j))
			}
			ys.Set(k, 0, y.At(i, 0))
		}
		return xs, ys
	}
	XTest, yTest = take(perm[:nTest])
	XTrain, yTrain = take(perm[nTest:])
	return XTrain, XTest, yTrain, yTest, nil
}
