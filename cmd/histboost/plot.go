package main

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/histboost/pkg/errors"
)

// plotLoss saves the per-round training loss as a line chart. The format
// follows the file extension (png, svg, pdf, ...).
func plotLoss(path, lossName string, history []float64) error {
	p := plot.New()
	p.Title.Text = "Training loss"
	p.X.Label.Text = "round"
	p.Y.Label.Text = lossName

	pts := make(plotter.XYs, len(history))
	for i, v := range history {
		pts[i].X = float64(i + 1)
		pts[i].Y = v
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	p.Add(plotter.NewGrid(), line)
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// paramFlags collects repeated -set key=value overrides. Values that parse
// as numbers are passed as float64, like JSON numbers.
type paramFlags struct {
	values map[string]interface{}
}

func (p *paramFlags) String() string {
	return fmt.Sprint(p.values)
}

func (p *paramFlags) Set(s string) error {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return errors.Newf("expected key=value, got %q", s)
	}
	if p.values == nil {
		p.values = make(map[string]interface{})
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		p.values[key] = v
	} else {
		p.values[key] = raw
	}
	return nil
}
