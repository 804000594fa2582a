// Package plot renders the diagnostic figure written after every tuning
// iteration: tracked kinematic errors over time against the accepted band.
package plot

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Series is one tracked quantity sampled over time.
type Series struct {
	Name string
	X    []float64
	Y    []float64
}

// ErrorPlot draws error series with horizontal lines at the band limits.
// The output format follows the file extension (.pdf, .png, .svg, .eps).
type ErrorPlot struct {
	Title  string
	YLabel string
	Width  vg.Length
	Height vg.Length
}

// NewErrorPlot returns an ErrorPlot with the default page size.
func NewErrorPlot() *ErrorPlot {
	return &ErrorPlot{
		Title:  "Kinematics error",
		YLabel: "peak error (deg or cm)",
		Width:  10 * vg.Inch,
		Height: 6 * vg.Inch,
	}
}

// Write renders series to path; lo and hi mark the accepted band and are
// drawn on both signs since errors are compared by magnitude.
func (e *ErrorPlot) Write(path string, series []Series, lo, hi float64) error {
	p := plot.New()
	p.Title.Text = e.Title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = e.YLabel
	p.Add(plotter.NewGrid())

	for i, s := range series {
		if len(s.X) != len(s.Y) {
			return fmt.Errorf("series %q: %d times, %d values", s.Name, len(s.X), len(s.Y))
		}
		pts := make(plotter.XYs, len(s.X))
		for j := range s.X {
			pts[j].X = s.X[j]
			pts[j].Y = s.Y[j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("series %q: %w", s.Name, err)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)
		line.LineStyle.Dashes = plotutil.Dashes(i / len(plotutil.DefaultColors))
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}

	gray := color.RGBA{R: 120, G: 120, B: 120, A: 255}
	for _, level := range []float64{lo, hi, -lo, -hi} {
		if level == 0 || math.IsNaN(level) || math.IsInf(level, 0) {
			continue
		}
		l := level
		f := plotter.NewFunction(func(float64) float64 { return l })
		f.Color = gray
		f.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(f)
	}
	p.Legend.Top = true

	if err := p.Save(e.Width, e.Height, path); err != nil {
		return fmt.Errorf("saving plot %s: %w", path, err)
	}
	return nil
}
