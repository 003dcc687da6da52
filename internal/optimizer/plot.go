package optimizer

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/iwvelando/mpopf/pkg/optimization"
	"github.com/iwvelando/mpopf/pkg/problem"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// minPlottedViolation keeps feasible iterates visible on the log axis.
const minPlottedViolation = 1e-12

// SaveTrajectoryPlot renders the objective (top) and the constraint
// violation on a log axis (bottom) per iteration.
func SaveTrajectoryPlot(trajectory []problem.Iterate, s optimization.Summary, path string) error {
	if len(trajectory) == 0 {
		return fmt.Errorf("no iterations to plot")
	}

	objective := make(plotter.XYs, len(trajectory))
	violation := make(plotter.XYs, len(trajectory))
	for i, it := range trajectory {
		objective[i].X = float64(it.Iteration)
		objective[i].Y = it.Objective
		violation[i].X = float64(it.Iteration)
		violation[i].Y = math.Max(it.Violation, minPlottedViolation)
	}

	top := plot.New()
	top.Title.Text = fmt.Sprintf("%s %s (%s, %s)", s.Case, s.Formulation, s.Solver, s.Status)
	top.X.Label.Text = "Iteration"
	top.Y.Label.Text = "Objective ($/h)"
	top.Add(plotter.NewGrid())
	if err := plotutil.AddLinePoints(top, "objective", objective); err != nil {
		return fmt.Errorf("failed to plot objective: %w", err)
	}

	bottom := plot.New()
	bottom.X.Label.Text = "Iteration"
	bottom.Y.Label.Text = "Max violation"
	bottom.Y.Scale = plot.LogScale{}
	bottom.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	bottom.Add(plotter.NewGrid())
	if err := plotutil.AddLinePoints(bottom, "violation", violation); err != nil {
		return fmt.Errorf("failed to plot violation: %w", err)
	}
	// A log axis needs a positive, non-empty range.
	_, _, lo, hi := plotter.XYRange(violation)
	bottom.Y.Min, bottom.Y.Max = lo/10, hi*10

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	width, height := 8*vg.Inch, 8*vg.Inch
	canvas, err := draw.NewFormattedCanvas(width, height, format)
	if err != nil {
		return fmt.Errorf("failed to create %s canvas: %w", format, err)
	}
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Millimeter * 4, PadTop: vg.Millimeter * 2}
	plots := [][]*plot.Plot{{top}, {bottom}}
	canvases := plot.Align(plots, tiles, draw.New(canvas))
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create plot file: %w", err)
	}
	if _, err := canvas.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return f.Close()
}
