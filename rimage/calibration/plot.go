package calibration

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.viam.com/calib/lm"
)

// PlotConvergence saves the residual norm at each solver step on a log scale. The image format
// follows the extension of path (png, svg, pdf, ...).
func PlotConvergence(steps []lm.Step, path string) error {
	pts := make(plotter.XYs, 0, len(steps))
	for _, step := range steps {
		// Norms of exactly zero have no place on a log axis.
		if !(step.ResidualNorm > 0) || math.IsInf(step.ResidualNorm, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(step.Iteration), Y: step.ResidualNorm})
	}
	if len(pts) == 0 {
		return errors.New("no solver steps with a positive residual norm to plot")
	}

	p := plot.New()
	p.Title.Text = "Levenberg-Marquardt convergence"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "residual norm (px)"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	p.Add(line, plotter.NewGrid())
	if p.Y.Min == p.Y.Max {
		p.Y.Min /= 10
		p.Y.Max *= 10
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrap(err, "error saving convergence plot")
	}
	return nil
}
