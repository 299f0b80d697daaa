// Package main writes a noiseless calibration problem file for a known camera and three views of
// a planar grid.
package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/calib/logging"
	"go.viam.com/calib/rimage/calibration"
	"go.viam.com/calib/spatialmath"
)

var logger = logging.NewLogger("synthesize")

// Arguments for the command.
type Arguments struct {
	Out       string `flag:"out,usage=problem file to write (JSON)"`
	Rows      int    `flag:"rows,default=5,usage=grid rows"`
	Cols      int    `flag:"cols,default=6,usage=grid columns"`
	SpacingMM int    `flag:"spacing-mm,default=50,usage=distance between grid points in millimeters"`
}

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(_ context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Out == "" {
		return errors.New("please specify an output file through the -out parameter")
	}

	grid, err := calibration.NewPlanarGrid(argsParsed.Rows, argsParsed.Cols, float64(argsParsed.SpacingMM)/1000)
	if err != nil {
		return err
	}
	twists := calibration.SceneTwists()
	poses := make([]spatialmath.Pose, len(twists))
	for i, xi := range twists {
		poses[i] = spatialmath.ExpMap(xi)
	}
	ds, err := calibration.Synthesize(calibration.SceneIntrinsics(), poses, grid)
	if err != nil {
		return err
	}

	//nolint:gosec
	f, err := os.Create(argsParsed.Out)
	if err != nil {
		return errors.Wrap(err, "error creating problem file")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	if err := ds.Write(f); err != nil {
		return err
	}
	logger.Infow("wrote problem", "path", argsParsed.Out, "images", len(poses), "points", len(grid))
	return nil
}
