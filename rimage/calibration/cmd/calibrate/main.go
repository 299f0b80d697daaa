// Package main calibrates a pinhole camera from a problem file.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/calib/lm"
	"go.viam.com/calib/logging"
	"go.viam.com/calib/rimage/calibration"
	"go.viam.com/calib/rimage/transform"
	"go.viam.com/calib/spatialmath"
)

const histogramBins = 10

var logger = logging.NewLogger("calibrate")

// Arguments for the command.
type Arguments struct {
	Problem string `flag:"problem,usage=calibration problem file (JSON)"`
	Config  string `flag:"config,usage=calibration config file (JSON)"`
	Images  int    `flag:"images,usage=number of images to use (overrides the config)"`
	MaxIter int    `flag:"max-iter,usage=solver iteration limit (overrides the config)"`
	Out     string `flag:"out,usage=write a JSON report to this file"`
	Plot    string `flag:"plot,usage=save a convergence plot to this file (png or svg or pdf)"`
	LogFile string `flag:"log-file,usage=also write logs to this file"`
	Debug   bool   `flag:"debug,usage=log every solver step"`
}

// Report is the JSON summary of a calibration run.
type Report struct {
	RunID        string                             `json:"run_id"`
	Problem      string                             `json:"problem"`
	Intrinsics   *transform.PinholeCameraIntrinsics `json:"intrinsics"`
	Poses        []spatialmath.Twist                `json:"poses"`
	PoseErrors   []calibration.PoseError            `json:"pose_errors,omitempty"`
	Iterations   int                                `json:"iterations"`
	Converged    bool                               `json:"converged"`
	State        lm.State                           `json:"state"`
	ResidualNorm float64                            `json:"residual_norm"`
	Reprojection calibration.ReprojectionStats      `json:"reprojection"`
}

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(_ context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Problem == "" {
		return errors.New("please specify a problem file through the -problem parameter")
	}
	if argsParsed.Debug {
		logger.SetLevel(logging.DEBUG)
	}
	if argsParsed.LogFile != "" {
		appender, closer := logging.NewFileAppender(logging.FileAppenderConfig{Filename: argsParsed.LogFile})
		logger.AddAppender(appender)
		defer func() {
			err = multierr.Combine(err, logger.Sync(), closer.Close())
		}()
	}

	cfg := calibration.DefaultConfig()
	if argsParsed.Config != "" {
		cfg, err = calibration.ReadConfig(argsParsed.Config)
		if err != nil {
			return err
		}
	}
	if argsParsed.Images > 0 {
		cfg.NumImages = argsParsed.Images
	}
	if argsParsed.MaxIter > 0 {
		cfg.Solver.MaxIterations = argsParsed.MaxIter
	}

	ds, err := calibration.LoadDataset(argsParsed.Problem)
	if err != nil {
		return err
	}
	report, result, err := calibrate(ds, cfg, logger)
	if err != nil {
		return err
	}
	report.Problem = argsParsed.Problem

	if argsParsed.Plot != "" {
		if err := calibration.PlotConvergence(result.Solver.Steps, argsParsed.Plot); err != nil {
			return err
		}
		logger.Infow("wrote convergence plot", "path", argsParsed.Plot)
	}

	if argsParsed.Out == "" {
		return nil
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	//nolint:gosec
	if err := os.WriteFile(argsParsed.Out, out, 0o644); err != nil {
		return errors.Wrap(err, "error writing report")
	}
	logger.Infow("wrote report", "path", argsParsed.Out)
	return nil
}

// calibrate solves the dataset and compares the answer against its reference poses, if any.
func calibrate(
	ds *calibration.Dataset,
	cfg calibration.Config,
	logger logging.Logger,
) (*Report, *calibration.Result, error) {
	runID := uuid.New().String()
	logger = logger.Sublogger(runID[:8])

	result, err := calibration.CalibrateDataset(ds, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	report := &Report{
		RunID:        runID,
		Intrinsics:   result.Intrinsics,
		Poses:        result.Twists,
		Iterations:   result.Solver.Iterations,
		Converged:    result.Solver.Converged,
		State:        result.Solver.State,
		ResidualNorm: result.Solver.ResidualNorm,
		Reprojection: result.Stats,
	}

	if reference := ds.Take(cfg.NumImages).Extrinsics; len(reference) == len(result.Poses) {
		report.PoseErrors, err = calibration.ComparePoses(result.Poses, reference)
		if err != nil {
			return nil, nil, err
		}
		for i, pe := range report.PoseErrors {
			logger.Infow("pose error", "image", i, "translation", pe.Translation, "rotation_rad", pe.Rotation)
		}
	} else if len(reference) != 0 {
		logger.Warnf("dataset has %d reference poses for %d images; skipping comparison", len(reference), len(result.Poses))
	}

	logger.Infow("reprojection",
		"count", result.Stats.Count,
		"mean_px", result.Stats.Mean,
		"median_px", result.Stats.Median,
		"p95_px", result.Stats.P95,
		"max_px", result.Stats.Max)
	logger.Infof("poses\n%s", calibration.PoseTable(report.Poses, report.PoseErrors))

	var hist bytes.Buffer
	if err := calibration.WriteHistogram(&hist, result.ReprojectionErrors, histogramBins); err != nil {
		return nil, nil, err
	}
	logger.Debugf("reprojection error histogram (px)\n%s", hist.String())
	return report, result, nil
}
