package calibration

import (
	"encoding/json"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/calib/lm"
	"go.viam.com/calib/logging"
	"go.viam.com/calib/rimage/transform"
	"go.viam.com/calib/spatialmath"
)

// Config describes a calibration run over a dataset.
type Config struct {
	Solver            lm.Config                           `json:"solver"`
	InitialIntrinsics *transform.PinholeCameraIntrinsics `json:"initial_intrinsics"`
	// InitialPose is the twist every image's pose starts from.
	InitialPose spatialmath.Twist `json:"initial_pose"`
	// NumImages limits the run to the first images of the dataset. Zero uses all of them.
	NumImages         int  `json:"num_images"`
	LocalPoseJacobian bool `json:"local_pose_jacobian"`
}

// DefaultConfig guesses fx = fy = 550 with the principal point at the center of a 640x480 image,
// and places the target 3m in front of the camera without rotation in the first three images.
func DefaultConfig() Config {
	solver := lm.DefaultConfig()
	solver.MaxIterations = 200
	return Config{
		Solver: solver,
		InitialIntrinsics: &transform.PinholeCameraIntrinsics{
			Fx:  550,
			Fy:  550,
			Ppx: 320,
			Ppy: 240,
		},
		InitialPose: spatialmath.LogMap(spatialmath.NewPoseFromPoint(r3.Vector{Z: 3})),
		NumImages:   3,
	}
}

// Validate reports every invalid field.
func (cfg Config) Validate() error {
	var err error
	if solverErr := cfg.Solver.Validate(); solverErr != nil {
		err = multierr.Append(err, errors.Wrap(solverErr, "solver"))
	}
	if intrinsicsErr := cfg.InitialIntrinsics.CheckValid(); intrinsicsErr != nil {
		err = multierr.Append(err, errors.Wrap(intrinsicsErr, "initial_intrinsics"))
	}
	if cfg.NumImages < 0 {
		err = multierr.Append(err, errors.Errorf("num_images must not be negative, got %d", cfg.NumImages))
	}
	return err
}

// ReadConfig reads a JSON config file. Fields missing from the file keep their DefaultConfig
// values.
func ReadConfig(path string) (Config, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "error opening calibration config")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	cfg := DefaultConfig()
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "error parsing calibration config")
	}
	return cfg, cfg.Validate()
}

// CalibrateDataset calibrates the first cfg.NumImages images of ds starting from the configured
// guess.
func CalibrateDataset(ds *Dataset, cfg Config, logger logging.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []ProblemOption
	if cfg.LocalPoseJacobian {
		opts = append(opts, WithLocalPoseJacobian())
	}
	problem, err := ds.Take(cfg.NumImages).NewProblem(opts...)
	if err != nil {
		return nil, err
	}
	x0, err := InitialParameters(cfg.InitialIntrinsics, cfg.InitialPose, problem.NumImages())
	if err != nil {
		return nil, err
	}
	return Calibrate(problem, x0, cfg.Solver, logger)
}
