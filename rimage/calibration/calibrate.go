package calibration

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/calib/lm"
	"go.viam.com/calib/logging"
	"go.viam.com/calib/rimage/transform"
	"go.viam.com/calib/spatialmath"
)

// InitialParameters builds a starting parameter vector from a camera guess and one pose twist that
// is used for every image.
func InitialParameters(
	intrinsics *transform.PinholeCameraIntrinsics,
	pose spatialmath.Twist,
	numImages int,
) (*mat.VecDense, error) {
	if intrinsics == nil {
		return nil, transform.NewNoIntrinsicsError("no initial camera guess")
	}
	if numImages < 1 {
		return nil, NewDimensionMismatchError("need at least one image, got %d", numImages)
	}
	x := mat.NewVecDense(transform.NumIntrinsics+PoseParams*numImages, nil)
	for i, v := range intrinsics.Vector() {
		x.SetVec(i, v)
	}
	for i := 0; i < numImages; i++ {
		offset := transform.NumIntrinsics + PoseParams*i
		for k, v := range pose {
			x.SetVec(offset+k, v)
		}
	}
	return x, nil
}

// Result is a solved calibration.
type Result struct {
	Intrinsics *transform.PinholeCameraIntrinsics
	Poses      []spatialmath.Pose
	Twists     []spatialmath.Twist
	Solver     *lm.Result
	// ReprojectionErrors is the pixel error of every observation at the solution, in residual order.
	ReprojectionErrors []float64
	Stats              ReprojectionStats
}

// Calibrate runs the solver on problem from x0 and decodes the answer. Failing to converge is not
// an error; check Solver.Converged.
func Calibrate(problem *Problem, x0 mat.Vector, cfg lm.Config, logger logging.Logger) (*Result, error) {
	if logger == nil {
		logger = logging.NewBlankLogger("calibration")
	}
	if x0.Len() != problem.NumParams() {
		return nil, NewDimensionMismatchError(
			"initial guess has %d parameters, problem needs %d", x0.Len(), problem.NumParams())
	}
	solver, err := lm.NewSolver(cfg, logger.Sublogger("lm"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid solver config")
	}
	logger.Debugw("calibrating",
		"images", problem.NumImages(),
		"points", problem.NumPoints(),
		"params", problem.NumParams())

	solved, err := solver.Solve(problem, x0)
	if err != nil {
		return nil, err
	}

	intrinsics, twists, err := problem.decodeTwists(solved.X)
	if err != nil {
		return nil, err
	}
	poses := make([]spatialmath.Pose, len(twists))
	for i, xi := range twists {
		poses[i] = spatialmath.ExpMap(xi)
	}
	reprojection, err := problem.ReprojectionErrors(solved.X)
	if err != nil {
		return nil, err
	}
	stats, err := NewReprojectionStats(reprojection)
	if err != nil {
		return nil, err
	}

	if !solved.Converged {
		logger.Warnw("calibration did not converge",
			"iterations", solved.Iterations,
			"residual_norm", solved.ResidualNorm)
	}
	logger.Infow("calibrated",
		"fx", intrinsics.Fx,
		"fy", intrinsics.Fy,
		"ppx", intrinsics.Ppx,
		"ppy", intrinsics.Ppy,
		"rms_px", stats.RMS)

	return &Result{
		Intrinsics: intrinsics,
		Poses:      poses,
		Twists:     twists,
		Solver:     solved,

		ReprojectionErrors: reprojection,
		Stats:              stats,
	}, nil
}
