// Package calibration estimates pinhole intrinsics and per-image target poses from observations of
// a known planar target. It assembles the reprojection residual and its Jacobian over the flat
// parameter vector consumed by the lm solver.
package calibration

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/calib/rimage/transform"
	"go.viam.com/calib/spatialmath"
)

// PoseParams is the number of parameters describing one image's pose.
const PoseParams = 6

// ErrDimensionMismatch is returned when observations do not line up with the target points.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// NewDimensionMismatchError wraps ErrDimensionMismatch with the details of the disagreement.
func NewDimensionMismatchError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDimensionMismatch, format, args...)
}

// Problem is the reprojection error of a planar target seen in several images. The parameter
// vector holds (fx, fy, ppx, ppy) followed by one twist per image, and the residual holds the
// projected minus observed pixel coordinates, image by image and point by point. A Problem never
// modifies its target or observations and may be used by concurrent solves.
type Problem struct {
	target       []r3.Vector
	observations [][]r2.Point

	localPoseJacobian bool
}

// ProblemOption configures a Problem.
type ProblemOption func(*Problem)

// WithLocalPoseJacobian makes the pose columns of the Jacobian the local derivative
// ProjectionJacobianWrtPoint·ExpMapJacobian alone. That block is only exact for twists with no
// rotation; by default it is chained with the left Jacobian of each twist.
func WithLocalPoseJacobian() ProblemOption {
	return func(p *Problem) {
		p.localPoseJacobian = true
	}
}

// NewProblem checks that every image observes exactly the target points, in order.
func NewProblem(target []r3.Vector, observations [][]r2.Point, opts ...ProblemOption) (*Problem, error) {
	if len(target) == 0 {
		return nil, NewDimensionMismatchError("no target points")
	}
	if len(observations) == 0 {
		return nil, NewDimensionMismatchError("no images")
	}
	for i, obs := range observations {
		if len(obs) != len(target) {
			return nil, NewDimensionMismatchError(
				"image %d has %d observations for %d target points", i, len(obs), len(target))
		}
	}
	p := &Problem{target: target, observations: observations}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NumImages returns the number of images.
func (p *Problem) NumImages() int {
	return len(p.observations)
}

// NumPoints returns the number of target points.
func (p *Problem) NumPoints() int {
	return len(p.target)
}

// NumParams returns the length of the parameter vector, 4 + 6 per image.
func (p *Problem) NumParams() int {
	return transform.NumIntrinsics + PoseParams*p.NumImages()
}

// NumResiduals returns the length of the residual vector, 2 per observation.
func (p *Problem) NumResiduals() int {
	return 2 * p.NumImages() * p.NumPoints()
}

// Decode splits a parameter vector into the camera model and the pose of every image.
func (p *Problem) Decode(x mat.Vector) (*transform.PinholeCameraIntrinsics, []spatialmath.Pose, error) {
	intrinsics, twists, err := p.decodeTwists(x)
	if err != nil {
		return nil, nil, err
	}
	poses := make([]spatialmath.Pose, len(twists))
	for i, xi := range twists {
		poses[i] = spatialmath.ExpMap(xi)
	}
	return intrinsics, poses, nil
}

func (p *Problem) decodeTwists(x mat.Vector) (*transform.PinholeCameraIntrinsics, []spatialmath.Twist, error) {
	if x.Len() != p.NumParams() {
		return nil, nil, NewDimensionMismatchError(
			"expected %d parameters for %d images, got %d", p.NumParams(), p.NumImages(), x.Len())
	}
	intrinsics := &transform.PinholeCameraIntrinsics{
		Fx:  x.AtVec(0),
		Fy:  x.AtVec(1),
		Ppx: x.AtVec(2),
		Ppy: x.AtVec(3),
	}
	twists := make([]spatialmath.Twist, p.NumImages())
	for i := range twists {
		offset := transform.NumIntrinsics + PoseParams*i
		for k := range twists[i] {
			twists[i][k] = x.AtVec(offset + k)
		}
	}
	return intrinsics, twists, nil
}

// Encode is the inverse of Decode. It takes the logarithm of every pose.
func Encode(intrinsics *transform.PinholeCameraIntrinsics, poses []spatialmath.Pose) (*mat.VecDense, error) {
	if intrinsics == nil {
		return nil, transform.NewNoIntrinsicsError("cannot encode parameters")
	}
	x := mat.NewVecDense(transform.NumIntrinsics+PoseParams*len(poses), nil)
	for i, v := range intrinsics.Vector() {
		x.SetVec(i, v)
	}
	for i, pose := range poses {
		xi := spatialmath.LogMap(pose)
		offset := transform.NumIntrinsics + PoseParams*i
		for k, v := range xi {
			x.SetVec(offset+k, v)
		}
	}
	return x, nil
}

// Residual returns projected minus observed pixel coordinates for every observation.
func (p *Problem) Residual(x mat.Vector) (*mat.VecDense, error) {
	intrinsics, poses, err := p.Decode(x)
	if err != nil {
		return nil, err
	}
	r := mat.NewVecDense(p.NumResiduals(), nil)
	for i, pose := range poses {
		for j, pt := range p.target {
			projected, err := intrinsics.Project(spatialmath.TransformPoint(pose, pt))
			if err != nil {
				return nil, errors.Wrapf(err, "image %d point %d", i, j)
			}
			row := 2 * (i*p.NumPoints() + j)
			observed := p.observations[i][j]
			r.SetVec(row, projected.X-observed.X)
			r.SetVec(row+1, projected.Y-observed.Y)
		}
	}
	return r, nil
}

// Jacobian returns the derivative of Residual. Intrinsic columns are filled for every row, and the
// columns of image i only for that image's rows.
func (p *Problem) Jacobian(x mat.Vector) (*mat.Dense, error) {
	intrinsics, twists, err := p.decodeTwists(x)
	if err != nil {
		return nil, err
	}
	jac := mat.NewDense(p.NumResiduals(), p.NumParams(), nil)
	for i, xi := range twists {
		pose := spatialmath.ExpMap(xi)
		col := transform.NumIntrinsics + PoseParams*i
		for j, pt := range p.target {
			transformed := spatialmath.TransformPoint(pose, pt)
			wrtParams, err := transform.ProjectionJacobianWrtParams(transformed)
			if err != nil {
				return nil, errors.Wrapf(err, "image %d point %d", i, j)
			}
			wrtPoint, err := intrinsics.ProjectionJacobianWrtPoint(transformed)
			if err != nil {
				return nil, errors.Wrapf(err, "image %d point %d", i, j)
			}
			var wrtTwist spatialmath.Mat3x6
			if p.localPoseJacobian {
				wrtTwist = spatialmath.ExpMapJacobian(transformed)
			} else {
				wrtTwist = spatialmath.TwistJacobian(xi, transformed)
			}
			left := wrtPoint.Mul3(wrtTwist.Left)
			right := wrtPoint.Mul3(wrtTwist.Right)

			row := 2 * (i*p.NumPoints() + j)
			for r := 0; r < 2; r++ {
				for c := 0; c < transform.NumIntrinsics; c++ {
					jac.Set(row+r, c, wrtParams.At(r, c))
				}
				for c := 0; c < 3; c++ {
					jac.Set(row+r, col+c, left.At(r, c))
					jac.Set(row+r, col+3+c, right.At(r, c))
				}
			}
		}
	}
	return jac, nil
}
