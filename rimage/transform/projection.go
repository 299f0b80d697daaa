package transform

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// minDepth is the smallest |z| a camera frame point may have and still be projected.
const minDepth = 1e-12

// ErrDegenerateGeometry is returned when a point cannot be projected because it lies on the
// camera plane or has non-finite coordinates.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// NewDegenerateGeometryError reports the point that could not be projected.
func NewDegenerateGeometryError(pt r3.Vector) error {
	return errors.Wrapf(ErrDegenerateGeometry, "cannot project point (%v, %v, %v)", pt.X, pt.Y, pt.Z)
}

func checkProjectable(pt r3.Vector) error {
	for _, v := range []float64{pt.X, pt.Y, pt.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewDegenerateGeometryError(pt)
		}
	}
	if math.Abs(pt.Z) < minDepth {
		return NewDegenerateGeometryError(pt)
	}
	return nil
}

// Project maps a camera frame point onto the image plane: u = fx·x/z + ppx, v = fy·y/z + ppy.
func (params *PinholeCameraIntrinsics) Project(pt r3.Vector) (r2.Point, error) {
	if err := checkProjectable(pt); err != nil {
		return r2.Point{}, err
	}
	return r2.Point{
		X: params.Fx*pt.X/pt.Z + params.Ppx,
		Y: params.Fy*pt.Y/pt.Z + params.Ppy,
	}, nil
}

// ProjectionJacobianWrtParams returns the partials of (u, v) with respect to (fx, fy, ppx, ppy):
//
//	[[x/z, 0,   1, 0],
//	 [0,   y/z, 0, 1]]
func ProjectionJacobianWrtParams(pt r3.Vector) (mgl64.Mat2x4, error) {
	if err := checkProjectable(pt); err != nil {
		return mgl64.Mat2x4{}, err
	}
	return mgl64.Mat2x4FromRows(
		mgl64.Vec4{pt.X / pt.Z, 0, 1, 0},
		mgl64.Vec4{0, pt.Y / pt.Z, 0, 1},
	), nil
}

// ProjectionJacobianWrtPoint returns the partials of (u, v) with respect to the camera frame point:
//
//	[[fx/z, 0,    -x·fx/z²],
//	 [0,    fy/z, -y·fy/z²]]
func (params *PinholeCameraIntrinsics) ProjectionJacobianWrtPoint(pt r3.Vector) (mgl64.Mat2x3, error) {
	if err := checkProjectable(pt); err != nil {
		return mgl64.Mat2x3{}, err
	}
	invZ := 1 / pt.Z
	return mgl64.Mat2x3FromRows(
		mgl64.Vec3{params.Fx * invZ, 0, -pt.X * params.Fx * invZ * invZ},
		mgl64.Vec3{0, params.Fy * invZ, -pt.Y * params.Fy * invZ * invZ},
	), nil
}
