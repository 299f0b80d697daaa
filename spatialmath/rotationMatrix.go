package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// RotationMatrix is a 3x3 orthonormal matrix representing an orientation.
type RotationMatrix struct {
	mat mgl64.Mat3
}

// NewRotationMatrix wraps an orthonormal mgl64 matrix. The matrix is not checked.
func NewRotationMatrix(m mgl64.Mat3) *RotationMatrix {
	return &RotationMatrix{mat: m}
}

// QuatToRotationMatrix converts a unit quaternion to its rotation matrix.
func QuatToRotationMatrix(q quat.Number) *RotationMatrix {
	mq := mgl64.Quat{W: q.Real, V: mgl64.Vec3{q.Imag, q.Jmag, q.Kmag}}
	return &RotationMatrix{mat: mq.Mat4().Mat3()}
}

// AxisAngles returns the orientation in axis angle representation.
func (rm *RotationMatrix) AxisAngles() *R4AA {
	aa := QuatToR4AA(rm.Quaternion())
	return &aa
}

// Quaternion returns orientation in quaternion representation.
func (rm *RotationMatrix) Quaternion() quat.Number {
	mq := mgl64.Mat4ToQuat(rm.mat.Mat4())
	return quat.Number{Real: mq.W, Imag: mq.X(), Jmag: mq.Y(), Kmag: mq.Z()}
}

// RotationMatrix returns the orientation in rotation matrix representation.
func (rm *RotationMatrix) RotationMatrix() *RotationMatrix {
	return rm
}

// At returns the entry at row, col.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat.At(row, col)
}

// Mat3 returns the underlying matrix.
func (rm *RotationMatrix) Mat3() mgl64.Mat3 {
	return rm.mat
}

// Mul rotates a vector by the matrix.
func (rm *RotationMatrix) Mul(v r3.Vector) r3.Vector {
	return mul3(rm.mat, v)
}
