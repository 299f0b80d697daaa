package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// lieEpsilon is the rotation angle below which the exponential and logarithm maps fall back to
// their small-angle forms.
const lieEpsilon = 1e-6

// Twist holds the 6 minimal coordinates of a rigid transform: the translation part in [0,3) and
// the rotation vector in [3,6).
type Twist [6]float64

// NewTwist builds a twist from its translation part and rotation vector.
func NewTwist(translation, rotation r3.Vector) Twist {
	return Twist{translation.X, translation.Y, translation.Z, rotation.X, rotation.Y, rotation.Z}
}

// Translation returns the translation part of the twist. This is not the translation of the
// resulting pose unless the rotation is zero.
func (xi Twist) Translation() r3.Vector {
	return r3.Vector{X: xi[0], Y: xi[1], Z: xi[2]}
}

// Rotation returns the rotation vector: the rotation axis scaled by the angle.
func (xi Twist) Rotation() r3.Vector {
	return r3.Vector{X: xi[3], Y: xi[4], Z: xi[5]}
}

// SkewSym returns the 3x3 matrix S with S·w = v×w.
func SkewSym(v r3.Vector) mgl64.Mat3 {
	// mgl64 matrices are column major.
	return mgl64.Mat3{
		0, v.Z, -v.Y,
		-v.Z, 0, v.X,
		v.Y, -v.X, 0,
	}
}

// ExpMap converts minimal coordinates into a rigid transform. The rotation is built from the
// half-angle quaternion of ω and the translation is V·t with
// V = I + S·(1-cosθ)/θ² + S²·(θ-sinθ)/θ³, S = [ω]×.
func ExpMap(xi Twist) Pose {
	omega := xi.Rotation()
	t := xi.Translation()
	theta := omega.Norm()
	if theta <= lieEpsilon {
		return NewPoseFromPoint(t)
	}

	axis := omega.Mul(1 / theta)
	sinHalf := math.Sin(theta / 2)
	rot := quat.Number{
		Real: math.Cos(theta / 2),
		Imag: axis.X * sinHalf,
		Jmag: axis.Y * sinHalf,
		Kmag: axis.Z * sinHalf,
	}

	s := SkewSym(omega)
	s2 := s.Mul3(s)
	v := mgl64.Ident3().
		Add(s.Mul((1 - math.Cos(theta)) / (theta * theta))).
		Add(s2.Mul((theta - math.Sin(theta)) / (theta * theta * theta)))

	q := newDualQuaternion()
	q.Real = rot
	q.SetTranslation(mul3(v, t))
	return q
}

// LogMap is the inverse of ExpMap. The rotation's scalar part is canonicalized to be non-negative
// and clamped to [-1, 1] before taking the arccosine, so the recovered angle lies in [0, π].
func LogMap(p Pose) Twist {
	rot := p.Orientation().Quaternion()
	if rot.Real < 0 {
		rot = Flip(rot)
	}
	w := math.Max(-1, math.Min(1, rot.Real))
	theta := 2 * math.Acos(w)
	if theta <= lieEpsilon {
		return NewTwist(p.Point(), r3.Vector{})
	}

	halfTheta := theta / 2
	sinHalf := math.Sin(halfTheta)
	omega := r3.Vector{X: rot.Imag, Y: rot.Jmag, Z: rot.Kmag}.Mul(theta / sinHalf)

	s := SkewSym(omega)
	s2 := s.Mul3(s)
	vInv := mgl64.Ident3().
		Sub(s.Mul(0.5)).
		Add(s2.Mul((1 - halfTheta*math.Cos(halfTheta)/sinHalf) / (theta * theta)))

	return NewTwist(mul3(vInv, p.Point()), omega)
}

// Mat3x6 is a 3x6 matrix stored as its left and right 3x3 blocks.
type Mat3x6 struct {
	Left, Right mgl64.Mat3
}

// At returns the entry at row, col with col in [0, 6).
func (m Mat3x6) At(row, col int) float64 {
	if col < 3 {
		return m.Left.At(row, col)
	}
	return m.Right.At(row, col-3)
}

// ExpMapJacobian returns the local derivative of ExpMap(ξ)·p with respect to a perturbation of ξ,
// [I | -[p']×], where p' is the point after it has been transformed by the current pose. It is a
// first order linearization and must be recomputed whenever the pose changes.
func ExpMapJacobian(transformed r3.Vector) Mat3x6 {
	return Mat3x6{
		Left:  mgl64.Ident3(),
		Right: SkewSym(transformed).Mul(-1),
	}
}

// LeftJacobian returns the blocks of the SE(3) left Jacobian of ξ, [[V, Q], [0, V]], where V is
// the matrix ExpMap applies to the translation part. It maps a change of ξ onto the equivalent
// perturbation applied on the left of ExpMap(ξ).
func LeftJacobian(xi Twist) (v, q mgl64.Mat3) {
	omega := xi.Rotation()
	theta := omega.Norm()
	w := SkewSym(omega)
	p := SkewSym(xi.Translation())
	w2 := w.Mul3(w)

	var a, b, c1, c2, c3 float64
	if theta < 1e-2 {
		// Series expansions; the closed forms lose all precision as θ goes to zero.
		t2 := theta * theta
		a = 0.5 - t2/24
		b = 1./6 - t2/120
		c1 = b
		c2 = 1./24 - t2/720
		c3 = 1./120 - t2/2520
	} else {
		sin, cos := math.Sin(theta), math.Cos(theta)
		t2 := theta * theta
		a = (1 - cos) / t2
		b = (theta - sin) / (t2 * theta)
		c1 = b
		c2 = (t2 + 2*cos - 2) / (2 * t2 * t2)
		c3 = (2*theta - 3*sin + theta*cos) / (2 * t2 * t2 * theta)
	}
	v = mgl64.Ident3().Add(w.Mul(a)).Add(w2.Mul(b))

	wp := w.Mul3(p)
	pw := p.Mul3(w)
	wpw := wp.Mul3(w)
	q = p.Mul(0.5).
		Add(wp.Add(pw).Add(wpw).Mul(c1)).
		Add(w.Mul3(wp).Add(pw.Mul3(w)).Sub(wpw.Mul(3)).Mul(c2)).
		Add(wpw.Mul3(w).Add(w.Mul3(wpw)).Mul(c3))
	return v, q
}

// TwistJacobian returns the derivative of ExpMap(ξ)·p with respect to the coordinates of ξ
// themselves, ExpMapJacobian(p')·J_l(ξ). Unlike ExpMapJacobian alone it stays exact away from
// ξ = 0, which is what an additive update of ξ needs.
func TwistJacobian(xi Twist, transformed r3.Vector) Mat3x6 {
	v, q := LeftJacobian(xi)
	local := ExpMapJacobian(transformed)
	return Mat3x6{
		Left:  local.Left.Mul3(v),
		Right: local.Left.Mul3(q).Add(local.Right.Mul3(v)),
	}
}

func mul3(m mgl64.Mat3, v r3.Vector) r3.Vector {
	out := m.Mul3x1(mgl64.Vec3{v.X, v.Y, v.Z})
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}
