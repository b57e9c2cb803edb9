package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// orthonormalTolerance bounds the error accepted when validating a rotation matrix.
const orthonormalTolerance = 1e-6

// RotationMatrix is a 3x3 orthonormal matrix with determinant 1, stored in row-major order.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix creates a rotation matrix from nine row-major values and verifies that it is
// orthonormal with determinant 1.
func NewRotationMatrix(m [9]float64) (RotationMatrix, error) {
	rm := RotationMatrix{m}
	if !rm.IsOrthonormal(orthonormalTolerance) {
		return RotationMatrix{}, errors.Errorf("matrix %v is not a proper rotation", m)
	}
	return rm, nil
}

// NewIdentityRotation returns the rotation that does nothing.
func NewIdentityRotation() RotationMatrix {
	return RotationMatrix{[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// RotX is a rotation of angle radians about the x axis.
func RotX(angle float64) RotationMatrix {
	s, c := math.Sincos(angle)
	return RotationMatrix{[9]float64{1, 0, 0, 0, c, -s, 0, s, c}}
}

// RotY is a rotation of angle radians about the y axis.
func RotY(angle float64) RotationMatrix {
	s, c := math.Sincos(angle)
	return RotationMatrix{[9]float64{c, 0, s, 0, 1, 0, -s, 0, c}}
}

// RotZ is a rotation of angle radians about the z axis.
func RotZ(angle float64) RotationMatrix {
	s, c := math.Sincos(angle)
	return RotationMatrix{[9]float64{c, -s, 0, s, c, 0, 0, 0, 1}}
}

// NewRotationMatrixFromRPY composes fixed-axis roll, pitch and yaw: Rz(yaw)·Ry(pitch)·Rx(roll).
func NewRotationMatrixFromRPY(roll, pitch, yaw float64) RotationMatrix {
	return RotZ(yaw).Mul(RotY(pitch)).Mul(RotX(roll))
}

// NewRotationMatrixFromAxisAngle returns the rotation of theta radians about axis, which need not
// be normalized. A zero axis gives the identity.
func NewRotationMatrixFromAxisAngle(axis r3.Vector, theta float64) RotationMatrix {
	norm := axis.Norm()
	if norm == 0 {
		return NewIdentityRotation()
	}
	k := axis.Mul(1 / norm)
	s, c := math.Sincos(theta)
	v := 1 - c
	return RotationMatrix{[9]float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	}}
}

// NewRotationMatrixFromColumns builds a rotation from its three column vectors.
func NewRotationMatrixFromColumns(x, y, z r3.Vector) RotationMatrix {
	return RotationMatrix{[9]float64{x.X, y.X, z.X, x.Y, y.Y, z.Y, x.Z, y.Z, z.Z}}
}

// At returns the value at row, col.
func (rm RotationMatrix) At(row, col int) float64 {
	return rm.mat[row*3+col]
}

// Row returns the row as a vector.
func (rm RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[row*3], Y: rm.mat[row*3+1], Z: rm.mat[row*3+2]}
}

// Col returns the column as a vector. Columns are the rotated frame's axes.
func (rm RotationMatrix) Col(col int) r3.Vector {
	return r3.Vector{X: rm.mat[col], Y: rm.mat[col+3], Z: rm.mat[col+6]}
}

// Array returns a copy of the row-major values.
func (rm RotationMatrix) Array() [9]float64 {
	return rm.mat
}

// Mul returns rm·other.
func (rm RotationMatrix) Mul(other RotationMatrix) RotationMatrix {
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.mat[i*3+j] = rm.mat[i*3]*other.mat[j] + rm.mat[i*3+1]*other.mat[3+j] + rm.mat[i*3+2]*other.mat[6+j]
		}
	}
	return out
}

// MulVec rotates v.
func (rm RotationMatrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.Row(0).Dot(v),
		Y: rm.Row(1).Dot(v),
		Z: rm.Row(2).Dot(v),
	}
}

// Transpose returns the inverse rotation.
func (rm RotationMatrix) Transpose() RotationMatrix {
	m := rm.mat
	return RotationMatrix{[9]float64{m[0], m[3], m[6], m[1], m[4], m[7], m[2], m[5], m[8]}}
}

// Trace is the sum of the diagonal.
func (rm RotationMatrix) Trace() float64 {
	return rm.mat[0] + rm.mat[4] + rm.mat[8]
}

// Det is the determinant.
func (rm RotationMatrix) Det() float64 {
	return rm.Row(0).Dot(rm.Row(1).Cross(rm.Row(2)))
}

// IsOrthonormal reports whether RᵀR = I and det R = 1 within tol.
func (rm RotationMatrix) IsOrthonormal(tol float64) bool {
	rtr := rm.Transpose().Mul(rm)
	identity := NewIdentityRotation()
	for i, v := range rtr.mat {
		if math.Abs(v-identity.mat[i]) > tol {
			return false
		}
	}
	return math.Abs(rm.Det()-1) <= tol
}

// Quaternion converts the rotation to a unit quaternion with non-negative real part.
func (rm RotationMatrix) Quaternion() quat.Number {
	m := rm.mat
	var q quat.Number
	switch tr := rm.Trace(); {
	case tr > 0:
		s := 0.5 / math.Sqrt(tr+1)
		q = quat.Number{Real: 0.25 / s, Imag: (m[7] - m[5]) * s, Jmag: (m[2] - m[6]) * s, Kmag: (m[3] - m[1]) * s}
	case m[0] > m[4] && m[0] > m[8]:
		s := 2 * math.Sqrt(1+m[0]-m[4]-m[8])
		q = quat.Number{Real: (m[7] - m[5]) / s, Imag: 0.25 * s, Jmag: (m[1] + m[3]) / s, Kmag: (m[2] + m[6]) / s}
	case m[4] > m[8]:
		s := 2 * math.Sqrt(1+m[4]-m[0]-m[8])
		q = quat.Number{Real: (m[2] - m[6]) / s, Imag: (m[1] + m[3]) / s, Jmag: 0.25 * s, Kmag: (m[5] + m[7]) / s}
	default:
		s := 2 * math.Sqrt(1+m[8]-m[0]-m[4])
		q = quat.Number{Real: (m[3] - m[1]) / s, Imag: (m[2] + m[6]) / s, Jmag: (m[5] + m[7]) / s, Kmag: 0.25 * s}
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return quat.Scale(1/quat.Abs(q), q)
}

// RPY returns the roll, pitch and yaw that reproduce rm through NewRotationMatrixFromRPY.
func (rm RotationMatrix) RPY() (roll, pitch, yaw float64) {
	m := rm.mat
	pitch = math.Asin(math.Max(-1, math.Min(1, -m[6])))
	if math.Abs(m[6]) > 1-1e-12 {
		// gimbal lock, roll is folded into yaw
		return 0, pitch, math.Atan2(-m[1], m[4])
	}
	return math.Atan2(m[7], m[8]), pitch, math.Atan2(m[3], m[0])
}

func (rm RotationMatrix) String() string {
	m := rm.mat
	return fmt.Sprintf("[[%.4f %.4f %.4f] [%.4f %.4f %.4f] [%.4f %.4f %.4f]]", m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8])
}

// QuaternionAlmostEqual is an equality test for quaternions that treats q and -q as the same
// rotation.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	same := quat.Abs(quat.Sub(a, b)) < tol
	flipped := quat.Abs(quat.Add(a, b)) < tol
	return same || flipped
}

// OrientationAlmostEqual reports whether two rotations are the same within tol.
func OrientationAlmostEqual(a, b RotationMatrix, tol float64) bool {
	return QuaternionAlmostEqual(a.Quaternion(), b.Quaternion(), tol)
}
