// Package spatialmath defines rotations, poses and the orientation error used by the
// differential controller.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

const (
	angleEpsilon    = 1e-12
	halfTurnEpsilon = 1e-6
)

// OrientationError returns the rotation vector, expressed in the frame both rotations are given
// in, that turns current into desired. Its norm is the rotation angle in [0, π].
func OrientationError(current, desired RotationMatrix) r3.Vector {
	rrel := current.Transpose().Mul(desired)
	aux := r3.Vector{
		X: rrel.At(2, 1) - rrel.At(1, 2),
		Y: rrel.At(0, 2) - rrel.At(2, 0),
		Z: rrel.At(1, 0) - rrel.At(0, 1),
	}
	sinTheta := aux.Norm() / 2
	cosTheta := (rrel.Trace() - 1) / 2
	theta := math.Atan2(sinTheta, cosTheta)
	if theta < angleEpsilon {
		return r3.Vector{}
	}

	// The skew part vanishes only near a half turn.
	var axis r3.Vector
	if cosTheta < 0 && sinTheta < halfTurnEpsilon {
		axis = halfTurnAxis(rrel)
	} else {
		axis = aux.Mul(1 / (2 * sinTheta))
	}
	return current.MulVec(axis).Mul(theta)
}

// halfTurnAxis recovers the rotation axis of a rotation by π from its symmetric part
// (R + I)/2 = a·aᵀ. The sign of the axis is arbitrary.
func halfTurnAxis(rrel RotationMatrix) r3.Vector {
	var b [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b[i][j] = (rrel.At(i, j) + rrel.At(j, i)) / 4
		}
		b[i][i] += 0.5
	}
	k := 0
	for i := 1; i < 3; i++ {
		if b[i][i] > b[k][k] {
			k = i
		}
	}
	ak := math.Sqrt(math.Max(b[k][k], 0))
	axis := [3]float64{}
	for i := 0; i < 3; i++ {
		axis[i] = b[i][k] / ak
	}
	return r3.Vector{X: axis[0], Y: axis[1], Z: axis[2]}.Normalize()
}

// ClampNorm scales v down so that its norm does not exceed bound. Shorter vectors are returned
// unchanged.
func ClampNorm(v r3.Vector, bound float64) r3.Vector {
	norm := v.Norm()
	if norm <= bound || norm == 0 {
		return v
	}
	return v.Mul(bound / norm)
}
