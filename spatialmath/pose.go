package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Pose is a position and an orientation, typically of the end effector in the arm base frame.
type Pose struct {
	Point       r3.Vector
	Orientation RotationMatrix
}

// NewPose returns a pose at point with the given orientation.
func NewPose(point r3.Vector, orientation RotationMatrix) Pose {
	return Pose{Point: point, Orientation: orientation}
}

// NewPoseFromPoint returns a pose at point with no rotation.
func NewPoseFromPoint(point r3.Vector) Pose {
	return Pose{Point: point, Orientation: NewIdentityRotation()}
}

// NewZeroPose returns the identity pose.
func NewZeroPose() Pose {
	return NewPoseFromPoint(r3.Vector{})
}

// Compose returns a∘b, the pose b expressed in the parent frame of a.
func Compose(a, b Pose) Pose {
	return Pose{
		Point:       a.Point.Add(a.Orientation.MulVec(b.Point)),
		Orientation: a.Orientation.Mul(b.Orientation),
	}
}

// Invert returns the pose p⁻¹ such that Compose(p, p.Invert()) is the identity.
func (p Pose) Invert() Pose {
	rt := p.Orientation.Transpose()
	return Pose{
		Point:       rt.MulVec(p.Point).Mul(-1),
		Orientation: rt,
	}
}

// TransformPoint maps a point expressed in this pose's frame into the parent frame.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return p.Point.Add(p.Orientation.MulVec(pt))
}

func (p Pose) String() string {
	return fmt.Sprintf("{X:%.5f Y:%.5f Z:%.5f R:%v}", p.Point.X, p.Point.Y, p.Point.Z, p.Orientation)
}

// R3VectorAlmostEqual compares two r3.Vector objects and returns if all elements are within
// epsilon of each other.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return a.Sub(b).Norm() <= epsilon
}

// PoseAlmostEqual will return a bool describing whether 2 poses are approximately the same.
func PoseAlmostEqual(a, b Pose, epsilon float64) bool {
	return R3VectorAlmostEqual(a.Point, b.Point, epsilon) && OrientationAlmostEqual(a.Orientation, b.Orientation, epsilon)
}
