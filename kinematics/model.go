// Package kinematics implements forward kinematics, the geometric Jacobian and the closed-form
// inverse kinematics of a UR5 style 6 joint arm described by modified DH parameters.
package kinematics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/ur5lab/ur5motion/spatialmath"
)

// Dof is the number of actuated joints.
const Dof = 6

// JointConfiguration holds the six joint angles in radians, base first.
type JointConfiguration [Dof]float64

// Add returns q + dq·scale.
func (q JointConfiguration) Add(dq [Dof]float64, scale float64) JointConfiguration {
	for i := range q {
		q[i] += dq[i] * scale
	}
	return q
}

// HasNaN reports whether any joint is NaN.
func (q JointConfiguration) HasNaN() bool {
	for _, v := range q {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func (q JointConfiguration) String() string {
	return fmt.Sprintf("[%.4f %.4f %.4f %.4f %.4f %.4f]", q[0], q[1], q[2], q[3], q[4], q[5])
}

// DHParameters is the modified DH description of the chain. Joint i is placed by
// RotX(Alpha[i])·TransX(A[i-1])·RotZ(q[i])·TransZ(D[i]), with A[-1] taken as 0.
type DHParameters struct {
	A     [Dof]float64 `json:"a" yaml:"a"`
	D     [Dof]float64 `json:"d" yaml:"d"`
	Alpha [Dof]float64 `json:"alpha" yaml:"alpha"`
}

// UR5 is the arm geometry including the 0.14 m tool flange extension on the last link.
var UR5 = DHParameters{
	A:     [Dof]float64{0, -0.425, -0.3922, 0, 0, 0},
	D:     [Dof]float64{0.1625, 0, 0, 0.1333, 0.0997, 0.0996 + 0.14},
	Alpha: [Dof]float64{0, math.Pi / 2, 0, 0, math.Pi / 2, -math.Pi / 2},
}

// Validate checks that the geometry can be solved by the closed-form inverse kinematics.
func (dh DHParameters) Validate(path string) error {
	if dh.A[1] == 0 || dh.A[2] == 0 {
		return errors.Errorf("%s: upper arm and forearm lengths (a[1], a[2]) must be non-zero", path)
	}
	if dh.D[4] == 0 {
		return errors.Errorf("%s: wrist offset d[4] must be non-zero", path)
	}
	return nil
}

// Model evaluates kinematics for one set of DH parameters. The zero Model is not usable; use
// NewModel or DefaultModel.
type Model struct {
	dh DHParameters
}

// DefaultModel is the UR5 model used by the package level functions.
var DefaultModel = NewModel(UR5)

// NewModel returns a model for the given geometry.
func NewModel(dh DHParameters) *Model {
	return &Model{dh: dh}
}

// DH returns the model's parameters.
func (m *Model) DH() DHParameters {
	return m.dh
}

// linkLength is A[i-1], the common normal preceding joint i.
func (m *Model) linkLength(i int) float64 {
	if i == 0 {
		return 0
	}
	return m.dh.A[i-1]
}

// jointTransform is the pose of frame i+1 in frame i for joint angle theta.
func (m *Model) jointTransform(i int, theta float64) spatialmath.Pose {
	st, ct := math.Sincos(theta)
	sa, ca := math.Sincos(m.dh.Alpha[i])
	d := m.dh.D[i]

	rot := spatialmath.NewRotationMatrixFromColumns(
		r3.Vector{X: ct, Y: ca * st, Z: sa * st},
		r3.Vector{X: -st, Y: ca * ct, Z: sa * ct},
		r3.Vector{Y: -sa, Z: ca},
	)
	return spatialmath.NewPose(r3.Vector{X: m.linkLength(i), Y: -sa * d, Z: ca * d}, rot)
}

// chain returns the cumulative transform of every joint frame, frames[i] being the pose of the
// frame after joint i in the base frame.
func (m *Model) chain(q JointConfiguration) [Dof]spatialmath.Pose {
	var frames [Dof]spatialmath.Pose
	cur := spatialmath.NewZeroPose()
	for i := 0; i < Dof; i++ {
		cur = spatialmath.Compose(cur, m.jointTransform(i, q[i]))
		frames[i] = cur
	}
	return frames
}

// ForwardKinematics returns the end effector pose in the base frame.
func (m *Model) ForwardKinematics(q JointConfiguration) spatialmath.Pose {
	return m.chain(q)[Dof-1]
}

// ForwardKinematics returns the UR5 end effector pose in the base frame.
func ForwardKinematics(q JointConfiguration) spatialmath.Pose {
	return DefaultModel.ForwardKinematics(q)
}
