package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"

	"github.com/ur5lab/ur5motion/spatialmath"
	"github.com/ur5lab/ur5motion/utils"
)

// wristDegenerateSin is the |sin q5| below which joints 4 and 6 share an axis.
const wristDegenerateSin = 1e-12

// Branch selects one of the eight closed-form solutions. Each field is +1 or -1.
type Branch struct {
	Elbow    int
	Shoulder int
	Wrist    int
}

// branchTable is the enumeration order of the solutions: elbow, then shoulder, then wrist.
var branchTable = func() []Branch {
	branches := make([]Branch, 0, 8)
	for _, elbow := range []int{1, -1} {
		for _, shoulder := range []int{1, -1} {
			for _, wrist := range []int{1, -1} {
				branches = append(branches, Branch{elbow, shoulder, wrist})
			}
		}
	}
	return branches
}()

// IKSolution is one joint configuration reaching the requested pose.
type IKSolution struct {
	Branch Branch
	Joints JointConfiguration
}

// IKSolutionSet holds the valid solutions in branch table order. Branches whose acos or asin
// argument leaves [-1, 1] are omitted, so the set may hold fewer than eight entries or none.
type IKSolutionSet []IKSolution

// Configurations returns the joint configurations of the set.
func (s IKSolutionSet) Configurations() []JointConfiguration {
	return lo.Map(s, func(sol IKSolution, _ int) JointConfiguration { return sol.Joints })
}

// InverseKinematics returns every closed-form solution for the end effector pose, given in the
// base frame. It never chooses between them; see Nearest.
func (m *Model) InverseKinematics(pose spatialmath.Pose) IKSolutionSet {
	dh := m.dh
	t60 := pose
	t06 := pose.Invert()
	p := pose.Point

	p50 := m.WristCenter(pose)
	shoulderArg := dh.D[3] / math.Hypot(p50.X, p50.Y)

	solutions := make(IKSolutionSet, 0, len(branchTable))
	for _, br := range branchTable {
		if !utils.InDomain(shoulderArg) {
			continue
		}
		th1 := math.Atan2(p50.Y, p50.X) + float64(br.Shoulder)*math.Acos(shoulderArg) + math.Pi/2
		s1, c1 := math.Sincos(th1)

		wristArg := (p.X*s1 - p.Y*c1 - dh.D[3]) / dh.D[5]
		if !utils.InDomain(wristArg) {
			continue
		}
		th5 := float64(br.Wrist) * math.Acos(wristArg)

		th6 := 0.
		if s5 := math.Sin(th5); math.Abs(s5) >= wristDegenerateSin {
			th6 = math.Atan2(
				(-t06.Orientation.At(1, 0)*s1+t06.Orientation.At(1, 1)*c1)/s5,
				(t06.Orientation.At(0, 0)*s1-t06.Orientation.At(0, 1)*c1)/s5,
			)
		}

		// planar two link problem for joints 2 and 3
		t41 := spatialmath.Compose(
			spatialmath.Compose(
				spatialmath.Compose(m.jointTransform(0, th1).Invert(), t60),
				m.jointTransform(5, th6).Invert(),
			),
			m.jointTransform(4, th5).Invert(),
		)
		p41 := t41.Point
		pxz := math.Hypot(p41.X, p41.Z)

		elbowArg := (pxz*pxz - dh.A[1]*dh.A[1] - dh.A[2]*dh.A[2]) / (2 * dh.A[1] * dh.A[2])
		if !utils.InDomain(elbowArg) {
			continue
		}
		th3 := float64(br.Elbow) * math.Acos(elbowArg)

		shoulderLiftArg := -dh.A[2] * math.Sin(th3) / pxz
		if !utils.InDomain(shoulderLiftArg) {
			continue
		}
		th2 := math.Atan2(-p41.Z, -p41.X) - math.Asin(shoulderLiftArg)

		t43 := spatialmath.Compose(
			spatialmath.Compose(m.jointTransform(2, th3).Invert(), m.jointTransform(1, th2).Invert()),
			t41,
		)
		th4 := math.Atan2(t43.Orientation.At(1, 0), t43.Orientation.At(0, 0))

		q := JointConfiguration{th1, th2, th3, th4, th5, th6}
		if q.HasNaN() {
			continue
		}
		solutions = append(solutions, IKSolution{Branch: br, Joints: q})
	}
	return solutions
}

// InverseKinematics solves the UR5 closed-form inverse kinematics.
func InverseKinematics(pose spatialmath.Pose) IKSolutionSet {
	return DefaultModel.InverseKinematics(pose)
}

// JointDistance is the largest wrapped angular difference between two configurations.
func JointDistance(a, b JointConfiguration) float64 {
	dist := 0.
	for i := range a {
		dist = math.Max(dist, math.Abs(utils.AngleDiff(a[i], b[i])))
	}
	return dist
}

// Nearest picks the solution requiring the least joint travel from current. Each returned joint
// is unwrapped to lie within π of the current angle. It returns false for an empty set.
func Nearest(set IKSolutionSet, current JointConfiguration) (JointConfiguration, bool) {
	if len(set) == 0 {
		return JointConfiguration{}, false
	}
	best := lo.MinBy(set, func(a, b IKSolution) bool {
		return travel(a.Joints, current) < travel(b.Joints, current)
	})
	var out JointConfiguration
	for i := range out {
		out[i] = current[i] + utils.AngleDiff(best.Joints[i], current[i])
	}
	return out, true
}

// travel is the summed wrapped joint motion.
func travel(a, b JointConfiguration) float64 {
	return lo.Sum(lo.Map(a[:], func(v float64, i int) float64 {
		return math.Abs(utils.AngleDiff(v, b[i]))
	}))
}

// WristCenter returns the wrist centre of a pose, the point the first three joints position.
func (m *Model) WristCenter(pose spatialmath.Pose) r3.Vector {
	return pose.Point.Sub(pose.Orientation.Col(2).Mul(m.dh.D[5]))
}
