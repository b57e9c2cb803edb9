package kinematics

import (
	"gonum.org/v1/gonum/mat"
)

// JacobianMatrix maps joint velocities to the end effector twist. Rows 0-2 are linear velocity and
// rows 3-5 angular velocity, both in the base frame.
type JacobianMatrix [Dof][Dof]float64

// Jacobian computes the geometric Jacobian. Column i is [z_i × (p_e - o_i); z_i] where z_i and o_i
// are the rotation axis and origin of joint i. Singular configurations are returned as is.
func (m *Model) Jacobian(q JointConfiguration) JacobianMatrix {
	frames := m.chain(q)
	pe := frames[Dof-1].Point

	var jac JacobianMatrix
	for i, frame := range frames {
		z := frame.Orientation.Col(2)
		lin := z.Cross(pe.Sub(frame.Point))
		jac[0][i], jac[1][i], jac[2][i] = lin.X, lin.Y, lin.Z
		jac[3][i], jac[4][i], jac[5][i] = z.X, z.Y, z.Z
	}
	return jac
}

// Jacobian returns the UR5 geometric Jacobian.
func Jacobian(q JointConfiguration) JacobianMatrix {
	return DefaultModel.Jacobian(q)
}

// Dense copies the Jacobian into a gonum matrix, optionally adding damping to the diagonal.
func (j JacobianMatrix) Dense(damping float64) *mat.Dense {
	data := make([]float64, 0, Dof*Dof)
	for r := range j {
		for c := range j[r] {
			v := j[r][c]
			if r == c {
				v += damping
			}
			data = append(data, v)
		}
	}
	return mat.NewDense(Dof, Dof, data)
}

// Manipulability is |det J|, zero at singular configurations.
func (j JacobianMatrix) Manipulability() float64 {
	det := mat.Det(j.Dense(0))
	if det < 0 {
		return -det
	}
	return det
}
