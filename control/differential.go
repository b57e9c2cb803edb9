package control

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/ur5lab/ur5motion/kinematics"
	"github.com/ur5lab/ur5motion/spatialmath"
)

// Gains are the constants of the differential control law.
type Gains struct {
	// Kp scales the position error.
	Kp float64 `json:"kp" yaml:"kp"`
	// Kphi scales the orientation error.
	Kphi float64 `json:"kphi" yaml:"kphi"`
	// Damping is added to the Jacobian diagonal before solving.
	Damping float64 `json:"damping" yaml:"damping"`
	// Joint rates above JointVelocityLimit are replaced by ±JointVelocitySaturation.
	JointVelocityLimit      float64 `json:"joint_velocity_limit" yaml:"joint_velocity_limit"`
	JointVelocitySaturation float64 `json:"joint_velocity_saturation" yaml:"joint_velocity_saturation"`
	// OrientationErrorBound caps the norm of the orientation error vector.
	OrientationErrorBound float64 `json:"orientation_error_bound" yaml:"orientation_error_bound"`
}

// DefaultGains returns the tuned UR5 gains.
func DefaultGains() Gains {
	return Gains{
		Kp:                      40,
		Kphi:                    5,
		Damping:                 1e-6,
		JointVelocityLimit:      math.Pi,
		JointVelocitySaturation: 3,
		OrientationErrorBound:   0.1,
	}
}

// StepResult describes one integration step.
type StepResult struct {
	Joints    kinematics.JointConfiguration
	Rates     [kinematics.Dof]float64
	Saturated bool
	// Singular is set when the damped system could not be solved and the arm was held still.
	Singular bool
}

// DifferentialController computes joint rates from the Cartesian tracking error.
type DifferentialController struct {
	model *kinematics.Model
	gains Gains
}

// NewDifferentialController returns a controller for model using gains.
func NewDifferentialController(model *kinematics.Model, gains Gains) *DifferentialController {
	return &DifferentialController{model: model, gains: gains}
}

// Gains returns the controller's gains.
func (dc *DifferentialController) Gains() Gains {
	return dc.gains
}

// Step advances q by one tick of length dt towards the reference position xRef moving at
// vRef, while rotating towards target.
func (dc *DifferentialController) Step(
	q kinematics.JointConfiguration,
	xRef, vRef r3.Vector,
	target spatialmath.RotationMatrix,
	dt float64,
) StepResult {
	pose := dc.model.ForwardKinematics(q)
	jac := dc.model.Jacobian(q)

	orientErr := spatialmath.ClampNorm(
		spatialmath.OrientationError(pose.Orientation, target),
		dc.gains.OrientationErrorBound,
	)
	linear := vRef.Add(xRef.Sub(pose.Point).Mul(dc.gains.Kp))
	angular := orientErr.Mul(dc.gains.Kphi)
	taskErr := mat.NewVecDense(kinematics.Dof, []float64{linear.X, linear.Y, linear.Z, angular.X, angular.Y, angular.Z})

	result := StepResult{Joints: q}
	rates, ok := solveRates(jac.Dense(dc.gains.Damping), taskErr)
	if !ok {
		result.Singular = true
		return result
	}

	for i := range rates {
		if math.Abs(rates[i]) > dc.gains.JointVelocityLimit {
			rates[i] = math.Copysign(dc.gains.JointVelocitySaturation, rates[i])
			result.Saturated = true
		}
	}
	result.Rates = rates
	result.Joints = q.Add(rates, dt)
	return result
}

// solveRates solves a·x = b. An ill-conditioned system still yields a usable solution; only
// non-finite results are rejected.
func solveRates(a *mat.Dense, b *mat.VecDense) ([kinematics.Dof]float64, bool) {
	var rates [kinematics.Dof]float64
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return rates, false
		}
	}
	for i := range rates {
		v := x.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return rates, false
		}
		rates[i] = v
	}
	return rates, true
}
