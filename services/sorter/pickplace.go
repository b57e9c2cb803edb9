package sorter

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/ur5lab/ur5motion/components/gripper"
	"github.com/ur5lab/ur5motion/referenceframe"
	"github.com/ur5lab/ur5motion/spatialmath"
)

// Manipulator is the part of the arm the pick and place routine drives.
type Manipulator interface {
	Do(ctx context.Context, method string, fn func(ctx context.Context) error) error
	EndPosition() spatialmath.Pose
	MoveToPosition(ctx context.Context, pos r3.Vector, orientation spatialmath.RotationMatrix, approach bool) error
	MoveUp(ctx context.Context, distance float64) error
	SetGripper(ctx context.Context, diameter float64) error
}

// Routine holds the waypoints of the transfer. Heights and checkpoints are in the base frame,
// where +z points down towards the table; PickHeight and Park are in the world frame.
type Routine struct {
	// PickHeight replaces the z of the block and of the zone before grasping or releasing.
	PickHeight float64 `json:"pick_height" yaml:"pick_height"`
	// Clearance is how far above the block the approach starts.
	Clearance        float64   `json:"clearance" yaml:"clearance"`
	LiftAfterGrasp   float64   `json:"lift_after_grasp" yaml:"lift_after_grasp"`
	LiftAfterRelease float64   `json:"lift_after_release" yaml:"lift_after_release"`
	LeftCheckpoint   r3.Vector `json:"left_checkpoint" yaml:"left_checkpoint"`
	RightCheckpoint  r3.Vector `json:"right_checkpoint" yaml:"right_checkpoint"`
	// SafeY is the base frame y the arm retreats to before parking.
	SafeY    float64   `json:"safe_y" yaml:"safe_y"`
	Park     r3.Vector `json:"park" yaml:"park"`
	ParkLift float64   `json:"park_lift" yaml:"park_lift"`

	GraspDiameter   float64 `json:"-" yaml:"-"`
	ReleaseDiameter float64 `json:"-" yaml:"-"`
}

// DefaultRoutine is the transfer used on the simulated table with the given gripper.
func DefaultRoutine(g gripper.Config) Routine {
	return Routine{
		PickHeight:       0.92,
		Clearance:        0.2,
		LiftAfterGrasp:   0.1,
		LiftAfterRelease: 0.2,
		LeftCheckpoint:   r3.Vector{X: -0.4, Y: -0.4, Z: 0.5},
		RightCheckpoint:  r3.Vector{X: 0.4, Y: -0.4, Z: 0.5},
		SafeY:            -0.4,
		Park:             r3.Vector{X: 0.2, Y: 0.8, Z: 1.1},
		ParkLift:         0.2,
		GraspDiameter:    g.GraspDiameter,
		ReleaseDiameter:  g.ReleaseDiameter,
	}
}

// PickAndPlace moves the block at from to the zone at to, both in the world frame. The whole
// transfer runs as one arm operation, so nothing else can move the arm until it returns.
func PickAndPlace(
	ctx context.Context,
	arm Manipulator,
	frame *referenceframe.BaseFrame,
	from, to r3.Vector,
	routine Routine,
) error {
	from.Z = routine.PickHeight
	to.Z = routine.PickHeight
	pick := frame.WorldToBase(from)
	place := frame.WorldToBase(to)
	level := spatialmath.NewIdentityRotation()

	return arm.Do(ctx, "PickAndPlace", func(ctx context.Context) error {
		steps := []struct {
			name string
			run  func() error
		}{
			{"above block", func() error {
				return arm.MoveToPosition(ctx, pick.Sub(r3.Vector{Z: routine.Clearance}), level, false)
			}},
			{"approach block", func() error { return arm.MoveToPosition(ctx, pick, level, true) }},
			{"grasp", func() error { return arm.SetGripper(ctx, routine.GraspDiameter) }},
			{"lift", func() error { return arm.MoveUp(ctx, routine.LiftAfterGrasp) }},
			{"left checkpoint", func() error { return arm.MoveToPosition(ctx, routine.LeftCheckpoint, level, false) }},
			{"right checkpoint", func() error { return arm.MoveToPosition(ctx, routine.RightCheckpoint, level, false) }},
			{"above zone", func() error {
				above := place
				above.Z = arm.EndPosition().Point.Z
				return arm.MoveToPosition(ctx, above, level, false)
			}},
			{"approach zone", func() error { return arm.MoveToPosition(ctx, place, level, true) }},
			{"release", func() error { return arm.SetGripper(ctx, routine.ReleaseDiameter) }},
			{"retreat", func() error { return arm.MoveUp(ctx, routine.LiftAfterRelease) }},
			{"safe y", func() error {
				pos := arm.EndPosition().Point
				if pos.Y <= routine.SafeY {
					return nil
				}
				pos.Y = routine.SafeY
				return arm.MoveToPosition(ctx, pos, level, false)
			}},
			{"park", func() error { return arm.MoveToPosition(ctx, frame.WorldToBase(routine.Park), level, false) }},
			{"park lift", func() error { return arm.MoveUp(ctx, routine.ParkLift) }},
		}
		for _, step := range steps {
			if err := step.run(); err != nil {
				return errors.Wrap(err, step.name)
			}
		}
		return nil
	})
}
