package arm

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/ur5lab/ur5motion/components/gripper"
	"github.com/ur5lab/ur5motion/control"
	"github.com/ur5lab/ur5motion/kinematics"
	"github.com/ur5lab/ur5motion/logging"
)

// hookSink records commands and calls hook on each one.
type hookSink struct {
	RecordingSink
	hook func(cmd JointCommand)
}

func (hs *hookSink) Publish(ctx context.Context, cmd JointCommand) error {
	if err := hs.RecordingSink.Publish(ctx, cmd); err != nil {
		return err
	}
	if hs.hook != nil {
		hs.hook(cmd)
	}
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Gripper.SettleSeconds = 0
	return cfg
}

func newTestArm(t *testing.T, sink CommandSink) *Arm {
	t.Helper()
	a, err := NewArm(testConfig(), sink, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return a
}

func TestNewArm(t *testing.T) {
	a := newTestArm(t, NewRecordingSink())
	test.That(t, a.JointPositions(), test.ShouldResemble, Homing)
	test.That(t, a.IsMoving(), test.ShouldBeFalse)
	test.That(t, a.Gripper().Diameter(), test.ShouldEqual, 130.)

	pos := a.EndPosition().Point
	test.That(t, pos.X, test.ShouldAlmostEqual, -0.27109, 1e-5)
	test.That(t, pos.Y, test.ShouldAlmostEqual, 0.04292, 1e-5)
	test.That(t, pos.Z, test.ShouldAlmostEqual, 0.59038, 1e-5)

	cfg := testConfig()
	cfg.Homing[2] = math.NaN()
	_, err := NewArm(cfg, NewRecordingSink(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMoveDownAndHome(t *testing.T) {
	sink := NewRecordingSink()
	a := newTestArm(t, sink)
	start := a.EndPosition()

	test.That(t, a.MoveDown(context.Background(), 0.1), test.ShouldBeNil)
	cmds := sink.Commands()
	// 0.1 m at the approach velocity of 0.1 m/s, 1 kHz
	test.That(t, cmds, test.ShouldHaveLength, 1000)
	test.That(t, cmds[0].Tick, test.ShouldEqual, 1)
	test.That(t, cmds[0].OperationID, test.ShouldNotBeEmpty)
	test.That(t, cmds[999].OperationID, test.ShouldEqual, cmds[0].OperationID)
	test.That(t, cmds[999].Joints, test.ShouldResemble, a.JointPositions())
	test.That(t, cmds[0].Values(), test.ShouldHaveLength, kinematics.Dof+3)
	test.That(t, cmds[0].Gripper, test.ShouldResemble, []float64{0, 0, 0})

	end := a.EndPosition()
	test.That(t, end.Point.Sub(start.Point.Add(r3.Vector{Z: 0.1})).Norm(), test.ShouldBeLessThan, 1e-3)
	test.That(t, a.IsMoving(), test.ShouldBeFalse)
	test.That(t, a.Operations(), test.ShouldBeEmpty)

	sink.Reset()
	test.That(t, a.Home(context.Background()), test.ShouldBeNil)
	test.That(t, sink.Commands(), test.ShouldHaveLength, 333)
	test.That(t, a.EndPosition().Point.Sub(start.Point).Norm(), test.ShouldBeLessThan, 1e-3)
	for i, q := range a.JointPositions() {
		test.That(t, q, test.ShouldAlmostEqual, Homing[i], 1e-2)
	}
}

func TestMoveUp(t *testing.T) {
	a := newTestArm(t, NewRecordingSink())
	start := a.EndPosition().Point
	test.That(t, a.MoveUp(context.Background(), 0.05), test.ShouldBeNil)
	test.That(t, a.EndPosition().Point.Sub(start.Sub(r3.Vector{Z: 0.05})).Norm(), test.ShouldBeLessThan, 1e-3)
}

func TestBusy(t *testing.T) {
	var moveErr, gripErr error
	sink := &hookSink{}
	a := newTestArm(t, sink)
	sink.hook = func(cmd JointCommand) {
		if cmd.Tick == 2 {
			test.That(t, a.IsMoving(), test.ShouldBeTrue)
			test.That(t, a.Operations(), test.ShouldHaveLength, 1)
			moveErr = a.MoveToPosition(context.Background(), r3.Vector{}, a.EndPosition().Orientation, false)
			gripErr = a.SetGripper(context.Background(), 40)
		}
	}

	test.That(t, a.MoveDown(context.Background(), 0.01), test.ShouldBeNil)
	test.That(t, moveErr, test.ShouldEqual, control.ErrBusy)
	test.That(t, gripErr, test.ShouldEqual, control.ErrBusy)
	test.That(t, a.Gripper().Diameter(), test.ShouldEqual, 130.)
}

func TestStop(t *testing.T) {
	sink := &hookSink{}
	a := newTestArm(t, sink)
	sink.hook = func(cmd JointCommand) {
		if cmd.Tick == 5 {
			test.That(t, a.Stop(context.Background()), test.ShouldBeNil)
		}
	}

	err := a.MoveDown(context.Background(), 0.1)
	test.That(t, err, test.ShouldEqual, context.Canceled)
	cmds := sink.Commands()
	test.That(t, cmds, test.ShouldHaveLength, 5)
	test.That(t, a.JointPositions(), test.ShouldResemble, cmds[4].Joints)
	test.That(t, a.IsMoving(), test.ShouldBeFalse)

	// the arm accepts new motions after a stop
	sink.hook = nil
	test.That(t, a.MoveDown(context.Background(), 0.01), test.ShouldBeNil)
}

func TestSetGripper(t *testing.T) {
	sink := NewRecordingSink()
	a := newTestArm(t, sink)

	test.That(t, a.SetGripper(context.Background(), 76), test.ShouldBeNil)
	cmds := sink.Commands()
	test.That(t, cmds, test.ShouldHaveLength, 1)
	test.That(t, cmds[0].Tick, test.ShouldEqual, 0)
	test.That(t, cmds[0].Joints, test.ShouldResemble, Homing)
	for _, j := range cmds[0].Gripper {
		test.That(t, j, test.ShouldAlmostEqual, math.Pi/2)
	}

	test.That(t, a.SetGripper(context.Background(), 5), test.ShouldNotBeNil)
	test.That(t, a.SetSoftGripper(context.Background(), 0.1, 0.2), test.ShouldNotBeNil)
}

func TestSoftGripperArm(t *testing.T) {
	cfg := testConfig()
	cfg.Gripper.Kind = gripper.Soft
	sink := NewRecordingSink()
	a, err := NewArm(cfg, sink, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, a.SetSoftGripper(context.Background(), 0.1, 0.2), test.ShouldBeNil)
	test.That(t, sink.Commands()[0].Values(), test.ShouldHaveLength, kinematics.Dof+2)
	test.That(t, sink.Commands()[0].Gripper, test.ShouldResemble, []float64{0.1, 0.2})
}

func TestDoNestsMotions(t *testing.T) {
	var outsideErr error
	sink := &hookSink{}
	a := newTestArm(t, sink)
	sink.hook = func(cmd JointCommand) {
		if cmd.Tick == 1 && outsideErr == nil {
			outsideErr = a.MoveDown(context.Background(), 0.01)
		}
	}

	err := a.Do(context.Background(), "Routine", func(ctx context.Context) error {
		if err := a.MoveDown(ctx, 0.01); err != nil {
			return err
		}
		if err := a.SetGripper(ctx, 40); err != nil {
			return err
		}
		return a.MoveUp(ctx, 0.01)
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outsideErr, test.ShouldEqual, control.ErrBusy)

	cmds := sink.Commands()
	test.That(t, cmds, test.ShouldHaveLength, 100+1+100)
	for _, cmd := range cmds {
		test.That(t, cmd.OperationID, test.ShouldEqual, cmds[0].OperationID)
	}
	test.That(t, cmds[150].Gripper[0], test.ShouldAlmostEqual, gripper.MapDiameter(40, 22, 130))
}
