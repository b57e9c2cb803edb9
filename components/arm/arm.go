// Package arm implements the stateful UR5 arm: it owns the current joint configuration, runs
// Cartesian segments through the differential controller and publishes every joint command.
package arm

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/ur5lab/ur5motion/components/gripper"
	"github.com/ur5lab/ur5motion/control"
	"github.com/ur5lab/ur5motion/kinematics"
	"github.com/ur5lab/ur5motion/logging"
	"github.com/ur5lab/ur5motion/operation"
	"github.com/ur5lab/ur5motion/spatialmath"
)

// Arm is a UR5 driven by resolved-rate control. Only one motion runs at a time; a second
// request while one is running fails with control.ErrBusy.
type Arm struct {
	mu     sync.Mutex
	joints kinematics.JointConfiguration

	cfg        Config
	model      *kinematics.Model
	controller *control.MotionController
	gripper    *gripper.Gripper
	sink       CommandSink

	opMgr operation.SingleOperationManager
	ops   *operation.Registry

	logger logging.Logger
}

// NewArm returns an arm at the configured homing configuration with the gripper at its initial
// diameter. Every joint command is published to sink.
func NewArm(cfg Config, sink CommandSink, logger logging.Logger) (*Arm, error) {
	return newArm(cfg, sink, clock.New(), logger)
}

func newArm(cfg Config, sink CommandSink, clk clock.Clock, logger logging.Logger) (*Arm, error) {
	if err := cfg.Validate("arm"); err != nil {
		return nil, err
	}
	g, err := gripper.New(cfg.Gripper, logger.Sublogger("gripper"))
	if err != nil {
		return nil, err
	}
	model := cfg.Model()
	return &Arm{
		joints:     cfg.Homing,
		cfg:        cfg,
		model:      model,
		controller: control.NewMotionController(model, cfg.Control, logger.Sublogger("control")),
		gripper:    g,
		sink:       sink,
		ops:        operation.NewRegistry(clk),
		logger:     logger,
	}, nil
}

// Model returns the kinematic model of the arm.
func (a *Arm) Model() *kinematics.Model {
	return a.model
}

// ControlConfig returns the controller configuration.
func (a *Arm) ControlConfig() control.Config {
	return a.cfg.Control
}

// Gripper returns the arm's gripper.
func (a *Arm) Gripper() *gripper.Gripper {
	return a.gripper
}

// JointPositions returns a copy of the current joint configuration.
func (a *Arm) JointPositions() kinematics.JointConfiguration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.joints
}

// EndPosition returns the end effector pose in the base frame.
func (a *Arm) EndPosition() spatialmath.Pose {
	return a.model.ForwardKinematics(a.JointPositions())
}

// IsMoving returns whether a motion is in progress.
func (a *Arm) IsMoving() bool {
	return a.opMgr.OpRunning()
}

// Operations returns the motions currently running.
func (a *Arm) Operations() []*operation.Operation {
	return a.ops.All()
}

// Stop cancels the running motion. The arm keeps the configuration reached so far.
func (a *Arm) Stop(ctx context.Context) error {
	a.opMgr.CancelRunning(ctx)
	return nil
}

// begin starts an operation or reports that one is already running.
func (a *Arm) begin(ctx context.Context, method string, args interface{}) (context.Context, func(), error) {
	ctx, done, ok := a.opMgr.TryNew(ctx)
	if !ok {
		return ctx, done, control.ErrBusy
	}
	ctx, finish := a.ops.Create(ctx, method, args)
	return ctx, func() {
		finish()
		done()
	}, nil
}

// Do runs fn as a single operation. Motions called from fn with the given context are nested
// into it, while any other caller gets control.ErrBusy until fn returns.
func (a *Arm) Do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	ctx, done, err := a.begin(ctx, method, nil)
	if err != nil {
		return err
	}
	defer done()
	return fn(ctx)
}

// MoveToPosition drives the end effector along a straight line to pos, in the base frame, while
// rotating to orientation. Approach selects the slower approach velocity.
func (a *Arm) MoveToPosition(
	ctx context.Context,
	pos r3.Vector,
	orientation spatialmath.RotationMatrix,
	approach bool,
) error {
	ctx, done, err := a.begin(ctx, "MoveToPosition", pos)
	if err != nil {
		return err
	}
	defer done()
	return a.runSegment(ctx, pos, orientation, approach)
}

// MoveUp raises the end effector by distance, which is -z in the base frame of the hanging
// arm, keeping the current orientation at approach velocity.
func (a *Arm) MoveUp(ctx context.Context, distance float64) error {
	return a.moveVertical(ctx, "MoveUp", -distance)
}

// MoveDown lowers the end effector by distance, keeping the current orientation at approach
// velocity.
func (a *Arm) MoveDown(ctx context.Context, distance float64) error {
	return a.moveVertical(ctx, "MoveDown", distance)
}

func (a *Arm) moveVertical(ctx context.Context, method string, dz float64) error {
	ctx, done, err := a.begin(ctx, method, dz)
	if err != nil {
		return err
	}
	defer done()
	pose := a.EndPosition()
	return a.runSegment(ctx, pose.Point.Add(r3.Vector{Z: dz}), pose.Orientation, true)
}

// Home moves the end effector back to the pose of the homing configuration.
func (a *Arm) Home(ctx context.Context) error {
	ctx, done, err := a.begin(ctx, "Home", nil)
	if err != nil {
		return err
	}
	defer done()
	home := a.model.ForwardKinematics(a.cfg.Homing)
	return a.runSegment(ctx, home.Point, home.Orientation, false)
}

// SetGripper opens or closes the gripper to diameter millimetres, publishes the new state and
// waits for the fingers to settle.
func (a *Arm) SetGripper(ctx context.Context, diameter float64) error {
	ctx, done, err := a.begin(ctx, "SetGripper", diameter)
	if err != nil {
		return err
	}
	defer done()

	if err := a.gripper.SetDiameter(diameter); err != nil {
		return err
	}
	return a.publishGripper(ctx)
}

// SetSoftGripper sets the two soft gripper joints directly.
func (a *Arm) SetSoftGripper(ctx context.Context, first, second float64) error {
	ctx, done, err := a.begin(ctx, "SetSoftGripper", []float64{first, second})
	if err != nil {
		return err
	}
	defer done()

	if err := a.gripper.SetJoints(first, second); err != nil {
		return err
	}
	return a.publishGripper(ctx)
}

func (a *Arm) publishGripper(ctx context.Context) error {
	if err := a.publish(ctx, 0, a.JointPositions()); err != nil {
		return err
	}
	settle := time.Duration(a.cfg.Gripper.SettleSeconds * float64(time.Second))
	if settle > 0 && !a.opMgr.NewTimedWaitOp(ctx, settle) {
		return ctx.Err()
	}
	return nil
}

func (a *Arm) publish(ctx context.Context, tick int, q kinematics.JointConfiguration) error {
	cmd := JointCommand{Tick: tick, Joints: q, Gripper: a.gripper.Joints()}
	if op := operation.Get(ctx); op != nil {
		cmd.OperationID = op.ID.String()
	}
	return a.sink.Publish(ctx, cmd)
}

func (a *Arm) runSegment(
	ctx context.Context,
	target r3.Vector,
	orientation spatialmath.RotationMatrix,
	approach bool,
) error {
	start := a.JointPositions()
	seg := a.controller.Plan(start, target, orientation, approach)
	a.logger.CDebugw(ctx, "moving", "target", target, "approach", approach, "duration", seg.Duration)

	_, report, err := a.controller.Run(ctx, start, seg, func(tick int, q kinematics.JointConfiguration) error {
		a.mu.Lock()
		a.joints = q
		a.mu.Unlock()
		return a.publish(ctx, tick, q)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.CInfow(ctx, "motion stopped", "ticks", report.Ticks)
		}
		return err
	}
	if report.FinalError > 1e-3 {
		a.logger.CWarnw(ctx, "segment ended away from target", "error", report.FinalError, "target", target)
	}
	return nil
}
