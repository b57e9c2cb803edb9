package control

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ur5lab/ur5motion/kinematics"
	"github.com/ur5lab/ur5motion/logging"
	"github.com/ur5lab/ur5motion/spatialmath"
)

// ErrBusy is returned when a new segment is requested while another one is running.
var ErrBusy = errors.New("a motion segment is already running")

// SegmentState is the lifecycle state of the controller's most recent segment.
type SegmentState int

// The segment states. A controller starts Idle and returns to Completed or Cancelled after
// every segment.
const (
	Idle SegmentState = iota
	Running
	Completed
	Cancelled
)

func (s SegmentState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("SegmentState(%d)", int(s))
}

// Config holds the controller rate, the segment velocities and the control gains.
type Config struct {
	RateHz           float64 `json:"rate_hz" yaml:"rate_hz"`
	TransitVelocity  float64 `json:"transit_velocity" yaml:"transit_velocity"`
	ApproachVelocity float64 `json:"approach_velocity" yaml:"approach_velocity"`
	Gains            `yaml:",inline"`
}

// DefaultConfig returns a 1 kHz controller moving at 0.3 m/s in transit and 0.1 m/s when
// approaching.
func DefaultConfig() Config {
	return Config{
		RateHz:           1000,
		TransitVelocity:  0.3,
		ApproachVelocity: 0.1,
		Gains:            DefaultGains(),
	}
}

// Validate ensures all parts of the config are valid.
func (c Config) Validate(path string) error {
	var err error
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"rate_hz", c.RateHz},
		{"transit_velocity", c.TransitVelocity},
		{"approach_velocity", c.ApproachVelocity},
		{"kp", c.Kp},
		{"joint_velocity_limit", c.JointVelocityLimit},
		{"joint_velocity_saturation", c.JointVelocitySaturation},
		{"orientation_error_bound", c.OrientationErrorBound},
	} {
		if !(field.value > 0) {
			err = multierr.Append(err, errors.Errorf("%s.%s: must be positive, got %v", path, field.name, field.value))
		}
	}
	if c.Kphi < 0 || c.Damping < 0 {
		err = multierr.Append(err, errors.Errorf("%s: kphi and damping cannot be negative", path))
	}
	return err
}

// Dt is the tick length in seconds.
func (c Config) Dt() float64 {
	return 1 / c.RateHz
}

// Velocity returns the segment speed for the approach flag.
func (c Config) Velocity(approach bool) float64 {
	if approach {
		return c.ApproachVelocity
	}
	return c.TransitVelocity
}

// TrajectorySpec describes one straight segment of the end effector in the base frame.
type TrajectorySpec struct {
	Start       r3.Vector
	Target      r3.Vector
	Orientation spatialmath.RotationMatrix
	Duration    float64
	Approach    bool
}

// NewTrajectorySpec builds a segment whose duration is the travelled distance over the
// velocity selected by approach.
func NewTrajectorySpec(
	cfg Config,
	start, target r3.Vector,
	orientation spatialmath.RotationMatrix,
	approach bool,
) TrajectorySpec {
	trajectory := NewLinearTrajectory(start, target, cfg.Velocity(approach))
	return TrajectorySpec{
		Start:       start,
		Target:      target,
		Orientation: orientation,
		Duration:    trajectory.Duration,
		Approach:    approach,
	}
}

// Trajectory returns the reference line of the segment.
func (ts TrajectorySpec) Trajectory() LinearTrajectory {
	return LinearTrajectory{Start: ts.Start, Target: ts.Target, Duration: ts.Duration}
}

// SegmentReport summarizes a finished or cancelled segment.
type SegmentReport struct {
	Ticks            int
	SaturatedTicks   int
	SingularTicks    int
	MaxTrackingError float64
	FinalError       float64
	State            SegmentState
}

// EmitFunc receives every integrated configuration. Returning an error aborts the segment.
type EmitFunc func(tick int, q kinematics.JointConfiguration) error

// MotionController runs segments one at a time.
type MotionController struct {
	mu    sync.Mutex
	state SegmentState

	model  *kinematics.Model
	diff   *DifferentialController
	cfg    Config
	logger logging.Logger
}

// NewMotionController returns an idle controller.
func NewMotionController(model *kinematics.Model, cfg Config, logger logging.Logger) *MotionController {
	return &MotionController{
		model:  model,
		diff:   NewDifferentialController(model, cfg.Gains),
		cfg:    cfg,
		logger: logger,
	}
}

// Config returns the controller configuration.
func (mc *MotionController) Config() Config {
	return mc.cfg
}

// State returns the state of the latest segment.
func (mc *MotionController) State() SegmentState {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.state
}

// Plan builds a segment from the end effector position at q to target.
func (mc *MotionController) Plan(
	q kinematics.JointConfiguration,
	target r3.Vector,
	orientation spatialmath.RotationMatrix,
	approach bool,
) TrajectorySpec {
	return NewTrajectorySpec(mc.cfg, mc.model.ForwardKinematics(q).Point, target, orientation, approach)
}

// Run integrates the segment from q, calling emit after every tick, and returns the final
// configuration. The context is checked once per tick; on cancellation the configuration
// reached so far is returned together with the context error.
func (mc *MotionController) Run(
	ctx context.Context,
	q kinematics.JointConfiguration,
	seg TrajectorySpec,
	emit EmitFunc,
) (kinematics.JointConfiguration, SegmentReport, error) {
	mc.mu.Lock()
	if mc.state == Running {
		mc.mu.Unlock()
		return q, SegmentReport{State: Running}, ErrBusy
	}
	mc.state = Running
	mc.mu.Unlock()

	final, report, err := mc.run(ctx, q, seg, emit)

	mc.mu.Lock()
	mc.state = report.State
	mc.mu.Unlock()
	return final, report, err
}

func (mc *MotionController) run(
	ctx context.Context,
	q kinematics.JointConfiguration,
	seg TrajectorySpec,
	emit EmitFunc,
) (kinematics.JointConfiguration, SegmentReport, error) {
	dt := mc.cfg.Dt()
	trajectory := seg.Trajectory()
	report := SegmentReport{State: Completed}
	mc.logger.CDebugw(ctx, "segment started",
		"start", seg.Start, "target", seg.Target, "duration", seg.Duration,
		"ticks", trajectory.TickCount(dt), "approach", seg.Approach)

	tick := 0
	for t, ref := range trajectory.Ticks(dt) {
		if err := ctx.Err(); err != nil {
			report.State = Cancelled
			mc.logger.CInfow(ctx, "segment cancelled", "tick", tick, "error", err)
			return q, report, err
		}
		tick++

		step := mc.diff.Step(q, ref, trajectory.Velocity(t, dt), seg.Orientation, dt)
		q = step.Joints
		if step.Saturated {
			report.SaturatedTicks++
		}
		if step.Singular {
			report.SingularTicks++
		}

		trackingErr := mc.model.ForwardKinematics(q).Point.Sub(ref).Norm()
		if trackingErr > report.MaxTrackingError {
			report.MaxTrackingError = trackingErr
		}
		report.Ticks = tick

		if emit != nil {
			if err := emit(tick, q); err != nil {
				report.State = Cancelled
				return q, report, errors.Wrapf(err, "emitting joint command %d", tick)
			}
		}
	}

	report.FinalError = mc.model.ForwardKinematics(q).Point.Sub(seg.Target).Norm()
	if report.SaturatedTicks > 0 || report.SingularTicks > 0 {
		mc.logger.CWarnw(ctx, "segment limited by joint rate or singularity",
			"saturated_ticks", report.SaturatedTicks, "singular_ticks", report.SingularTicks)
	}
	mc.logger.CDebugw(ctx, "segment completed",
		"ticks", report.Ticks, "final_error", report.FinalError, "max_tracking_error", report.MaxTrackingError)
	return q, report, nil
}

// ComputeSegment runs a segment on the UR5 model with the default gains at tick length dt and
// returns every emitted configuration.
func ComputeSegment(
	ctx context.Context,
	start kinematics.JointConfiguration,
	seg TrajectorySpec,
	dt float64,
) ([]kinematics.JointConfiguration, error) {
	cfg := DefaultConfig()
	cfg.RateHz = 1 / dt
	mc := NewMotionController(kinematics.DefaultModel, cfg, logging.NewBlankLogger("control"))

	out := make([]kinematics.JointConfiguration, 0, seg.Trajectory().TickCount(dt))
	_, _, err := mc.Run(ctx, start, seg, func(_ int, q kinematics.JointConfiguration) error {
		out = append(out, q)
		return nil
	})
	return out, err
}
