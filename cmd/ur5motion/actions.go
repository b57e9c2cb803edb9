package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gopkg.in/yaml.v3"

	"github.com/ur5lab/ur5motion/components/arm"
	"github.com/ur5lab/ur5motion/control"
	"github.com/ur5lab/ur5motion/kinematics"
	"github.com/ur5lab/ur5motion/logging"
	"github.com/ur5lab/ur5motion/services/sorter"
	"github.com/ur5lab/ur5motion/spatialmath"
	"github.com/ur5lab/ur5motion/utils"
)

func vectorFlag(c *cli.Context, name string) (r3.Vector, error) {
	vals := c.Float64Slice(name)
	if len(vals) != 3 {
		return r3.Vector{}, errors.Errorf("--%s needs 3 values, got %d", name, len(vals))
	}
	return r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// target reads the position flags into the base frame. Without --rpy the orientation of the
// homing configuration is kept.
func (r *runner) target(c *cli.Context) (r3.Vector, spatialmath.RotationMatrix, error) {
	pos, err := vectorFlag(c, flagPosition)
	if err != nil {
		return r3.Vector{}, spatialmath.RotationMatrix{}, err
	}
	armCfg := r.cfg.ArmConfig()
	orientation := armCfg.Model().ForwardKinematics(armCfg.Homing).Orientation
	frame := r.cfg.Frame()

	if c.IsSet(flagRPY) {
		rpy, err := vectorFlag(c, flagRPY)
		if err != nil {
			return r3.Vector{}, spatialmath.RotationMatrix{}, err
		}
		orientation = spatialmath.NewRotationMatrixFromRPY(
			utils.DegToRad(rpy.X), utils.DegToRad(rpy.Y), utils.DegToRad(rpy.Z))
		if c.Bool(flagWorld) {
			orientation = frame.WorldToBaseOrientation(orientation)
		}
	}
	if c.Bool(flagWorld) {
		pos = frame.WorldToBase(pos)
	}
	return pos, orientation, nil
}

// output opens where joint commands go: nothing for "", the app writer for "-", else a file.
func output(c *cli.Context, path string) (io.Writer, func() error, error) {
	switch path {
	case "":
		return io.Discard, func() error { return nil }, nil
	case "-":
		return c.App.Writer, func() error { return nil }, nil
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "creating %q", path)
	}
	return f, f.Close, nil
}

func (r *runner) fkAction(c *cli.Context) error {
	armCfg := r.cfg.ArmConfig()
	q := armCfg.Homing
	if c.IsSet(flagJoints) {
		vals := c.Float64Slice(flagJoints)
		if len(vals) != kinematics.Dof {
			return errors.Errorf("--%s needs %d values, got %d", flagJoints, kinematics.Dof, len(vals))
		}
		copy(q[:], vals)
	}

	model := armCfg.Model()
	pose := model.ForwardKinematics(q)
	roll, pitch, yaw := pose.Orientation.RPY()
	quat := pose.Orientation.Quaternion()
	world := r.cfg.Frame().BaseToWorld(pose.Point)

	w := c.App.Writer
	fmt.Fprintf(w, "joints:         %v\n", q)
	fmt.Fprintf(w, "position:       %.5f %.5f %.5f\n", pose.Point.X, pose.Point.Y, pose.Point.Z)
	fmt.Fprintf(w, "world position: %.5f %.5f %.5f\n", world.X, world.Y, world.Z)
	fmt.Fprintf(w, "rpy (deg):      %.3f %.3f %.3f\n", utils.RadToDeg(roll), utils.RadToDeg(pitch), utils.RadToDeg(yaw))
	fmt.Fprintf(w, "quaternion:     %.5f %.5f %.5f %.5f\n", quat.Real, quat.Imag, quat.Jmag, quat.Kmag)
	fmt.Fprintf(w, "manipulability: %.6f\n", model.Jacobian(q).Manipulability())
	return nil
}

func (r *runner) ikAction(c *cli.Context) error {
	pos, orientation, err := r.target(c)
	if err != nil {
		return err
	}
	armCfg := r.cfg.ArmConfig()
	solutions := armCfg.Model().InverseKinematics(spatialmath.NewPose(pos, orientation))
	if len(solutions) == 0 {
		return errors.Errorf("no solution reaches %v", pos)
	}
	nearest, _ := kinematics.Nearest(solutions, armCfg.Homing)

	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Elbow", "Shoulder", "Wrist", "Joints (deg)", "Distance from homing", ""})
	for i, sol := range solutions {
		deg := make([]string, kinematics.Dof)
		for j, v := range sol.Joints {
			deg[j] = fmt.Sprintf("%.1f", utils.RadToDeg(v))
		}
		mark := ""
		if kinematics.JointDistance(sol.Joints, nearest) < 1e-9 {
			mark = "nearest"
		}
		t.AppendRow(table.Row{
			i + 1,
			sol.Branch.Elbow,
			sol.Branch.Shoulder,
			sol.Branch.Wrist,
			fmt.Sprint(deg),
			fmt.Sprintf("%.3f", kinematics.JointDistance(sol.Joints, armCfg.Homing)),
			mark,
		})
	}
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

func (r *runner) moveAction(c *cli.Context) error {
	pos, orientation, err := r.target(c)
	if err != nil {
		return err
	}
	out, closeOut, err := output(c, c.String(flagOut))
	if err != nil {
		return err
	}
	defer func() {
		goutils.UncheckedError(closeOut())
	}()

	var sink arm.CommandSink = arm.NewJSONLinesSink(out)
	if c.Bool(flagPaced) {
		paced := arm.NewPacedSink(sink, clock.New(), r.cfg.Control.RateHz)
		defer paced.Close()
		sink = paced
	}
	recorded := arm.NewRecordingSink()
	ur5, err := arm.NewArm(r.cfg.ArmConfig(), arm.MultiSink{sink, recorded}, r.logger.Sublogger("arm"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	if c.Bool(flagTrace) {
		ctx = logging.EnableDebugMode(ctx, "move")
	}
	start := ur5.EndPosition().Point
	approach := c.Bool(flagApproach)
	if err := ur5.MoveToPosition(ctx, pos, orientation, approach); err != nil {
		return err
	}

	errs := trackingErrors(ur5.Model(), recorded.Commands(),
		control.NewLinearTrajectory(start, pos, r.cfg.Control.Velocity(approach)), r.cfg.Control.Dt())
	if len(errs) == 0 {
		r.logger.Infow("already at target", "position", pos)
		return nil
	}
	mean, err := stats.Mean(errs)
	if err != nil {
		return err
	}
	maxErr, err := stats.Max(errs)
	if err != nil {
		return err
	}
	p99, err := stats.Percentile(errs, 99)
	if err != nil {
		return err
	}
	r.logger.Infow("motion finished",
		"ticks", len(errs),
		"final_error", ur5.EndPosition().Point.Sub(pos).Norm(),
		"mean_tracking_error", mean,
		"p99_tracking_error", p99,
		"max_tracking_error", maxErr)

	if c.Bool(flagHistogram) {
		return histogram.Fprint(c.App.ErrWriter, histogram.Hist(10, errs), histogram.Linear(40))
	}
	return nil
}

// trackingErrors is the distance between the reference line and the end effector after every
// command.
func trackingErrors(
	model *kinematics.Model,
	cmds []arm.JointCommand,
	trajectory control.LinearTrajectory,
	dt float64,
) []float64 {
	errs := make([]float64, 0, len(cmds))
	i := 0
	for _, ref := range trajectory.Ticks(dt) {
		if i >= len(cmds) {
			break
		}
		errs = append(errs, model.ForwardKinematics(cmds[i].Joints).Point.Sub(ref).Norm())
		i++
	}
	return errs
}

func readDetections(path string) ([]sorter.Detection, error) {
	//nolint:gosec
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading detections %q", path)
	}
	var detections []sorter.Detection
	if err := yaml.Unmarshal(buf, &detections); err != nil {
		return nil, errors.Wrapf(err, "parsing detections %q", path)
	}
	return detections, nil
}

func (r *runner) sortAction(c *cli.Context) error {
	var detections []sorter.Detection
	switch {
	case c.IsSet(flagBatch):
		var err error
		if detections, err = readDetections(c.String(flagBatch)); err != nil {
			return err
		}
	case c.IsSet(flagBlock):
		pos, err := vectorFlag(c, flagBlock)
		if err != nil {
			return err
		}
		detections = append(detections, sorter.Detection{BlockID: c.Int(flagBlockID), Class: c.Int(flagClass), Position: pos})
	default:
		return errors.Errorf("either --%s or --%s is required", flagBlock, flagBatch)
	}

	out, closeOut, err := output(c, c.String(flagOut))
	if err != nil {
		return err
	}
	defer func() {
		goutils.UncheckedError(closeOut())
	}()
	ur5, err := arm.NewArm(r.cfg.ArmConfig(), arm.NewJSONLinesSink(out), r.logger.Sublogger("arm"))
	if err != nil {
		return err
	}
	svc, err := sorter.NewService(ur5, r.cfg.Frame(), r.cfg.SorterConfig(), r.logger.Sublogger("sorter"))
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	enc := json.NewEncoder(c.App.Writer)

	accepted := 0
	for _, det := range detections {
		det.Trace = det.Trace || c.Bool(flagTrace)
		if err := svc.Submit(ctx, det); err != nil {
			r.logger.Warnw("block rejected", "block", det.BlockID, "error", err)
			continue
		}
		accepted++
	}
	for ; accepted > 0; accepted-- {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ack := <-svc.Acknowledgements():
			if err := enc.Encode(ack); err != nil {
				return errors.Wrap(err, "writing acknowledgement")
			}
		}
	}
	return nil
}

func (r *runner) plotAction(c *cli.Context) error {
	pos, orientation, err := r.target(c)
	if err != nil {
		return err
	}
	armCfg := r.cfg.ArmConfig()
	controller := control.NewMotionController(armCfg.Model(), r.cfg.Control, r.logger.Sublogger("control"))
	seg := controller.Plan(armCfg.Homing, pos, orientation, c.Bool(flagApproach))
	dt := r.cfg.Control.Dt()

	var series [kinematics.Dof]plotter.XYs
	_, report, err := controller.Run(c.Context, armCfg.Homing, seg, func(tick int, q kinematics.JointConfiguration) error {
		for j, v := range q {
			series[j] = append(series[j], plotter.XY{X: float64(tick) * dt, Y: v})
		}
		return nil
	})
	if err != nil {
		return err
	}
	if report.Ticks == 0 {
		return errors.New("nothing to plot, already at target")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Joint angles to %.3f %.3f %.3f", pos.X, pos.Y, pos.Z)
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "angle (rad)"
	lines := make([]interface{}, 0, 2*kinematics.Dof)
	for j, xys := range series {
		lines = append(lines, fmt.Sprintf("q%d", j+1), xys)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, c.String(flagOut)); err != nil {
		return errors.Wrap(err, "saving plot")
	}
	r.logger.Infow("plot written", "file", c.String(flagOut), "ticks", report.Ticks,
		"max_tracking_error", report.MaxTrackingError, "saturated_ticks", report.SaturatedTicks)
	return nil
}
