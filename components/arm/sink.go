package arm

import (
	"context"
	"encoding/json"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ur5lab/ur5motion/kinematics"
)

// JointCommand is one desired joint state: the six arm joints followed by the gripper joints.
type JointCommand struct {
	OperationID string                        `json:"op,omitempty"`
	Tick        int                           `json:"tick"`
	Joints      kinematics.JointConfiguration `json:"joints"`
	Gripper     []float64                     `json:"gripper"`
}

// Values flattens the command into the arm joints followed by the gripper joints.
func (c JointCommand) Values() []float64 {
	return append(c.Joints[:], c.Gripper...)
}

// CommandSink receives every joint command the arm produces.
type CommandSink interface {
	Publish(ctx context.Context, cmd JointCommand) error
}

// RecordingSink keeps every command in memory.
type RecordingSink struct {
	mu       sync.Mutex
	commands []JointCommand
}

// NewRecordingSink returns an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Publish records cmd.
func (rs *RecordingSink) Publish(_ context.Context, cmd JointCommand) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	cmd.Gripper = slices.Clone(cmd.Gripper)
	rs.commands = append(rs.commands, cmd)
	return nil
}

// Commands returns a copy of the recorded commands.
func (rs *RecordingSink) Commands() []JointCommand {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return slices.Clone(rs.commands)
}

// Reset drops the recorded commands.
func (rs *RecordingSink) Reset() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.commands = nil
}

// JSONLinesSink writes one JSON object per command.
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesSink writes commands to w.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

// Publish encodes cmd as a single line.
func (js *JSONLinesSink) Publish(_ context.Context, cmd JointCommand) error {
	js.mu.Lock()
	defer js.mu.Unlock()
	return errors.Wrap(js.enc.Encode(cmd), "writing joint command")
}

// PacedSink forwards commands to another sink no faster than one per period, the way a fixed
// rate control loop publishes.
type PacedSink struct {
	next   CommandSink
	ticker *clock.Ticker
}

// NewPacedSink forwards to next at the given rate using clk.
func NewPacedSink(next CommandSink, clk clock.Clock, rateHz float64) *PacedSink {
	period := time.Duration(float64(time.Second) / rateHz)
	return &PacedSink{next: next, ticker: clk.Ticker(period)}
}

// Publish forwards cmd and then waits for the next period or for ctx to be done.
func (ps *PacedSink) Publish(ctx context.Context, cmd JointCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ps.next.Publish(ctx, cmd); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ps.ticker.C:
		return nil
	}
}

// Close stops the pacing ticker.
func (ps *PacedSink) Close() {
	ps.ticker.Stop()
}

// MultiSink publishes every command to all sinks.
type MultiSink []CommandSink

// Publish forwards cmd to every sink and combines their errors.
func (ms MultiSink) Publish(ctx context.Context, cmd JointCommand) error {
	var err error
	for _, sink := range ms {
		err = multierr.Append(err, sink.Publish(ctx, cmd))
	}
	return err
}
