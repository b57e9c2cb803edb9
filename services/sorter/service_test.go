package sorter

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/ur5lab/ur5motion/components/arm"
	"github.com/ur5lab/ur5motion/components/gripper"
	"github.com/ur5lab/ur5motion/logging"
	"github.com/ur5lab/ur5motion/referenceframe"
)

func newTestService(t *testing.T, manipulator Manipulator) *Service {
	t.Helper()
	frame := referenceframe.NewBaseFrame(referenceframe.DefaultFrameConfig())
	s, err := NewService(manipulator, frame, DefaultConfig(gripper.DefaultConfig()), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(s.Close)
	return s
}

func waitForAck(t *testing.T, s *Service) Acknowledgement {
	t.Helper()
	select {
	case ack := <-s.Acknowledgements():
		return ack
	case <-time.After(time.Minute):
		t.Fatal("timed out waiting for acknowledgement")
	}
	return Acknowledgement{}
}

func TestServiceMovesBlock(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg := arm.DefaultConfig()
	cfg.Gripper.SettleSeconds = 0
	sink := arm.NewRecordingSink()
	ur5, err := arm.NewArm(cfg, sink, logger)
	test.That(t, err, test.ShouldBeNil)

	s := newTestService(t, ur5)
	test.That(t, s.Submit(context.Background(), Detection{BlockID: 7, Class: 1, Position: r3.Vector{X: 0.3, Y: 0.5, Z: 0.88}}),
		test.ShouldBeNil)

	ack := waitForAck(t, s)
	test.That(t, ack.BlockID, test.ShouldEqual, 7)
	test.That(t, ack.Result, test.ShouldEqual, ResultSuccess)
	test.That(t, ack.Succeeded(), test.ShouldBeTrue)
	test.That(t, s.Zones().Count(1), test.ShouldEqual, 1)

	// parked 0.2 above the park point, in the base frame
	end := ur5.EndPosition().Point
	test.That(t, end.Sub(r3.Vector{X: -0.3, Y: -0.45, Z: 0.45}).Norm(), test.ShouldBeLessThan, 2e-3)
	test.That(t, ur5.Gripper().Diameter(), test.ShouldEqual, 100.)

	cmds := sink.Commands()
	test.That(t, len(cmds), test.ShouldBeGreaterThan, 18000)
	var gripperCommands int
	for _, cmd := range cmds {
		test.That(t, cmd.OperationID, test.ShouldEqual, cmds[0].OperationID)
		if cmd.Tick == 0 {
			gripperCommands++
		}
	}
	test.That(t, gripperCommands, test.ShouldEqual, 2)
}

func TestServiceRejects(t *testing.T) {
	fa := &fakeArm{}
	s := newTestService(t, fa)

	err := s.Submit(context.Background(), Detection{BlockID: 1, Class: 1, Position: r3.Vector{X: 0.6, Y: 0.5, Z: 0.88}})
	test.That(t, errors.Is(err, ErrOutsideWorkspace), test.ShouldBeTrue)
	test.That(t, s.Zones().Count(1), test.ShouldEqual, 0)

	err = s.Submit(context.Background(), Detection{BlockID: 2, Class: 12, Position: r3.Vector{X: 0.3, Y: 0.5, Z: 0.88}})
	test.That(t, errors.Is(err, ErrUnknownClass), test.ShouldBeTrue)
	test.That(t, fa.Calls(), test.ShouldBeEmpty)
}

func TestServiceReportsFailure(t *testing.T) {
	fa := &fakeArm{failAt: 1}
	s := newTestService(t, fa)

	pos := r3.Vector{X: 0.3, Y: 0.5, Z: 0.88}
	test.That(t, s.Submit(context.Background(), Detection{BlockID: 3, Class: 4, Position: pos}), test.ShouldBeNil)
	test.That(t, s.Submit(context.Background(), Detection{BlockID: 4, Class: 4, Position: pos}), test.ShouldBeNil)

	ack := waitForAck(t, s)
	test.That(t, ack.BlockID, test.ShouldEqual, 3)
	test.That(t, ack.Succeeded(), test.ShouldBeFalse)
	test.That(t, ack.Result, test.ShouldStartWith, "fail - ")
	test.That(t, ack.Result, test.ShouldContainSubstring, "joint limit")

	// the worker keeps going after a failure
	ack = waitForAck(t, s)
	test.That(t, ack.BlockID, test.ShouldEqual, 4)
	test.That(t, ack.Result, test.ShouldEqual, ResultSuccess)
	test.That(t, s.Zones().Count(4), test.ShouldEqual, 2)
}

func TestServiceClose(t *testing.T) {
	s := newTestService(t, &fakeArm{})
	s.Close()
	s.Close()

	err := s.Submit(context.Background(), Detection{BlockID: 1, Class: 1, Position: r3.Vector{X: 0.3, Y: 0.5, Z: 0.88}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "closed")
}

func TestServiceTracesBlock(t *testing.T) {
	logger, observed := logging.NewObservedTestLogger(t)
	logger.SetLevel(logging.ERROR)
	cfg := arm.DefaultConfig()
	cfg.Gripper.SettleSeconds = 0
	ur5, err := arm.NewArm(cfg, arm.NewRecordingSink(), logger.Sublogger("arm"))
	test.That(t, err, test.ShouldBeNil)

	frame := referenceframe.NewBaseFrame(referenceframe.DefaultFrameConfig())
	s, err := NewService(ur5, frame, DefaultConfig(gripper.DefaultConfig()), logger.Sublogger("sorter"))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(s.Close)

	pos := r3.Vector{X: 0.3, Y: 0.5, Z: 0.88}
	test.That(t, s.Submit(context.Background(), Detection{BlockID: 5, Class: 2, Position: pos}), test.ShouldBeNil)
	test.That(t, waitForAck(t, s).Succeeded(), test.ShouldBeTrue)
	test.That(t, observed.Len(), test.ShouldEqual, 0)

	test.That(t, s.Submit(context.Background(), Detection{BlockID: 9, Class: 2, Position: pos, Trace: true}), test.ShouldBeNil)
	test.That(t, waitForAck(t, s).Succeeded(), test.ShouldBeTrue)

	entries := observed.All()
	test.That(t, entries, test.ShouldNotBeEmpty)
	for _, entry := range entries {
		test.That(t, entry.ContextMap()[logging.TraceField], test.ShouldEqual, "block-9")
	}
	test.That(t, observed.FilterMessage("queueing block").Len(), test.ShouldEqual, 1)
	test.That(t, observed.FilterMessage("block placed").Len(), test.ShouldEqual, 1)
	test.That(t, observed.FilterMessage("moving").Len(), test.ShouldBeGreaterThan, 5)
	test.That(t, observed.FilterLoggerName("arm.control").Len(), test.ShouldBeGreaterThan, 5)
}
