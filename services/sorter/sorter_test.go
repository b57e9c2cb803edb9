package sorter

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/ur5lab/ur5motion/components/gripper"
	"github.com/ur5lab/ur5motion/referenceframe"
	"github.com/ur5lab/ur5motion/spatialmath"
)

// fakeArm teleports to every target and records what it was asked to do.
type fakeArm struct {
	mu     sync.Mutex
	pos    r3.Vector
	calls  []string
	failAt int
}

func (fa *fakeArm) record(format string, args ...interface{}) error {
	fa.calls = append(fa.calls, fmt.Sprintf(format, args...))
	if fa.failAt > 0 && len(fa.calls) == fa.failAt {
		return errors.New("joint limit")
	}
	return nil
}

func (fa *fakeArm) Do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fa *fakeArm) EndPosition() spatialmath.Pose {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return spatialmath.NewPoseFromPoint(fa.pos)
}

func (fa *fakeArm) MoveToPosition(ctx context.Context, pos r3.Vector, _ spatialmath.RotationMatrix, approach bool) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.pos = pos
	return fa.record("move %.2f %.2f %.2f %v", pos.X, pos.Y, pos.Z, approach)
}

func (fa *fakeArm) MoveUp(ctx context.Context, distance float64) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.pos.Z -= distance
	return fa.record("up %.2f", distance)
}

func (fa *fakeArm) SetGripper(ctx context.Context, diameter float64) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.record("grip %.0f", diameter)
}

func (fa *fakeArm) Calls() []string {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return append([]string(nil), fa.calls...)
}

func TestWorkspace(t *testing.T) {
	ws := DefaultWorkspace()
	test.That(t, ws.Validate("workspace"), test.ShouldBeNil)
	test.That(t, ws.Contains(r3.Vector{X: 0.3, Y: 0.5, Z: 0.88}), test.ShouldBeTrue)
	test.That(t, ws.Contains(r3.Vector{X: 0.5, Y: 0.5, Z: 0.88}), test.ShouldBeFalse)
	test.That(t, ws.Contains(r3.Vector{X: 0.3, Y: 0.05, Z: 0.88}), test.ShouldBeFalse)
	test.That(t, ws.Contains(r3.Vector{X: 0.3, Y: 0.5, Z: 0.92}), test.ShouldBeFalse)
	test.That(t, ws.Contains(r3.Vector{X: 0.3, Y: 0.5, Z: 0.7}), test.ShouldBeFalse)

	ws.Max.Y = ws.Min.Y
	test.That(t, ws.Validate("workspace"), test.ShouldNotBeNil)
}

func TestZoneTable(t *testing.T) {
	zt := NewZoneTable(DefaultZoneConfig())

	for i := 0; i < 3; i++ {
		target, err := zt.Next(2)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, target.X, test.ShouldEqual, 0.9)
		test.That(t, target.Y, test.ShouldAlmostEqual, 0.5+0.07*float64(i))
		test.That(t, target.Z, test.ShouldEqual, 0.9)
	}
	test.That(t, zt.Count(2), test.ShouldEqual, 3)
	test.That(t, zt.Count(1), test.ShouldEqual, 0)

	target, err := zt.Next(10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, target, test.ShouldResemble, r3.Vector{X: 0.8, Y: 0.5, Z: 0.9})

	_, err = zt.Next(0)
	test.That(t, errors.Is(err, ErrUnknownClass), test.ShouldBeTrue)
	_, err = zt.Next(11)
	test.That(t, errors.Is(err, ErrUnknownClass), test.ShouldBeTrue)
	test.That(t, zt.Count(11), test.ShouldEqual, 0)

	cfg := DefaultZoneConfig()
	cfg.Spacing = -1
	test.That(t, cfg.Validate("zones"), test.ShouldNotBeNil)
}

func TestPickAndPlaceWaypoints(t *testing.T) {
	frame := referenceframe.NewBaseFrame(referenceframe.DefaultFrameConfig())
	fa := &fakeArm{}
	routine := DefaultRoutine(gripper.DefaultConfig())

	err := PickAndPlace(context.Background(), fa, frame,
		r3.Vector{X: 0.3, Y: 0.5, Z: 0.88}, r3.Vector{X: 0.9, Y: 0.5, Z: 0.9}, routine)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fa.Calls(), test.ShouldResemble, []string{
		"move -0.20 -0.15 0.63 false",
		"move -0.20 -0.15 0.83 true",
		"grip 40",
		"up 0.10",
		"move -0.40 -0.40 0.50 false",
		"move 0.40 -0.40 0.50 false",
		"move 0.40 -0.15 0.50 false",
		"move 0.40 -0.15 0.83 true",
		"grip 100",
		"up 0.20",
		"move 0.40 -0.40 0.63 false",
		"move -0.30 -0.45 0.65 false",
		"up 0.20",
	})
}

func TestPickAndPlaceSkipsSafeYWhenClear(t *testing.T) {
	frame := referenceframe.NewBaseFrame(referenceframe.DefaultFrameConfig())
	fa := &fakeArm{}
	// a zone at world y 0.8 is base y -0.45, already past the safe y
	err := PickAndPlace(context.Background(), fa, frame,
		r3.Vector{X: 0.3, Y: 0.5, Z: 0.88}, r3.Vector{X: 0.9, Y: 0.8, Z: 0.9}, DefaultRoutine(gripper.DefaultConfig()))
	test.That(t, err, test.ShouldBeNil)
	calls := fa.Calls()
	test.That(t, calls, test.ShouldHaveLength, 12)
	test.That(t, calls[10], test.ShouldEqual, "move -0.30 -0.45 0.65 false")
}

func TestPickAndPlaceStopsOnError(t *testing.T) {
	frame := referenceframe.NewBaseFrame(referenceframe.DefaultFrameConfig())
	fa := &fakeArm{failAt: 3}
	err := PickAndPlace(context.Background(), fa, frame,
		r3.Vector{X: 0.3, Y: 0.5, Z: 0.88}, r3.Vector{X: 0.9, Y: 0.5, Z: 0.9}, DefaultRoutine(gripper.DefaultConfig()))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "grasp")
	test.That(t, err.Error(), test.ShouldContainSubstring, "joint limit")
	test.That(t, fa.Calls(), test.ShouldHaveLength, 3)
}
