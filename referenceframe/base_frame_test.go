package referenceframe

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/ur5lab/ur5motion/spatialmath"
)

func TestDefaultBaseFrame(t *testing.T) {
	bf := NewBaseFrame(DefaultFrameConfig())

	origin := bf.WorldToBase(r3.Vector{X: 0.5, Y: 0.35, Z: 1.75})
	test.That(t, origin.Norm(), test.ShouldAlmostEqual, 0.)

	// a block on the table lies below the base, which is +z in the flipped base frame
	block := bf.WorldToBase(r3.Vector{X: 0.3, Y: 0.5, Z: 0.92})
	test.That(t, block.X, test.ShouldAlmostEqual, -0.2)
	test.That(t, block.Y, test.ShouldAlmostEqual, -0.15)
	test.That(t, block.Z, test.ShouldAlmostEqual, 0.83)

	park := bf.WorldToBase(r3.Vector{X: 0.2, Y: 0.8, Z: 1.1})
	test.That(t, park.X, test.ShouldAlmostEqual, -0.3)
	test.That(t, park.Y, test.ShouldAlmostEqual, -0.45)
	test.That(t, park.Z, test.ShouldAlmostEqual, 0.65)
}

func TestBaseFrameRoundTrip(t *testing.T) {
	bf := NewBaseFrame(FrameConfig{Translation: r3.Vector{X: 1, Y: -2, Z: 0.5}, Roll: 0.3, Pitch: -0.2, Yaw: 1.4})
	p := r3.Vector{X: 0.25, Y: 0.6, Z: 0.9}
	test.That(t, spatialmath.R3VectorAlmostEqual(bf.BaseToWorld(bf.WorldToBase(p)), p, 1e-12), test.ShouldBeTrue)
	test.That(t, spatialmath.R3VectorAlmostEqual(bf.WorldToBase(bf.BaseToWorld(p)), p, 1e-12), test.ShouldBeTrue)

	down := bf.WorldToBaseOrientation(bf.Pose().Orientation)
	test.That(t, spatialmath.OrientationAlmostEqual(down, spatialmath.NewIdentityRotation(), 1e-9), test.ShouldBeTrue)
}

func TestFrameConfigValidate(t *testing.T) {
	test.That(t, DefaultFrameConfig().Validate("base_frame"), test.ShouldBeNil)
	cfg := DefaultFrameConfig()
	cfg.Yaw = math.NaN()
	err := cfg.Validate("base_frame")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "base_frame")
}
