package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestAngleConversions(t *testing.T) {
	test.That(t, DegToRad(180), test.ShouldAlmostEqual, math.Pi)
	test.That(t, RadToDeg(math.Pi/2), test.ShouldAlmostEqual, 90.)
	test.That(t, Float64AlmostEqual(1, 1.0001, 1e-3), test.ShouldBeTrue)
	test.That(t, Float64AlmostEqual(1, 1.01, 1e-3), test.ShouldBeFalse)
}

func TestWrapAngle(t *testing.T) {
	test.That(t, WrapAngle(0), test.ShouldAlmostEqual, 0.)
	test.That(t, WrapAngle(math.Pi), test.ShouldAlmostEqual, math.Pi)
	test.That(t, WrapAngle(-math.Pi), test.ShouldAlmostEqual, math.Pi)
	test.That(t, WrapAngle(3*math.Pi/2), test.ShouldAlmostEqual, -math.Pi/2)
	test.That(t, WrapAngle(-5*math.Pi/2), test.ShouldAlmostEqual, -math.Pi/2)
	test.That(t, AngleDiff(3.1, -3.1), test.ShouldAlmostEqual, 6.2-2*math.Pi)
}

func TestClampAndDomain(t *testing.T) {
	test.That(t, Clamp(5, -1, 1), test.ShouldEqual, 1.)
	test.That(t, Clamp(-5, -1, 1), test.ShouldEqual, -1.)
	test.That(t, Clamp(0.5, -1, 1), test.ShouldEqual, 0.5)
	test.That(t, InDomain(1), test.ShouldBeTrue)
	test.That(t, InDomain(1.0000001), test.ShouldBeFalse)
	test.That(t, InDomain(math.NaN()), test.ShouldBeFalse)
}
