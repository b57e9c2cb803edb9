// Package control implements the resolved-rate differential controller that tracks straight
// Cartesian segments with the arm's end effector.
package control

import (
	"iter"
	"math"

	"github.com/golang/geo/r3"
)

// tickEpsilon absorbs floating point error when dividing a duration into ticks.
const tickEpsilon = 1e-9

// ReferencePosition linearly interpolates from start (t = 0) to target (t = duration). A
// non-positive duration yields the target.
func ReferencePosition(t float64, target, start r3.Vector, duration float64) r3.Vector {
	if duration <= 0 {
		return target
	}
	s := t / duration
	return target.Mul(s).Add(start.Mul(1 - s))
}

// LinearTrajectory is a straight line traversed at constant speed.
type LinearTrajectory struct {
	Start    r3.Vector
	Target   r3.Vector
	Duration float64
}

// NewLinearTrajectory returns the trajectory covering start to target at velocity.
func NewLinearTrajectory(start, target r3.Vector, velocity float64) LinearTrajectory {
	duration := 0.
	if velocity > 0 {
		duration = target.Sub(start).Norm() / velocity
	}
	return LinearTrajectory{Start: start, Target: target, Duration: duration}
}

// At returns the reference position at time t.
func (lt LinearTrajectory) At(t float64) r3.Vector {
	return ReferencePosition(t, lt.Target, lt.Start, lt.Duration)
}

// Velocity is the backward finite difference of the reference at t.
func (lt LinearTrajectory) Velocity(t, dt float64) r3.Vector {
	return lt.At(t).Sub(lt.At(t - dt)).Mul(1 / dt)
}

// TickCount is the number of control ticks, ⌊duration/dt⌋.
func (lt LinearTrajectory) TickCount(dt float64) int {
	if dt <= 0 || lt.Duration <= 0 {
		return 0
	}
	return int(math.Floor(lt.Duration/dt + tickEpsilon))
}

// Ticks yields (t, reference position) for t = dt, 2·dt, ... up to the duration. The sequence
// is finite and can be ranged over any number of times.
func (lt LinearTrajectory) Ticks(dt float64) iter.Seq2[float64, r3.Vector] {
	n := lt.TickCount(dt)
	return func(yield func(float64, r3.Vector) bool) {
		for k := 1; k <= n; k++ {
			t := float64(k) * dt
			if !yield(t, lt.At(t)) {
				return
			}
		}
	}
}
