// Package referenceframe translates points between the world (table) frame and the arm base
// frame. Detections and workspace bounds are expressed in the world; the controller works in
// the base frame.
package referenceframe

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/ur5lab/ur5motion/spatialmath"
)

// FrameConfig is the serialized pose of the arm base in the world. Angles are radians.
type FrameConfig struct {
	Translation r3.Vector `json:"translation" yaml:"translation"`
	Roll        float64   `json:"roll" yaml:"roll"`
	Pitch       float64   `json:"pitch" yaml:"pitch"`
	Yaw         float64   `json:"yaw" yaml:"yaw"`
}

// DefaultFrameConfig places the base above the table at (0.5, 0.35, 1.75), flipped about x so
// that the arm hangs downwards.
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		Translation: r3.Vector{X: 0.5, Y: 0.35, Z: 1.75},
		Roll:        math.Pi,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg FrameConfig) Validate(path string) error {
	for _, v := range []float64{cfg.Translation.X, cfg.Translation.Y, cfg.Translation.Z, cfg.Roll, cfg.Pitch, cfg.Yaw} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("%s: base frame values must be finite", path)
		}
	}
	return nil
}

// BaseFrame is the pose of the arm base in the world.
type BaseFrame struct {
	pose spatialmath.Pose
}

// NewBaseFrame builds the frame described by cfg.
func NewBaseFrame(cfg FrameConfig) *BaseFrame {
	return &BaseFrame{
		pose: spatialmath.NewPose(cfg.Translation, spatialmath.NewRotationMatrixFromRPY(cfg.Roll, cfg.Pitch, cfg.Yaw)),
	}
}

// Pose returns the base pose in the world.
func (bf *BaseFrame) Pose() spatialmath.Pose {
	return bf.pose
}

// WorldToBase expresses a world point in the base frame: Rᵀ·(p - t).
func (bf *BaseFrame) WorldToBase(p r3.Vector) r3.Vector {
	return bf.pose.Orientation.Transpose().MulVec(p.Sub(bf.pose.Point))
}

// BaseToWorld expresses a base frame point in the world: R·p + t.
func (bf *BaseFrame) BaseToWorld(p r3.Vector) r3.Vector {
	return bf.pose.TransformPoint(p)
}

// WorldToBaseOrientation expresses a world orientation in the base frame.
func (bf *BaseFrame) WorldToBaseOrientation(o spatialmath.RotationMatrix) spatialmath.RotationMatrix {
	return bf.pose.Orientation.Transpose().Mul(o)
}
