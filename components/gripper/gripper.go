// Package gripper models the finger joints of the end effector. The arm appends the gripper
// joint values to every joint command it publishes.
package gripper

import (
	"math"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/ur5lab/ur5motion/logging"
)

// Kind selects the gripper hardware.
type Kind string

// The supported grippers.
const (
	// Hard is the three finger gripper driven by one diameter.
	Hard Kind = "hard"
	// Soft is the two joint soft gripper.
	Soft Kind = "soft"
)

// NumJoints returns how many joint values the gripper contributes to a command.
func (k Kind) NumJoints() int {
	if k == Soft {
		return 2
	}
	return 3
}

// Config describes the gripper and the diameters used by pick and place, in millimetres.
type Config struct {
	Kind            Kind    `json:"kind" yaml:"kind"`
	InitialDiameter float64 `json:"initial_diameter" yaml:"initial_diameter"`
	GraspDiameter   float64 `json:"grasp_diameter" yaml:"grasp_diameter"`
	ReleaseDiameter float64 `json:"release_diameter" yaml:"release_diameter"`
	MinDiameter     float64 `json:"min_diameter" yaml:"min_diameter"`
	MaxDiameter     float64 `json:"max_diameter" yaml:"max_diameter"`
	// SettleSeconds is how long to wait after actuating before moving again.
	SettleSeconds float64 `json:"settle_seconds" yaml:"settle_seconds"`
}

// DefaultConfig is the simulated hard gripper.
func DefaultConfig() Config {
	return Config{
		Kind:            Hard,
		InitialDiameter: 130,
		GraspDiameter:   40,
		ReleaseDiameter: 100,
		MinDiameter:     22,
		MaxDiameter:     130,
		SettleSeconds:   2,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	switch cfg.Kind {
	case Hard, Soft:
	default:
		return errors.Errorf("%s: unknown gripper kind %q", path, cfg.Kind)
	}
	if cfg.MaxDiameter <= cfg.MinDiameter {
		return errors.Errorf("%s: max_diameter must exceed min_diameter", path)
	}
	names := []string{"initial_diameter", "grasp_diameter", "release_diameter"}
	for i, d := range []float64{cfg.InitialDiameter, cfg.GraspDiameter, cfg.ReleaseDiameter} {
		if d < cfg.MinDiameter || d > cfg.MaxDiameter {
			return errors.Errorf("%s: %s %v outside [%v, %v]", path, names[i], d, cfg.MinDiameter, cfg.MaxDiameter)
		}
	}
	if cfg.SettleSeconds < 0 {
		return errors.Errorf("%s: settle_seconds cannot be negative", path)
	}
	return nil
}

// MapDiameter converts an opening diameter to the finger joint angle: fully open (max) is 0 and
// fully closed (min) is π.
func MapDiameter(diameter, minDiameter, maxDiameter float64) float64 {
	return (diameter-minDiameter)/(maxDiameter-minDiameter)*(-math.Pi) + math.Pi
}

// Gripper holds the current finger joint values.
type Gripper struct {
	mu       sync.Mutex
	cfg      Config
	diameter float64
	joints   []float64
	logger   logging.Logger
}

// New returns a gripper opened to the initial diameter.
func New(cfg Config, logger logging.Logger) (*Gripper, error) {
	if err := cfg.Validate("gripper"); err != nil {
		return nil, err
	}
	g := &Gripper{cfg: cfg, logger: logger}
	if err := g.SetDiameter(cfg.InitialDiameter); err != nil {
		return nil, err
	}
	return g, nil
}

// Config returns the gripper configuration.
func (g *Gripper) Config() Config {
	return g.cfg
}

// SetDiameter opens or closes the fingers to diameter millimetres. Every finger joint gets the
// same angle.
func (g *Gripper) SetDiameter(diameter float64) error {
	if diameter < g.cfg.MinDiameter || diameter > g.cfg.MaxDiameter {
		return errors.Errorf("diameter %v outside [%v, %v]", diameter, g.cfg.MinDiameter, g.cfg.MaxDiameter)
	}
	alpha := MapDiameter(diameter, g.cfg.MinDiameter, g.cfg.MaxDiameter)
	joints := make([]float64, g.cfg.Kind.NumJoints())
	for i := range joints {
		joints[i] = alpha
	}

	g.mu.Lock()
	g.diameter = diameter
	g.joints = joints
	g.mu.Unlock()
	g.logger.Debugw("gripper set", "diameter", diameter, "joints", joints)
	return nil
}

// SetJoints sets the finger joints directly. Only the soft gripper supports this.
func (g *Gripper) SetJoints(values ...float64) error {
	if g.cfg.Kind != Soft {
		return errors.Errorf("%s gripper is driven by diameter", g.cfg.Kind)
	}
	if len(values) != g.cfg.Kind.NumJoints() {
		return errors.Errorf("soft gripper takes %d joint values, got %d", g.cfg.Kind.NumJoints(), len(values))
	}

	g.mu.Lock()
	g.joints = slices.Clone(values)
	g.diameter = math.NaN()
	g.mu.Unlock()
	return nil
}

// Joints returns a copy of the finger joint values.
func (g *Gripper) Joints() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.joints)
}

// Diameter returns the last commanded diameter, NaN after SetJoints.
func (g *Gripper) Diameter() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.diameter
}
