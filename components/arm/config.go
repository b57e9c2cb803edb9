package arm

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ur5lab/ur5motion/components/gripper"
	"github.com/ur5lab/ur5motion/control"
	"github.com/ur5lab/ur5motion/kinematics"
)

// Homing is the configuration the arm starts from.
var Homing = kinematics.JointConfiguration{-2.7907, -0.78, -2.56, -1.63, -1.57, 3.49}

// Config is used for constructing an Arm.
type Config struct {
	Homing  kinematics.JointConfiguration `json:"homing" yaml:"homing"`
	DH      *kinematics.DHParameters      `json:"dh,omitempty" yaml:"dh,omitempty"`
	Control control.Config                `json:"-" yaml:"-"`
	Gripper gripper.Config                `json:"-" yaml:"-"`
}

// DefaultConfig is a UR5 at the homing configuration with the hard gripper.
func DefaultConfig() Config {
	return Config{
		Homing:  Homing,
		Control: control.DefaultConfig(),
		Gripper: gripper.DefaultConfig(),
	}
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	var err error
	if cfg.Homing.HasNaN() {
		err = multierr.Append(err, errors.Errorf("%s.homing: joint angles must be numbers", path))
	}
	if cfg.DH != nil {
		err = multierr.Append(err, cfg.DH.Validate(path+".dh"))
	}
	err = multierr.Append(err, cfg.Control.Validate(path+".control"))
	return multierr.Append(err, cfg.Gripper.Validate(path+".gripper"))
}

// Model returns the kinematic model described by the DH override, or the UR5.
func (cfg Config) Model() *kinematics.Model {
	if cfg.DH == nil {
		return kinematics.DefaultModel
	}
	return kinematics.NewModel(*cfg.DH)
}
