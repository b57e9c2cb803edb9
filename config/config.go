// Package config defines the file format of the motion engine: controller tuning, arm and
// gripper setup, the table workspace and the placement zones.
package config

import (
	"go.uber.org/multierr"

	"github.com/ur5lab/ur5motion/components/arm"
	"github.com/ur5lab/ur5motion/components/gripper"
	"github.com/ur5lab/ur5motion/control"
	"github.com/ur5lab/ur5motion/logging"
	"github.com/ur5lab/ur5motion/referenceframe"
	"github.com/ur5lab/ur5motion/services/sorter"
)

// Config is the whole engine configuration. Sections left out of a file keep their defaults.
type Config struct {
	Control   control.Config             `json:"control" yaml:"control"`
	Arm       arm.Config                 `json:"arm" yaml:"arm"`
	Gripper   gripper.Config             `json:"gripper" yaml:"gripper"`
	Workspace sorter.Workspace           `json:"workspace" yaml:"workspace"`
	BaseFrame referenceframe.FrameConfig `json:"base_frame" yaml:"base_frame"`
	Zones     sorter.ZoneConfig          `json:"zones" yaml:"zones"`
	Routine   sorter.Routine             `json:"routine" yaml:"routine"`
	QueueSize int                        `json:"queue_size" yaml:"queue_size"`
	LogLevel  string                     `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// ConfigFilePath is the file the config was read from, if any.
	ConfigFilePath string `json:"-" yaml:"-"`
}

// Default returns the simulated UR5 setup.
func Default() *Config {
	armCfg := arm.DefaultConfig()
	sorterCfg := sorter.DefaultConfig(armCfg.Gripper)
	return &Config{
		Control:   armCfg.Control,
		Arm:       armCfg,
		Gripper:   armCfg.Gripper,
		Workspace: sorterCfg.Workspace,
		BaseFrame: referenceframe.DefaultFrameConfig(),
		Zones:     sorterCfg.Zones,
		Routine:   sorterCfg.Routine,
		QueueSize: sorterCfg.QueueSize,
	}
}

// Validate returns every problem in the config combined into one error.
func (c *Config) Validate() error {
	var err error
	err = multierr.Append(err, c.ArmConfig().Validate("arm"))
	err = multierr.Append(err, c.BaseFrame.Validate("base_frame"))
	err = multierr.Append(err, c.SorterConfig().Validate("sorter"))
	if c.LogLevel != "" {
		_, levelErr := logging.LevelFromString(c.LogLevel)
		err = multierr.Append(err, levelErr)
	}
	return err
}

// Level returns the configured log level, INFO when unset.
func (c *Config) Level() logging.Level {
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

// ArmConfig assembles the arm section with the controller and gripper sections.
func (c *Config) ArmConfig() arm.Config {
	cfg := c.Arm
	cfg.Control = c.Control
	cfg.Gripper = c.Gripper
	return cfg
}

// SorterConfig assembles the sorter with the grasp and release diameters of the gripper.
func (c *Config) SorterConfig() sorter.Config {
	routine := c.Routine
	routine.GraspDiameter = c.Gripper.GraspDiameter
	routine.ReleaseDiameter = c.Gripper.ReleaseDiameter
	return sorter.Config{
		Workspace: c.Workspace,
		Zones:     c.Zones,
		Routine:   routine,
		QueueSize: c.QueueSize,
	}
}

// Frame returns the arm base frame.
func (c *Config) Frame() *referenceframe.BaseFrame {
	return referenceframe.NewBaseFrame(c.BaseFrame)
}
