// Package main is the ur5motion command line: kinematics queries and simulated motions that
// write the joint command stream as JSON lines.
package main

import (
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/ur5lab/ur5motion/config"
	"github.com/ur5lab/ur5motion/logging"
)

const (
	// Flags.
	flagConfig    = "config"
	flagDebug     = "debug"
	flagLogFile   = "log-file"
	flagJoints    = "joints"
	flagPosition  = "position"
	flagRPY       = "rpy"
	flagWorld     = "world"
	flagApproach  = "approach"
	flagOut       = "out"
	flagPaced     = "paced"
	flagHistogram = "histogram"
	flagBlock     = "block"
	flagClass     = "class"
	flagBlockID   = "id"
	flagBatch     = "detections"
	flagTrace     = "trace"
)

// runner carries what the Before hook sets up to the actions.
type runner struct {
	cfg     *config.Config
	logger  logging.Logger
	closers []io.Closer
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	r := &runner{}
	targetFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.Float64SliceFlag{
				Name:     flagPosition,
				Aliases:  []string{"p"},
				Usage:    "end effector target `X,Y,Z` in metres",
				Required: true,
			},
			&cli.Float64SliceFlag{
				Name:  flagRPY,
				Usage: "target orientation as `ROLL,PITCH,YAW` in degrees; defaults to the current orientation",
			},
			&cli.BoolFlag{
				Name:  flagWorld,
				Usage: "position is in the world frame instead of the arm base frame",
			},
			&cli.BoolFlag{
				Name:  flagApproach,
				Usage: "move at the approach velocity",
			},
		}
	}

	return &cli.App{
		Name:  "ur5motion",
		Usage: "UR5 kinematics and differential motion",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE` (.json, .yaml)",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated by size",
			},
		},
		Before: r.before,
		After:  r.after,
		Commands: []*cli.Command{
			{
				Name:  "fk",
				Usage: "print the end effector pose of a joint configuration",
				Flags: []cli.Flag{
					&cli.Float64SliceFlag{
						Name:  flagJoints,
						Usage: "six joint angles in radians; defaults to the homing configuration",
					},
				},
				Action: r.fkAction,
			},
			{
				Name:   "ik",
				Usage:  "list the closed-form inverse kinematics solutions of a pose",
				Flags:  targetFlags(),
				Action: r.ikAction,
			},
			{
				Name:  "move",
				Usage: "simulate a straight line motion from the homing configuration",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  flagOut,
						Value: "-",
						Usage: "write joint commands to `FILE`, - for stdout",
					},
					&cli.BoolFlag{
						Name:  flagPaced,
						Usage: "emit commands at the controller rate instead of as fast as possible",
					},
					&cli.BoolFlag{
						Name:  flagHistogram,
						Usage: "print a histogram of the tracking error",
					},
					&cli.BoolFlag{
						Name:  flagTrace,
						Usage: "log every controller step of this motion regardless of the log level",
					},
				}, targetFlags()...),
				Action: r.moveAction,
			},
			{
				Name:  "sort",
				Usage: "simulate moving detected blocks to their zones",
				Flags: []cli.Flag{
					&cli.Float64SliceFlag{
						Name:  flagBlock,
						Usage: "world position `X,Y,Z` of a single block",
					},
					&cli.IntFlag{
						Name:  flagClass,
						Value: 1,
						Usage: "class of the block",
					},
					&cli.IntFlag{
						Name:  flagBlockID,
						Usage: "id of the block",
					},
					&cli.StringFlag{
						Name:  flagBatch,
						Usage: "read a list of detections from `FILE` (.json, .yaml)",
					},
					&cli.BoolFlag{
						Name:  flagTrace,
						Usage: "trace every block, as if each detection set trace",
					},
					&cli.StringFlag{
						Name:  flagOut,
						Usage: "write joint commands to `FILE`, - for stdout",
					},
				},
				Action: r.sortAction,
			},
			{
				Name:  "plot",
				Usage: "render the joint angles of a simulated motion to a PNG",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     flagOut,
						Usage:    "PNG `FILE` to write",
						Required: true,
					},
				}, targetFlags()...),
				Action: r.plotAction,
			},
		},
	}
}

func (r *runner) before(c *cli.Context) error {
	r.cfg = config.Default()
	if path := c.String(flagConfig); path != "" {
		cfg, err := config.Read(path, logging.NewBlankLogger("config"))
		if err != nil {
			return err
		}
		r.cfg = cfg
	}

	if c.Bool(flagDebug) {
		r.logger = logging.NewDebugLogger("ur5motion")
	} else {
		r.logger = logging.NewLogger("ur5motion")
		r.logger.SetLevel(r.cfg.Level())
	}
	if path := c.String(flagLogFile); path != "" {
		appender, closer := logging.NewFileAppender(path)
		r.logger.AddAppender(appender)
		r.closers = append(r.closers, closer)
	}
	return nil
}

func (r *runner) after(c *cli.Context) error {
	var err error
	if r.logger != nil {
		// stdout cannot always be synced
		_ = r.logger.Sync()
	}
	for _, closer := range r.closers {
		err = multierr.Append(err, closer.Close())
	}
	return errors.Wrap(err, "closing log file")
}
