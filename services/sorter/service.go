package sorter

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/ur5lab/ur5motion/components/gripper"
	"github.com/ur5lab/ur5motion/logging"
	"github.com/ur5lab/ur5motion/referenceframe"
)

// ResultSuccess is the acknowledgement result of a completed transfer. Failed transfers report
// "fail - " followed by the reason.
const ResultSuccess = "success"

var errClosed = errors.New("sorter is closed")

// Detection is a block reported by the vision system, positioned in the world frame.
type Detection struct {
	BlockID  int       `json:"block_id" yaml:"block_id"`
	Class    int       `json:"class" yaml:"class"`
	Position r3.Vector `json:"position" yaml:"position"`
	// Trace logs every step of this block's transfer, down to the controller, at any log level.
	Trace bool `json:"trace,omitempty" yaml:"trace,omitempty"`
}

// traceContext enables debug logging on ctx for a traced detection.
func (det Detection) traceContext(ctx context.Context) context.Context {
	if !det.Trace {
		return ctx
	}
	return logging.EnableDebugMode(ctx, fmt.Sprintf("block-%d", det.BlockID))
}

// Acknowledgement reports the outcome of one transfer.
type Acknowledgement struct {
	BlockID int    `json:"block_id"`
	Result  string `json:"result"`
}

// Succeeded reports whether the transfer completed.
func (ack Acknowledgement) Succeeded() bool {
	return ack.Result == ResultSuccess
}

// Config is used for constructing a Service.
type Config struct {
	Workspace Workspace  `json:"workspace" yaml:"workspace"`
	Zones     ZoneConfig `json:"zones" yaml:"zones"`
	Routine   Routine    `json:"routine" yaml:"routine"`
	// QueueSize bounds the number of accepted detections waiting for the arm.
	QueueSize int `json:"queue_size" yaml:"queue_size"`
}

// DefaultConfig sorts onto the default table with the given gripper.
func DefaultConfig(g gripper.Config) Config {
	return Config{
		Workspace: DefaultWorkspace(),
		Zones:     DefaultZoneConfig(),
		Routine:   DefaultRoutine(g),
		QueueSize: 16,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	var err error
	err = multierr.Append(err, cfg.Workspace.Validate(path+".workspace"))
	err = multierr.Append(err, cfg.Zones.Validate(path+".zones"))
	if cfg.QueueSize < 0 {
		err = multierr.Append(err, errors.Errorf("%s.queue_size: cannot be negative", path))
	}
	return err
}

type job struct {
	Detection
	target r3.Vector
}

// Service moves detected blocks to their zones one at a time on a single worker.
type Service struct {
	arm       Manipulator
	frame     *referenceframe.BaseFrame
	workspace Workspace
	zones     *ZoneTable
	routine   Routine

	jobs chan job
	acks chan Acknowledgement

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	closeOnce               sync.Once

	logger logging.Logger
}

// NewService validates cfg and starts the worker.
func NewService(arm Manipulator, frame *referenceframe.BaseFrame, cfg Config, logger logging.Logger) (*Service, error) {
	if err := cfg.Validate("sorter"); err != nil {
		return nil, err
	}
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	s := &Service{
		arm:        arm,
		frame:      frame,
		workspace:  cfg.Workspace,
		zones:      NewZoneTable(cfg.Zones),
		routine:    cfg.Routine,
		jobs:       make(chan job, cfg.QueueSize),
		acks:       make(chan Acknowledgement, cfg.QueueSize+1),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		logger:     logger,
	}
	s.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(s.work, s.activeBackgroundWorkers.Done)
	return s, nil
}

// Acknowledgements delivers one acknowledgement per accepted detection, in submission order.
func (s *Service) Acknowledgements() <-chan Acknowledgement {
	return s.acks
}

// Zones returns the placement table.
func (s *Service) Zones() *ZoneTable {
	return s.zones
}

// Submit queues a transfer for det. Blocks off the table are rejected with ErrOutsideWorkspace
// and do not take a zone slot. Submit blocks while the queue is full.
func (s *Service) Submit(ctx context.Context, det Detection) error {
	if s.cancelCtx.Err() != nil {
		return errClosed
	}
	ctx = det.traceContext(ctx)
	if !s.workspace.Contains(det.Position) {
		s.logger.CDebugw(ctx, "ignoring block outside the workspace", "block", det.BlockID, "position", det.Position)
		return errors.Wrapf(ErrOutsideWorkspace, "block %d at %v", det.BlockID, det.Position)
	}
	target, err := s.zones.Next(det.Class)
	if err != nil {
		return err
	}
	s.logger.CInfow(ctx, "queueing block", "block", det.BlockID, "class", det.Class, "from", det.Position, "to", target)
	select {
	case s.jobs <- job{det, target}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.cancelCtx.Done():
		return errClosed
	}
}

func (s *Service) work() {
	for {
		select {
		case <-s.cancelCtx.Done():
			return
		case j := <-s.jobs:
			ctx := j.traceContext(s.cancelCtx)
			ack := Acknowledgement{BlockID: j.BlockID, Result: ResultSuccess}
			if err := PickAndPlace(ctx, s.arm, s.frame, j.Position, j.target, s.routine); err != nil {
				s.logger.CWarnw(ctx, "transfer failed", "block", j.BlockID, "error", err)
				ack.Result = fmt.Sprintf("fail - %v", err)
			} else {
				s.logger.CInfow(ctx, "block placed", "block", j.BlockID, "zone", j.target)
			}
			select {
			case s.acks <- ack:
			case <-s.cancelCtx.Done():
				return
			}
		}
	}
}

// Close stops the worker, cancelling any transfer in progress.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.cancelFunc()
		s.activeBackgroundWorkers.Wait()
	})
}
