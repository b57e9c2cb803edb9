// Package sorter plans pick and place jobs for detected blocks: it checks that a block lies on
// the table, picks the placement zone for its class and runs the transfer routine on the arm.
package sorter

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

var (
	// ErrOutsideWorkspace is returned for blocks that are not on the table.
	ErrOutsideWorkspace = errors.New("block is outside the workspace")
	// ErrUnknownClass is returned for block classes without a placement zone.
	ErrUnknownClass = errors.New("unknown block class")
)

// Workspace is an open box in the world frame.
type Workspace struct {
	Min r3.Vector `json:"min" yaml:"min"`
	Max r3.Vector `json:"max" yaml:"max"`
}

// DefaultWorkspace is the table in front of the arm.
func DefaultWorkspace() Workspace {
	return Workspace{
		Min: r3.Vector{X: 0.05, Y: 0.05, Z: 0.86},
		Max: r3.Vector{X: 0.5, Y: 0.75, Z: 0.92},
	}
}

// Contains reports whether p lies strictly inside the box.
func (w Workspace) Contains(p r3.Vector) bool {
	return p.X > w.Min.X && p.X < w.Max.X &&
		p.Y > w.Min.Y && p.Y < w.Max.Y &&
		p.Z > w.Min.Z && p.Z < w.Max.Z
}

// Validate ensures the box is not empty.
func (w Workspace) Validate(path string) error {
	if w.Min.X >= w.Max.X || w.Min.Y >= w.Max.Y || w.Min.Z >= w.Max.Z {
		return errors.Errorf("%s: min %v must be below max %v on every axis", path, w.Min, w.Max)
	}
	return nil
}
