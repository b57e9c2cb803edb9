package sorter

import (
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// NumClasses is the number of block classes the vision model reports.
const NumClasses = 10

// ZoneConfig places blocks of each class along +y from a per-class base point, in the world
// frame. Bases[i] is the zone of class i+1.
type ZoneConfig struct {
	Spacing float64     `json:"spacing" yaml:"spacing"`
	Bases   []r3.Vector `json:"bases" yaml:"bases"`
}

// DefaultZoneConfig puts classes 1 to 9 in one row at x=0.9 and class 10 at x=0.8.
func DefaultZoneConfig() ZoneConfig {
	bases := make([]r3.Vector, NumClasses)
	for i := range bases {
		bases[i] = r3.Vector{X: 0.9, Y: 0.5, Z: 0.9}
	}
	bases[NumClasses-1].X = 0.8
	return ZoneConfig{Spacing: 0.07, Bases: bases}
}

// Validate ensures all parts of the config are valid.
func (cfg ZoneConfig) Validate(path string) error {
	if cfg.Spacing < 0 {
		return errors.Errorf("%s.spacing: cannot be negative", path)
	}
	if len(cfg.Bases) == 0 {
		return errors.Errorf("%s.bases: at least one zone is required", path)
	}
	return nil
}

// ZoneTable hands out placement positions. Every request for a class moves that class's next
// position one spacing further along y; counts are never reset.
type ZoneTable struct {
	mu     sync.Mutex
	cfg    ZoneConfig
	counts []int
}

// NewZoneTable returns a table with no blocks placed.
func NewZoneTable(cfg ZoneConfig) *ZoneTable {
	return &ZoneTable{cfg: cfg, counts: make([]int, len(cfg.Bases))}
}

// Next returns where the next block of class should go and counts it as placed.
func (zt *ZoneTable) Next(class int) (r3.Vector, error) {
	if class < 1 || class > len(zt.cfg.Bases) {
		return r3.Vector{}, errors.Wrapf(ErrUnknownClass, "class %d", class)
	}
	zt.mu.Lock()
	defer zt.mu.Unlock()
	target := zt.cfg.Bases[class-1]
	target.Y += zt.cfg.Spacing * float64(zt.counts[class-1])
	zt.counts[class-1]++
	return target, nil
}

// Count returns how many blocks of class have been assigned a zone.
func (zt *ZoneTable) Count(class int) int {
	if class < 1 || class > len(zt.counts) {
		return 0
	}
	zt.mu.Lock()
	defer zt.mu.Unlock()
	return zt.counts[class-1]
}
