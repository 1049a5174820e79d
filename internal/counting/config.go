package counting

import (
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/lanecount/internal/config"
)

// Config holds the per-session parameters of the engine.
type Config struct {
	LinePosition float64              // y pixel of the counting line (original resolution)
	ClassMap     map[int]VehicleClass // detector class id -> label

	MinDetectionFrames int     // observations required before a track may be counted
	MinTrackDistance   float64 // net y movement (px) that establishes a travel direction
	CatchUpZone        float64 // band (px) past the line in which catch-up may confirm
	MaxTrackingFrames  int     // capacity of each per-track history
	MaxFramesSinceLine int64   // frames after last being near the line that catch-up stays armed; 0 disables the gate

	MaxTrackAge      int64 // frames without a sighting before a track is evicted
	EvictionInterval int64 // frames between eviction sweeps
}

// DefaultConfig returns production defaults for a line at linePosition.
func DefaultConfig(linePosition float64) Config {
	return Config{
		LinePosition:       linePosition,
		ClassMap:           DefaultClassMap(),
		MinDetectionFrames: 2,
		MinTrackDistance:   30,
		CatchUpZone:        100,
		MaxTrackingFrames:  60,
		MaxFramesSinceLine: 15,
		MaxTrackAge:        90,
		EvictionInterval:   30,
	}
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	classMap := make(map[int]VehicleClass)
	for id, label := range cfg.GetClassMap() {
		classMap[id] = VehicleClass(label)
	}
	return Config{
		LinePosition:       cfg.GetLinePosition(),
		ClassMap:           classMap,
		MinDetectionFrames: cfg.GetMinDetectionFrames(),
		MinTrackDistance:   cfg.GetMinTrackDistance(),
		CatchUpZone:        cfg.GetCatchUpZone(),
		MaxTrackingFrames:  cfg.GetMaxTrackingFrames(),
		MaxFramesSinceLine: int64(cfg.GetMaxFramesSinceLine()),
		MaxTrackAge:        int64(cfg.GetMaxTrackAge()),
		EvictionInterval:   int64(cfg.GetEvictionInterval()),
	}
}

// Validate checks that the configuration can drive a session.
func (c Config) Validate() error {
	var errs []error
	if c.LinePosition <= 0 {
		errs = append(errs, fmt.Errorf("line position must be positive, got %v", c.LinePosition))
	}
	if len(c.ClassMap) == 0 {
		errs = append(errs, errors.New("class map is empty"))
	}
	for id, class := range c.ClassMap {
		switch class {
		case ClassUnknown:
			errs = append(errs, fmt.Errorf("class id %d maps to an empty label", id))
		case laneTotalKey:
			errs = append(errs, fmt.Errorf("class id %d uses the reserved label %q", id, class))
		}
	}
	if c.MinDetectionFrames < 1 {
		errs = append(errs, fmt.Errorf("min detection frames must be at least 1, got %d", c.MinDetectionFrames))
	}
	if c.MaxTrackingFrames < 2 {
		errs = append(errs, fmt.Errorf("max tracking frames must be at least 2, got %d", c.MaxTrackingFrames))
	}
	if c.MinTrackDistance < 0 || c.CatchUpZone < 0 || c.MaxFramesSinceLine < 0 {
		errs = append(errs, errors.New("distance and window thresholds must be non-negative"))
	}
	if c.MaxTrackAge < 1 || c.EvictionInterval < 1 {
		errs = append(errs, errors.New("max track age and eviction interval must be at least 1"))
	}
	return errors.Join(errs...)
}

// Classes returns the distinct labels of the class map in class-id order.
func (c Config) Classes() []VehicleClass {
	ids := make([]int, 0, len(c.ClassMap))
	for id := range c.ClassMap {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	seen := make(map[VehicleClass]bool, len(ids))
	out := make([]VehicleClass, 0, len(ids))
	for _, id := range ids {
		class := c.ClassMap[id]
		if seen[class] {
			continue
		}
		seen[class] = true
		out = append(out, class)
	}
	return out
}
