package counting

import (
	"gonum.org/v1/gonum/stat"
)

// minStableObservations is the number of sightings after which the vote
// winner replaces the per-frame class.
const minStableObservations = 3

// Geometric thresholds, in square pixels or width/height ratios.
const (
	busMinArea        = 6000.0
	busMinWidth       = 70.0
	busConfirmAspect  = 1.3
	busConfirmArea    = 8000.0
	busCompactArea    = 10000.0
	busCompactAspect  = 1.5
	carToBusArea      = 20000.0
	carToBusAspect    = 2.0
	truckToCarMaxArea = 5000.0
)

// ClassStabilizer turns noisy per-frame class ids into one class per track
// using confidence-weighted voting and box-size sanity checks.
type ClassStabilizer struct {
	classMap map[int]VehicleClass
}

// NewClassStabilizer returns a stabilizer resolving ids through classMap.
func NewClassStabilizer(classMap map[int]VehicleClass) *ClassStabilizer {
	return &ClassStabilizer{classMap: classMap}
}

// Resolve maps a detector class id to its label.
func (s *ClassStabilizer) Resolve(classID int) (VehicleClass, bool) {
	class, ok := s.classMap[classID]
	return class, ok && class != ClassUnknown
}

// CorrectBySize applies the box-geometry rules to a class label. Labels other
// than car, bus and truck are returned unchanged.
func (s *ClassStabilizer) CorrectBySize(class VehicleClass, width, height float64) VehicleClass {
	area := width * height
	aspect := width / max(height, 1)

	switch class {
	case ClassBus:
		if area < busMinArea || width < busMinWidth {
			return ClassCar
		}
		if aspect > busConfirmAspect && area > busConfirmArea {
			return ClassBus
		}
		if area < busCompactArea && aspect < busCompactAspect {
			return ClassCar
		}
		return ClassBus
	case ClassCar:
		if area > carToBusArea && aspect > carToBusAspect {
			return ClassBus
		}
		return ClassCar
	case ClassTruck:
		if area < truckToCarMaxArea {
			return ClassCar
		}
		return ClassTruck
	}
	return class
}

// Observe resolves and size-corrects the class of one detection and casts
// it as a vote on the track. Boxes without a positive size skip correction.
// Unknown class ids return ClassUnknown and do not vote.
func (s *ClassStabilizer) Observe(t *Track, ev DetectionEvent) VehicleClass {
	class, ok := s.Resolve(ev.ClassID)
	if !ok {
		tracef("track %d: class id %d not in class map", t.TrackID, ev.ClassID)
		return ClassUnknown
	}
	if ev.BBox.HasSize() {
		class = s.CorrectBySize(class, ev.BBox.Width(), ev.BBox.Height())
	}
	t.votes.add(class, ev.Confidence)
	return class
}

// Stabilize returns the track's class given the current frame's corrected
// class, and stores it as the track's StableClass when resolved.
//
// Before three observations the current class wins. From then on the class
// with the largest weighted vote mass is taken and corrected against the
// mean box size of the history.
func (s *ClassStabilizer) Stabilize(t *Track, current VehicleClass) VehicleClass {
	var class VehicleClass
	if t.FrameCount < minStableObservations {
		class = current
		if class == ClassUnknown {
			class, _ = t.votes.leader()
		}
	} else {
		leader, ok := t.votes.leader()
		if !ok {
			return ClassUnknown
		}
		class = leader
		widths, heights := t.validSizes()
		if len(widths) > 0 {
			class = s.CorrectBySize(class, stat.Mean(widths, nil), stat.Mean(heights, nil))
		}
	}
	if class != ClassUnknown {
		t.StableClass = class
	}
	return class
}
