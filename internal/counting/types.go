package counting

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors returned by the engine.
var (
	ErrInvalidDetection = errors.New("invalid detection")
	ErrOutOfOrderFrame  = errors.New("detection frame is older than the last processed frame")
	ErrSessionCancelled = errors.New("session cancelled")
	ErrAlreadyCounted   = errors.New("track already counted")
	ErrUnresolvedLane   = errors.New("lane could not be resolved")
	ErrUnknownClass     = errors.New("vehicle class could not be resolved")
)

// Lane identifies which of the two monitored lanes a track belongs to.
type Lane string

const (
	LaneUnknown Lane = ""
	LaneLeft    Lane = "left"
	LaneRight   Lane = "right"
)

// Lanes lists the countable lanes in reporting order.
var Lanes = []Lane{LaneLeft, LaneRight}

// CrossingDirection is the direction a track moved through the counting
// line. It is deliberately a separate type from Lane.
type CrossingDirection string

const (
	DirectionNone CrossingDirection = ""
	// DirectionDown is travel towards increasing y (reported on the right lane).
	DirectionDown CrossingDirection = "down"
	// DirectionUp is travel towards decreasing y (reported on the left lane).
	DirectionUp CrossingDirection = "up"
)

// Lane returns the lane conventionally associated with the direction.
func (d CrossingDirection) Lane() Lane {
	switch d {
	case DirectionDown:
		return LaneRight
	case DirectionUp:
		return LaneLeft
	default:
		return LaneUnknown
	}
}

// CrossingMethod records which detection method confirmed a crossing.
type CrossingMethod string

const (
	MethodNone        CrossingMethod = ""
	MethodDirect      CrossingMethod = "direct"
	MethodLifetime    CrossingMethod = "lifetime_catch_up"
	MethodCatchUpZone CrossingMethod = "catch_up_zone"
)

// VehicleClass is the semantic label of a detection.
type VehicleClass string

const (
	ClassUnknown VehicleClass = ""
	// ClassCar is the compact vehicle class.
	ClassCar VehicleClass = "car"
	// ClassBus is the large vehicle class.
	ClassBus VehicleClass = "bus"
	// ClassTruck is the freight vehicle class.
	ClassTruck VehicleClass = "truck"
)

// DefaultClassMap maps detector class IDs to labels.
func DefaultClassMap() map[int]VehicleClass {
	return map[int]VehicleClass{
		0: ClassCar,
		1: ClassBus,
		2: ClassTruck,
	}
}

// BBox is an axis-aligned box [x1, y1, x2, y2] in original video pixels.
type BBox [4]float64

func (b BBox) Width() float64  { return b[2] - b[0] }
func (b BBox) Height() float64 { return b[3] - b[1] }

// Center returns the box centroid.
func (b BBox) Center() (x, y float64) {
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// HasSize reports whether both dimensions are positive.
func (b BBox) HasSize() bool {
	return b.Width() > 0 && b.Height() > 0
}

// DetectionEvent is one tracked detection delivered by the upstream tracker.
type DetectionEvent struct {
	FrameIndex int64   `json:"frame_index"`
	TrackID    int64   `json:"track_id"`
	BBox       BBox    `json:"bbox"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
}

// Validate rejects records that cannot be placed in a track history.
// Boxes with non-positive size are accepted; they only disable size checks.
func (e DetectionEvent) Validate() error {
	if e.FrameIndex < 0 {
		return fmt.Errorf("%w: negative frame index %d", ErrInvalidDetection, e.FrameIndex)
	}
	for i, v := range e.BBox {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: bbox[%d] is not finite", ErrInvalidDetection, i)
		}
	}
	if math.IsNaN(e.Confidence) || e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0, 1]", ErrInvalidDetection, e.Confidence)
	}
	return nil
}
