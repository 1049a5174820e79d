// Package counting owns the vehicle tracking-and-counting engine.
//
// Responsibilities: per-track history (TrackStore), class stabilisation
// from noisy per-frame labels (ClassStabilizer), lane inference from
// vertical travel (AssignLane), counting-line crossing detection with
// catch-up methods for tracking gaps (CrossingDetector), idempotent
// per-lane/per-class counters (Counters) and stale-track eviction.
// Key types: Session, Track, DetectionEvent, Summary.
//
// A Session is owned by exactly one goroutine. Detections must be applied
// in non-decreasing frame order. No SQL or transport code belongs here.
package counting
