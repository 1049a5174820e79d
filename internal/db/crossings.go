package db

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/lanecount/internal/counting"
)

// RecordCrossing stores one counted vehicle. Recording the same track twice
// for a session is a no-op.
func (db *DB) RecordCrossing(ev counting.CrossingEvent) error {
	fromDirection := 0
	if ev.LaneFromDirection {
		fromDirection = 1
	}
	_, err := db.Exec(`
		INSERT OR IGNORE INTO crossings (
			session_id, track_id, lane, class, direction, method,
			frame_index, dwell_frames, mean_confidence, lane_from_direction,
			recorded_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.TrackID, string(ev.Lane), string(ev.Class), string(ev.Direction), string(ev.Method),
		ev.FrameIndex, ev.DwellFrames, ev.MeanConfidence, fromDirection,
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record crossing of track %d: %w", ev.TrackID, err)
	}
	tracef("session %s: recorded track %d (%s/%s)", ev.SessionID, ev.TrackID, ev.Lane, ev.Class)
	return nil
}

// Crossings returns the stored crossings of a session in frame order.
// Running totals are not stored and are left zero.
func (db *DB) Crossings(sessionID string) ([]counting.CrossingEvent, error) {
	rows, err := db.Query(`
		SELECT session_id, track_id, lane, class, direction, method,
		       frame_index, dwell_frames, mean_confidence, lane_from_direction
		FROM crossings
		WHERE session_id = ?
		ORDER BY frame_index, crossing_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query crossings: %w", err)
	}
	defer rows.Close()

	var out []counting.CrossingEvent
	for rows.Next() {
		var (
			ev                             counting.CrossingEvent
			lane, class, direction, method string
			fromDirection                  int
		)
		if err := rows.Scan(&ev.SessionID, &ev.TrackID, &lane, &class, &direction, &method,
			&ev.FrameIndex, &ev.DwellFrames, &ev.MeanConfidence, &fromDirection); err != nil {
			return nil, fmt.Errorf("failed to scan crossing: %w", err)
		}
		ev.Lane = counting.Lane(lane)
		ev.Class = counting.VehicleClass(class)
		ev.Direction = counting.CrossingDirection(direction)
		ev.Method = counting.CrossingMethod(method)
		ev.LaneFromDirection = fromDirection != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CrossingRecorder adapts RecordCrossing to a session crossing handler.
// Write failures are logged and the first one is kept for Err; counting
// carries on regardless.
type CrossingRecorder struct {
	db *DB

	mu    sync.Mutex
	err   error
	count int
}

// NewCrossingRecorder returns a recorder writing to db.
func (db *DB) NewCrossingRecorder() *CrossingRecorder {
	return &CrossingRecorder{db: db}
}

// Record stores ev. It matches the signature of counting.WithCrossingHandler.
func (r *CrossingRecorder) Record(ev counting.CrossingEvent) {
	err := r.db.RecordCrossing(ev)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		opsf("%v", err)
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.count++
}

// Err returns the first write failure, if any.
func (r *CrossingRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Count returns the number of crossings written.
func (r *CrossingRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
