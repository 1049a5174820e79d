package counting

import (
	"fmt"

	"github.com/google/uuid"
)

// RunningTotals is a lightweight snapshot of the counts.
type RunningTotals struct {
	Total  int          `json:"total"`
	ByLane map[Lane]int `json:"by_lane"`
}

// CrossingEvent is emitted once per counted vehicle.
type CrossingEvent struct {
	SessionID         string            `json:"session_id"`
	TrackID           int64             `json:"track_id"`
	Lane              Lane              `json:"lane"`
	Class             VehicleClass      `json:"class"`
	Direction         CrossingDirection `json:"direction"`
	Method            CrossingMethod    `json:"method"`
	FrameIndex        int64             `json:"frame_index"`
	DwellFrames       int64             `json:"dwell_frames"`
	MeanConfidence    float64           `json:"mean_confidence"`
	LaneFromDirection bool              `json:"lane_from_direction,omitempty"`
	Totals            RunningTotals     `json:"running_totals"`
}

// Stats are per-session processing counters, separate from the vehicle
// counts.
type Stats struct {
	Processed     int64 `json:"processed"`
	Rejected      int64 `json:"rejected"`
	OutOfOrder    int64 `json:"out_of_order"`
	Deferred      int64 `json:"deferred"`
	TracksCreated int64 `json:"tracks_created"`
	TracksEvicted int64 `json:"tracks_evicted"`
	LiveTracks    int   `json:"live_tracks"`
	LastFrame     int64 `json:"last_frame"`
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics records session activity on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithCrossingHandler calls fn synchronously for every counted vehicle.
func WithCrossingHandler(fn func(CrossingEvent)) Option {
	return func(s *Session) { s.onCrossing = fn }
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session is the counting engine for one video stream. It is single-writer:
// Process must be called from one goroutine, in non-decreasing frame order.
type Session struct {
	id  string
	cfg Config

	store      *TrackStore
	stabilizer *ClassStabilizer
	detector   *CrossingDetector
	counters   *Counters

	metrics    *Metrics
	onCrossing func(CrossingEvent)

	lastFrame int64
	lastSweep int64
	cancelled bool
	stats     Stats
}

// NewSession validates cfg and returns a session with empty state.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	s := &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		store:      NewTrackStore(cfg),
		stabilizer: NewClassStabilizer(cfg.ClassMap),
		detector:   NewCrossingDetector(cfg),
		counters:   NewCounters(cfg.Classes()),
		lastFrame:  -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.stats.LastFrame = -1
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the session configuration.
func (s *Session) Config() Config { return s.cfg }

// Classes returns the countable classes in class-id order.
func (s *Session) Classes() []VehicleClass { return s.cfg.Classes() }

// Process applies one detection. It returns the crossing event when the
// detection caused a vehicle to be counted, and nil otherwise.
//
// Invalid and out-of-order detections are quarantined: they are counted in
// Stats, logged, and returned as errors wrapping ErrInvalidDetection or
// ErrOutOfOrderFrame. They leave the engine state untouched.
func (s *Session) Process(ev DetectionEvent) (*CrossingEvent, error) {
	if s.cancelled {
		return nil, ErrSessionCancelled
	}
	if err := ev.Validate(); err != nil {
		s.reject(ev, err)
		return nil, err
	}
	if ev.FrameIndex < s.lastFrame {
		s.stats.OutOfOrder++
		err := fmt.Errorf("%w: frame %d after frame %d", ErrOutOfOrderFrame, ev.FrameIndex, s.lastFrame)
		s.reject(ev, err)
		return nil, err
	}
	s.lastFrame = ev.FrameIndex
	s.stats.LastFrame = ev.FrameIndex
	s.stats.Processed++
	s.metrics.recordDetection()

	existed := s.store.Get(ev.TrackID) != nil
	t := s.store.Update(ev)
	if !existed {
		s.stats.TracksCreated++
		s.metrics.recordTrackCreated()
		if s.counters.IsCounted(ev.TrackID) {
			// Reappearance of an evicted, already counted ID.
			t.Counted = true
		}
	}

	current := s.stabilizer.Observe(t, ev)
	class := s.stabilizer.Stabilize(t, current)
	t.Lane = AssignLane(t.YHistory(), t.FirstY, t.MinY, t.MaxY)

	tracef("frame %d track %d: y=%.1f class=%s lane=%s", ev.FrameIndex, t.TrackID, t.CurrentY(), class, t.Lane)

	var crossing *CrossingEvent
	res := s.detector.Evaluate(t, s.cfg.LinePosition, t.CurrentY(), ev.FrameIndex)
	if res.Crossed {
		var err error
		crossing, err = s.register(t, class, res, ev.FrameIndex)
		if err != nil {
			return nil, err
		}
	}

	s.maybeSweep(ev.FrameIndex)
	return crossing, nil
}

func (s *Session) register(t *Track, class VehicleClass, res CrossingResult, frame int64) (*CrossingEvent, error) {
	if class == ClassUnknown {
		// Re-arm the lifetime method so the track can still be counted
		// once its class resolves.
		if res.Method == MethodLifetime {
			t.CrossingConfirmed = false
		}
		s.stats.Deferred++
		s.metrics.recordDeferred()
		diagf("frame %d track %d: %s crossing deferred, no resolvable class", frame, t.TrackID, res.Method)
		return nil, nil
	}

	delta, err := s.counters.RegisterCrossing(t, class, res.Direction, frame)
	if err != nil {
		return nil, fmt.Errorf("register crossing: %w", err)
	}

	ev := CrossingEvent{
		SessionID:         s.id,
		TrackID:           t.TrackID,
		Lane:              delta.Lane,
		Class:             delta.Class,
		Direction:         delta.Direction,
		Method:            res.Method,
		FrameIndex:        frame,
		DwellFrames:       t.LastSeenFrame - t.FirstSeenFrame,
		MeanConfidence:    t.MeanConfidence(),
		LaneFromDirection: delta.LaneFromDirection,
		Totals:            s.runningTotals(),
	}
	diagf("frame %d track %d counted: lane=%s class=%s method=%s total=%d",
		frame, t.TrackID, ev.Lane, ev.Class, ev.Method, ev.Totals.Total)
	s.metrics.recordCrossing(ev)
	if s.onCrossing != nil {
		s.onCrossing(ev)
	}
	return &ev, nil
}

func (s *Session) reject(ev DetectionEvent, err error) {
	s.stats.Rejected++
	s.metrics.recordRejected()
	opsf("quarantined detection (frame %d, track %d): %v", ev.FrameIndex, ev.TrackID, err)
}

func (s *Session) maybeSweep(frame int64) {
	if frame-s.lastSweep < s.cfg.EvictionInterval {
		return
	}
	s.lastSweep = frame
	n := s.store.EvictStale(frame, s.cfg.MaxTrackAge)
	if n > 0 {
		s.stats.TracksEvicted += int64(n)
		s.metrics.recordEvicted(n)
		diagf("frame %d: evicted %d stale tracks, %d live", frame, n, s.store.Len())
	}
}

func (s *Session) runningTotals() RunningTotals {
	rt := RunningTotals{Total: s.counters.Total(), ByLane: make(map[Lane]int, len(Lanes))}
	for _, lane := range Lanes {
		rt.ByLane[lane] = s.counters.lanes[lane].Total
	}
	return rt
}

// Cancel stops the session. Counts stay as they are and become the final
// result; later calls to Process return ErrSessionCancelled.
func (s *Session) Cancel() {
	if s.cancelled {
		return
	}
	s.cancelled = true
	opsf("session %s cancelled at frame %d with %d counted", s.id, s.lastFrame, s.counters.Total())
}

// Cancelled reports whether Cancel has been called.
func (s *Session) Cancelled() bool { return s.cancelled }

// Summary returns the current counts.
func (s *Session) Summary() Summary { return s.counters.Summary() }

// Stats returns the processing counters.
func (s *Session) Stats() Stats {
	st := s.stats
	st.LiveTracks = s.store.Len()
	return st
}

// Track returns the live track with the given ID, or nil.
func (s *Session) Track(id int64) *Track { return s.store.Get(id) }
