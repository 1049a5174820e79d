package counting

// classVotes accumulates per-class votes and remembers the order in which
// classes first received a vote, which breaks ties.
type classVotes struct {
	order    []VehicleClass
	counts   map[VehicleClass]int
	weighted map[VehicleClass]float64
}

func newClassVotes() classVotes {
	return classVotes{
		counts:   make(map[VehicleClass]int),
		weighted: make(map[VehicleClass]float64),
	}
}

func (v *classVotes) add(class VehicleClass, confidence float64) {
	if _, ok := v.counts[class]; !ok {
		v.order = append(v.order, class)
	}
	v.counts[class]++
	v.weighted[class] += confidence
}

// leader returns the class with the largest weighted mass. Ties go to the
// class that was voted for first.
func (v *classVotes) leader() (VehicleClass, bool) {
	if len(v.order) == 0 {
		return ClassUnknown, false
	}
	best := v.order[0]
	for _, class := range v.order[1:] {
		if v.weighted[class] > v.weighted[best] {
			best = class
		}
	}
	return best, true
}

// Track is the aggregated history of one upstream track ID.
type Track struct {
	TrackID int64

	yHistory      *ringBuffer[float64]
	xHistory      *ringBuffer[float64]
	widthHistory  *ringBuffer[float64]
	heightHistory *ringBuffer[float64]

	ConfidenceSum   float64
	ConfidenceCount int

	votes       classVotes
	StableClass VehicleClass
	Lane        Lane

	FrameCount     int
	FirstSeenFrame int64
	LastSeenFrame  int64

	FirstY float64
	MinY   float64
	MaxY   float64

	// Set once true, never cleared.
	WasAboveLine bool
	WasBelowLine bool

	// LastNearLineFrame is the last frame the track was inside the catch-up
	// zone or changed side of the line; -1 if never.
	LastNearLineFrame int64

	CrossingConfirmed bool
	Counted           bool
}

func newTrack(id int64, capacity int) *Track {
	return &Track{
		TrackID:           id,
		yHistory:          newRingBuffer[float64](capacity),
		xHistory:          newRingBuffer[float64](capacity),
		widthHistory:      newRingBuffer[float64](capacity),
		heightHistory:     newRingBuffer[float64](capacity),
		votes:             newClassVotes(),
		LastNearLineFrame: -1,
	}
}

// YHistory returns the bounded centroid-y history, oldest first.
func (t *Track) YHistory() []float64 { return t.yHistory.Values() }

// XHistory returns the bounded centroid-x history, oldest first.
func (t *Track) XHistory() []float64 { return t.xHistory.Values() }

// CurrentY returns the most recent centroid y.
func (t *Track) CurrentY() float64 { return t.yHistory.Last() }

// MeanConfidence returns the average detection confidence.
func (t *Track) MeanConfidence() float64 {
	if t.ConfidenceCount == 0 {
		return 0
	}
	return t.ConfidenceSum / float64(t.ConfidenceCount)
}

// Votes returns a copy of the raw per-class vote counts.
func (t *Track) Votes() map[VehicleClass]int {
	out := make(map[VehicleClass]int, len(t.votes.counts))
	for k, v := range t.votes.counts {
		out[k] = v
	}
	return out
}

// WeightedVotes returns a copy of the confidence-weighted vote mass.
func (t *Track) WeightedVotes() map[VehicleClass]float64 {
	out := make(map[VehicleClass]float64, len(t.votes.weighted))
	for k, v := range t.votes.weighted {
		out[k] = v
	}
	return out
}

// validSizes returns the widths and heights of history samples where both
// dimensions are positive.
func (t *Track) validSizes() (widths, heights []float64) {
	n := t.widthHistory.Len()
	widths = make([]float64, 0, n)
	heights = make([]float64, 0, n)
	for i := 0; i < n; i++ {
		w, h := t.widthHistory.At(i), t.heightHistory.At(i)
		if w > 0 && h > 0 {
			widths = append(widths, w)
			heights = append(heights, h)
		}
	}
	return widths, heights
}

// TrackStore owns every live Track of a session, keyed by track ID.
type TrackStore struct {
	lineY              float64
	catchUpZone        float64
	capacity           int
	maxFramesSinceLine int64

	tracks map[int64]*Track
}

// NewTrackStore creates an empty store for the given configuration.
func NewTrackStore(cfg Config) *TrackStore {
	return &TrackStore{
		lineY:              cfg.LinePosition,
		catchUpZone:        cfg.CatchUpZone,
		capacity:           cfg.MaxTrackingFrames,
		maxFramesSinceLine: cfg.MaxFramesSinceLine,
		tracks:             make(map[int64]*Track),
	}
}

// Update folds one detection into the history of its track, creating the
// track on first sight, and returns it.
func (s *TrackStore) Update(ev DetectionEvent) *Track {
	t, ok := s.tracks[ev.TrackID]
	if !ok {
		t = newTrack(ev.TrackID, s.capacity)
		t.FirstSeenFrame = ev.FrameIndex
		s.tracks[ev.TrackID] = t
	}

	cx, cy := ev.BBox.Center()
	prevSide := 0
	if t.FrameCount > 0 {
		prevSide = s.side(t.CurrentY())
	}

	t.yHistory.Push(cy)
	t.xHistory.Push(cx)
	t.widthHistory.Push(ev.BBox.Width())
	t.heightHistory.Push(ev.BBox.Height())
	t.FrameCount++
	t.LastSeenFrame = ev.FrameIndex
	t.ConfidenceSum += ev.Confidence
	t.ConfidenceCount++

	if t.FrameCount == 1 {
		t.FirstY, t.MinY, t.MaxY = cy, cy, cy
	} else {
		if cy < t.MinY {
			t.MinY = cy
		}
		if cy > t.MaxY {
			t.MaxY = cy
		}
	}

	side := s.side(cy)
	switch side {
	case -1:
		t.WasAboveLine = true
	case 1:
		t.WasBelowLine = true
	}

	dist := cy - s.lineY
	if dist < 0 {
		dist = -dist
	}
	if dist < s.catchUpZone || (prevSide != 0 && side != prevSide) {
		t.LastNearLineFrame = ev.FrameIndex
	}

	return t
}

// side returns -1 above the line, 1 below it and 0 exactly on it.
func (s *TrackStore) side(y float64) int {
	switch {
	case y < s.lineY:
		return -1
	case y > s.lineY:
		return 1
	default:
		return 0
	}
}

// Get returns the track for id, or nil.
func (s *TrackStore) Get(id int64) *Track {
	return s.tracks[id]
}

// Len returns the number of live tracks.
func (s *TrackStore) Len() int {
	return len(s.tracks)
}

// EvictStale removes tracks not seen for more than maxAge frames and
// returns how many were removed. An uncounted track whose catch-up window
// (MaxFramesSinceLine since last being near the line) is still open is kept.
func (s *TrackStore) EvictStale(currentFrame, maxAge int64) int {
	evicted := 0
	for id, t := range s.tracks {
		if currentFrame-t.LastSeenFrame <= maxAge {
			continue
		}
		if !t.Counted && t.LastNearLineFrame >= 0 &&
			currentFrame-t.LastNearLineFrame <= s.maxFramesSinceLine {
			continue
		}
		delete(s.tracks, id)
		evicted++
	}
	return evicted
}
