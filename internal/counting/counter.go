package counting

import (
	"encoding/json"
	"fmt"
)

// laneTotalKey is the JSON key of a lane total. It sits next to the class
// keys, so no class may use it as a label.
const laneTotalKey VehicleClass = "total"

// LaneCounts holds the per-class counts of one lane. It serialises flat:
// {"bus":0,"car":2,"total":2}.
type LaneCounts struct {
	Total   int
	ByClass map[VehicleClass]int
}

func (lc LaneCounts) MarshalJSON() ([]byte, error) {
	m := make(map[VehicleClass]int, len(lc.ByClass)+1)
	for k, v := range lc.ByClass {
		m[k] = v
	}
	m[laneTotalKey] = lc.Total
	return json.Marshal(m)
}

func (lc *LaneCounts) UnmarshalJSON(data []byte) error {
	var m map[VehicleClass]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	lc.Total = m[laneTotalKey]
	delete(m, laneTotalKey)
	lc.ByClass = m
	return nil
}

func newLaneCounts(classes []VehicleClass) LaneCounts {
	lc := LaneCounts{ByClass: make(map[VehicleClass]int, len(classes))}
	for _, c := range classes {
		lc.ByClass[c] = 0
	}
	return lc
}

func (lc LaneCounts) clone() LaneCounts {
	out := LaneCounts{Total: lc.Total, ByClass: make(map[VehicleClass]int, len(lc.ByClass))}
	for k, v := range lc.ByClass {
		out.ByClass[k] = v
	}
	return out
}

// Summary is the authoritative count of a session.
type Summary struct {
	TotalCounted    int                 `json:"total_counted"`
	ByLane          map[Lane]LaneCounts `json:"by_lane"`
	CountedTrackIDs []int64             `json:"counted_track_ids"`
}

// CounterDelta describes one increment applied by RegisterCrossing.
type CounterDelta struct {
	TrackID   int64
	Lane      Lane
	Class     VehicleClass
	Direction CrossingDirection
	// LaneFromDirection is set when the track had no lane of its own.
	LaneFromDirection bool
}

// Counters is the per-lane, per-class count state of a session and the only
// place counts are mutated.
type Counters struct {
	classes []VehicleClass
	lanes   map[Lane]*LaneCounts
	total   int

	countedIDs []int64
	countedSet map[int64]struct{}
}

// NewCounters returns zeroed counters for the given classes.
func NewCounters(classes []VehicleClass) *Counters {
	c := &Counters{
		classes:    append([]VehicleClass(nil), classes...),
		lanes:      make(map[Lane]*LaneCounts, len(Lanes)),
		countedSet: make(map[int64]struct{}),
	}
	for _, lane := range Lanes {
		lc := newLaneCounts(classes)
		c.lanes[lane] = &lc
	}
	return c
}

// IsCounted reports whether id has already been counted.
func (c *Counters) IsCounted(id int64) bool {
	_, ok := c.countedSet[id]
	return ok
}

// Total returns the grand total.
func (c *Counters) Total() int { return c.total }

// RegisterCrossing counts a confirmed crossing of t as class and marks t
// counted. The lane is the track's own, or the one implied by dir when the
// track has none.
func (c *Counters) RegisterCrossing(t *Track, class VehicleClass, dir CrossingDirection, frame int64) (CounterDelta, error) {
	if t.Counted || c.IsCounted(t.TrackID) {
		return CounterDelta{}, fmt.Errorf("track %d: %w", t.TrackID, ErrAlreadyCounted)
	}
	if class == ClassUnknown {
		return CounterDelta{}, fmt.Errorf("track %d: %w", t.TrackID, ErrUnknownClass)
	}

	delta := CounterDelta{TrackID: t.TrackID, Class: class, Direction: dir, Lane: t.Lane}
	if delta.Lane == LaneUnknown {
		delta.Lane = dir.Lane()
		delta.LaneFromDirection = true
	} else if dir.Lane() != LaneUnknown && dir.Lane() != delta.Lane {
		diagf("frame %d track %d: lane %s disagrees with crossing direction %s", frame, t.TrackID, delta.Lane, dir)
	}

	lc, ok := c.lanes[delta.Lane]
	if !ok {
		return CounterDelta{}, fmt.Errorf("track %d: %w", t.TrackID, ErrUnresolvedLane)
	}

	lc.ByClass[class]++
	lc.Total++
	c.total++
	c.countedIDs = append(c.countedIDs, t.TrackID)
	c.countedSet[t.TrackID] = struct{}{}
	t.Counted = true
	return delta, nil
}

// Summary returns a copy of the current counts.
func (c *Counters) Summary() Summary {
	s := Summary{
		TotalCounted:    c.total,
		ByLane:          make(map[Lane]LaneCounts, len(c.lanes)),
		CountedTrackIDs: append([]int64{}, c.countedIDs...),
	}
	for lane, lc := range c.lanes {
		s.ByLane[lane] = lc.clone()
	}
	return s
}

// CheckConservation verifies that the grand total equals both the sum of
// all lane/class counters and the number of counted track IDs.
func (c *Counters) CheckConservation() error {
	sum := 0
	for lane, lc := range c.lanes {
		laneSum := 0
		for _, n := range lc.ByClass {
			laneSum += n
		}
		if laneSum != lc.Total {
			return fmt.Errorf("lane %s: class counts sum to %d, lane total is %d", lane, laneSum, lc.Total)
		}
		sum += laneSum
	}
	if sum != c.total || len(c.countedIDs) != c.total || len(c.countedSet) != c.total {
		return fmt.Errorf("total %d, counter sum %d, counted ids %d", c.total, sum, len(c.countedIDs))
	}
	return nil
}
