package counting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackStore_Update(t *testing.T) {
	t.Parallel()

	s := NewTrackStore(DefaultConfig(300))
	tr := feed(s, 7, 10, 100, 250, 350)

	require.NotNil(t, tr)
	assert.Equal(t, int64(7), tr.TrackID)
	assert.Equal(t, 3, tr.FrameCount)
	assert.Equal(t, int64(10), tr.FirstSeenFrame)
	assert.Equal(t, int64(12), tr.LastSeenFrame)
	assert.Equal(t, []float64{100, 250, 350}, tr.YHistory())
	assert.Equal(t, []float64{100, 100, 100}, tr.XHistory())
	assert.Equal(t, 100.0, tr.FirstY)
	assert.Equal(t, 100.0, tr.MinY)
	assert.Equal(t, 350.0, tr.MaxY)
	assert.Equal(t, 350.0, tr.CurrentY())
	assert.True(t, tr.WasAboveLine)
	assert.True(t, tr.WasBelowLine)
	assert.InDelta(t, 0.9, tr.MeanConfidence(), 1e-9)
	assert.Equal(t, 1, s.Len())
	assert.Same(t, tr, s.Get(7))
	assert.Nil(t, s.Get(8))
}

func TestTrackStore_SideFlagsNeverCleared(t *testing.T) {
	t.Parallel()

	s := NewTrackStore(DefaultConfig(300))
	tr := feed(s, 1, 0, 320)
	assert.False(t, tr.WasAboveLine)
	assert.True(t, tr.WasBelowLine)

	tr = feed(s, 1, 1, 300)
	assert.False(t, tr.WasAboveLine, "a centroid on the line is on neither side")
	assert.True(t, tr.WasBelowLine)
}

func TestTrackStore_LastNearLineFrame(t *testing.T) {
	t.Parallel()

	s := NewTrackStore(DefaultConfig(300))

	tr := feed(s, 1, 0, 100)
	assert.Equal(t, int64(-1), tr.LastNearLineFrame)

	tr = feed(s, 1, 1, 250)
	assert.Equal(t, int64(1), tr.LastNearLineFrame)

	// Far from the line but on the other side of it.
	tr = feed(s, 1, 9, 500)
	assert.Equal(t, int64(9), tr.LastNearLineFrame)

	tr = feed(s, 1, 10, 550)
	assert.Equal(t, int64(9), tr.LastNearLineFrame)
}

func TestTrackStore_HistoryBounded(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig(300)
	cfg.MaxTrackingFrames = 5
	s := NewTrackStore(cfg)
	tr := feed(s, 1, 0, 10, 20, 30, 40, 50, 60, 70, 80)

	assert.Equal(t, []float64{40, 50, 60, 70, 80}, tr.YHistory())
	assert.Equal(t, 8, tr.FrameCount)
	assert.Equal(t, 10.0, tr.FirstY)
	assert.Equal(t, 10.0, tr.MinY)
}

func TestTrackStore_ValidSizesSkipsDegenerateBoxes(t *testing.T) {
	t.Parallel()

	s := NewTrackStore(DefaultConfig(300))
	s.Update(detSized(0, 1, 100, 0, 80, 40))
	s.Update(detSized(1, 1, 110, 0, 0, 40))
	tr := s.Update(detSized(2, 1, 120, 0, 100, 60))

	w, h := tr.validSizes()
	assert.Equal(t, []float64{80, 100}, w)
	assert.Equal(t, []float64{40, 60}, h)
	assert.Equal(t, 3, tr.FrameCount)
}

func TestTrackStore_EvictStale(t *testing.T) {
	t.Parallel()

	s := NewTrackStore(DefaultConfig(300)) // MaxFramesSinceLine 15
	feed(s, 1, 0, 100)                     // never near the line
	feed(s, 2, 0, 290)                     // near, uncounted
	counted := feed(s, 3, 0, 290)          // near, counted
	counted.Counted = true

	n := s.EvictStale(10, 5)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Len())
	assert.NotNil(t, s.Get(2), "pending catch-up track must survive")

	n = s.EvictStale(20, 5)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, s.Len())
}

func TestTrackStore_EvictStaleKeepsFreshTracks(t *testing.T) {
	t.Parallel()

	s := NewTrackStore(DefaultConfig(300))
	feed(s, 1, 0, 100)
	assert.Equal(t, 0, s.EvictStale(5, 5))
	assert.Equal(t, 1, s.EvictStale(6, 5))
}
