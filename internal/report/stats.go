package report

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lanecount/internal/counting"
)

// DwellStats summarises how many frames counted vehicles were tracked for
// before being counted.
type DwellStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P85   float64 `json:"p85"`
	P95   float64 `json:"p95"`
}

// ComputeDwellStats returns dwell statistics over crossings. Percentiles use
// the empirical (lower) quantile.
func ComputeDwellStats(crossings []counting.CrossingEvent) DwellStats {
	if len(crossings) == 0 {
		return DwellStats{}
	}
	dwell := make([]float64, len(crossings))
	for i, c := range crossings {
		dwell[i] = float64(c.DwellFrames)
	}
	sort.Float64s(dwell)

	return DwellStats{
		Count: len(dwell),
		Mean:  stat.Mean(dwell, nil),
		P50:   stat.Quantile(0.50, stat.Empirical, dwell, nil),
		P85:   stat.Quantile(0.85, stat.Empirical, dwell, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, dwell, nil),
	}
}

// CumulativePoint is the running total after a crossing.
type CumulativePoint struct {
	Frame int64
	Total int
	Lane  map[counting.Lane]int
}

// Cumulative returns the running totals after each crossing, in frame order.
func Cumulative(crossings []counting.CrossingEvent) []CumulativePoint {
	sorted := append([]counting.CrossingEvent(nil), crossings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FrameIndex < sorted[j].FrameIndex })

	out := make([]CumulativePoint, 0, len(sorted))
	byLane := make(map[counting.Lane]int, len(counting.Lanes))
	for i, c := range sorted {
		byLane[c.Lane]++
		pt := CumulativePoint{Frame: c.FrameIndex, Total: i + 1, Lane: make(map[counting.Lane]int, len(byLane))}
		for k, v := range byLane {
			pt.Lane[k] = v
		}
		out = append(out, pt)
	}
	return out
}
