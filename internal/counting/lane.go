package counting

// laneDisplacementBand is the net vertical travel (px) inside which the
// displacement fallback uses its sign tie-break.
const laneDisplacementBand = 10.0

// AssignLane infers a track's lane from its vertical trajectory.
//
// Traffic in the right lane moves towards increasing y, so a track that
// starts in the upper half of its observed extent is on the right. With no
// extent the net displacement decides, and zero displacement is left.
func AssignLane(yHistory []float64, firstY, minY, maxY float64) Lane {
	if len(yHistory) < 2 {
		return LaneUnknown
	}
	if maxY > minY {
		if firstY <= (minY+maxY)/2 {
			return LaneRight
		}
		return LaneLeft
	}

	d := yHistory[len(yHistory)-1] - firstY
	switch {
	case d < -laneDisplacementBand:
		return LaneLeft
	case d > laneDisplacementBand:
		return LaneRight
	case d <= 0:
		return LaneLeft
	default:
		return LaneRight
	}
}
