package counting

// det builds a detection centred at (100, y) with a 150x100 box, a size
// that the geometric rules leave unchanged for car, bus and truck.
func det(frame, id int64, y float64, classID int) DetectionEvent {
	return detSized(frame, id, y, classID, 150, 100)
}

func detSized(frame, id int64, y float64, classID int, w, h float64) DetectionEvent {
	return DetectionEvent{
		FrameIndex: frame,
		TrackID:    id,
		BBox:       BBox{100 - w/2, y - h/2, 100 + w/2, y + h/2},
		ClassID:    classID,
		Confidence: 0.9,
	}
}

// feed pushes ys through the store as consecutive frames of one track,
// starting at frame start.
func feed(s *TrackStore, id int64, start int64, ys ...float64) *Track {
	var t *Track
	for i, y := range ys {
		t = s.Update(det(start+int64(i), id, y, 0))
	}
	return t
}
