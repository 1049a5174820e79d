package counting

// directScanPairs bounds how far back the direct transition scan looks.
const directScanPairs = 10

// minMovementSamples is the history length needed before windowed movement
// yields a direction.
const minMovementSamples = 3

// CrossingResult is the outcome of one crossing evaluation.
type CrossingResult struct {
	Crossed   bool
	Direction CrossingDirection
	Method    CrossingMethod
}

// CrossingDetector decides whether a track has crossed the counting line.
type CrossingDetector struct {
	minDetectionFrames int
	minTrackDistance   float64
	catchUpZone        float64
	maxFramesSinceLine int64
}

// NewCrossingDetector returns a detector using the thresholds in cfg.
func NewCrossingDetector(cfg Config) *CrossingDetector {
	return &CrossingDetector{
		minDetectionFrames: cfg.MinDetectionFrames,
		minTrackDistance:   cfg.MinTrackDistance,
		catchUpZone:        cfg.CatchUpZone,
		maxFramesSinceLine: cfg.MaxFramesSinceLine,
	}
}

// Evaluate tries the direct scan, the lifetime catch-up and the catch-up
// zone in that order and returns the first confirmation.
//
// The lifetime method sets t.CrossingConfirmed when it fires so it can fire
// only once. The caller must register the crossing before handling any
// further detection, or clear the flag if it defers the crossing.
func (d *CrossingDetector) Evaluate(t *Track, lineY, currentY float64, frame int64) CrossingResult {
	if t.Counted || t.FrameCount < d.minDetectionFrames {
		return CrossingResult{}
	}

	ys := t.YHistory()

	// Method 1: consecutive pair straddling the line.
	for i := max(1, len(ys)-directScanPairs); i < len(ys); i++ {
		prev, curr := ys[i-1], ys[i]
		if prev < lineY && curr >= lineY {
			return CrossingResult{Crossed: true, Direction: DirectionDown, Method: MethodDirect}
		}
		if prev > lineY && curr <= lineY {
			return CrossingResult{Crossed: true, Direction: DirectionUp, Method: MethodDirect}
		}
	}

	if !d.nearLine(t, frame) {
		return CrossingResult{}
	}

	// Method 2: seen on both sides at some point in its life.
	if t.WasAboveLine && t.WasBelowLine && !t.CrossingConfirmed {
		t.CrossingConfirmed = true
		dir := DirectionUp
		if currentY > t.FirstY {
			dir = DirectionDown
		}
		return CrossingResult{Crossed: true, Direction: dir, Method: MethodLifetime}
	}

	// Method 3: net movement into the zone just past the line.
	if len(ys) < minMovementSamples {
		return CrossingResult{}
	}
	movement := ys[len(ys)-1] - ys[0]
	switch {
	case movement > d.minTrackDistance && t.WasAboveLine &&
		currentY >= lineY && currentY < lineY+d.catchUpZone && t.FirstY < lineY:
		return CrossingResult{Crossed: true, Direction: DirectionDown, Method: MethodCatchUpZone}
	case movement < -d.minTrackDistance && t.WasBelowLine &&
		currentY <= lineY && currentY > lineY-d.catchUpZone && t.FirstY > lineY:
		return CrossingResult{Crossed: true, Direction: DirectionUp, Method: MethodCatchUpZone}
	}
	return CrossingResult{}
}

// nearLine reports whether the catch-up methods are still armed for t.
// A zero maxFramesSinceLine disables the check.
func (d *CrossingDetector) nearLine(t *Track, frame int64) bool {
	if d.maxFramesSinceLine == 0 {
		return true
	}
	return t.LastNearLineFrame >= 0 && frame-t.LastNearLineFrame <= d.maxFramesSinceLine
}
