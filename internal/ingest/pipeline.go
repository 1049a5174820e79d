package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/lanecount/internal/config"
	"github.com/banshee-data/lanecount/internal/counting"
)

// alwaysProcessedFrames is the number of leading frames processed
// regardless of FrameSkip.
const alwaysProcessedFrames = 3

// Config controls a Pipeline.
type Config struct {
	// FrameSkip processes every Nth frame (plus the first three). 1 processes all.
	FrameSkip int
	// ProgressEvery reports progress every N frames; 0 disables reporting.
	ProgressEvery int
	// TotalFrames is the expected frame count, used for percent and ETA. 0 if unknown.
	TotalFrames int64
	// QueueSize is the capacity of the channel between reader and session.
	QueueSize int
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a pipeline Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		FrameSkip:     cfg.GetFrameSkip(),
		ProgressEvery: cfg.GetProgressEvery(),
		QueueSize:     cfg.GetQueueSize(),
	}
}

// Progress is reported periodically while a pipeline runs.
type Progress struct {
	SessionID   string        `json:"session_id"`
	Frame       int64         `json:"frame"`
	Frames      int64         `json:"frames"`
	TotalFrames int64         `json:"total_frames,omitempty"`
	Percent     float64       `json:"percent,omitempty"`
	FPS         float64       `json:"fps"`
	ETA         time.Duration `json:"eta,omitempty"`
	Counted     int           `json:"counted"`
}

// Result is the outcome of a pipeline run. When Cancelled is set the
// Summary is the authoritative partial result.
type Result struct {
	Source    string           `json:"source,omitempty"`
	SessionID string           `json:"session_id"`
	Summary   counting.Summary `json:"summary"`
	Stats     counting.Stats   `json:"stats"`
	Frames    int64            `json:"frames"`
	Malformed int64            `json:"malformed"`
	Skipped   int64            `json:"skipped"`
	Cancelled bool             `json:"cancelled"`
	Elapsed   time.Duration    `json:"elapsed"`
	FPS       float64          `json:"fps"`

	// Err is the job's failure in a batch run. Run reports its error directly.
	Err error `json:"-"`
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithProgress calls fn on the consumer goroutine every ProgressEvery frames.
func WithProgress(fn func(Progress)) PipelineOption {
	return func(p *Pipeline) { p.onProgress = fn }
}

// WithClock overrides the time source used for FPS and ETA.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline feeds a JSON Lines detection stream into one session. A reader
// goroutine decodes records into a bounded queue and a single consumer
// goroutine owns the session. A full queue blocks the reader; nothing is
// dropped or reordered.
type Pipeline struct {
	session    *counting.Session
	cfg        Config
	onProgress func(Progress)
	now        func() time.Time
}

// NewPipeline returns a pipeline driving s.
func NewPipeline(s *counting.Session, cfg Config, opts ...PipelineOption) *Pipeline {
	if cfg.FrameSkip < 1 {
		cfg.FrameSkip = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	p := &Pipeline{session: s, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run reads r to the end or until ctx is cancelled. On cancellation the
// session is cancelled and the partial result is returned with a nil
// error. Records that cannot be decoded, oversized ones included, are
// counted in Result.Malformed and skipped. An error is returned only when
// the input cannot be read; events read before the failure are still
// applied.
//
// If r is an io.Closer it is closed on cancellation to unblock the reader.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (Result, error) {
	start := p.now()
	events := make(chan counting.DetectionEvent, p.cfg.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(gctx, func() { _ = c.Close() })
		defer stop()
	}

	var malformed int64
	g.Go(func() error {
		defer close(events)
		dec := NewDecoder(r)
		for {
			ev, err := dec.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			var lineErr *LineError
			if errors.As(err, &lineErr) {
				malformed++
				opsf("session %s: skipping %v", p.session.ID(), lineErr)
				continue
			}
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read detections: %w", err)
			}
			select {
			case events <- ev:
			case <-gctx.Done():
				return nil
			}
		}
	})

	var (
		frames    int64
		skipped   int64
		lastFrame int64 = -1
	)
	// The consumer drains the queue after a read error; only ctx stops it early.
	g.Go(func() error {
		for {
			var ev counting.DetectionEvent
			var ok bool
			select {
			case <-ctx.Done():
				return nil
			case ev, ok = <-events:
			}
			if !ok {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}

			if ev.FrameIndex != lastFrame {
				lastFrame = ev.FrameIndex
				frames++
				if p.cfg.ProgressEvery > 0 && frames%int64(p.cfg.ProgressEvery) == 0 {
					p.reportProgress(ev.FrameIndex, frames, start)
				}
			}
			if !p.keepFrame(ev.FrameIndex) {
				skipped++
				continue
			}

			_, err := p.session.Process(ev)
			switch {
			case err == nil:
			case errors.Is(err, counting.ErrInvalidDetection), errors.Is(err, counting.ErrOutOfOrderFrame):
				// Quarantined and counted by the session.
			case errors.Is(err, counting.ErrSessionCancelled):
				return nil
			default:
				return fmt.Errorf("process frame %d: %w", ev.FrameIndex, err)
			}
		}
	})

	err := g.Wait()
	if ctx.Err() != nil {
		p.session.Cancel()
	}

	elapsed := p.now().Sub(start)
	res := Result{
		SessionID: p.session.ID(),
		Summary:   p.session.Summary(),
		Stats:     p.session.Stats(),
		Frames:    frames,
		Malformed: malformed,
		Skipped:   skipped,
		Cancelled: p.session.Cancelled(),
		Elapsed:   elapsed,
		FPS:       rate(frames, elapsed),
	}
	if err != nil {
		return res, err
	}
	diagf("session %s: %d frames, %d counted, %d malformed, %d skipped in %s",
		res.SessionID, res.Frames, res.Summary.TotalCounted, res.Malformed, res.Skipped, elapsed)
	return res, nil
}

// keepFrame applies FrameSkip: the first frames are always kept, then every
// FrameSkip-th frame.
func (p *Pipeline) keepFrame(frame int64) bool {
	return frame < alwaysProcessedFrames || frame%int64(p.cfg.FrameSkip) == 0
}

func (p *Pipeline) reportProgress(frame, frames int64, start time.Time) {
	elapsed := p.now().Sub(start)
	pr := Progress{
		SessionID:   p.session.ID(),
		Frame:       frame,
		Frames:      frames,
		TotalFrames: p.cfg.TotalFrames,
		FPS:         rate(frames, elapsed),
		Counted:     p.session.Summary().TotalCounted,
	}
	if p.cfg.TotalFrames > 0 {
		pr.Percent = min(100, float64(frames)/float64(p.cfg.TotalFrames)*100)
		if pr.FPS > 0 && frames < p.cfg.TotalFrames {
			pr.ETA = time.Duration(float64(p.cfg.TotalFrames-frames) / pr.FPS * float64(time.Second))
		}
	}
	tracef("session %s: frame %d (%.1f%%), %.1f fps, eta %s", pr.SessionID, frame, pr.Percent, pr.FPS, pr.ETA)
	if p.onProgress != nil {
		p.onProgress(pr)
	}
}

func rate(frames int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(frames) / elapsed.Seconds()
}
